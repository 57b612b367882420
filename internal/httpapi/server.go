// Package httpapi is the live bid server: a single endpoint that feeds
// validated bids into the Bid Handler (C5), plus the delegated
// authentication surface spec.md §1 marks out of scope. Grounded on the
// teacher's cmd/server/main.go router assembly (chi, chimw.Recoverer,
// go-chi/cors) and internal/handler/bids.go's request/response shape,
// adapted from "submit to an async engine and poll for a ticket" to
// "validate and apply synchronously under the document lock", since a bid
// here has a result the instant add_bid returns — there is no queue to poll.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/opentexas/auction-worker/internal/bidding"
	"github.com/opentexas/auction-worker/internal/metrics"
	"github.com/opentexas/auction-worker/internal/middleware"
	"github.com/opentexas/auction-worker/internal/store"
)

// Deps wires the bid server to its collaborators. One Server is built per
// auction, mirroring the one-Deps-per-auction shape used by bidding.Deps
// and coordinator.Deps (spec.md §9: no global registry).
type Deps struct {
	AuctionID      string
	Store          store.Store
	Handler        *bidding.Handler
	Authenticator  Authenticator
	Logger         *slog.Logger
	Addr           string
	CORSOrigins    []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ShutdownWindow time.Duration
}

// Server is the HTTP surface served while an auction is open for bidding
// (spec.md §6: "served for run").
type Server struct {
	deps    Deps
	handler http.Handler
	http    *http.Server
}

// New builds a Server from deps but does not start listening.
func New(deps Deps) *Server {
	if deps.Authenticator == nil {
		deps.Authenticator = NoopAuthenticator{}
	}
	if deps.ReadTimeout == 0 {
		deps.ReadTimeout = 15 * time.Second
	}
	if deps.WriteTimeout == 0 {
		deps.WriteTimeout = 15 * time.Second
	}
	if deps.ShutdownWindow == 0 {
		deps.ShutdownWindow = 5 * time.Second
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing)
	r.Use(requestLogging(deps.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := &bidHandlers{deps: deps}
	a := &authHandlers{deps: deps}

	r.Post("/postbid", h.postBid)
	r.Get("/login", a.login)
	r.Get("/authorized", a.authorized)
	r.Get("/relogin", a.relogin)
	r.Get("/logout", a.logout)
	r.Post("/check_authorization", a.checkAuthorization)
	r.Post("/kickclient", a.kickClient)

	return &Server{
		deps:    deps,
		handler: r,
		http: &http.Server{
			Addr:         deps.Addr,
			Handler:      r,
			ReadTimeout:  deps.ReadTimeout,
			WriteTimeout: deps.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Handler returns the router as a plain http.Handler, for tests that want
// to drive it with httptest without binding a real socket.
func (s *Server) Handler() http.Handler { return s.handler }

// Start launches the server in the background, matching
// coordinator.Deps.StartServer's func(*bidding.Handler) (stop func())
// shape: it returns a stop closure that gracefully shuts the listener down.
func (s *Server) Start() (stop func()) {
	go func() {
		s.deps.Logger.Info("bid_server_starting", slog.String("addr", s.deps.Addr), slog.String("auction_id", s.deps.AuctionID))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.deps.Logger.Error("bid_server_error", slog.String("error", err.Error()))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.deps.ShutdownWindow)
		defer cancel()
		if err := s.http.Shutdown(ctx); err != nil {
			s.deps.Logger.Error("bid_server_shutdown_error", slog.String("error", err.Error()))
		}
	}
}

func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			duration := time.Since(start)
			logger.Info("http_request",
				slog.String("request_id", middleware.GetRequestID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.status),
				slog.Duration("duration", duration),
			)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapped.status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration.Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}
