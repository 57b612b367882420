// Command worker is the auction core's process entry point (spec.md §6):
// one process runs one auction, driven by a single subcommand plus the
// auction's document id and a YAML config path. Grounded on the teacher's
// cmd/server/main.go wiring order (logger, config, Sentry, tracing,
// Postgres pool, component construction, graceful shutdown) adapted from
// "serve forever" to "run one auction lifecycle then exit" — the flag
// parsing itself has no library precedent in the pack's complete example
// repos (only a manifest-only spf13/cobra listing with no source to
// ground a usage pattern on — see DESIGN.md), so it is built on the
// standard library's flag package.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opentexas/auction-worker/internal/bidding"
	"github.com/opentexas/auction-worker/internal/config"
	"github.com/opentexas/auction-worker/internal/coordinator"
	"github.com/opentexas/auction-worker/internal/datasource"
	"github.com/opentexas/auction-worker/internal/httpapi"
	"github.com/opentexas/auction-worker/internal/scheduler"
	"github.com/opentexas/auction-worker/internal/store"
	"github.com/opentexas/auction-worker/internal/tracing"
)

const usage = `usage: worker <cmd> <auction_doc_id> <config_path> [options]

commands:
  check                  run init only
  run                    start scheduler, schedule_auction, wait, shutdown
  planning               prepare_auction_document
  announce               reload document + fetch bids + open bidder names
  post_results           post results without a live auction
  cancel                 set current_stage = -100
  reschedule             set current_stage = -101
  post_auction_protocol  post/update audit, prints doc_id

options:
  --with_api_version string   API version stamped onto new documents
  --planning_procerude value  full | partial_db | partial_cron (default full)
  --debug                     stamp mode="test" on planning
  --standalone                run with an in-memory store and synthetic datasource
  --doc_id string              existing audit document id (post_auction_protocol)
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	apiVersion := fs.String("with_api_version", "", "")
	planningProcedure := fs.String("planning_procerude", "full", "")
	debug := fs.Bool("debug", false, "")
	standalone := fs.Bool("standalone", false, "")
	docID := fs.String("doc_id", "", "")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	positional := fs.Args()
	if len(positional) < 3 {
		fs.Usage()
		return 1
	}
	cmd, auctionDocID, configPath := positional[0], positional[1], positional[2]

	switch *planningProcedure {
	case "full", "partial_db", "partial_cron":
	default:
		logger.Error("invalid_planning_procerude", slog.String("value", *planningProcedure))
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("config_load_failed", slog.String("error", err.Error()))
		return 1
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, TracesSampleRate: 0.1}); err != nil {
			logger.Error("sentry_init_failed", slog.String("error", err.Error()))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	tracingShutdown, err := tracing.Init(ctx, "auction-worker", cfg.OTLPEndpoint, "production")
	if err != nil {
		logger.Warn("tracing_init_failed", slog.String("error", err.Error()))
	} else {
		defer tracingShutdown(ctx)
	}

	st, closeStore, err := buildStore(ctx, cfg, *standalone, logger)
	if err != nil {
		logger.Error("store_init_failed", slog.String("error", err.Error()))
		return 1
	}
	defer closeStore()

	// --standalone forces the test datasource variant, and so does a
	// document that already carries standalone: true from a previous run
	// (cli.py: register_utilities). Either trigger also disables the
	// deadline, since a standalone run has no real procurement deadline to
	// honour.
	effectiveStandalone := *standalone
	if existing, loadErr := st.Load(ctx, auctionDocID); loadErr == nil && existing.Standalone {
		effectiveStandalone = true
	}
	if effectiveStandalone {
		cfg.Datasource.Type = "test"
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config_invalid", slog.String("error", err.Error()))
		return 1
	}

	ds, err := buildDatasource(cfg, auctionDocID, logger)
	if err != nil {
		logger.Error("datasource_init_failed", slog.String("error", err.Error()))
		return 1
	}

	sched := scheduler.New(logger)

	deps := coordinator.Deps{
		AuctionID:       auctionDocID,
		APIVersion:      firstNonEmpty(*apiVersion, cfg.ResourceAPIVersion),
		Debug:           *debug,
		SandboxMode:     cfg.SandboxMode,
		DisableDeadline: effectiveStandalone,
		DeadlineHour:    cfg.Deadline.DeadlineTime.Hour,
		DeadlineMinute:  cfg.Deadline.DeadlineTime.Minute,
		DeadlineSecond:  cfg.Deadline.DeadlineTime.Second,
		Store:           st,
		Datasource:      ds,
		Scheduler:       sched,
		Logger:          logger,
	}
	if cmd == "run" {
		deps.StartServer = startBidServer(auctionDocID, st, cfg, logger)
	}
	coord := coordinator.New(deps)

	switch cmd {
	case "check":
		return 0
	case "planning":
		if planningRunsPlanning(*planningProcedure) {
			if err := coord.PrepareAuctionDocument(ctx); err != nil {
				return failOrExit(logger, "planning_failed", err)
			}
		}
		return 0
	case "run":
		if planningRunsPlanning(*planningProcedure) {
			if err := coord.PrepareAuctionDocument(ctx); err != nil {
				return failOrExit(logger, "planning_failed", err)
			}
		}
		if err := coord.ScheduleAuction(ctx); err != nil {
			return failOrExit(logger, "schedule_auction_failed", err)
		}
		sched.Start()
		select {
		case <-coord.Done():
		case <-ctx.Done():
		}
		sched.Shutdown()
		return 0
	case "announce":
		if err := coord.PostAnnounce(ctx); err != nil {
			return failOrExit(logger, "announce_failed", err)
		}
		return 0
	case "post_results":
		if err := coord.PostAuctionResults(ctx); err != nil {
			return failOrExit(logger, "post_results_failed", err)
		}
		return 0
	case "cancel":
		if err := coord.CancelAuction(ctx); err != nil {
			return failOrExit(logger, "cancel_failed", err)
		}
		return 0
	case "reschedule":
		if err := coord.RescheduleAuction(ctx); err != nil {
			return failOrExit(logger, "reschedule_failed", err)
		}
		return 0
	case "post_auction_protocol":
		resultDocID, err := coord.PostAuctionProtocol(ctx, *docID)
		if err != nil {
			return failOrExit(logger, "post_auction_protocol_failed", err)
		}
		fmt.Println(resultDocID)
		return 0
	default:
		fs.Usage()
		return 1
	}
}

// planningRunsPlanning reports whether cmd's planning stage should run
// against the document store (spec.md §6's --planning_procerude):
// partial_cron assumes a separate process already ran prepare_auction_document
// and only the scheduler half remains for `run` to do.
func planningRunsPlanning(procedure string) bool {
	return procedure != "partial_cron"
}

func failOrExit(logger *slog.Logger, message string, err error) int {
	if errors.Is(err, coordinator.ErrDatasourceMissing) {
		logger.Error(message, slog.String("error", err.Error()))
		return 1
	}
	logger.Error(message, slog.String("error", err.Error()))
	return 1
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// buildStore selects MemoryStore for --standalone runs (spec.md SUPPLEMENTED
// FEATURES #2) and PostgresStore otherwise, returning a no-op close func for
// the former so callers can always defer the result.
func buildStore(ctx context.Context, cfg *config.Config, standalone bool, logger *slog.Logger) (store.Store, func(), error) {
	if standalone || cfg.Database.URL == "" {
		return store.NewMemoryStore(), func() {}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, func() {}, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLife

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, func() {}, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, func() {}, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("database_connected")
	return store.NewPostgresStore(pool), pool.Close, nil
}

func buildDatasource(cfg *config.Config, auctionDocID string, logger *slog.Logger) (datasource.Datasource, error) {
	factory := datasource.NewFactory()
	dsCfg := datasource.Config{
		Type:      cfg.Datasource.Type,
		Path:      cfg.Datasource.Path,
		AuctionID: firstNonEmpty(cfg.Datasource.AuctionID, auctionDocID),
		ExternalAPI: datasource.ExternalAPIConfig{
			ResourceAPIServer:   cfg.ResourceAPIServer,
			ResourceAPIVersion:  cfg.ResourceAPIVersion,
			ResourceAPIToken:    cfg.ResourceAPIToken,
			AuctionID:           firstNonEmpty(cfg.Datasource.AuctionID, auctionDocID),
			AuctionsURLFormat:   cfg.AuctionsURL,
			HashSecret:          cfg.HashSecret,
			WithDocumentService: cfg.WithDocumentService,
			DocumentServiceURL:  cfg.DocumentService.URL,
			DSUsername:          cfg.DocumentService.Username,
			DSPassword:          cfg.DocumentService.Password,
		},
	}
	return factory.Build(dsCfg, logger)
}

// startBidServer returns the StartServer hook coordinator.Deps wants: it
// binds the HTTP bid server lazily, once ScheduleAuction has built the Bid
// Handler, matching the teacher's "build router after its handlers exist"
// ordering in cmd/server/main.go.
func startBidServer(auctionDocID string, st store.Store, cfg *config.Config, logger *slog.Logger) func(*bidding.Handler) func() {
	return func(handler *bidding.Handler) func() {
		var authenticator httpapi.Authenticator
		if cfg.HashSecret != "" {
			authenticator = httpapi.NewJWTAuthenticator(cfg.HashSecret, 2*time.Hour)
		}
		srv := httpapi.New(httpapi.Deps{
			AuctionID:     auctionDocID,
			Store:         st,
			Handler:       handler,
			Authenticator: authenticator,
			Logger:        logger,
			Addr:          ":8080",
			CORSOrigins:   []string{"*"},
		})
		return srv.Start()
	}
}
