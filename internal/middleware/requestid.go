// Package middleware holds the bid server's cross-cutting HTTP concerns —
// request id propagation and span attribution — factored out of
// httpapi.New's router assembly. Grounded on the teacher's
// internal/middleware/requestid.go and tracing.go, trimmed of the
// Clerk-user-id context helpers: a bidder's identity lives in the JWT
// session httpapi.JWTAuthenticator issues, not in a request-scoped user id.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	TraceIDKey   contextKey = "trace_id"
)

// RequestID middleware generates or extracts a request ID
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check for existing request ID header
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		// Add to context
		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)

		// Add to response header
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID extracts request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

