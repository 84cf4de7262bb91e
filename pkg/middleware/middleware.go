// Package middleware carries the HTTP middleware chain: identity propagation
// from the gateway, admin gating, and request logging.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spendlens/spendlens/pkg/config"
)

// UserIDHeader is set by the gateway after it authenticates the caller.
const UserIDHeader = "X-User-Id"

type contextKey int

const userIDKey contextKey = iota

// UserIDFrom returns the authenticated user id, or nil when authentication
// is disabled and the service runs single-tenant.
func UserIDFrom(ctx context.Context) *string {
	id, _ := ctx.Value(userIDKey).(*string)
	return id
}

// WithUserID stores the user id on the context. Exposed for tests.
func WithUserID(ctx context.Context, userID *string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// Auth extracts the caller identity from the gateway header. When auth is
// enabled a missing header is rejected; when disabled every request runs
// unscoped.
func Auth(cfg *config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), nil)))
				return
			}
			userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
			if userID == "" {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), &userID)))
		})
	}
}

// RequireAdmin gates mutating configuration endpoints. With auth disabled
// everyone is an admin, matching single-tenant operation.
func RequireAdmin(cfg *config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := UserIDFrom(r.Context())
			id := ""
			if userID != nil {
				id = *userID
			}
			if !cfg.IsAdmin(id) {
				http.Error(w, "admin access required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLogger logs one line per request.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			logger.Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", recorder.status),
				slog.Duration("duration", time.Since(start)))
		})
	}
}
