package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/ecommerce-pricing/pkg/logger"
)

// RequestLogger stores a logger carrying the correlation, user, trace and span
// IDs in the request context. Mount it after RequestLogging, Tracing and Auth
// so those IDs are already known.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if userID := SubjectFromContext(ctx); userID != "" {
				ctx = logger.WithUserID(ctx, userID)
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
