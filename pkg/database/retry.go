package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	retryAttempts       = 3
	retryBaseWait       = time.Second
	retryJitterFraction = 0.25
)

// backoff returns the wait before retry attempt n (0-based): 1s, 2s, 4s with
// ±25% jitter.
func backoff(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	base := retryBaseWait << n
	jitter := time.Duration(float64(base) * retryJitterFraction * (2*rand.Float64() - 1)) // #nosec G404 -- jitter only
	return base + jitter
}

// isTransient reports whether err looks like a connectivity failure rather
// than a SQL error. Only transient errors are retried.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exceptions, 57P0x is server shutdown.
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0")
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	msg := err.Error()
	for _, p := range []string{"connection refused", "connection reset", "broken pipe", "no such host", "dial tcp", "server closed the connection"} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// withRetry calls op until it succeeds, returns a non-transient error, or
// retryAttempts is exhausted.
func withRetry(ctx context.Context, what string, logger *slog.Logger, op func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if !isTransient(err) || attempt == retryAttempts-1 {
			break
		}

		wait := backoff(attempt)
		if logger != nil {
			logger.Warn(what+" failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", retryAttempts),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", what, ctx.Err())
		case <-time.After(wait):
		}
	}
	if isTransient(err) {
		return fmt.Errorf("%s after %d attempts: %w", what, retryAttempts, err)
	}
	return err
}
