package middleware

import (
	"log/slog"
	"net/http"
	"net/http/pprof"
	"net/netip"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/utafrali/ecommerce-pricing/pkg/errors"
	"github.com/utafrali/ecommerce-pricing/pkg/httputil"
)

// RegisterPprof mounts the runtime profiling endpoints under /debug/pprof,
// reachable only from the given prefixes. Nothing is mounted when prefixes is
// empty.
func RegisterPprof(r chi.Router, prefixes []string, logger *slog.Logger) {
	if len(prefixes) == 0 {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(IPAllowlist(prefixes, logger))
		r.HandleFunc("/debug/pprof/*", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	})
}

// IPAllowlist rejects requests whose connection address is outside every
// prefix with 403. Forwarding headers are ignored. Unparseable prefixes are
// logged and skipped.
func IPAllowlist(prefixes []string, logger *slog.Logger) func(http.Handler) http.Handler {
	allowed := make([]netip.Prefix, 0, len(prefixes))
	for _, p := range prefixes {
		prefix, err := netip.ParsePrefix(p)
		if err != nil {
			logger.Warn("invalid allowlist prefix, skipping",
				slog.String("prefix", p),
				slog.String("error", err.Error()),
			)
			continue
		}
		allowed = append(allowed, prefix.Masked())
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr, err := netip.ParseAddrPort(r.RemoteAddr)
			if err == nil && containsAddr(allowed, addr.Addr().Unmap()) {
				next.ServeHTTP(w, r)
				return
			}
			logger.WarnContext(r.Context(), "access denied by IP allowlist",
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("path", r.URL.Path),
			)
			httputil.WriteError(w, r, apperrors.Forbidden("access restricted by IP allowlist"), logger)
		})
	}
}

func containsAddr(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
