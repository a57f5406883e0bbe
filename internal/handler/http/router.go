package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/ecommerce-pricing/internal/service"
	"github.com/utafrali/ecommerce-pricing/pkg/health"
	"github.com/utafrali/ecommerce-pricing/pkg/middleware"
)

// RouterDeps collects what NewRouter mounts.
type RouterDeps struct {
	ServiceName string

	Pricing   *service.PricingService
	Campaigns *service.CampaignService
	Coupons   *service.CouponService

	Health   *health.Handler
	Tokens   middleware.TokenValidator
	Registry prometheus.Registerer
	Gatherer prometheus.Gatherer
	Limiter  *middleware.RateLimiter
	Origins  []string
	Pprof    []string
	Logger   *slog.Logger
}

// NewRouter creates a chi router with all pricing service routes registered.
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(deps.Origins...)))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(deps.ServiceName))
	r.Use(middleware.NewHTTPMetrics(deps.Registry, deps.ServiceName).Middleware)
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	middleware.RegisterPprof(r, deps.Pprof, logger)

	pricingHandler := NewPricingHandler(deps.Pricing, logger)
	campaignHandler := NewCampaignHandler(deps.Campaigns, logger)
	couponHandler := NewCouponHandler(deps.Coupons, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		// Storefront quote, open to the gateway.
		r.Group(func(r chi.Router) {
			if deps.Limiter != nil {
				r.Use(deps.Limiter.Middleware)
			}
			r.Use(middleware.NoStore)
			r.Post("/pricing/quote", pricingHandler.Quote)
		})

		// Back office.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(deps.Tokens))
			r.Use(middleware.RequireRole("admin"))
			// Mounted again so the context logger and event actor carry the authenticated subject.
			r.Use(middleware.RequestLogger(logger))

			r.With(middleware.NoStore).Post("/pricing/preview", pricingHandler.Preview)

			r.Route("/campaigns", func(r chi.Router) {
				r.Post("/", campaignHandler.CreateCampaign)
				r.Get("/", campaignHandler.ListCampaigns)
				r.Get("/{id}", campaignHandler.GetCampaign)
				r.Put("/{id}", campaignHandler.UpdateCampaign)
				r.Post("/{id}/deactivate", campaignHandler.DeactivateCampaign)
			})

			r.Route("/coupons", func(r chi.Router) {
				r.Post("/", couponHandler.CreateCoupon)
				r.Get("/{code}", couponHandler.GetCoupon)
				r.Post("/{code}/redeem", couponHandler.RedeemCoupon)
			})
		})
	})

	return r
}

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnsupportedMediaType)
				_, _ = w.Write([]byte(`{"error":{"code":"UNSUPPORTED_MEDIA_TYPE","message":"Content-Type must be application/json"}}`))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
