package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/ecommerce-pricing/internal/domain"
)

// Metrics holds the pricing instruments. A nil *Metrics records nothing.
type Metrics struct {
	quotes          *prometheus.CounterVec
	quoteDuration   prometheus.Histogram
	appliedRules    *prometheus.CounterVec
	couponOutcomes  *prometheus.CounterVec
	discountTotal   prometheus.Counter
	freeShipping    prometheus.Counter
	ruleCacheErrors prometheus.Counter
}

// NewMetrics registers the pricing instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		quotes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricing_quotes_total",
			Help: "Pricing calls by outcome.",
		}, []string{"outcome"}),
		quoteDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pricing_quote_duration_seconds",
			Help:    "Time spent producing a quote, including rule and coupon lookups.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		appliedRules: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricing_campaign_applications_total",
			Help: "Campaign rule applications on cart lines, by campaign type.",
		}, []string{"type"}),
		couponOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricing_coupon_outcomes_total",
			Help: "Coupons presented at quote time, by result.",
		}, []string{"result"}),
		discountTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "pricing_discount_amount_total",
			Help: "Sum of campaign and coupon discounts granted in quotes.",
		}),
		freeShipping: f.NewCounter(prometheus.CounterOpts{
			Name: "pricing_free_shipping_quotes_total",
			Help: "Quotes that qualified for free shipping.",
		}),
		ruleCacheErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "pricing_rule_cache_invalidation_errors_total",
			Help: "Failed attempts to drop the active rule snapshot after a write.",
		}),
	}
}

func (m *Metrics) observeQuote(start time.Time, result *domain.PricingResult, err error) {
	if m == nil {
		return
	}
	m.quoteDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.quotes.WithLabelValues(quoteOutcome(err)).Inc()
		return
	}
	m.quotes.WithLabelValues("ok").Inc()

	for _, line := range result.Lines {
		for _, ac := range line.AppliedCampaigns {
			m.appliedRules.WithLabelValues(ac.Type.String()).Inc()
		}
	}
	if c := result.Coupon; c != nil {
		if c.Applied {
			m.couponOutcomes.WithLabelValues("applied").Inc()
		} else {
			m.couponOutcomes.WithLabelValues(string(c.RejectionReason)).Inc()
		}
	}
	discount, _ := result.CampaignDiscountTotal.Add(result.CouponDiscountTotal).Float64()
	m.discountTotal.Add(discount)
	if result.IsFreeShipping {
		m.freeShipping.Inc()
	}
}

func (m *Metrics) cacheInvalidationFailed() {
	if m == nil {
		return
	}
	m.ruleCacheErrors.Inc()
}

func quoteOutcome(err error) string {
	if isClientError(err) {
		return "rejected"
	}
	return "error"
}
