package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/ecommerce-pricing/internal/domain"
	"github.com/utafrali/ecommerce-pricing/internal/event"
	"github.com/utafrali/ecommerce-pricing/internal/pricing"
	"github.com/utafrali/ecommerce-pricing/internal/repository"
	apperrors "github.com/utafrali/ecommerce-pricing/pkg/errors"
	"github.com/utafrali/ecommerce-pricing/pkg/tracing"
)

const tracerName = "github.com/utafrali/ecommerce-pricing/internal/service"

// ProductNames resolves product ids to display names. Missing ids are simply
// absent from the result.
type ProductNames interface {
	Names(ctx context.Context, productIDs []string) map[string]string
}

// QuoteEvents publishes quote notifications.
type QuoteEvents interface {
	PublishQuoted(ctx context.Context, quoteID string, data event.QuotedData) error
}

// PricingOptions carries the configured defaults for quotes.
type PricingOptions struct {
	DefaultDeliveryFee decimal.Decimal
	Currency           string
}

// PricingService loads rules and coupons, prices carts, and reports the result.
type PricingService struct {
	rules   repository.RuleSource
	coupons repository.CouponRepository
	engine  *pricing.Engine
	catalog ProductNames
	events  QuoteEvents
	metrics *Metrics
	opts    PricingOptions
	now     func() time.Time
	logger  *slog.Logger
}

// NewPricingService creates a new pricing service. catalog, events and
// metrics may be nil.
func NewPricingService(
	rules repository.RuleSource,
	coupons repository.CouponRepository,
	engine *pricing.Engine,
	catalog ProductNames,
	events QuoteEvents,
	metrics *Metrics,
	opts PricingOptions,
	logger *slog.Logger,
) *PricingService {
	return &PricingService{
		rules:   rules,
		coupons: coupons,
		engine:  engine,
		catalog: catalog,
		events:  events,
		metrics: metrics,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
}

// WithClock replaces the service clock. Used by tests.
func (s *PricingService) WithClock(now func() time.Time) *PricingService {
	s.now = now
	return s
}

// QuoteInput holds the parameters for pricing a cart.
type QuoteInput struct {
	Lines       []domain.CartLine
	CouponCode  string
	DeliveryFee decimal.NullDecimal
	UserID      string
}

// PreviewInput prices a cart against caller-supplied rules instead of the
// stored set.
type PreviewInput struct {
	QuoteInput
	Rules  []domain.CampaignRule
	Coupon *domain.Coupon
}

// Quote is a priced cart as returned to clients.
type Quote struct {
	QuoteID  string `json:"quote_id"`
	Currency string `json:"currency"`
	*domain.PricingResult
}

// Quote prices a cart against the active campaign rules and the optional coupon.
func (s *PricingService) Quote(ctx context.Context, input *QuoteInput) (quote *Quote, err error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, tracerName, "PricingService.Quote",
		attribute.Int("cart.lines", len(input.Lines)),
		attribute.Bool("cart.has_coupon", input.CouponCode != ""),
	)
	defer func() {
		var result *domain.PricingResult
		if quote != nil {
			result = quote.PricingResult
		}
		s.metrics.observeQuote(start, result, err)
		tracing.EndSpan(span, err)
	}()

	if len(input.Lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	now := s.now()

	rules, err := s.rules.GetActiveRules(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("get active rules: %w", err)
	}

	coupon, usage, rejection, err := s.loadCoupon(ctx, input.CouponCode)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Price(pricing.Request{
		Lines:           input.Lines,
		Rules:           rules,
		Coupon:          coupon,
		CouponUsage:     usage,
		BaseDeliveryFee: s.deliveryFee(input.DeliveryFee),
		Now:             now,
	})
	if err != nil {
		return nil, fmt.Errorf("price cart: %w", err)
	}

	attachRejection(result, rejection)
	s.decorate(ctx, result)

	quote = &Quote{QuoteID: uuid.New().String(), Currency: s.opts.Currency, PricingResult: result}
	s.publishQuoted(ctx, quote, input.UserID)

	s.logger.DebugContext(ctx, "cart priced",
		slog.String("quote_id", quote.QuoteID),
		slog.Int("lines", len(result.Lines)),
		slog.String("grand_total", result.GrandTotal.String()),
	)
	return quote, nil
}

// Preview prices a cart against draft rules and an optional draft coupon.
// Nothing is read from storage and no event is published.
func (s *PricingService) Preview(ctx context.Context, input *PreviewInput) (*Quote, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "PricingService.Preview",
		attribute.Int("cart.lines", len(input.Lines)),
		attribute.Int("rules", len(input.Rules)),
	)

	coupon, usage, rejection := draftCoupon(input.Coupon)

	result, err := s.engine.Price(pricing.Request{
		Lines:           input.Lines,
		Rules:           input.Rules,
		Coupon:          coupon,
		CouponUsage:     usage,
		BaseDeliveryFee: s.deliveryFee(input.DeliveryFee),
		Now:             s.now(),
	})
	tracing.EndSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("price preview: %w", err)
	}

	attachRejection(result, rejection)
	s.decorate(ctx, result)
	return &Quote{QuoteID: uuid.New().String(), Currency: s.opts.Currency, PricingResult: result}, nil
}

// loadCoupon resolves a customer-entered code. A code that does not exist or
// is switched off is not an error: it comes back as a rejection to embed in
// the result.
func (s *PricingService) loadCoupon(ctx context.Context, raw string) (*domain.Coupon, int, *domain.CouponResult, error) {
	code := domain.NormalizeCouponCode(raw)
	if code == "" {
		return nil, 0, nil, nil
	}

	coupon, err := s.coupons.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, 0, rejected(code, domain.CouponNotFound), nil
		}
		return nil, 0, nil, fmt.Errorf("get coupon: %w", err)
	}
	if !coupon.IsActive {
		return nil, 0, rejected(code, domain.CouponInactive), nil
	}
	return coupon, coupon.UsageCount, nil, nil
}

// draftCoupon gives a caller-supplied coupon the treatment loadCoupon gives a
// stored one: switched off is a rejection, and its own usage count gates the
// limit.
func draftCoupon(draft *domain.Coupon) (*domain.Coupon, int, *domain.CouponResult) {
	if draft == nil {
		return nil, 0, nil
	}
	c := *draft
	c.Code = domain.NormalizeCouponCode(c.Code)
	if !c.IsActive {
		return nil, 0, rejected(c.Code, domain.CouponInactive)
	}
	return &c, c.UsageCount, nil
}

// attachRejection records a coupon turned away before it reached the engine.
func attachRejection(result *domain.PricingResult, rejection *domain.CouponResult) {
	if rejection == nil {
		return
	}
	result.Coupon = rejection
	result.Diagnostics = append(result.Diagnostics, domain.Diagnostic{
		Code:    domain.DiagnosticCouponRejected,
		Message: fmt.Sprintf("coupon %s rejected: %s", rejection.Code, rejection.RejectionReason),
	})
}

func rejected(code string, reason domain.CouponRejectionReason) *domain.CouponResult {
	return &domain.CouponResult{Code: code, Discount: decimal.Zero, RejectionReason: reason}
}

func (s *PricingService) deliveryFee(fee decimal.NullDecimal) decimal.Decimal {
	if fee.Valid {
		return fee.Decimal
	}
	return s.opts.DefaultDeliveryFee
}

// decorate fills line display text from the catalog. Lookup failures leave
// the text empty.
func (s *PricingService) decorate(ctx context.Context, result *domain.PricingResult) {
	if s.catalog == nil || len(result.Lines) == 0 {
		return
	}
	ids := make([]string, 0, len(result.Lines))
	for _, line := range result.Lines {
		ids = append(ids, line.ProductID)
	}
	names := s.catalog.Names(ctx, ids)
	for i := range result.Lines {
		result.Lines[i].DisplayText = names[result.Lines[i].ProductID]
	}
}

func (s *PricingService) publishQuoted(ctx context.Context, quote *Quote, userID string) {
	if s.events == nil {
		return
	}

	result := quote.PricingResult
	data := event.QuotedData{
		UserID:                userID,
		LineCount:             len(result.Lines),
		Subtotal:              result.Subtotal,
		CampaignDiscountTotal: result.CampaignDiscountTotal,
		CouponDiscountTotal:   result.CouponDiscountTotal,
		DeliveryFee:           result.DeliveryFee,
		GrandTotal:            result.GrandTotal,
		Currency:              quote.Currency,
		IsFreeShipping:        result.IsFreeShipping,
		CampaignIDs:           appliedCampaignIDs(result),
		PricedAt:              result.PricedAt,
	}
	if result.Coupon != nil {
		data.CouponCode = result.Coupon.Code
		data.CouponApplied = result.Coupon.Applied
	}

	if err := s.events.PublishQuoted(ctx, quote.QuoteID, data); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish pricing.quoted event",
			slog.String("quote_id", quote.QuoteID),
			slog.String("error", err.Error()),
		)
	}
}

func appliedCampaignIDs(result *domain.PricingResult) []string {
	seen := make(map[string]struct{})
	ids := []string{}
	for _, line := range result.Lines {
		for _, ac := range line.AppliedCampaigns {
			if _, ok := seen[ac.CampaignID]; ok {
				continue
			}
			seen[ac.CampaignID] = struct{}{}
			ids = append(ids, ac.CampaignID)
		}
	}
	return ids
}

func isClientError(err error) bool {
	return apperrors.HTTPStatus(err) < 500
}
