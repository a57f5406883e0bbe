package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/ecommerce-pricing/internal/domain"
	pkgkafka "github.com/utafrali/ecommerce-pricing/pkg/kafka"
	"github.com/utafrali/ecommerce-pricing/pkg/logger"
)

// Kafka topic constants for pricing domain events.
var (
	TopicPricingQuoted   = pkgkafka.Topic("pricing", "quoted")
	TopicCampaignCreated = pkgkafka.Topic("campaign", "created")
	TopicCampaignUpdated = pkgkafka.Topic("campaign", "updated")
	TopicCouponRedeemed  = pkgkafka.Topic("coupon", "redeemed")
)

// Aggregate type constants.
const (
	AggregateTypeQuote    = "quote"
	AggregateTypeCampaign = "campaign"
	AggregateTypeCoupon   = "coupon"
)

// SourcePricingService identifies events originating from this service.
const SourcePricingService = "pricing-service"

// QuotedData is the payload for a pricing.quoted event.
type QuotedData struct {
	QuoteID               string          `json:"quote_id"`
	UserID                string          `json:"user_id,omitempty"`
	LineCount             int             `json:"line_count"`
	Subtotal              decimal.Decimal `json:"subtotal"`
	CampaignDiscountTotal decimal.Decimal `json:"campaign_discount_total"`
	CouponDiscountTotal   decimal.Decimal `json:"coupon_discount_total"`
	DeliveryFee           decimal.Decimal `json:"delivery_fee"`
	GrandTotal            decimal.Decimal `json:"grand_total"`
	Currency              string          `json:"currency"`
	IsFreeShipping        bool            `json:"is_free_shipping"`
	CampaignIDs           []string        `json:"campaign_ids"`
	CouponCode            string          `json:"coupon_code,omitempty"`
	CouponApplied         bool            `json:"coupon_applied"`
	PricedAt              time.Time       `json:"priced_at"`
}

// CampaignData is the payload for campaign.created and campaign.updated events.
type CampaignData struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Type        domain.CampaignType `json:"type"`
	Priority    int                 `json:"priority"`
	IsStackable bool                `json:"is_stackable"`
	IsActive    bool                `json:"is_active"`
	StartDate   time.Time           `json:"start_date"`
	EndDate     time.Time           `json:"end_date"`
}

// CouponRedeemedData is the payload for a coupon.redeemed event.
type CouponRedeemedData struct {
	CouponID        string          `json:"coupon_id"`
	Code            string          `json:"code"`
	UserID          string          `json:"user_id"`
	OrderID         string          `json:"order_id"`
	DiscountApplied decimal.Decimal `json:"discount_applied"`
}

// Publisher is satisfied by *pkgkafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes pricing domain events to Kafka.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewProducer creates a new event producer for the pricing service.
func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishQuoted publishes a pricing.quoted event.
func (p *Producer) PublishQuoted(ctx context.Context, quoteID string, data QuotedData) error {
	data.QuoteID = quoteID
	return p.publish(ctx, TopicPricingQuoted, quoteID, AggregateTypeQuote, data)
}

// PublishCampaignCreated publishes a campaign.created event.
func (p *Producer) PublishCampaignCreated(ctx context.Context, rule *domain.CampaignRule) error {
	return p.publish(ctx, TopicCampaignCreated, rule.ID, AggregateTypeCampaign, campaignData(rule))
}

// PublishCampaignUpdated publishes a campaign.updated event.
func (p *Producer) PublishCampaignUpdated(ctx context.Context, rule *domain.CampaignRule) error {
	return p.publish(ctx, TopicCampaignUpdated, rule.ID, AggregateTypeCampaign, campaignData(rule))
}

// PublishCouponRedeemed publishes a coupon.redeemed event.
func (p *Producer) PublishCouponRedeemed(ctx context.Context, red *domain.CouponRedemption) error {
	data := CouponRedeemedData{
		CouponID:        red.CouponID,
		Code:            red.Code,
		UserID:          red.UserID,
		OrderID:         red.OrderID,
		DiscountApplied: red.DiscountApplied,
	}
	return p.publish(ctx, TopicCouponRedeemed, red.CouponID, AggregateTypeCoupon, data)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourcePricingService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	if actor := logger.UserIDFromContext(ctx); actor != "" {
		event.WithMetadata("actor", actor)
	}

	if err := p.publisher.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

func campaignData(rule *domain.CampaignRule) CampaignData {
	return CampaignData{
		ID:          rule.ID,
		Name:        rule.Name,
		Type:        rule.Type,
		Priority:    rule.Priority,
		IsStackable: rule.IsStackable,
		IsActive:    rule.IsActive,
		StartDate:   rule.StartDate,
		EndDate:     rule.EndDate,
	}
}
