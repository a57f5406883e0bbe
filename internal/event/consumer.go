package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/ecommerce-pricing/pkg/kafka"
)

// CacheInvalidator is the part of the rule cache the consumer needs.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Consumer processes incoming Kafka events for the pricing service.
type Consumer struct {
	cache  CacheInvalidator
	logger *slog.Logger
}

// NewConsumer creates a new event consumer for the pricing service.
func NewConsumer(cache CacheInvalidator, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cache:  cache,
		logger: logger,
	}
}

// HandleCampaignChanged drops the active rule snapshot when any replica, or
// the campaign admin, changes a rule.
func (c *Consumer) HandleCampaignChanged(ctx context.Context, event *pkgkafka.Event) error {
	// Only the id is read so that payloads from other producers decode too.
	var data struct {
		ID string `json:"id"`
	}
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	if err := c.cache.Invalidate(ctx); err != nil {
		return fmt.Errorf("invalidate rule cache for campaign %s: %w", data.ID, err)
	}

	c.logger.InfoContext(ctx, "rule cache invalidated",
		slog.String("campaign_id", data.ID),
		slog.String("event_type", event.EventType),
		slog.String("source", event.Source),
	)
	return nil
}
