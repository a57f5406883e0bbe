package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/ecommerce-pricing/internal/domain"
	"github.com/utafrali/ecommerce-pricing/internal/repository"
)

// ActiveRulesKey holds the JSON snapshot of the active campaign rules.
const ActiveRulesKey = "pricing:active_rules"

// RuleCache implements repository.RuleCache on top of Redis. Reads fall
// through to the wrapped source on a miss and repopulate the snapshot.
// Redis failures degrade to reading the source directly.
//
// The snapshot holds every rule that had not ended when it was taken, so
// rules opening or closing within the TTL are resolved against the caller's
// clock on each read.
type RuleCache struct {
	client redis.Cmdable
	source repository.SnapshotSource
	ttl    time.Duration
	logger *slog.Logger
}

// NewRuleCache creates a Redis-backed snapshot cache in front of source.
func NewRuleCache(client redis.Cmdable, source repository.SnapshotSource, ttl time.Duration, logger *slog.Logger) *RuleCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleCache{client: client, source: source, ttl: ttl, logger: logger}
}

// GetActiveRules returns the snapshot rules active at now, loading the
// snapshot from the source on a miss.
func (c *RuleCache) GetActiveRules(ctx context.Context, now time.Time) ([]domain.CampaignRule, error) {
	rules, ok := c.load(ctx)
	if !ok {
		var err error
		rules, err = c.source.GetUnexpiredRules(ctx, now)
		if err != nil {
			return nil, err
		}
		if err := c.store(ctx, rules); err != nil {
			c.logger.WarnContext(ctx, "rule cache write failed", slog.String("error", err.Error()))
		}
	}
	return activeAt(rules, now), nil
}

// Invalidate drops the snapshot.
func (c *RuleCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, ActiveRulesKey).Err(); err != nil {
		return fmt.Errorf("redis del active rules: %w", err)
	}
	return nil
}

func activeAt(rules []domain.CampaignRule, now time.Time) []domain.CampaignRule {
	active := make([]domain.CampaignRule, 0, len(rules))
	for i := range rules {
		if rules[i].IsActiveAt(now) {
			active = append(active, rules[i])
		}
	}
	return active
}

func (c *RuleCache) load(ctx context.Context) ([]domain.CampaignRule, bool) {
	data, err := c.client.Get(ctx, ActiveRulesKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "rule cache read failed", slog.String("error", err.Error()))
		}
		return nil, false
	}

	var rules []domain.CampaignRule
	if err := json.Unmarshal(data, &rules); err != nil {
		c.logger.WarnContext(ctx, "discarding unreadable rule snapshot", slog.String("error", err.Error()))
		return nil, false
	}
	return rules, true
}

func (c *RuleCache) store(ctx context.Context, rules []domain.CampaignRule) error {
	data, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("marshal active rules: %w", err)
	}
	if err := c.client.Set(ctx, ActiveRulesKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set active rules: %w", err)
	}
	return nil
}
