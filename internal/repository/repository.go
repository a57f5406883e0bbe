package repository

import (
	"context"
	"time"

	"github.com/utafrali/ecommerce-pricing/internal/domain"
	"github.com/utafrali/ecommerce-pricing/pkg/pagination"
)

// CampaignFilter defines filter criteria for listing campaign rules.
type CampaignFilter struct {
	Active *bool
	Type   *domain.CampaignType
	pagination.Params
}

// RuleSource is the read side the pricing path depends on.
type RuleSource interface {
	// GetActiveRules returns every rule switched on and valid at now.
	GetActiveRules(ctx context.Context, now time.Time) ([]domain.CampaignRule, error)
}

// SnapshotSource feeds the rule cache. A snapshot built from it stays correct
// while windows open and close during its lifetime.
type SnapshotSource interface {
	// GetUnexpiredRules returns every switched-on rule whose window has not
	// closed at now, including rules that start later.
	GetUnexpiredRules(ctx context.Context, now time.Time) ([]domain.CampaignRule, error)
}

// CampaignRepository defines the interface for campaign rule persistence operations.
type CampaignRepository interface {
	RuleSource
	SnapshotSource

	// Create inserts a new campaign rule into the store.
	Create(ctx context.Context, rule *domain.CampaignRule) error

	// GetByID retrieves a campaign rule by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.CampaignRule, error)

	// List returns rules matching the given filter along with the total count.
	List(ctx context.Context, filter CampaignFilter) ([]domain.CampaignRule, int, error)

	// Update modifies an existing campaign rule in the store.
	Update(ctx context.Context, rule *domain.CampaignRule) error
}

// CouponRepository defines the interface for coupon persistence operations.
type CouponRepository interface {
	// GetByCode retrieves a coupon by its normalized code, including its
	// current usage count.
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)

	// Create inserts a new coupon into the store.
	Create(ctx context.Context, coupon *domain.Coupon) error

	// Redeem atomically increments the coupon's usage count and records the
	// redemption. It returns false, and records nothing, when the usage limit
	// has already been reached.
	Redeem(ctx context.Context, redemption *domain.CouponRedemption) (bool, error)
}

// RuleCache holds the active rule snapshot between pricing calls.
type RuleCache interface {
	RuleSource

	// Invalidate drops the cached snapshot so the next read goes to the store.
	Invalidate(ctx context.Context) error
}
