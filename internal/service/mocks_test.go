package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/utafrali/ecommerce-pricing/internal/domain"
	"github.com/utafrali/ecommerce-pricing/internal/event"
	"github.com/utafrali/ecommerce-pricing/internal/repository"
)

// --- Mock Repositories ---

type mockCampaignRepository struct {
	mock.Mock
}

func (m *mockCampaignRepository) GetActiveRules(ctx context.Context, now time.Time) ([]domain.CampaignRule, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CampaignRule), args.Error(1)
}

func (m *mockCampaignRepository) GetUnexpiredRules(ctx context.Context, now time.Time) ([]domain.CampaignRule, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CampaignRule), args.Error(1)
}

func (m *mockCampaignRepository) Create(ctx context.Context, rule *domain.CampaignRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *mockCampaignRepository) GetByID(ctx context.Context, id string) (*domain.CampaignRule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CampaignRule), args.Error(1)
}

func (m *mockCampaignRepository) List(ctx context.Context, filter repository.CampaignFilter) ([]domain.CampaignRule, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.CampaignRule), args.Int(1), args.Error(2)
}

func (m *mockCampaignRepository) Update(ctx context.Context, rule *domain.CampaignRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

type mockCouponRepository struct {
	mock.Mock
}

func (m *mockCouponRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Coupon), args.Error(1)
}

func (m *mockCouponRepository) Create(ctx context.Context, coupon *domain.Coupon) error {
	args := m.Called(ctx, coupon)
	return args.Error(0)
}

func (m *mockCouponRepository) Redeem(ctx context.Context, red *domain.CouponRedemption) (bool, error) {
	args := m.Called(ctx, red)
	return args.Bool(0), args.Error(1)
}

// --- Mock collaborators ---

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishQuoted(ctx context.Context, quoteID string, data event.QuotedData) error {
	args := m.Called(ctx, quoteID, data)
	return args.Error(0)
}

func (m *mockEvents) PublishCampaignCreated(ctx context.Context, rule *domain.CampaignRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *mockEvents) PublishCampaignUpdated(ctx context.Context, rule *domain.CampaignRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *mockEvents) PublishCouponRedeemed(ctx context.Context, red *domain.CouponRedemption) error {
	args := m.Called(ctx, red)
	return args.Error(0)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Invalidate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type staticNames map[string]string

func (n staticNames) Names(_ context.Context, ids []string) map[string]string {
	out := make(map[string]string)
	for _, id := range ids {
		if name, ok := n[id]; ok {
			out[id] = name
		}
	}
	return out
}

// --- Test Helpers ---

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(i int) *int {
	return &i
}

func strPtr(s string) *string {
	return &s
}

func boolPtr(b bool) *bool {
	return &b
}

func percentageRule(id string, pct string, priority int, stackable bool) domain.CampaignRule {
	return domain.CampaignRule{
		ID:            id,
		Name:          id,
		Type:          domain.CampaignTypePercentage,
		TargetType:    domain.TargetTypeAll,
		TargetIDs:     []string{},
		DiscountValue: dec(pct),
		Priority:      priority,
		IsStackable:   stackable,
		StartDate:     fixedNow.Add(-24 * time.Hour),
		EndDate:       fixedNow.Add(24 * time.Hour),
		IsActive:      true,
	}
}

func sampleCoupon() *domain.Coupon {
	return &domain.Coupon{
		ID:             "coupon-1",
		Code:           "SAVE10",
		Value:          dec("10"),
		ExpirationDate: fixedNow.Add(72 * time.Hour),
		IsActive:       true,
	}
}

func sampleLines() []domain.CartLine {
	return []domain.CartLine{
		{ID: "l1", ProductID: "p1", CategoryID: "c1", UnitPrice: dec("50.00"), Quantity: 2},
	}
}
