package pricing

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/utafrali/ecommerce-pricing/internal/domain"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nullDec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

func intPtr(v int) *int { return &v }

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	w := dec(want)
	if !w.Equal(got) {
		assert.Fail(t, "money mismatch: want "+w.StringFixed(2)+", got "+got.String(), msgAndArgs...)
	}
}

func cartLine(id, productID, categoryID, price string, qty int) domain.CartLine {
	return domain.CartLine{
		ID:         id,
		ProductID:  productID,
		CategoryID: categoryID,
		UnitPrice:  dec(price),
		Quantity:   qty,
	}
}

type ruleOption func(*domain.CampaignRule)

func newRule(id string, typ domain.CampaignType, value string, opts ...ruleOption) domain.CampaignRule {
	r := domain.CampaignRule{
		ID:            id,
		Name:          "rule " + id,
		Type:          typ,
		TargetType:    domain.TargetTypeAll,
		DiscountValue: dec(value),
		Priority:      1,
		IsStackable:   true,
		StartDate:     testNow.Add(-24 * time.Hour),
		EndDate:       testNow.Add(24 * time.Hour),
		IsActive:      true,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func withPriority(p int) ruleOption {
	return func(r *domain.CampaignRule) { r.Priority = p }
}

func exclusive() ruleOption {
	return func(r *domain.CampaignRule) { r.IsStackable = false }
}

func forProducts(ids ...string) ruleOption {
	return func(r *domain.CampaignRule) {
		r.TargetType = domain.TargetTypeProduct
		r.TargetIDs = ids
	}
}

func forCategories(ids ...string) ruleOption {
	return func(r *domain.CampaignRule) {
		r.TargetType = domain.TargetTypeCategory
		r.TargetIDs = ids
	}
}

func buyPay(buy, pay int) ruleOption {
	return func(r *domain.CampaignRule) {
		r.BuyQty = buy
		r.PayQty = pay
	}
}

func maxDiscount(amount string) ruleOption {
	return func(r *domain.CampaignRule) { r.MaxDiscountAmount = nullDec(amount) }
}

func minCartTotal(amount string) ruleOption {
	return func(r *domain.CampaignRule) { r.MinCartTotal = nullDec(amount) }
}

func minQuantity(q int) ruleOption {
	return func(r *domain.CampaignRule) { r.MinQuantity = intPtr(q) }
}

func window(start, end time.Time) ruleOption {
	return func(r *domain.CampaignRule) {
		r.StartDate = start
		r.EndDate = end
	}
}

func inactive() ruleOption {
	return func(r *domain.CampaignRule) { r.IsActive = false }
}

func ruleIDs(rules []domain.CampaignRule) []string {
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	return ids
}
