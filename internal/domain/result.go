package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places used on every output amount.
const MoneyPlaces = 2

// AppliedCampaign references a rule that discounted a line.
type AppliedCampaign struct {
	CampaignID string          `json:"campaign_id"`
	Name       string          `json:"name"`
	Type       CampaignType    `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
}

// LineResult is the priced breakdown of one cart line.
type LineResult struct {
	LineID           string            `json:"line_id"`
	ProductID        string            `json:"product_id"`
	CategoryID       string            `json:"category_id"`
	Quantity         int               `json:"quantity"`
	UnitPrice        decimal.Decimal   `json:"unit_price"`
	BaseTotal        decimal.Decimal   `json:"base_total"`
	CampaignDiscount decimal.Decimal   `json:"campaign_discount"`
	FinalTotal       decimal.Decimal   `json:"final_total"`
	AppliedCampaigns []AppliedCampaign `json:"applied_campaigns"`
	DisplayText      string            `json:"display_text,omitempty"`
}

// CouponResult reports what happened to the supplied coupon.
type CouponResult struct {
	Code            string                `json:"code"`
	Applied         bool                  `json:"applied"`
	Discount        decimal.Decimal       `json:"discount"`
	RejectionReason CouponRejectionReason `json:"rejection_reason,omitempty"`
}

// DiagnosticCode classifies a non-fatal condition encountered while pricing.
type DiagnosticCode string

// Diagnostic codes.
const (
	DiagnosticInvalidRule     DiagnosticCode = "invalid_rule"
	DiagnosticStackingSkipped DiagnosticCode = "stacking_skipped"
	DiagnosticCouponRejected  DiagnosticCode = "coupon_rejected"
)

// Diagnostic explains why a rule or coupon did not contribute.
type Diagnostic struct {
	Code       DiagnosticCode `json:"code"`
	CampaignID string         `json:"campaign_id,omitempty"`
	LineID     string         `json:"line_id,omitempty"`
	Message    string         `json:"message"`
}

// PricingResult is the immutable outcome of one pricing call.
type PricingResult struct {
	Lines                 []LineResult    `json:"lines"`
	Subtotal              decimal.Decimal `json:"subtotal"`
	CampaignDiscountTotal decimal.Decimal `json:"campaign_discount_total"`
	CouponDiscountTotal   decimal.Decimal `json:"coupon_discount_total"`
	DeliveryFee           decimal.Decimal `json:"delivery_fee"`
	GrandTotal            decimal.Decimal `json:"grand_total"`
	IsFreeShipping        bool            `json:"is_free_shipping"`
	Coupon                *CouponResult   `json:"coupon,omitempty"`
	Diagnostics           []Diagnostic    `json:"diagnostics"`
	PricedAt              time.Time       `json:"priced_at"`
}

// RoundMoney rounds an amount to MoneyPlaces, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}
