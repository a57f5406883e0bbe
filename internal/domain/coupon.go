package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Coupon is a customer-entered code granting an order-level discount.
type Coupon struct {
	ID             string              `json:"id"`
	Code           string              `json:"code"`
	Description    string              `json:"description,omitempty"`
	IsPercentage   bool                `json:"is_percentage"`
	Value          decimal.Decimal     `json:"value"`
	ExpirationDate time.Time           `json:"expiration_date"`
	MinOrderAmount decimal.NullDecimal `json:"min_order_amount"`
	UsageLimit     *int                `json:"usage_limit,omitempty"`
	UsageCount     int                 `json:"usage_count"`
	IsActive       bool                `json:"is_active"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Validate checks the coupon's structure.
func (c *Coupon) Validate() error {
	switch {
	case strings.TrimSpace(c.Code) == "":
		return errors.New("coupon code is required")
	case c.Value.IsNegative():
		return errors.New("coupon value must not be negative")
	case c.IsPercentage && c.Value.GreaterThan(hundred):
		return errors.New("percentage coupon value must be between 0 and 100")
	case c.MinOrderAmount.Valid && c.MinOrderAmount.Decimal.IsNegative():
		return errors.New("coupon min order amount must not be negative")
	case c.UsageLimit != nil && *c.UsageLimit < 0:
		return errors.New("coupon usage limit must not be negative")
	}
	return nil
}

// NormalizeCouponCode upper-cases and trims a customer-entered code.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CouponRejectionReason explains why a coupon did not apply.
type CouponRejectionReason string

// Coupon rejection reasons.
const (
	CouponExpired           CouponRejectionReason = "expired"
	CouponBelowMinimum      CouponRejectionReason = "below_minimum"
	CouponUsageLimitReached CouponRejectionReason = "usage_limit_reached"
	CouponNotFound          CouponRejectionReason = "not_found"
	CouponInactive          CouponRejectionReason = "inactive"
	CouponInvalid           CouponRejectionReason = "invalid"
)

// CouponRedemption records one use of a coupon against an order.
type CouponRedemption struct {
	ID              string          `json:"id"`
	CouponID        string          `json:"coupon_id"`
	Code            string          `json:"code"`
	UserID          string          `json:"user_id"`
	OrderID         string          `json:"order_id"`
	DiscountApplied decimal.Decimal `json:"discount_applied"`
	CreatedAt       time.Time       `json:"created_at"`
}
