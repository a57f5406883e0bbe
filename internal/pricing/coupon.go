package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/ecommerce-pricing/internal/domain"
)

// CouponOutcome is the result of applying a coupon to a subtotal.
type CouponOutcome struct {
	Discount decimal.Decimal
	Reason   domain.CouponRejectionReason
}

// Applied reports whether the coupon was accepted.
func (o CouponOutcome) Applied() bool {
	return o.Reason == ""
}

// CouponApplier applies at most one order-level coupon.
type CouponApplier struct{}

// Apply checks the coupon against the campaign-discounted subtotal and returns
// its discount, or a zero discount and the first failing reason. Usage is
// counted elsewhere; usageCount is the number of redemptions recorded so far.
func (CouponApplier) Apply(coupon *domain.Coupon, usageCount int, subtotal decimal.Decimal, now time.Time) CouponOutcome {
	if err := coupon.Validate(); err != nil {
		return reject(domain.CouponInvalid)
	}
	if now.After(coupon.ExpirationDate) {
		return reject(domain.CouponExpired)
	}
	if coupon.MinOrderAmount.Valid && subtotal.LessThan(coupon.MinOrderAmount.Decimal) {
		return reject(domain.CouponBelowMinimum)
	}
	if coupon.UsageLimit != nil && usageCount >= *coupon.UsageLimit {
		return reject(domain.CouponUsageLimitReached)
	}

	if !subtotal.IsPositive() {
		return CouponOutcome{Discount: decimal.Zero}
	}

	var discount decimal.Decimal
	if coupon.IsPercentage {
		discount = subtotal.Mul(coupon.Value).Div(hundred)
	} else {
		discount = coupon.Value
	}

	return CouponOutcome{Discount: decimal.Min(discount, subtotal)}
}

func reject(reason domain.CouponRejectionReason) CouponOutcome {
	return CouponOutcome{Discount: decimal.Zero, Reason: reason}
}
