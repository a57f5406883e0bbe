package domain

import (
	"errors"
	"fmt"

	apperrors "github.com/utafrali/ecommerce-pricing/pkg/errors"
)

// ErrEmptyCart is returned when a pricing call receives no lines.
var ErrEmptyCart = &EmptyCartError{}

// EmptyCartError is fatal to a pricing call.
type EmptyCartError struct{}

func (e *EmptyCartError) Error() string { return "cart has no lines" }

// Unwrap maps the error onto the invalid-input sentinel.
func (e *EmptyCartError) Unwrap() error { return apperrors.ErrInvalidInput }

// Is makes every EmptyCartError match ErrEmptyCart.
func (e *EmptyCartError) Is(target error) bool {
	_, ok := target.(*EmptyCartError)
	return ok
}

// InvalidCartLineError is fatal to a pricing call.
type InvalidCartLineError struct {
	Index  int
	Reason string
}

func (e *InvalidCartLineError) Error() string {
	return fmt.Sprintf("cart line %d: %s", e.Index, e.Reason)
}

// Unwrap maps the error onto the invalid-input sentinel.
func (e *InvalidCartLineError) Unwrap() error { return apperrors.ErrInvalidInput }

// InvalidRuleError describes a structurally malformed campaign rule. The engine
// skips such rules; the admin API rejects them.
type InvalidRuleError struct {
	RuleID string
	Reason string
}

func (e *InvalidRuleError) Error() string {
	if e.RuleID == "" {
		return "invalid campaign rule: " + e.Reason
	}
	return fmt.Sprintf("invalid campaign rule %s: %s", e.RuleID, e.Reason)
}

// Unwrap maps the error onto the invalid-input sentinel.
func (e *InvalidRuleError) Unwrap() error { return apperrors.ErrInvalidInput }

// ArithmeticInvariantError signals a computation that produced impossible
// numbers. It aborts the pricing call.
type ArithmeticInvariantError struct {
	Stage      string
	LineID     string
	CampaignID string
	Detail     string
}

func (e *ArithmeticInvariantError) Error() string {
	msg := "arithmetic invariant violated at " + e.Stage
	if e.LineID != "" {
		msg += " line=" + e.LineID
	}
	if e.CampaignID != "" {
		msg += " campaign=" + e.CampaignID
	}
	return msg + ": " + e.Detail
}

// Unwrap maps the error onto the internal sentinel.
func (e *ArithmeticInvariantError) Unwrap() error { return apperrors.ErrInternal }

// IsInvalidRule reports whether err is, or wraps, an *InvalidRuleError.
func IsInvalidRule(err error) bool {
	var target *InvalidRuleError
	return errors.As(err, &target)
}
