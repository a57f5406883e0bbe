package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/utafrali/ecommerce-pricing/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Evaluation is what a single rule contributes to a line.
type Evaluation struct {
	Amount       decimal.Decimal
	FreeShipping bool
}

// Evaluator computes the discount of one rule on one line.
type Evaluator struct{}

// Evaluate returns the discount rule grants on line, computed against
// remaining, the line total still payable after earlier rules in the same
// resolution pass. The amount is never negative and never exceeds remaining.
func (Evaluator) Evaluate(rule *domain.CampaignRule, line *domain.CartLine, remaining decimal.Decimal) (Evaluation, error) {
	if remaining.IsNegative() {
		return Evaluation{}, &domain.ArithmeticInvariantError{
			Stage:      "evaluate",
			LineID:     line.ID,
			CampaignID: rule.ID,
			Detail:     fmt.Sprintf("remaining total %s is negative", remaining),
		}
	}

	var amount decimal.Decimal

	switch rule.Type {
	case domain.CampaignTypePercentage:
		if rule.DiscountValue.IsNegative() || rule.DiscountValue.GreaterThan(hundred) {
			return Evaluation{}, &domain.InvalidRuleError{RuleID: rule.ID, Reason: "percentage out of range"}
		}
		amount = remaining.Mul(rule.DiscountValue).Div(hundred)
		if rule.MaxDiscountAmount.Valid {
			amount = decimal.Min(amount, rule.MaxDiscountAmount.Decimal)
		}

	case domain.CampaignTypeFixedAmount:
		if rule.DiscountValue.IsNegative() {
			return Evaluation{}, &domain.InvalidRuleError{RuleID: rule.ID, Reason: "negative fixed amount"}
		}
		amount = rule.DiscountValue

	case domain.CampaignTypeBuyXPayY:
		if rule.BuyQty <= 0 || rule.PayQty <= 0 || rule.PayQty >= rule.BuyQty {
			return Evaluation{}, &domain.InvalidRuleError{
				RuleID: rule.ID,
				Reason: fmt.Sprintf("buy_x_pay_y needs 0 < pay < buy, got buy=%d pay=%d", rule.BuyQty, rule.PayQty),
			}
		}
		groups := line.Quantity / rule.BuyQty
		freeUnits := int64(groups * (rule.BuyQty - rule.PayQty))
		amount = line.UnitPrice.Mul(decimal.NewFromInt(freeUnits))

	case domain.CampaignTypeFreeShipping:
		return Evaluation{Amount: decimal.Zero, FreeShipping: true}, nil

	default:
		return Evaluation{}, &domain.InvalidRuleError{RuleID: rule.ID, Reason: fmt.Sprintf("unknown campaign type %d", int(rule.Type))}
	}

	amount = decimal.Min(amount, remaining)
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	return Evaluation{Amount: amount}, nil
}
