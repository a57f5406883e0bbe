package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/ecommerce-pricing/internal/domain"
)

// Candidates holds, for each cart line position, the rules eligible for it.
type Candidates [][]domain.CampaignRule

// ForLine returns the candidate rules for the line at position i.
func (c Candidates) ForLine(i int) []domain.CampaignRule {
	if i < 0 || i >= len(c) {
		return nil
	}
	return c[i]
}

// Selector filters rules down to the ones each cart line may receive.
type Selector struct{}

// SelectApplicable returns the candidate rules per line. A rule is a candidate
// for a line when it is active at now, targets the line, and every cart-wide or
// per-line minimum it declares is met. Rules keep their input order.
func (Selector) SelectApplicable(lines []domain.CartLine, rules []domain.CampaignRule, now time.Time) Candidates {
	out := make(Candidates, len(lines))
	cartTotal := cartBaseTotal(lines)

	for _, rule := range rules {
		if !rule.IsActiveAt(now) {
			continue
		}
		if rule.MinCartTotal.Valid && cartTotal.LessThan(rule.MinCartTotal.Decimal) {
			continue
		}

		targetedQty := 0
		if rule.Scope() == domain.ScopeCart && rule.MinQuantity != nil {
			for i := range lines {
				if rule.Targets(&lines[i]) {
					targetedQty += lines[i].Quantity
				}
			}
			if targetedQty < *rule.MinQuantity {
				continue
			}
		}

		for i := range lines {
			line := &lines[i]
			if !rule.Targets(line) {
				continue
			}
			if rule.Scope() == domain.ScopeLine && line.Quantity < lineMinimum(&rule) {
				continue
			}
			out[i] = append(out[i], rule)
		}
	}

	return out
}

// lineMinimum is the smallest quantity a line needs for a line-scoped rule. A
// buy-x-pay-y rule cannot discount fewer than BuyQty units, so it is not a
// candidate below that and does not take part in stacking.
func lineMinimum(rule *domain.CampaignRule) int {
	minQty := 0
	if rule.MinQuantity != nil {
		minQty = *rule.MinQuantity
	}
	if rule.Type == domain.CampaignTypeBuyXPayY && rule.BuyQty > minQty {
		minQty = rule.BuyQty
	}
	return minQty
}

func cartBaseTotal(lines []domain.CartLine) decimal.Decimal {
	total := decimal.Zero
	for i := range lines {
		total = total.Add(lines[i].BaseTotal())
	}
	return total
}
