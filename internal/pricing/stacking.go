package pricing

import (
	"cmp"
	"slices"

	"github.com/utafrali/ecommerce-pricing/internal/domain"
)

// Resolution is the outcome of stacking the candidates of one line.
type Resolution struct {
	// Applied lists the rules to evaluate, in application order.
	Applied []domain.CampaignRule
	// Skipped lists candidates blocked by a non-stackable rule.
	Skipped []domain.CampaignRule
}

// StackingResolver decides which candidate rules apply to a line and in what
// order.
type StackingResolver struct{}

// Resolve returns the rules applied to a line, in application order.
func (s StackingResolver) Resolve(lineID int, candidates []domain.CampaignRule) []domain.CampaignRule {
	return s.ResolveDetailed(lineID, candidates).Applied
}

// ResolveDetailed orders candidates by priority then id and walks them. The
// first rule always applies. A later rule applies only while every rule applied
// so far is stackable and the later rule is stackable too. Candidates are not
// modified.
func (StackingResolver) ResolveDetailed(_ int, candidates []domain.CampaignRule) Resolution {
	if len(candidates) == 0 {
		return Resolution{}
	}

	ordered := slices.Clone(candidates)
	slices.SortStableFunc(ordered, compareRules)

	res := Resolution{Applied: []domain.CampaignRule{ordered[0]}}
	allStackable := ordered[0].IsStackable

	for _, rule := range ordered[1:] {
		if allStackable && rule.IsStackable {
			res.Applied = append(res.Applied, rule)
			continue
		}
		res.Skipped = append(res.Skipped, rule)
	}

	return res
}

func compareRules(a, b domain.CampaignRule) int {
	if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
