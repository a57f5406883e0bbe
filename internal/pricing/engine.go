// Package pricing computes cart price breakdowns from campaign rules and an
// optional coupon. Everything in it is pure: no I/O and no shared state, so an
// Engine may be used from many goroutines at once.
package pricing

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/ecommerce-pricing/internal/domain"
	apperrors "github.com/utafrali/ecommerce-pricing/pkg/errors"
)

// Request carries the read-only snapshots a pricing call works on.
type Request struct {
	Lines           []domain.CartLine
	Rules           []domain.CampaignRule
	Coupon          *domain.Coupon
	CouponUsage     int
	BaseDeliveryFee decimal.Decimal
	Now             time.Time
}

// Engine composes selection, stacking, evaluation and coupon application into
// a single Price call.
type Engine struct {
	logger    *slog.Logger
	selector  Selector
	resolver  StackingResolver
	evaluator Evaluator
	coupons   CouponApplier
}

// NewEngine creates a new Engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// lineAccumulator is the state of one line after some prefix of its resolved
// rules has been evaluated. Each step returns a new value.
type lineAccumulator struct {
	base         decimal.Decimal
	remaining    decimal.Decimal
	discount     decimal.Decimal
	applied      []domain.AppliedCampaign
	freeShipping bool
}

func newLineAccumulator(line *domain.CartLine) lineAccumulator {
	base := line.BaseTotal()
	return lineAccumulator{base: base, remaining: base, discount: decimal.Zero}
}

func (a lineAccumulator) apply(rule *domain.CampaignRule, ev Evaluation) lineAccumulator {
	applied := make([]domain.AppliedCampaign, len(a.applied), len(a.applied)+1)
	copy(applied, a.applied)
	applied = append(applied, domain.AppliedCampaign{
		CampaignID: rule.ID,
		Name:       rule.Name,
		Type:       rule.Type,
		Amount:     ev.Amount,
	})

	return lineAccumulator{
		base:         a.base,
		remaining:    a.remaining.Sub(ev.Amount),
		discount:     a.discount.Add(ev.Amount),
		applied:      applied,
		freeShipping: a.freeShipping || ev.FreeShipping,
	}
}

// cartTotals is the fold of all line accumulators.
type cartTotals struct {
	subtotal     decimal.Decimal
	discount     decimal.Decimal
	freeShipping bool
}

func (t cartTotals) add(a lineAccumulator) cartTotals {
	return cartTotals{
		subtotal:     t.subtotal.Add(a.base),
		discount:     t.discount.Add(a.discount),
		freeShipping: t.freeShipping || a.freeShipping,
	}
}

// Price computes the breakdown for req. It fails on an empty cart, an invalid
// cart line, a negative delivery fee, or an arithmetic invariant violation.
// Malformed rules and rejected coupons are reported as diagnostics instead.
func (e *Engine) Price(req Request) (*domain.PricingResult, error) {
	if len(req.Lines) == 0 {
		return nil, domain.ErrEmptyCart
	}
	for i := range req.Lines {
		if err := req.Lines[i].Validate(i); err != nil {
			return nil, err
		}
	}
	if req.BaseDeliveryFee.IsNegative() {
		return nil, fmt.Errorf("base delivery fee %s: %w", req.BaseDeliveryFee, apperrors.ErrInvalidInput)
	}

	var diagnostics []domain.Diagnostic

	rules := make([]domain.CampaignRule, 0, len(req.Rules))
	for i := range req.Rules {
		rule := req.Rules[i]
		if err := rule.Validate(); err != nil {
			e.logger.Warn("skipping invalid campaign rule",
				slog.String("campaign_id", rule.ID),
				slog.String("error", err.Error()),
			)
			diagnostics = append(diagnostics, domain.Diagnostic{
				Code:       domain.DiagnosticInvalidRule,
				CampaignID: rule.ID,
				Message:    err.Error(),
			})
			continue
		}
		rules = append(rules, rule)
	}

	candidates := e.selector.SelectApplicable(req.Lines, rules, req.Now)

	accumulators := make([]lineAccumulator, len(req.Lines))
	totals := cartTotals{subtotal: decimal.Zero, discount: decimal.Zero}

	for i := range req.Lines {
		line := &req.Lines[i]
		lineID := lineKey(i, line)

		acc, lineDiags, err := e.priceLine(i, lineID, line, candidates.ForLine(i))
		if err != nil {
			return nil, err
		}
		diagnostics = append(diagnostics, lineDiags...)

		if err := checkLine(lineID, acc); err != nil {
			return nil, err
		}
		accumulators[i] = acc
		totals = totals.add(acc)
	}

	afterCampaigns := totals.subtotal.Sub(totals.discount)
	if afterCampaigns.IsNegative() {
		return nil, &domain.ArithmeticInvariantError{
			Stage:  "campaign_totals",
			Detail: fmt.Sprintf("campaign discount %s exceeds subtotal %s", totals.discount, totals.subtotal),
		}
	}

	couponDiscount := decimal.Zero
	var couponResult *domain.CouponResult
	if req.Coupon != nil {
		outcome := e.coupons.Apply(req.Coupon, req.CouponUsage, afterCampaigns, req.Now)
		if outcome.Discount.IsNegative() || outcome.Discount.GreaterThan(afterCampaigns) {
			return nil, &domain.ArithmeticInvariantError{
				Stage:  "coupon",
				Detail: fmt.Sprintf("coupon discount %s outside [0, %s]", outcome.Discount, afterCampaigns),
			}
		}
		couponDiscount = outcome.Discount
		couponResult = &domain.CouponResult{
			Code:            req.Coupon.Code,
			Applied:         outcome.Applied(),
			Discount:        domain.RoundMoney(outcome.Discount),
			RejectionReason: outcome.Reason,
		}
		if !outcome.Applied() {
			diagnostics = append(diagnostics, domain.Diagnostic{
				Code:    domain.DiagnosticCouponRejected,
				Message: fmt.Sprintf("coupon %s rejected: %s", req.Coupon.Code, outcome.Reason),
			})
		}
	}

	deliveryFee := req.BaseDeliveryFee
	if totals.freeShipping {
		deliveryFee = decimal.Zero
	}

	grandTotal := totals.subtotal.Sub(totals.discount).Sub(couponDiscount).Add(deliveryFee)
	if grandTotal.LessThan(deliveryFee) {
		grandTotal = deliveryFee
	}

	result := &domain.PricingResult{
		Lines:                 make([]domain.LineResult, len(req.Lines)),
		Subtotal:              domain.RoundMoney(totals.subtotal),
		CampaignDiscountTotal: domain.RoundMoney(totals.discount),
		CouponDiscountTotal:   domain.RoundMoney(couponDiscount),
		DeliveryFee:           domain.RoundMoney(deliveryFee),
		GrandTotal:            domain.RoundMoney(grandTotal),
		IsFreeShipping:        totals.freeShipping,
		Coupon:                couponResult,
		Diagnostics:           diagnostics,
		PricedAt:              req.Now,
	}
	if result.Diagnostics == nil {
		result.Diagnostics = []domain.Diagnostic{}
	}

	for i := range req.Lines {
		result.Lines[i] = lineResult(lineKey(i, &req.Lines[i]), &req.Lines[i], accumulators[i])
	}

	return result, nil
}

// priceLine resolves and evaluates the candidates of one line in order.
// Evaluation errors caused by a malformed rule skip that rule on this line.
func (e *Engine) priceLine(index int, lineID string, line *domain.CartLine, candidates []domain.CampaignRule) (lineAccumulator, []domain.Diagnostic, error) {
	var diags []domain.Diagnostic

	resolution := e.resolver.ResolveDetailed(index, candidates)
	for _, skipped := range resolution.Skipped {
		diags = append(diags, domain.Diagnostic{
			Code:       domain.DiagnosticStackingSkipped,
			CampaignID: skipped.ID,
			LineID:     lineID,
			Message:    "blocked by a non-stackable rule with higher precedence",
		})
	}

	acc := newLineAccumulator(line)
	for i := range resolution.Applied {
		rule := &resolution.Applied[i]

		ev, err := e.evaluator.Evaluate(rule, line, acc.remaining)
		if err != nil {
			if !domain.IsInvalidRule(err) {
				return lineAccumulator{}, nil, err
			}
			e.logger.Warn("skipping campaign rule on line",
				slog.String("campaign_id", rule.ID),
				slog.String("line_id", lineID),
				slog.String("error", err.Error()),
			)
			diags = append(diags, domain.Diagnostic{
				Code:       domain.DiagnosticInvalidRule,
				CampaignID: rule.ID,
				LineID:     lineID,
				Message:    err.Error(),
			})
			continue
		}

		if ev.Amount.IsNegative() || ev.Amount.GreaterThan(acc.remaining) {
			return lineAccumulator{}, nil, &domain.ArithmeticInvariantError{
				Stage:      "evaluate",
				LineID:     lineID,
				CampaignID: rule.ID,
				Detail:     fmt.Sprintf("discount %s outside [0, %s]", ev.Amount, acc.remaining),
			}
		}

		acc = acc.apply(rule, ev)
	}

	return acc, diags, nil
}

func checkLine(lineID string, acc lineAccumulator) error {
	switch {
	case acc.discount.IsNegative():
		return &domain.ArithmeticInvariantError{
			Stage:  "line",
			LineID: lineID,
			Detail: fmt.Sprintf("negative line discount %s", acc.discount),
		}
	case acc.discount.GreaterThan(acc.base):
		return &domain.ArithmeticInvariantError{
			Stage:  "line",
			LineID: lineID,
			Detail: fmt.Sprintf("line discount %s exceeds base %s", acc.discount, acc.base),
		}
	case acc.remaining.IsNegative():
		return &domain.ArithmeticInvariantError{
			Stage:  "line",
			LineID: lineID,
			Detail: fmt.Sprintf("negative line total %s", acc.remaining),
		}
	}
	return nil
}

func lineResult(lineID string, line *domain.CartLine, acc lineAccumulator) domain.LineResult {
	applied := make([]domain.AppliedCampaign, len(acc.applied))
	for i, a := range acc.applied {
		a.Amount = domain.RoundMoney(a.Amount)
		applied[i] = a
	}

	return domain.LineResult{
		LineID:           lineID,
		ProductID:        line.ProductID,
		CategoryID:       line.CategoryID,
		Quantity:         line.Quantity,
		UnitPrice:        domain.RoundMoney(line.UnitPrice),
		BaseTotal:        domain.RoundMoney(acc.base),
		CampaignDiscount: domain.RoundMoney(acc.discount),
		FinalTotal:       domain.RoundMoney(acc.remaining),
		AppliedCampaigns: applied,
	}
}

// lineKey identifies a line in results and diagnostics. Lines submitted
// without an id are keyed by position.
func lineKey(index int, line *domain.CartLine) string {
	if line.ID != "" {
		return line.ID
	}
	return strconv.Itoa(index)
}
