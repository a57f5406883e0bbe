package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CampaignType is the closed set of promotion kinds the engine evaluates.
type CampaignType int

// Campaign type constants.
const (
	CampaignTypePercentage CampaignType = iota + 1
	CampaignTypeFixedAmount
	CampaignTypeBuyXPayY
	CampaignTypeFreeShipping
)

var campaignTypeNames = map[CampaignType]string{
	CampaignTypePercentage:   "percentage",
	CampaignTypeFixedAmount:  "fixed_amount",
	CampaignTypeBuyXPayY:     "buy_x_pay_y",
	CampaignTypeFreeShipping: "free_shipping",
}

// ValidCampaignTypes returns every campaign type in declaration order.
func ValidCampaignTypes() []CampaignType {
	return []CampaignType{
		CampaignTypePercentage,
		CampaignTypeFixedAmount,
		CampaignTypeBuyXPayY,
		CampaignTypeFreeShipping,
	}
}

func (t CampaignType) String() string {
	if name, ok := campaignTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("campaign_type(%d)", int(t))
}

// IsValid reports whether t is one of the declared campaign types.
func (t CampaignType) IsValid() bool {
	_, ok := campaignTypeNames[t]
	return ok
}

// ParseCampaignType converts the wire name of a campaign type into its enum value.
func ParseCampaignType(s string) (CampaignType, error) {
	for t, name := range campaignTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown campaign type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t CampaignType) MarshalText() ([]byte, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("unknown campaign type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *CampaignType) UnmarshalText(b []byte) error {
	parsed, err := ParseCampaignType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TargetType selects which cart lines a campaign rule may touch.
type TargetType int

// Target type constants.
const (
	TargetTypeAll TargetType = iota + 1
	TargetTypeCategory
	TargetTypeProduct
)

var targetTypeNames = map[TargetType]string{
	TargetTypeAll:      "all",
	TargetTypeCategory: "category",
	TargetTypeProduct:  "product",
}

func (t TargetType) String() string {
	if name, ok := targetTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("target_type(%d)", int(t))
}

// IsValid reports whether t is one of the declared target types.
func (t TargetType) IsValid() bool {
	_, ok := targetTypeNames[t]
	return ok
}

// ParseTargetType converts the wire name of a target type into its enum value.
func ParseTargetType(s string) (TargetType, error) {
	for t, name := range targetTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown target type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t TargetType) MarshalText() ([]byte, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("unknown target type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TargetType) UnmarshalText(b []byte) error {
	parsed, err := ParseTargetType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// RuleScope says whether a rule's quantity gate looks at one line or the whole cart.
type RuleScope int

// Rule scope constants.
const (
	ScopeCart RuleScope = iota
	ScopeLine
)

// CampaignRule is one configured promotion.
type CampaignRule struct {
	ID                string              `json:"id"`
	Name              string              `json:"name"`
	Description       string              `json:"description,omitempty"`
	Type              CampaignType        `json:"type"`
	TargetType        TargetType          `json:"target_type"`
	TargetIDs         []string            `json:"target_ids"`
	DiscountValue     decimal.Decimal     `json:"discount_value"`
	MaxDiscountAmount decimal.NullDecimal `json:"max_discount_amount"`
	MinCartTotal      decimal.NullDecimal `json:"min_cart_total"`
	MinQuantity       *int                `json:"min_quantity,omitempty"`
	BuyQty            int                 `json:"buy_qty,omitempty"`
	PayQty            int                 `json:"pay_qty,omitempty"`
	Priority          int                 `json:"priority"`
	IsStackable       bool                `json:"is_stackable"`
	StartDate         time.Time           `json:"start_date"`
	EndDate           time.Time           `json:"end_date"`
	IsActive          bool                `json:"is_active"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// IsActiveAt reports whether the rule is switched on and now falls inside its
// validity window (both ends inclusive).
func (r *CampaignRule) IsActiveAt(now time.Time) bool {
	if !r.IsActive {
		return false
	}
	return !now.Before(r.StartDate) && !now.After(r.EndDate)
}

// Scope returns ScopeLine for rules whose quantity gate applies per line.
func (r *CampaignRule) Scope() RuleScope {
	if r.Type == CampaignTypeBuyXPayY {
		return ScopeLine
	}
	return ScopeCart
}

// Targets reports whether the rule's target set covers the given line.
func (r *CampaignRule) Targets(line *CartLine) bool {
	switch r.TargetType {
	case TargetTypeAll:
		return true
	case TargetTypeProduct:
		return containsID(r.TargetIDs, line.ProductID)
	case TargetTypeCategory:
		return containsID(r.TargetIDs, line.CategoryID)
	default:
		return false
	}
}

// Validate checks the rule's structure. It returns *InvalidRuleError describing
// the first problem found.
func (r *CampaignRule) Validate() error {
	invalid := func(format string, args ...any) error {
		return &InvalidRuleError{RuleID: r.ID, Reason: fmt.Sprintf(format, args...)}
	}

	if strings.TrimSpace(r.ID) == "" {
		return invalid("rule id is required")
	}
	if !r.Type.IsValid() {
		return invalid("unknown campaign type %d", int(r.Type))
	}
	if !r.TargetType.IsValid() {
		return invalid("unknown target type %d", int(r.TargetType))
	}
	if r.TargetType == TargetTypeAll && len(r.TargetIDs) > 0 {
		return invalid("target ids must be empty when target type is all")
	}
	if r.TargetType != TargetTypeAll && len(r.TargetIDs) == 0 {
		return invalid("target ids are required when target type is %s", r.TargetType)
	}
	if r.DiscountValue.IsNegative() {
		return invalid("discount value must not be negative")
	}
	if r.Type == CampaignTypePercentage && r.DiscountValue.GreaterThan(hundred) {
		return invalid("percentage discount must be between 0 and 100")
	}
	if r.MaxDiscountAmount.Valid {
		if r.Type != CampaignTypePercentage {
			return invalid("max discount amount is only allowed on percentage rules")
		}
		if r.MaxDiscountAmount.Decimal.IsNegative() {
			return invalid("max discount amount must not be negative")
		}
	}
	if r.MinCartTotal.Valid && r.MinCartTotal.Decimal.IsNegative() {
		return invalid("min cart total must not be negative")
	}
	if r.MinQuantity != nil && *r.MinQuantity < 0 {
		return invalid("min quantity must not be negative")
	}
	if r.Type == CampaignTypeBuyXPayY {
		if r.BuyQty <= 0 || r.PayQty <= 0 {
			return invalid("buy_x_pay_y requires positive buy and pay quantities")
		}
		if r.PayQty >= r.BuyQty {
			return invalid("pay quantity %d must be less than buy quantity %d", r.PayQty, r.BuyQty)
		}
	}
	if r.EndDate.Before(r.StartDate) {
		return invalid("end date must not be before start date")
	}
	return nil
}

func containsID(ids []string, id string) bool {
	if id == "" {
		return false
	}
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

var hundred = decimal.NewFromInt(100)
