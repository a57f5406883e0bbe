package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CartLine is one product-quantity pair submitted for pricing.
type CartLine struct {
	ID         string          `json:"id,omitempty"`
	ProductID  string          `json:"product_id"`
	CategoryID string          `json:"category_id"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
}

// BaseTotal returns unit price times quantity.
func (l *CartLine) BaseTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Validate rejects lines the engine cannot price.
func (l *CartLine) Validate(index int) error {
	switch {
	case strings.TrimSpace(l.ProductID) == "":
		return &InvalidCartLineError{Index: index, Reason: "product id is required"}
	case !l.UnitPrice.IsPositive():
		return &InvalidCartLineError{Index: index, Reason: "unit price must be positive"}
	case l.Quantity <= 0:
		return &InvalidCartLineError{Index: index, Reason: "quantity must be positive"}
	}
	return nil
}
