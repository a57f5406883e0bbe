package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	apperrors "github.com/utafrali/ecommerce-pricing/pkg/errors"
	"github.com/utafrali/ecommerce-pricing/pkg/validator"
)

// decode reads and validates a JSON body. Validation failures pass through
// so WriteError can report them per field; anything else is a malformed body.
func decode(r *http.Request, dst any) error {
	err := validator.DecodeAndValidate(r, dst)
	if err == nil {
		return nil
	}
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		return err
	}
	msg := err.Error()
	if inner := errors.Unwrap(err); inner != nil {
		msg = inner.Error()
	}
	return apperrors.InvalidInput("invalid request body: " + msg)
}

// Optional distinguishes an absent JSON field from an explicit null.
type Optional[T any] struct {
	Set   bool
	Value *T
}

// UnmarshalJSON implements json.Unmarshaler. It only runs for fields present
// in the document.
func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

func optionalNullDecimal(o Optional[decimal.Decimal]) *decimal.NullDecimal {
	if !o.Set {
		return nil
	}
	v := nullDecimal(o.Value)
	return &v
}

func optionalIntPtr(o Optional[int]) **int {
	if !o.Set {
		return nil
	}
	v := o.Value
	return &v
}
