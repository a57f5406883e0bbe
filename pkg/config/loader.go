// Package config loads environment-driven configuration structs.
package config

import (
	"fmt"
	"reflect"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/shopspring/decimal"
)

// Validator is implemented by configs that check their own invariants after
// parsing.
type Validator interface {
	Validate() error
}

// Load parses environment variables into cfg using its `env` tags. Decimal
// fields go through their TextUnmarshaler and durations accept either Go
// syntax ("1500ms") or a bare number of seconds. If cfg implements Validator,
// Validate runs after parsing.
func Load(cfg any) error {
	return LoadWithEnvironment(cfg, nil)
}

// LoadWithEnvironment is Load reading from environ instead of the process
// environment when environ is non-nil.
func LoadWithEnvironment(cfg any, environ map[string]string) error {
	opts := env.Options{
		Environment: environ,
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(time.Duration(0)): parseDuration,
		},
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}
	return nil
}

func parseDuration(v string) (any, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := decimal.NewFromString(v)
	if err != nil {
		return nil, fmt.Errorf("invalid duration %q", v)
	}
	return time.Duration(secs.Mul(decimal.NewFromInt(int64(time.Second))).IntPart()), nil
}
