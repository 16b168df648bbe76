// Package normalize maps source-specific payloads onto the canonical
// market types. Functions here are pure: no I/O, no logging.
package normalize

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrMissingField marks a required field absent from a message.
	ErrMissingField = errors.New("missing field")
	// ErrInvalidField marks a field that is present but unusable.
	ErrInvalidField = errors.New("invalid field")
)

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

func invalid(field, value string) error {
	return fmt.Errorf("%w: %s=%q", ErrInvalidField, field, value)
}

// positive parses a decimal string that must be strictly positive.
func positive(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, missing(field)
	}
	d, err := decimal.NewFromString(value)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, invalid(field, value)
	}
	return d, nil
}

// receivedAt is the fallback timestamp for messages without one.
var receivedAt = func() time.Time { return time.Now().UTC() }
