// Package pricing holds the stateless calculators behind tree valuation,
// equipment true cost and crew compensation. Every function takes explicit
// numeric inputs and either returns a result or an *InputError; nothing
// here reads the clock or global state.
package pricing

import (
	"fmt"
	"math"
)

// InputError reports an input that would make a calculation meaningless
// (negative measurement, zero divisor, out-of-range level).
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input '%s': %s", e.Field, e.Reason)
}

func requireNonNegative(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &InputError{Field: field, Reason: "must be a finite number"}
	}
	if v < 0 {
		return &InputError{Field: field, Reason: "must not be negative"}
	}
	return nil
}

func requirePositive(field string, v float64) error {
	if err := requireNonNegative(field, v); err != nil {
		return err
	}
	if v == 0 {
		return &InputError{Field: field, Reason: "must be greater than zero"}
	}
	return nil
}

func requireRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return &InputError{Field: field, Reason: fmt.Sprintf("must be between %d and %d", lo, hi)}
	}
	return nil
}
