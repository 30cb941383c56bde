package models

import (
	"errors"
	"fmt"
)

// Structural errors abort a computation before it starts; data-quality gaps
// (unmatched ratings, missing covenant fields) are instead excluded from the
// affected computation and surfaced as counts on the result structs.
var (
	// ErrEmptyDataset is returned when an engine is invoked on a portfolio
	// with zero loans.
	ErrEmptyDataset = errors.New("dataset is empty")

	// ErrInvalidParameter is returned for out-of-range engine parameters
	// (negative terms, zero periods, non-positive horizons).
	ErrInvalidParameter = errors.New("invalid parameter")
)

// SchemaError reports a dataset that violates the required column contract:
// a missing or mistyped column, an out-of-range value, or a duplicate key.
type SchemaError struct {
	Column string
	Row    int
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("schema error in column %q (row %d): %s", e.Column, e.Row, e.Reason)
	}
	return fmt.Sprintf("schema error in column %q: %s", e.Column, e.Reason)
}

// InvalidParameterError wraps ErrInvalidParameter with the offending
// parameter name and value.
func InvalidParameterError(name string, value interface{}) error {
	return fmt.Errorf("%w: %s=%v", ErrInvalidParameter, name, value)
}
