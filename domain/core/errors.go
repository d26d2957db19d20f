package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	ErrDegenerateSample    = errors.New("degenerate sample")
	ErrInsufficientCases   = fmt.Errorf("%w: too few cases for covariance estimation", ErrDegenerateSample)
	ErrZeroRange           = fmt.Errorf("%w: indicator has zero range", ErrDegenerateSample)
	ErrNotPositiveDefinite = errors.New("covariance matrix is not positive definite")
	ErrNotConverged        = errors.New("integration did not converge")
	ErrDimensionMismatch   = errors.New("dimension mismatch")
)

// NewValidationError reports an invalid field value
func NewValidationError(field string, reason string) error {
	return fmt.Errorf("validation failed for %s: %s", field, reason)
}

// IsDegenerateSample reports whether err stems from a degenerate sample
func IsDegenerateSample(err error) bool {
	return errors.Is(err, ErrDegenerateSample)
}

// IsIntegrationError reports whether err stems from orthant integration
func IsIntegrationError(err error) bool {
	return errors.Is(err, ErrNotPositiveDefinite) ||
		errors.Is(err, ErrNotConverged)
}

// CombinationError attaches a symptom combination label to a failure
type CombinationError struct {
	Combination string
	Err         error
}

func (e *CombinationError) Error() string {
	return fmt.Sprintf("combination %s: %v", e.Combination, e.Err)
}

func (e *CombinationError) Unwrap() error {
	return e.Err
}

// CombinationOf returns the combination label carried by err, if any
func CombinationOf(err error) (string, bool) {
	var ce *CombinationError
	if errors.As(err, &ce) {
		return ce.Combination, true
	}
	return "", false
}
