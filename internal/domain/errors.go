package domain

import (
	"errors"
	"fmt"
)

// The engine's error taxonomy. Validation failures are rejected before any
// computation begins; computation errors indicate a data-quality problem
// (degenerate inputs) rather than a bad request shape.

// ValidationError reports malformed or out-of-range input. The message
// names the offending field and its constraint.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for a named field.
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientDataError reports a return series too short for a stable
// statistical estimate.
type InsufficientDataError struct {
	Required int
	Got      int
	What     string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: need at least %d observations, got %d", e.What, e.Required, e.Got)
}

// NotFoundError reports a missing portfolio or other entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// ComputationError reports a numerical failure (non-positive-definite
// matrices, non-finite simulation outputs). Distinct from validation so
// callers can tell data-quality problems from bad request shapes.
type ComputationError struct {
	Op      string
	Message string
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("computation failed in %s: %s", e.Op, e.Message)
}

// NewComputationError creates a ComputationError for a named operation.
func NewComputationError(op, format string, args ...interface{}) *ComputationError {
	return &ComputationError{Op: op, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInsufficientData reports whether err is (or wraps) an InsufficientDataError.
func IsInsufficientData(err error) bool {
	var ie *InsufficientDataError
	return errors.As(err, &ie)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsComputation reports whether err is (or wraps) a ComputationError.
func IsComputation(err error) bool {
	var ce *ComputationError
	return errors.As(err, &ce)
}
