package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline's failure taxonomy.
var (
	// ErrUnsupportedModel means a model identifier matched no known family
	// pattern. Fatal, surfaced to the caller.
	ErrUnsupportedModel = errors.New("unsupported model")

	// ErrIndexUnavailable means the vector index could not be reached while
	// the deployment requires it.
	ErrIndexUnavailable = errors.New("index unavailable")

	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrEmptyQuery         = errors.New("query is empty")
	ErrEmptyBatch         = errors.New("input batch is empty")
	ErrInvalidTopK        = errors.New("top_k out of range")
	ErrInvalidTemperature = errors.New("temperature must be positive")
)

// ValidationError wraps a sentinel with the offending field and value.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
