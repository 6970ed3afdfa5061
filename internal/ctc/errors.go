package ctc

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by Validate wraps exactly one of them.
var (
	ErrShapeMismatch         = errors.New("shape mismatch")
	ErrInvalidLength         = errors.New("invalid length")
	ErrResourceLimitExceeded = errors.New("resource limit exceeded")
)

// ValidationError provides detailed information about an input that was rejected.
type ValidationError struct {
	Kind    error  // One of the error kinds above
	Tensor  string // Input involved (e.g., "log_probs", "target_lengths")
	Index   int    // Batch position, or -1 when the whole tensor is at fault
	Details string // Additional details
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("ctc: %v: %s[%d]: %s", e.Kind, e.Tensor, e.Index, e.Details)
	}
	if e.Tensor != "" {
		return fmt.Sprintf("ctc: %v: %s: %s", e.Kind, e.Tensor, e.Details)
	}
	return fmt.Sprintf("ctc: %v: %s", e.Kind, e.Details)
}

// Unwrap returns the error kind so callers can use errors.Is.
func (e *ValidationError) Unwrap() error {
	return e.Kind
}

func shapeErr(name, format string, args ...any) error {
	return &ValidationError{Kind: ErrShapeMismatch, Tensor: name, Index: -1, Details: fmt.Sprintf(format, args...)}
}

func lengthErr(name string, index int, format string, args ...any) error {
	return &ValidationError{Kind: ErrInvalidLength, Tensor: name, Index: index, Details: fmt.Sprintf(format, args...)}
}

func limitErr(format string, args ...any) error {
	return &ValidationError{Kind: ErrResourceLimitExceeded, Index: -1, Details: fmt.Sprintf(format, args...)}
}
