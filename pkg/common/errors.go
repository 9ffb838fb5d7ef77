package common

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a missing node. Deletes translate it into a zero
	// count; lookups surface it.
	ErrNotFound = errors.New("not found")

	// ErrConflict reports a document id that was already ingested with
	// different content.
	ErrConflict = errors.New("conflict")
)

// ValidationError reports malformed input. It is always raised before any
// write is attempted.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// StoreError wraps a failure of the graph store (connectivity, constraint
// violation, transaction conflict). Its text is for logs only.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsStore reports whether err carries a StoreError.
func IsStore(err error) bool {
	var s *StoreError
	return errors.As(err, &s)
}
