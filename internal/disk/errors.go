package disk

import (
	"errors"
	"fmt"
)

// The engine classifies failures into four kinds at its boundary. The
// transport layer maps each kind to a status code; everything else is
// an opaque internal failure with the transaction rolled back.

// ValidationError rejects malformed client input before any transaction
// opens.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ItemNotFoundError reports a read or delete of a node id that does not
// exist.
type ItemNotFoundError struct {
	ID string
}

func (e *ItemNotFoundError) Error() string {
	return "item not found: " + e.ID
}

// ParentNotFoundError reports an upsert referencing a parent id that
// does not exist, surfaced by the store as a referential-integrity
// failure and translated here.
type ParentNotFoundError struct {
	Err error
}

func (e *ParentNotFoundError) Error() string {
	return "referenced parent not found"
}

func (e *ParentNotFoundError) Unwrap() error { return e.Err }

// ConcurrencyFault wraps a deadlock or constraint collision that the
// admission and locking protocol should have made impossible. It is
// surfaced as an internal failure, never retried.
type ConcurrencyFault struct {
	Err error
}

func (e *ConcurrencyFault) Error() string {
	return "concurrency fault: " + e.Err.Error()
}

func (e *ConcurrencyFault) Unwrap() error { return e.Err }

// IsValidation reports whether err is a client-input failure (400).
func IsValidation(err error) bool {
	var v *ValidationError
	var p *ParentNotFoundError
	return errors.As(err, &v) || errors.As(err, &p)
}

// IsNotFound reports whether err is a missing-item failure (404).
func IsNotFound(err error) bool {
	var n *ItemNotFoundError
	return errors.As(err, &n)
}
