package store

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned for bad setup: a kind without unique-key
	// fields, a duplicate kind, a missing client, or a forbidden operation
	// for the current execution mode. It is not retryable.
	ErrConfiguration = errors.New("strata: improperly configured")

	// ErrBadValue is returned when a value fails field validation.
	ErrBadValue = errors.New("strata: bad value")

	// ErrFieldDoesNotExist is returned when an unknown field name is read,
	// assigned, filtered on, or supplied at construction.
	ErrFieldDoesNotExist = errors.New("strata: field does not exist")

	// ErrModelReference is returned when a reference points at the wrong kind
	// or at a kind that is not registered.
	ErrModelReference = errors.New("strata: invalid model reference")

	// ErrAlreadyExists is returned when creating an entity whose key is taken.
	ErrAlreadyExists = errors.New("strata: entity already exists")

	// ErrNotFound is returned by read paths that report absence as an error.
	// Get and GetByID report absence as a nil entity instead.
	ErrNotFound = errors.New("strata: entity does not exist")

	// ErrClient wraps failures raised by a storage backend.
	ErrClient = errors.New("strata: client error")

	// ErrMaxRetryExceeded is returned when an optimistic write keeps losing
	// its race after the configured number of attempts.
	ErrMaxRetryExceeded = errors.New("strata: max retries exceeded")
)

// ValueError describes a validation failure on a single field.
// It matches ErrBadValue with errors.Is, and also Cause when one is set.
type ValueError struct {
	Field  string
	Reason string
	Cause  error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("strata: bad value for field %q: %s", e.Field, e.Reason)
}

// Unwrap exposes ErrBadValue and the optional cause to errors.Is / errors.As.
func (e *ValueError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrBadValue, e.Cause}
	}
	return []error{ErrBadValue}
}

func badValue(field, format string, args ...any) error {
	return &ValueError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
