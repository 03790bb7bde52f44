package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a conversation does not exist or belongs to another tenant.
	ErrNotFound = errors.New("conversation not found")

	// ErrStatusConflict is returned by a store when the expected status no longer holds.
	ErrStatusConflict = errors.New("conversation status changed concurrently")

	// ErrInProgress is returned for a response to a conversation whose offer is
	// still being applied. The caller should retry later rather than assume an outcome.
	ErrInProgress = errors.New("offer application in progress")

	// ErrApplierExists is returned when two appliers register for the same offer type.
	ErrApplierExists = errors.New("applier already registered")
)

// ValidationError reports a malformed request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// BillingError wraps a failed or timed-out billing side effect.
type BillingError struct {
	Op  string
	Err error
}

func (e *BillingError) Error() string {
	return fmt.Sprintf("billing %s failed: %v", e.Op, e.Err)
}

func (e *BillingError) Unwrap() error { return e.Err }

// PersistenceError wraps a storage failure the caller must know about.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// UnknownOfferTypeError is logged when a conversation carries an offer type
// with no registered applier.
type UnknownOfferTypeError struct {
	OfferType string
}

func (e *UnknownOfferTypeError) Error() string {
	return fmt.Sprintf("unknown offer type %q", e.OfferType)
}
