package queue

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tunedl/internal/domain/item"
)

// ValidationError reports a malformed or rejected enqueue request,
// or an out-of-range coordinator setting.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CapacityError reports that the queue already holds its maximum number of items.
type CapacityError struct {
	Max int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("queue is full (max %d items)", e.Max)
}

// NotFoundError reports an unknown item id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("item not found: %s", e.ID)
}

// InvalidStateError reports an operation not allowed from the item's current status.
type InvalidStateError struct {
	ID     string
	Op     string
	Status item.Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s item %s in status %s", e.Op, e.ID, e.Status)
}

// DispatchError is a gateway-reported failure. It is never returned to callers
// of the coordinator; its reason ends up in the failed item's Error field.
type DispatchError struct {
	Reason string
	Err    error
}

func (e *DispatchError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return defaultFailureReason
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// NewDispatchError wraps err as a dispatch failure with a human-readable reason.
func NewDispatchError(reason string, err error) *DispatchError {
	return &DispatchError{Reason: reason, Err: err}
}

const defaultFailureReason = "download failed"

// failureReason extracts the message stored on a failed item.
func failureReason(err error) string {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Error()
	}
	if err == nil || err.Error() == "" {
		return defaultFailureReason
	}
	return err.Error()
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsCapacity reports whether err is a CapacityError.
func IsCapacity(err error) bool {
	var e *CapacityError
	return errors.As(err, &e)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var e *InvalidStateError
	return errors.As(err, &e)
}
