package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSourceType is returned when no registrator claims a source.
	ErrUnknownSourceType = errors.New("no registrator for source type")

	// ErrInvoiceNotFound is returned by lookups that require an existing invoice.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrItemNotFound is returned when a source has no open item to act on.
	ErrItemNotFound = errors.New("invoice item not found")
)

// StateError reports a transition the invoice lifecycle forbids.
type StateError struct {
	From InvoiceState
	To   InvoiceState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invoice state transition %s -> %s is not allowed", e.From, e.To)
}

// IsStateError reports whether err wraps a forbidden state transition.
func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}
