package booking

import (
	"errors"
	"fmt"
)

// Typed results of booking and cancellation operations. Handlers map these to
// response codes; none of them indicate a fault in the service itself.
var (
	ErrBusinessNotFound      = errors.New("business not found")
	ErrSlotUnavailable       = errors.New("time slot is no longer available")
	ErrClientNotFound        = errors.New("no client found with that email address")
	ErrNoUpcomingAppointment = errors.New("no upcoming appointments found for this client")
	ErrAppointmentNotFound   = errors.New("appointment not found")
	ErrAlreadyCancelled      = errors.New("appointment is already cancelled")
	ErrStatusNotAllowed      = errors.New("status change not allowed")
)

// PersistError wraps a store-layer fault. The operation that hit it is
// retryable by the caller; Op names the write that failed ("client",
// "appointment", "event", "query").
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	return &PersistError{Op: op, Err: err}
}
