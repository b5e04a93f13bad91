package queue

import (
	"context"
	"errors"

	"qline/internal/store"
)

// Stable error kinds surfaced to callers. Every operation failure carries
// one of these plus a human-readable message; store-level transport
// failures collapse into KindUnavailable with no retry here.
const (
	KindValidation           = "validation_error"
	KindNotFound             = "not_found"
	KindInvalidTransition    = "invalid_transition"
	KindCounterMismatch      = "counter_mismatch"
	KindCounterBusy          = "counter_busy"
	KindInvalidCounterStatus = "invalid_counter_status"
	KindDuplicateTicket      = "duplicate_active_ticket"
	KindUnavailable          = "system_unavailable"
)

type Error struct {
	Kind    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Kind + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func validationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func unavailable(message string, cause error) *Error {
	return &Error{Kind: KindUnavailable, Message: message, cause: cause}
}

// classify maps store failures onto the operation error taxonomy. Unknown
// errors are treated as store outages: the caller owns any retry policy.
func classify(err error) *Error {
	var opErr *Error
	if errors.As(err, &opErr) {
		return opErr
	}

	switch {
	case errors.Is(err, store.ErrServiceNotFound):
		return &Error{Kind: KindNotFound, Message: "service not found", cause: err}
	case errors.Is(err, store.ErrTicketNotFound):
		return &Error{Kind: KindNotFound, Message: "ticket not found", cause: err}
	case errors.Is(err, store.ErrCounterNotFound):
		return &Error{Kind: KindNotFound, Message: "counter not found", cause: err}
	case errors.Is(err, store.ErrNoTicket):
		return &Error{Kind: KindNotFound, Message: "no waiting tickets", cause: err}
	case errors.Is(err, store.ErrServiceInactive):
		return &Error{Kind: KindValidation, Message: "service is not accepting tickets", cause: err}
	case errors.Is(err, store.ErrQueueFull):
		return &Error{Kind: KindValidation, Message: "queue is full", cause: err}
	case errors.Is(err, store.ErrInvalidTransition):
		return &Error{Kind: KindInvalidTransition, Message: "ticket state does not allow this action", cause: err}
	case errors.Is(err, store.ErrCounterClosed):
		return &Error{Kind: KindInvalidTransition, Message: "counter is closed", cause: err}
	case errors.Is(err, store.ErrCounterMismatch):
		return &Error{Kind: KindCounterMismatch, Message: "ticket is assigned to a different counter", cause: err}
	case errors.Is(err, store.ErrCounterBusy):
		return &Error{Kind: KindCounterBusy, Message: "counter is already serving a ticket", cause: err}
	case errors.Is(err, store.ErrInvalidCounterStatus):
		return &Error{Kind: KindInvalidCounterStatus, Message: "counter status must be open, busy, closed, or break", cause: err}
	case errors.Is(err, store.ErrDuplicateActiveTicket):
		return &Error{Kind: KindDuplicateTicket, Message: "user already holds an active ticket for this service", cause: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return unavailable("store timed out", err)
	default:
		return unavailable("store unavailable", err)
	}
}

// Kind extracts the stable kind string from any operation error.
func Kind(err error) string {
	var opErr *Error
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return KindUnavailable
}
