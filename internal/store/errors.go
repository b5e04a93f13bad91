package store

import "errors"

var (
	ErrServiceNotFound       = errors.New("service not found")
	ErrServiceInactive       = errors.New("service not active")
	ErrTicketNotFound        = errors.New("ticket not found")
	ErrCounterNotFound       = errors.New("counter not found")
	ErrNoTicket              = errors.New("no waiting ticket")
	ErrInvalidTransition     = errors.New("invalid ticket transition")
	ErrCounterMismatch       = errors.New("counter mismatch")
	ErrCounterBusy           = errors.New("counter busy")
	ErrCounterClosed         = errors.New("counter closed")
	ErrInvalidCounterStatus  = errors.New("invalid counter status")
	ErrDuplicateActiveTicket = errors.New("user already has an active ticket")
	ErrQueueFull             = errors.New("queue full")
)
