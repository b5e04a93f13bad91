package store

import (
	"context"
	"encoding/json"
	"time"

	"qline/internal/models"
)

type CreateTicketInput struct {
	RequestID   string
	UserID      string
	ServiceID   string
	RequestedAt time.Time
}

type CallNextInput struct {
	RequestID string
	ServiceID string
	CounterID string
	CalledAt  time.Time
}

type TicketActionInput struct {
	RequestID  string
	TicketID   string
	CounterID  string
	UserID     string
	OccurredAt time.Time
}

type Maintenance struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message,omitempty"`
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// RelayOffset marks the last outbox event a relay has fanned out.
type RelayOffset struct {
	LastEventTime time.Time `json:"last_event_time"`
	LastEventID   string    `json:"last_event_id"`
}

// Store is the durable source of truth for tickets, counters, and the
// action log. Every mutation is an atomic conditional update: the claim
// of the next waiting ticket, the counter serving slot, and the per-day
// queue number are all check-and-set against the database, never
// read-then-write across requests. Mutations append an action-log row and
// an outbox event in the same transaction that commits the transition.
type Store interface {
	CreateTicket(ctx context.Context, input CreateTicketInput) (models.Ticket, bool, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	ListWaiting(ctx context.Context, serviceID string) ([]models.Ticket, error)
	CallNext(ctx context.Context, input CallNextInput) (models.Ticket, bool, error)
	StartServing(ctx context.Context, input TicketActionInput) (models.Ticket, bool, error)
	CompleteTicket(ctx context.Context, input TicketActionInput) (models.Ticket, bool, error)
	CancelTicket(ctx context.Context, input TicketActionInput) (models.Ticket, bool, error)
	RecallTicket(ctx context.Context, input TicketActionInput) (models.Ticket, bool, error)

	GetService(ctx context.Context, serviceID string) (models.Service, error)
	ListServices(ctx context.Context) ([]models.Service, error)

	GetCounter(ctx context.Context, counterID string) (models.Counter, error)
	ListCounters(ctx context.Context, serviceID string) ([]models.Counter, error)
	UpdateCounterStatus(ctx context.Context, counterID, status string) (models.Counter, error)

	ListTicketActions(ctx context.Context, ticketID string) ([]models.ActionLog, error)
	ListOutboxEvents(ctx context.Context, after RelayOffset, limit int) ([]OutboxEvent, error)

	GetMaintenance(ctx context.Context) (Maintenance, error)
	SetMaintenance(ctx context.Context, m Maintenance) error
	GetRelayOffset(ctx context.Context) (RelayOffset, error)
	SetRelayOffset(ctx context.Context, offset RelayOffset) error
}
