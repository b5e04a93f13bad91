// Package queue holds the core operations of the walk-in queue: one
// explicit function per use case, each recovered into a typed result at
// its boundary. All ordering and claim atomicity lives in the store; this
// layer enforces input validity, the maintenance gate, and the error
// taxonomy.
package queue

import (
	"context"
	"time"

	"qline/internal/metrics"
	"qline/internal/models"
	"qline/internal/store"
)

type Queue struct {
	store store.Store
	now   func() time.Time
}

func New(st store.Store) *Queue {
	return &Queue{store: st, now: func() time.Time { return time.Now().UTC() }}
}

type RequestInput struct {
	RequestID string
	UserID    string
	ServiceID string
}

type CallInput struct {
	RequestID string
	ServiceID string
	CounterID string
}

type ActionInput struct {
	RequestID string
	TicketID  string
	CounterID string
}

type CancelInput struct {
	RequestID string
	TicketID  string
	UserID    string
}

// SnapshotEntry pairs a waiting ticket with its current rank. The frozen
// queue_position is the admission snapshot; CurrentRank is recomputed for
// displays as tickets ahead complete or cancel.
type SnapshotEntry struct {
	models.Ticket
	CurrentRank int `json:"current_rank"`
}

// Request admits a new ticket. Maintenance mode blocks new admissions
// only; tickets already in flight stay operable.
func (q *Queue) Request(ctx context.Context, input RequestInput) (models.Ticket, error) {
	if input.RequestID == "" || input.UserID == "" || input.ServiceID == "" {
		return models.Ticket{}, validationError("request_id, user_id, and service_id are required")
	}

	maintenance, err := q.store.GetMaintenance(ctx)
	if err != nil {
		return models.Ticket{}, classify(err)
	}
	if maintenance.Enabled {
		message := maintenance.Message
		if message == "" {
			message = "system is under maintenance"
		}
		return models.Ticket{}, &Error{Kind: KindUnavailable, Message: message}
	}

	ticket, created, err := q.store.CreateTicket(ctx, store.CreateTicketInput{
		RequestID:   input.RequestID,
		UserID:      input.UserID,
		ServiceID:   input.ServiceID,
		RequestedAt: q.now(),
	})
	if err != nil {
		metrics.Transition("request", Kind(err))
		return models.Ticket{}, classify(err)
	}
	if created {
		metrics.TicketCreated(ticket.ServiceID)
	}
	metrics.Transition("request", "ok")
	return ticket, nil
}

// CallNext claims the lowest (queue_position, requested_at) waiting ticket
// for the counter's service and locks it to the counter. Exactly one of
// any set of concurrent callers wins a given ticket.
func (q *Queue) CallNext(ctx context.Context, input CallInput) (models.Ticket, error) {
	if input.RequestID == "" || input.CounterID == "" {
		return models.Ticket{}, validationError("request_id and counter_id are required")
	}

	ticket, _, err := q.store.CallNext(ctx, store.CallNextInput{
		RequestID: input.RequestID,
		ServiceID: input.ServiceID,
		CounterID: input.CounterID,
		CalledAt:  q.now(),
	})
	if err != nil {
		metrics.Transition("call", Kind(err))
		return models.Ticket{}, classify(err)
	}
	metrics.Transition("call", "ok")
	return ticket, nil
}

func (q *Queue) Start(ctx context.Context, input ActionInput) (models.Ticket, error) {
	if input.RequestID == "" || input.TicketID == "" || input.CounterID == "" {
		return models.Ticket{}, validationError("request_id, ticket_id, and counter_id are required")
	}

	ticket, _, err := q.store.StartServing(ctx, store.TicketActionInput{
		RequestID:  input.RequestID,
		TicketID:   input.TicketID,
		CounterID:  input.CounterID,
		OccurredAt: q.now(),
	})
	if err != nil {
		metrics.Transition("start", Kind(err))
		return models.Ticket{}, classify(err)
	}
	metrics.Transition("start", "ok")
	return ticket, nil
}

func (q *Queue) Complete(ctx context.Context, input ActionInput) (models.Ticket, error) {
	if input.RequestID == "" || input.TicketID == "" || input.CounterID == "" {
		return models.Ticket{}, validationError("request_id, ticket_id, and counter_id are required")
	}

	ticket, _, err := q.store.CompleteTicket(ctx, store.TicketActionInput{
		RequestID:  input.RequestID,
		TicketID:   input.TicketID,
		CounterID:  input.CounterID,
		OccurredAt: q.now(),
	})
	if err != nil {
		metrics.Transition("complete", Kind(err))
		return models.Ticket{}, classify(err)
	}
	metrics.Transition("complete", "ok")
	return ticket, nil
}

// Cancel is owner-initiated and races fairly with a concurrent call:
// whichever write lands first wins, the loser fails cleanly.
func (q *Queue) Cancel(ctx context.Context, input CancelInput) (models.Ticket, error) {
	if input.RequestID == "" || input.TicketID == "" || input.UserID == "" {
		return models.Ticket{}, validationError("request_id, ticket_id, and user_id are required")
	}

	ticket, _, err := q.store.CancelTicket(ctx, store.TicketActionInput{
		RequestID:  input.RequestID,
		TicketID:   input.TicketID,
		UserID:     input.UserID,
		OccurredAt: q.now(),
	})
	if err != nil {
		metrics.Transition("cancel", Kind(err))
		return models.Ticket{}, classify(err)
	}
	metrics.Transition("cancel", "ok")
	return ticket, nil
}

func (q *Queue) Recall(ctx context.Context, input ActionInput) (models.Ticket, error) {
	if input.RequestID == "" || input.TicketID == "" || input.CounterID == "" {
		return models.Ticket{}, validationError("request_id, ticket_id, and counter_id are required")
	}

	ticket, _, err := q.store.RecallTicket(ctx, store.TicketActionInput{
		RequestID:  input.RequestID,
		TicketID:   input.TicketID,
		CounterID:  input.CounterID,
		OccurredAt: q.now(),
	})
	if err != nil {
		metrics.Transition("recall", Kind(err))
		return models.Ticket{}, classify(err)
	}
	metrics.Transition("recall", "ok")
	return ticket, nil
}

func (q *Queue) Ticket(ctx context.Context, ticketID string) (models.Ticket, error) {
	if ticketID == "" {
		return models.Ticket{}, validationError("ticket_id is required")
	}
	ticket, err := q.store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, classify(err)
	}
	return ticket, nil
}

// Snapshot lists the waiting queue for a service with live ranks.
func (q *Queue) Snapshot(ctx context.Context, serviceID string) ([]SnapshotEntry, error) {
	if serviceID == "" {
		return nil, validationError("service_id is required")
	}
	tickets, err := q.store.ListWaiting(ctx, serviceID)
	if err != nil {
		return nil, classify(err)
	}
	entries := make([]SnapshotEntry, 0, len(tickets))
	for i, ticket := range tickets {
		entries = append(entries, SnapshotEntry{Ticket: ticket, CurrentRank: i + 1})
	}
	metrics.SetQueueDepth(serviceID, float64(len(entries)))
	return entries, nil
}

func (q *Queue) Services(ctx context.Context) ([]models.Service, error) {
	services, err := q.store.ListServices(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return services, nil
}

func (q *Queue) Counters(ctx context.Context, serviceID string) ([]models.Counter, error) {
	counters, err := q.store.ListCounters(ctx, serviceID)
	if err != nil {
		return nil, classify(err)
	}
	return counters, nil
}

func (q *Queue) SetCounterStatus(ctx context.Context, counterID, status string) (models.Counter, error) {
	if counterID == "" {
		return models.Counter{}, validationError("counter_id is required")
	}
	if !models.ValidCounterStatus(status) {
		return models.Counter{}, &Error{Kind: KindInvalidCounterStatus,
			Message: "counter status must be open, busy, closed, or break"}
	}
	counter, err := q.store.UpdateCounterStatus(ctx, counterID, status)
	if err != nil {
		return models.Counter{}, classify(err)
	}
	return counter, nil
}

func (q *Queue) History(ctx context.Context, ticketID string) ([]models.ActionLog, error) {
	if ticketID == "" {
		return nil, validationError("ticket_id is required")
	}
	actions, err := q.store.ListTicketActions(ctx, ticketID)
	if err != nil {
		return nil, classify(err)
	}
	return actions, nil
}

func (q *Queue) Events(ctx context.Context, after store.RelayOffset, limit int) ([]store.OutboxEvent, error) {
	events, err := q.store.ListOutboxEvents(ctx, after, limit)
	if err != nil {
		return nil, classify(err)
	}
	return events, nil
}

func (q *Queue) Maintenance(ctx context.Context) (store.Maintenance, error) {
	maintenance, err := q.store.GetMaintenance(ctx)
	if err != nil {
		return store.Maintenance{}, classify(err)
	}
	return maintenance, nil
}

func (q *Queue) SetMaintenance(ctx context.Context, m store.Maintenance) error {
	if err := q.store.SetMaintenance(ctx, m); err != nil {
		return classify(err)
	}
	return nil
}
