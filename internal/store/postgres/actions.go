package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"qline/internal/models"
	"qline/internal/store"
)

func (s *Store) StartServing(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	return s.updateTicketStatus(ctx, input, "start", models.StatusCalled, models.StatusServing,
		"ticket.serving", models.ActionStarted, "serving_at")
}

func (s *Store) CompleteTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	return s.updateTicketStatus(ctx, input, "complete", models.StatusServing, models.StatusCompleted,
		"ticket.completed", models.ActionCompleted, "completed_at")
}

// updateTicketStatus performs a single conditional update guarded on the
// current status and the acting counter. A raced or repeated call lands on
// zero rows and is diagnosed against the ticket's actual state, leaving it
// untouched.
func (s *Store) updateTicketStatus(ctx context.Context, input store.TicketActionInput, action, fromStatus, toStatus, eventType, logAction, timestampColumn string) (models.Ticket, bool, error) {
	if !store.ValidTransition(action, fromStatus) {
		return models.Ticket{}, false, store.ErrInvalidTransition
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, action, input.RequestID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		if empty {
			return models.Ticket{}, false, store.ErrInvalidTransition
		}
		return existing, false, nil
	}

	occurredAt := occurredOrNow(input)

	row := tx.QueryRow(ctx, fmt.Sprintf(`
		UPDATE tickets
		SET status = $1, %s = $2
		WHERE ticket_id = $3 AND status = $4 AND counter_id = $5
		RETURNING `+ticketColumns, timestampColumn),
		toStatus, occurredAt, input.TicketID, fromStatus, input.CounterID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = diagnoseActionFailure(ctx, tx, input, fromStatus)
			return models.Ticket{}, false, err
		}
		return models.Ticket{}, false, err
	}
	ticket.RequestID = input.RequestID

	if toStatus == models.StatusCompleted {
		if err = releaseCounter(ctx, tx, input.CounterID, ticket.TicketID, ticket.ServiceID); err != nil {
			return models.Ticket{}, false, err
		}
	}

	if err = insertActionRequest(ctx, tx, action, input.RequestID, ticket.TicketID); err != nil {
		return models.Ticket{}, false, err
	}
	if err = insertActionLog(ctx, tx, ticket, logAction, nil); err != nil {
		return models.Ticket{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, eventType, ticketPayload(ticket, nil)); err != nil {
		return models.Ticket{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) CancelTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, "cancel", input.RequestID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		if empty {
			return models.Ticket{}, false, store.ErrInvalidTransition
		}
		return existing, false, nil
	}

	occurredAt := occurredOrNow(input)

	// Owner guard and state guard in the same conditional update; a
	// concurrent call that already claimed the ticket makes this land on
	// zero rows and fail cleanly.
	row := tx.QueryRow(ctx, `
		UPDATE tickets
		SET status = 'cancelled', cancelled_at = $1
		WHERE ticket_id = $2 AND user_id = $3 AND status IN ('waiting', 'called')
		RETURNING `+ticketColumns,
		occurredAt, input.TicketID, input.UserID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_, _, exists, stateErr := loadTicketState(ctx, tx, input.TicketID)
			if stateErr != nil {
				err = stateErr
				return models.Ticket{}, false, err
			}
			if !exists {
				err = store.ErrTicketNotFound
				return models.Ticket{}, false, err
			}
			err = store.ErrInvalidTransition
			return models.Ticket{}, false, err
		}
		return models.Ticket{}, false, err
	}
	ticket.RequestID = input.RequestID

	// A called ticket holds its counter's serving slot; cancelling it
	// hands the counter back.
	if ticket.CounterID != nil {
		if err = releaseCounter(ctx, tx, *ticket.CounterID, ticket.TicketID, ticket.ServiceID); err != nil {
			return models.Ticket{}, false, err
		}
	}

	if err = insertActionRequest(ctx, tx, "cancel", input.RequestID, ticket.TicketID); err != nil {
		return models.Ticket{}, false, err
	}
	if err = insertActionLog(ctx, tx, ticket, models.ActionCancelled, map[string]any{
		"cancelled_by": input.UserID,
	}); err != nil {
		return models.Ticket{}, false, err
	}

	var waitingCount int
	countRow := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM tickets WHERE service_id = $1 AND status = 'waiting'
	`, ticket.ServiceID)
	if err = countRow.Scan(&waitingCount); err != nil {
		return models.Ticket{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, "ticket.cancelled", ticketPayload(ticket, map[string]any{
		"waiting_count": waitingCount,
	})); err != nil {
		return models.Ticket{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

// RecallTicket re-announces a called ticket. No state changes, only an
// action-log row and a fresh broadcast.
func (s *Store) RecallTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, "recall", input.RequestID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		if empty {
			return models.Ticket{}, false, store.ErrInvalidTransition
		}
		return existing, false, nil
	}

	row := tx.QueryRow(ctx, `
		SELECT `+ticketColumns+` FROM tickets WHERE ticket_id = $1
	`, input.TicketID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrTicketNotFound
			return models.Ticket{}, false, err
		}
		return models.Ticket{}, false, err
	}
	if ticket.Status != models.StatusCalled {
		err = store.ErrInvalidTransition
		return models.Ticket{}, false, err
	}
	if ticket.CounterID == nil || *ticket.CounterID != input.CounterID {
		err = store.ErrCounterMismatch
		return models.Ticket{}, false, err
	}
	ticket.RequestID = input.RequestID

	if err = insertActionRequest(ctx, tx, "recall", input.RequestID, ticket.TicketID); err != nil {
		return models.Ticket{}, false, err
	}
	if err = insertActionLog(ctx, tx, ticket, models.ActionRecalled, nil); err != nil {
		return models.Ticket{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, "ticket.recalled", ticketPayload(ticket, nil)); err != nil {
		return models.Ticket{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func diagnoseActionFailure(ctx context.Context, tx pgx.Tx, input store.TicketActionInput, fromStatus string) error {
	status, counterID, exists, err := loadTicketState(ctx, tx, input.TicketID)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrTicketNotFound
	}
	if counterID != "" && counterID != input.CounterID {
		return store.ErrCounterMismatch
	}
	if status != fromStatus {
		return store.ErrInvalidTransition
	}
	return store.ErrInvalidTransition
}

func loadTicketState(ctx context.Context, tx pgx.Tx, ticketID string) (string, string, bool, error) {
	var status string
	var counterID sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT status, counter_id FROM tickets WHERE ticket_id = $1
	`, ticketID)
	if err := row.Scan(&status, &counterID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", false, nil
		}
		return "", "", false, err
	}
	if counterID.Valid {
		return status, counterID.String, true, nil
	}
	return status, "", true, nil
}

func findActionRequest(ctx context.Context, tx pgx.Tx, action, requestID string) (models.Ticket, bool, bool, error) {
	var ticketID sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT ticket_id FROM action_requests WHERE request_id = $1 AND action = $2
	`, requestID, action)
	if err := row.Scan(&ticketID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, false, nil
		}
		return models.Ticket{}, false, false, err
	}
	if !ticketID.Valid {
		return models.Ticket{}, true, true, nil
	}

	row = tx.QueryRow(ctx, `
		SELECT `+ticketColumns+` FROM tickets WHERE ticket_id = $1
	`, ticketID.String)
	ticket, err := scanTicket(row)
	if err != nil {
		return models.Ticket{}, false, false, err
	}
	ticket.RequestID = requestID
	return ticket, true, false, nil
}

func insertActionRequest(ctx context.Context, tx pgx.Tx, action, requestID, ticketID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO action_requests (request_id, action, ticket_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (request_id) DO NOTHING
	`, requestID, action, nullIfEmpty(ticketID))
	return err
}

func occurredOrNow(input store.TicketActionInput) time.Time {
	if input.OccurredAt.IsZero() {
		return time.Now().UTC()
	}
	return input.OccurredAt
}
