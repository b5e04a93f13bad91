package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"qline/internal/models"
	"qline/internal/store"
)

const uniqueViolationCode = "23505"

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findTicketByRequestID(ctx, tx, input.RequestID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		return existing, false, nil
	}

	service, err := getServiceTx(ctx, tx, input.ServiceID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if !service.Active {
		return models.Ticket{}, false, store.ErrServiceInactive
	}

	requestedAt := input.RequestedAt
	if requestedAt.IsZero() {
		requestedAt = time.Now().UTC()
	}
	day := s.queueDay(requestedAt)

	// Serializes admissions per (service, day): the number scan, the
	// duplicate-active check, and the position snapshot all happen under
	// this lock, so two concurrent requests can never observe the same
	// queue state.
	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`,
		input.ServiceID, day.Format("2006-01-02")); err != nil {
		return models.Ticket{}, false, err
	}

	// A concurrent identical request may have committed while this one
	// waited on the lock; the pre-lock lookup cannot see it.
	existing, found, err = findTicketByRequestID(ctx, tx, input.RequestID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		return existing, false, nil
	}

	var hasActive bool
	row := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tickets
			WHERE user_id = $1 AND service_id = $2 AND status IN ('waiting', 'called', 'serving')
		)
	`, input.UserID, input.ServiceID)
	if err = row.Scan(&hasActive); err != nil {
		return models.Ticket{}, false, err
	}
	if hasActive {
		return models.Ticket{}, false, store.ErrDuplicateActiveTicket
	}

	var waitingCount int
	row = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM tickets WHERE service_id = $1 AND status = 'waiting'
	`, input.ServiceID)
	if err = row.Scan(&waitingCount); err != nil {
		return models.Ticket{}, false, err
	}
	if service.MaxQueueSize > 0 && waitingCount >= service.MaxQueueSize {
		return models.Ticket{}, false, store.ErrQueueFull
	}

	prefix := store.QueuePrefix(service)
	seq, err := nextQueueNumber(ctx, tx, input.ServiceID, day, prefix)
	if err != nil {
		return models.Ticket{}, false, err
	}

	position := waitingCount + 1
	ticket := models.Ticket{
		TicketID:      uuid.NewString(),
		UserID:        input.UserID,
		ServiceID:     input.ServiceID,
		QueueNumber:   store.FormatQueueNumber(prefix, seq),
		QueuePosition: position,
		Status:        models.StatusWaiting,
		EstimatedWait: service.ServiceMinutes * position,
		RequestedAt:   requestedAt,
		RequestID:     input.RequestID,
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO tickets (
			ticket_id, request_id, user_id, service_id, queue_day, queue_number,
			queue_position, status, estimated_wait_minutes, requested_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (request_id) DO NOTHING
	`, ticket.TicketID, input.RequestID, input.UserID, input.ServiceID, day,
		ticket.QueueNumber, position, models.StatusWaiting, ticket.EstimatedWait, requestedAt)
	if err != nil {
		// The one-active-per-user partial index catches admissions the
		// per-(service, day) lock cannot serialize, such as a second
		// ticket straddling the day boundary.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode &&
			pgErr.ConstraintName == "tickets_one_active_per_user_service" {
			err = store.ErrDuplicateActiveTicket
		}
		return models.Ticket{}, false, err
	}
	if tag.RowsAffected() == 0 {
		_ = tx.Rollback(ctx)
		row := s.pool.QueryRow(ctx, `
			SELECT `+ticketColumns+` FROM tickets WHERE request_id = $1
		`, input.RequestID)
		replay, scanErr := scanTicket(row)
		if scanErr != nil {
			return models.Ticket{}, false, scanErr
		}
		replay.RequestID = input.RequestID
		return replay, false, nil
	}

	if err = insertActionLog(ctx, tx, ticket, models.ActionCreated, map[string]any{
		"queue_number":   ticket.QueueNumber,
		"queue_position": position,
	}); err != nil {
		return models.Ticket{}, false, err
	}

	if err = insertOutboxEvent(ctx, tx, "ticket.created", ticketPayload(ticket, map[string]any{
		"waiting_count": position,
	})); err != nil {
		return models.Ticket{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

// nextQueueNumber scans the day's tickets for the service and returns the
// highest numeric suffix carrying the prefix, plus one. Runs under the
// per-(service, day) advisory lock taken by CreateTicket.
func nextQueueNumber(ctx context.Context, tx pgx.Tx, serviceID string, day time.Time, prefix string) (int, error) {
	// Prefix matching happens in Go: NumberSuffix rejects other prefixes,
	// so a prefix containing LIKE metacharacters cannot skew the scan.
	rows, err := tx.Query(ctx, `
		SELECT queue_number FROM tickets
		WHERE service_id = $1 AND queue_day = $2
	`, serviceID, day)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	max := 0
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return 0, err
		}
		if suffix, ok := store.NumberSuffix(number, prefix); ok && suffix > max {
			max = suffix
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, "call", input.RequestID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		if empty {
			return models.Ticket{}, false, store.ErrNoTicket
		}
		return existing, false, nil
	}

	// Locking the counter row serializes competing calls through the same
	// counter; competing calls through different counters race only on the
	// ticket claim below, where SKIP LOCKED hands each a distinct row.
	counter, err := getCounterTx(ctx, tx, input.CounterID, true)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if input.ServiceID != "" && counter.ServiceID != input.ServiceID {
		return models.Ticket{}, false, store.ErrCounterMismatch
	}
	if counter.Status == models.CounterClosed {
		return models.Ticket{}, false, store.ErrCounterClosed
	}
	if counter.CurrentServing != nil {
		return models.Ticket{}, false, store.ErrCounterBusy
	}

	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}

	row := tx.QueryRow(ctx, `
		WITH next_ticket AS (
			SELECT ticket_id FROM tickets
			WHERE service_id = $1 AND status = 'waiting'
			ORDER BY queue_position ASC, requested_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE tickets
		SET status = 'called', counter_id = $2, called_at = $3
		FROM next_ticket
		WHERE tickets.ticket_id = next_ticket.ticket_id
		RETURNING tickets.ticket_id, tickets.user_id, tickets.service_id, tickets.queue_number,
			tickets.queue_position, tickets.status, tickets.counter_id, tickets.estimated_wait_minutes,
			tickets.requested_at, tickets.called_at, tickets.serving_at, tickets.completed_at, tickets.cancelled_at
	`, counter.ServiceID, input.CounterID, calledAt)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err = insertActionRequest(ctx, tx, "call", input.RequestID, ""); err != nil {
				return models.Ticket{}, false, err
			}
			if err = tx.Commit(ctx); err != nil {
				return models.Ticket{}, false, err
			}
			return models.Ticket{}, false, store.ErrNoTicket
		}
		return models.Ticket{}, false, err
	}
	ticket.RequestID = input.RequestID

	// The empty-slot guard re-checks under the row lock; a zero row count
	// here means another call won the counter, so the ticket claim above
	// rolls back with the transaction.
	tag, err := tx.Exec(ctx, `
		UPDATE counters
		SET status = 'busy', current_serving = $1
		WHERE counter_id = $2 AND current_serving IS NULL
	`, ticket.TicketID, input.CounterID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if tag.RowsAffected() == 0 {
		err = store.ErrCounterBusy
		return models.Ticket{}, false, err
	}

	if err = insertActionRequest(ctx, tx, "call", input.RequestID, ticket.TicketID); err != nil {
		return models.Ticket{}, false, err
	}
	if err = insertActionLog(ctx, tx, ticket, models.ActionCalled, map[string]any{
		"counter_id": input.CounterID,
	}); err != nil {
		return models.Ticket{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, "ticket.called", ticketPayload(ticket, nil)); err != nil {
		return models.Ticket{}, false, err
	}
	if err = insertCounterEvent(ctx, tx, counter.CounterID, counter.ServiceID, models.CounterBusy, &ticket.TicketID); err != nil {
		return models.Ticket{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+` FROM tickets WHERE ticket_id = $1
	`, ticketID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	return ticket, nil
}

// ListWaiting returns the service's waiting tickets in claim order:
// queue_position first (admission order even under clock skew),
// requested_at as the tie break.
func (s *Store) ListWaiting(ctx context.Context, serviceID string) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE service_id = $1 AND status = 'waiting'
		ORDER BY queue_position ASC, requested_at ASC
	`, serviceID)
	if err != nil {
		return nil, err
	}
	return collectTickets(rows)
}

func findTicketByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.Ticket, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+ticketColumns+` FROM tickets WHERE request_id = $1
	`, requestID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	ticket.RequestID = requestID
	return ticket, true, nil
}
