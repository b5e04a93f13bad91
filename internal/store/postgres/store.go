package postgres

import (
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"qline/internal/models"
)

type Store struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

type Options struct {
	// Location fixes the calendar day used for queue-number scoping.
	// Counters may keep working prior-day tickets across midnight; only
	// numbering restarts.
	Location *time.Location
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	loc := options.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Store{pool: pool, loc: loc}
}

// queueDay maps an instant to the service-local calendar day that scopes
// queue numbers.
func (s *Store) queueDay(at time.Time) time.Time {
	local := at.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

const ticketColumns = `ticket_id, user_id, service_id, queue_number, queue_position, status,
	counter_id, estimated_wait_minutes, requested_at, called_at, serving_at, completed_at, cancelled_at`

type ticketRow interface {
	Scan(dest ...any) error
}

func scanTicket(row ticketRow) (models.Ticket, error) {
	var ticket models.Ticket
	var counterIDNull sql.NullString
	var calledAtNull sql.NullTime
	var servingAtNull sql.NullTime
	var completedAtNull sql.NullTime
	var cancelledAtNull sql.NullTime
	err := row.Scan(
		&ticket.TicketID, &ticket.UserID, &ticket.ServiceID, &ticket.QueueNumber,
		&ticket.QueuePosition, &ticket.Status, &counterIDNull, &ticket.EstimatedWait,
		&ticket.RequestedAt, &calledAtNull, &servingAtNull, &completedAtNull, &cancelledAtNull,
	)
	if err != nil {
		return models.Ticket{}, err
	}
	ticket.CounterID = nullStringPtr(counterIDNull)
	ticket.CalledAt = nullTimePtr(calledAtNull)
	ticket.ServingAt = nullTimePtr(servingAtNull)
	ticket.CompletedAt = nullTimePtr(completedAtNull)
	ticket.CancelledAt = nullTimePtr(cancelledAtNull)
	return ticket, nil
}

func collectTickets(rows pgx.Rows) ([]models.Ticket, error) {
	defer rows.Close()
	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}
