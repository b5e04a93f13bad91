package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"qline/internal/models"
	"qline/internal/store"
)

func ticketPayload(ticket models.Ticket, extra map[string]any) map[string]any {
	payload := map[string]any{
		"ticket_id":      ticket.TicketID,
		"queue_number":   ticket.QueueNumber,
		"queue_position": ticket.QueuePosition,
		"status":         ticket.Status,
		"user_id":        ticket.UserID,
		"service_id":     ticket.ServiceID,
		"counter_id":     ticket.CounterID,
		"requested_at":   ticket.RequestedAt,
		"called_at":      ticket.CalledAt,
		"serving_at":     ticket.ServingAt,
		"completed_at":   ticket.CompletedAt,
		"cancelled_at":   ticket.CancelledAt,
	}
	for key, value := range extra {
		payload[key] = value
	}
	return payload
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, payload map[string]any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), eventType, payloadJSON, time.Now().UTC())
	return err
}

func insertCounterEvent(ctx context.Context, tx pgx.Tx, counterID, serviceID, status string, servingTicketID *string) error {
	return insertOutboxEvent(ctx, tx, "counter.status", map[string]any{
		"counter_id":             counterID,
		"service_id":             serviceID,
		"status":                 status,
		"current_serving_ticket": servingTicketID,
	})
}

func insertActionLog(ctx context.Context, tx pgx.Tx, ticket models.Ticket, action string, metadata map[string]any) error {
	var metadataJSON any
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		metadataJSON = data
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO ticket_actions (id, ticket_id, service_id, counter_id, action, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.NewString(), ticket.TicketID, ticket.ServiceID, ticket.CounterID, action, metadataJSON, time.Now().UTC())
	return err
}

func (s *Store) ListTicketActions(ctx context.Context, ticketID string) ([]models.ActionLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, ticket_id, service_id, counter_id, action, metadata, created_at
		FROM ticket_actions
		WHERE ticket_id = $1
		ORDER BY created_at ASC
	`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []models.ActionLog
	for rows.Next() {
		var entry models.ActionLog
		var counterIDNull sql.NullString
		var metadataRaw []byte
		if err := rows.Scan(&entry.ID, &entry.TicketID, &entry.ServiceID, &counterIDNull,
			&entry.Action, &metadataRaw, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CounterID = nullStringPtr(counterIDNull)
		if len(metadataRaw) > 0 {
			if err := json.Unmarshal(metadataRaw, &entry.Metadata); err != nil {
				return nil, err
			}
		}
		actions = append(actions, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return actions, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, after store.RelayOffset, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	afterTime := after.LastEventTime
	if afterTime.IsZero() {
		afterTime = time.Unix(0, 0).UTC()
	}
	afterID := after.LastEventID
	if afterID == "" {
		afterID = "00000000-0000-0000-0000-000000000000"
	}

	rows, err := s.pool.Query(ctx, `
		SELECT event_id, type, payload, created_at
		FROM outbox_events
		WHERE (created_at, event_id) > ($1, $2)
		ORDER BY created_at ASC, event_id ASC
		LIMIT $3
	`, afterTime, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
