package models

import "time"

// ActionLog is an append-only audit record written on every ticket
// transition. The state machine writes it and never reads it back.
type ActionLog struct {
	ID        string         `json:"id"`
	TicketID  string         `json:"ticket_id"`
	ServiceID string         `json:"service_id"`
	CounterID *string        `json:"counter_id,omitempty"`
	Action    string         `json:"action"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

const (
	ActionCreated   = "created"
	ActionCalled    = "called"
	ActionStarted   = "started"
	ActionCompleted = "completed"
	ActionCancelled = "cancelled"
	ActionRecalled  = "recalled"
)
