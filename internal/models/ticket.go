package models

import "time"

type Ticket struct {
	TicketID      string     `json:"ticket_id"`
	UserID        string     `json:"user_id"`
	ServiceID     string     `json:"service_id"`
	QueueNumber   string     `json:"queue_number"`
	QueuePosition int        `json:"queue_position"`
	Status        string     `json:"status"`
	CounterID     *string    `json:"counter_id,omitempty"`
	EstimatedWait int        `json:"estimated_wait_minutes"`
	RequestedAt   time.Time  `json:"requested_at"`
	CalledAt      *time.Time `json:"called_at,omitempty"`
	ServingAt     *time.Time `json:"started_serving_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	RequestID     string     `json:"request_id,omitempty"`
}

const (
	StatusWaiting   = "waiting"
	StatusCalled    = "called"
	StatusServing   = "serving"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Terminal reports whether a status permits no further transitions.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}
