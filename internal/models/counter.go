package models

// A counter is a staffed service point bound to exactly one service.
// CurrentServing holds at most one ticket id; assignment and release go
// through the store's conditional updates, never direct writes.
type Counter struct {
	CounterID      string  `json:"counter_id"`
	ServiceID      string  `json:"service_id"`
	CounterNumber  int     `json:"counter_number"`
	Name           string  `json:"name"`
	Status         string  `json:"status"`
	CurrentServing *string `json:"current_serving_ticket,omitempty"`
}

const (
	CounterOpen   = "open"
	CounterBusy   = "busy"
	CounterClosed = "closed"
	CounterBreak  = "break"
)

func ValidCounterStatus(status string) bool {
	switch status {
	case CounterOpen, CounterBusy, CounterClosed, CounterBreak:
		return true
	}
	return false
}
