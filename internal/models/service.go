package models

type Service struct {
	ServiceID      string `json:"service_id"`
	Name           string `json:"name"`
	QueuePrefix    string `json:"queue_prefix,omitempty"`
	ServiceMinutes int    `json:"estimated_service_minutes"`
	MaxQueueSize   int    `json:"max_queue_size,omitempty"`
	Active         bool   `json:"active"`
	HoursJSON      string `json:"hours_json,omitempty"`
}
