// Package relay drains the outbox and fans events out to subscribers.
// Events are written in the same transaction as the ticket mutation, so
// everything relayed here is already durably committed; fanout failures
// are logged and the event is retried on the next poll (at-least-once).
package relay

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"qline/internal/broadcast"
	"qline/internal/metrics"
	"qline/internal/store"
)

type Source interface {
	ListOutboxEvents(ctx context.Context, after store.RelayOffset, limit int) ([]store.OutboxEvent, error)
	GetRelayOffset(ctx context.Context) (store.RelayOffset, error)
	SetRelayOffset(ctx context.Context, offset store.RelayOffset) error
}

type Relay struct {
	source    Source
	publisher broadcast.Publisher
	interval  time.Duration
	batchSize int
	offset    store.RelayOffset
}

func New(source Source, publisher broadcast.Publisher, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		source:    source,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (r *Relay) Run(ctx context.Context) {
	offset, err := r.source.GetRelayOffset(ctx)
	if err != nil {
		log.Printf("relay offset load error: %v", err)
	}
	r.offset = offset

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Drain(ctx); err != nil {
				log.Printf("relay drain error: %v", err)
			}
		}
	}
}

// Drain fans out one batch and advances the stored offset past every event
// it attempted. An event whose fanout partially failed is not retried
// here; clients recover through the poll endpoint.
func (r *Relay) Drain(ctx context.Context) error {
	events, err := r.source.ListOutboxEvents(ctx, r.offset, r.batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	for _, event := range events {
		for _, topic := range TopicsFor(event) {
			// Fanout errors are already logged and counted by the
			// publisher; the transition this event came from is
			// long committed.
			_ = r.publisher.Publish(ctx, topic, envelope(event))
		}
		r.offset = store.RelayOffset{LastEventTime: event.CreatedAt, LastEventID: event.EventID}
	}
	metrics.SetRelayLag(time.Since(events[len(events)-1].CreatedAt).Seconds())

	if err := r.source.SetRelayOffset(ctx, r.offset); err != nil {
		return err
	}
	return nil
}

func envelope(event store.OutboxEvent) []byte {
	data, _ := json.Marshal(map[string]any{
		"event_id":   event.EventID,
		"type":       event.Type,
		"payload":    event.Payload,
		"created_at": event.CreatedAt,
	})
	return data
}

type eventMeta struct {
	ServiceID string `json:"service_id"`
	CounterID string `json:"counter_id"`
	UserID    string `json:"user_id"`
}

// topicRules names the scopes each event class reaches: queue-depth
// updates go to the service room, personal notifications to the owner's
// channel, counter updates to the counter room and its service room.
var topicRules = map[string]struct {
	service bool
	counter bool
	user    bool
}{
	"ticket.created":   {service: true},
	"ticket.called":    {service: true, counter: true, user: true},
	"ticket.serving":   {service: true, counter: true},
	"ticket.completed": {service: true, counter: true, user: true},
	"ticket.cancelled": {service: true, counter: true},
	"ticket.recalled":  {counter: true, user: true},
	"counter.status":   {service: true, counter: true},
}

func TopicsFor(event store.OutboxEvent) []string {
	rule, ok := topicRules[event.Type]
	if !ok {
		return nil
	}

	var meta eventMeta
	if err := json.Unmarshal(event.Payload, &meta); err != nil {
		log.Printf("relay payload parse error event=%s: %v", event.EventID, err)
		return nil
	}

	var topics []string
	if rule.service && meta.ServiceID != "" {
		topics = append(topics, broadcast.ServiceTopic(meta.ServiceID))
	}
	if rule.counter && meta.CounterID != "" {
		topics = append(topics, broadcast.CounterTopic(meta.CounterID))
	}
	if rule.user && meta.UserID != "" {
		topics = append(topics, broadcast.UserTopic(meta.UserID))
	}
	return topics
}
