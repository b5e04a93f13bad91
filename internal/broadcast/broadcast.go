// Package broadcast defines the fanout contract for queue events. Topics
// are service:{id}, counter:{id}, and user:{id}; delivery is at-least-once
// and best-effort. A failed publish is logged and counted, never allowed
// back onto the path of the transition that produced the event.
package broadcast

import (
	"context"
	"errors"
	"log"

	"qline/internal/metrics"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

func ServiceTopic(serviceID string) string { return "service:" + serviceID }
func CounterTopic(counterID string) string { return "counter:" + counterID }
func UserTopic(userID string) string       { return "user:" + userID }

// Fanout publishes to every sink, collecting failures instead of
// short-circuiting.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, topic string, payload []byte) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Publish(ctx, topic, payload); err != nil {
			metrics.BroadcastFailure()
			log.Printf("broadcast error topic=%s: %v", topic, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
