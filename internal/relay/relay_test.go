package relay

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"qline/internal/store"
)

type fakeSource struct {
	events []store.OutboxEvent
	offset store.RelayOffset
	saved  []store.RelayOffset
}

func (f *fakeSource) ListOutboxEvents(_ context.Context, after store.RelayOffset, limit int) ([]store.OutboxEvent, error) {
	var out []store.OutboxEvent
	for _, event := range f.events {
		if event.CreatedAt.After(after.LastEventTime) ||
			(event.CreatedAt.Equal(after.LastEventTime) && event.EventID > after.LastEventID) {
			out = append(out, event)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSource) GetRelayOffset(context.Context) (store.RelayOffset, error) {
	return f.offset, nil
}

func (f *fakeSource) SetRelayOffset(_ context.Context, offset store.RelayOffset) error {
	f.offset = offset
	f.saved = append(f.saved, offset)
	return nil
}

type recordingPublisher struct {
	topics []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ []byte) error {
	p.topics = append(p.topics, topic)
	return nil
}

func event(id, eventType string, createdAt time.Time, payload map[string]any) store.OutboxEvent {
	data, _ := json.Marshal(payload)
	return store.OutboxEvent{EventID: id, Type: eventType, Payload: data, CreatedAt: createdAt}
}

func TestDrainFansOutAndAdvancesOffset(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{
		events: []store.OutboxEvent{
			event("e1", "ticket.created", base, map[string]any{"service_id": "s1"}),
			event("e2", "ticket.called", base.Add(time.Second), map[string]any{
				"service_id": "s1", "counter_id": "c1", "user_id": "u1",
			}),
		},
	}
	pub := &recordingPublisher{}
	r := New(source, pub, time.Second, 100)

	if err := r.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	want := []string{"service:s1", "service:s1", "counter:c1", "user:u1"}
	if len(pub.topics) != len(want) {
		t.Fatalf("expected %d publishes, got %v", len(want), pub.topics)
	}
	sort.Strings(pub.topics)
	sort.Strings(want)
	for i := range want {
		if pub.topics[i] != want[i] {
			t.Fatalf("topic mismatch: got %v", pub.topics)
		}
	}

	if source.offset.LastEventID != "e2" {
		t.Fatalf("expected offset at e2, got %+v", source.offset)
	}

	pub.topics = nil
	if err := r.Drain(context.Background()); err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if len(pub.topics) != 0 {
		t.Fatalf("expected no republish, got %v", pub.topics)
	}
}

func TestDrainHonorsBatchSize(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{
		events: []store.OutboxEvent{
			event("e1", "ticket.created", base, map[string]any{"service_id": "s1"}),
			event("e2", "ticket.created", base.Add(time.Second), map[string]any{"service_id": "s1"}),
			event("e3", "ticket.created", base.Add(2*time.Second), map[string]any{"service_id": "s1"}),
		},
	}
	pub := &recordingPublisher{}
	r := New(source, pub, time.Second, 2)

	if err := r.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(pub.topics) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(pub.topics))
	}

	if err := r.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(pub.topics) != 3 {
		t.Fatalf("expected 3 publishes total, got %d", len(pub.topics))
	}
}

func TestTopicsFor(t *testing.T) {
	now := time.Now()
	cases := []struct {
		eventType string
		payload   map[string]any
		want      []string
	}{
		{"ticket.created", map[string]any{"service_id": "s"}, []string{"service:s"}},
		{"ticket.called", map[string]any{"service_id": "s", "counter_id": "c", "user_id": "u"}, []string{"service:s", "counter:c", "user:u"}},
		{"ticket.serving", map[string]any{"service_id": "s", "counter_id": "c", "user_id": "u"}, []string{"service:s", "counter:c"}},
		{"ticket.cancelled", map[string]any{"service_id": "s", "user_id": "u"}, []string{"service:s"}},
		{"ticket.recalled", map[string]any{"service_id": "s", "counter_id": "c", "user_id": "u"}, []string{"counter:c", "user:u"}},
		{"counter.status", map[string]any{"service_id": "s", "counter_id": "c"}, []string{"service:s", "counter:c"}},
		{"unknown.event", map[string]any{"service_id": "s"}, nil},
	}

	for _, tc := range cases {
		got := TopicsFor(event("e", tc.eventType, now, tc.payload))
		if len(got) != len(tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.eventType, tc.want, got)
		}
		sort.Strings(got)
		want := append([]string(nil), tc.want...)
		sort.Strings(want)
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s: expected %v, got %v", tc.eventType, tc.want, got)
			}
		}
	}
}
