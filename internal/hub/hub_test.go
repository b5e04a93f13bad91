package hub

import (
	"context"
	"encoding/json"
	"testing"
)

func TestPublishReachesSubscribers(t *testing.T) {
	h := New()
	subscribed := h.Register("a", 4)
	other := h.Register("b", 4)
	h.Subscribe(subscribed, []string{"service:svc-1"})
	h.Subscribe(other, []string{"service:svc-2"})

	payload := []byte(`{"type":"ticket.created"}`)
	if err := h.Publish(context.Background(), "service:svc-1", payload); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-subscribed.Send:
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if env.Topic != "service:svc-1" {
			t.Fatalf("expected topic service:svc-1, got %s", env.Topic)
		}
		if string(env.Payload) != string(payload) {
			t.Fatalf("payload mismatch: %s", env.Payload)
		}
	default:
		t.Fatal("expected message for subscriber")
	}

	select {
	case msg := <-other.Send:
		t.Fatalf("unexpected message for other client: %s", msg)
	default:
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	h := New()
	client := h.Register("a", 1)
	h.Subscribe(client, []string{"counter:c-1"})

	if err := h.Publish(context.Background(), "counter:c-1", []byte(`1`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := h.Publish(context.Background(), "counter:c-1", []byte(`2`)); err != nil {
		t.Fatalf("publish with full buffer: %v", err)
	}
	if len(client.Send) != 1 {
		t.Fatalf("expected 1 buffered message, got %d", len(client.Send))
	}
}

func TestUnsubscribe(t *testing.T) {
	h := New()
	client := h.Register("a", 4)
	h.Subscribe(client, []string{"service:s", "counter:c"})

	h.Unsubscribe(client, []string{"service:s"})
	_ = h.Publish(context.Background(), "service:s", []byte(`x`))
	if len(client.Send) != 0 {
		t.Fatal("expected no message after unsubscribe")
	}

	_ = h.Publish(context.Background(), "counter:c", []byte(`x`))
	if len(client.Send) != 1 {
		t.Fatal("expected message for remaining topic")
	}

	h.Unsubscribe(client, nil)
	_ = h.Publish(context.Background(), "counter:c", []byte(`x`))
	if len(client.Send) != 1 {
		t.Fatal("expected no message after clearing all topics")
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	h := New()
	client := h.Register("a", 1)
	h.Unregister(client)
	h.Unregister(client)

	if _, ok := <-client.Send; ok {
		t.Fatal("expected closed send channel")
	}
}

func TestParseSubscribe(t *testing.T) {
	msg, ok := ParseSubscribe([]byte(`{"action":"subscribe","topics":["service:s"]}`))
	if !ok || msg.Action != "subscribe" || len(msg.Topics) != 1 {
		t.Fatalf("unexpected parse result: %+v ok=%v", msg, ok)
	}

	if _, ok := ParseSubscribe([]byte(`{"action":"noop"}`)); ok {
		t.Fatal("expected unknown action to be rejected")
	}
	if _, ok := ParseSubscribe([]byte(`not json`)); ok {
		t.Fatal("expected invalid JSON to be rejected")
	}
}
