// Package hub fans events out to connected realtime clients. Clients
// subscribe to topic sets; sends are non-blocking and drop when a client
// falls behind, since every event is also reachable through the outbox
// poll endpoint.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

type Client struct {
	ID     string
	Send   chan []byte
	topics map[string]struct{}
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

type SubscribeMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

type Envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(id string, buffer int) *Client {
	client := &Client{
		ID:     id,
		Send:   make(chan []byte, buffer),
		topics: make(map[string]struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[id] = client
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		client.topics[topic] = struct{}{}
	}
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(topics) == 0 {
		client.topics = make(map[string]struct{})
		return
	}
	for _, topic := range topics {
		delete(client.topics, topic)
	}
}

// Publish implements broadcast.Publisher.
func (h *Hub) Publish(_ context.Context, topic string, payload []byte) error {
	data, err := json.Marshal(Envelope{Topic: topic, Payload: payload})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if _, ok := client.topics[topic]; !ok {
			continue
		}
		select {
		case client.Send <- data:
		default:
			log.Printf("drop message for client %s topic=%s", client.ID, topic)
		}
	}
	return nil
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
