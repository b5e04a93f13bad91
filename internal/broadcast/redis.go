package broadcast

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher pushes events onto Redis pub/sub channels so other
// processes (kiosk displays, notification senders) can subscribe without
// touching the database.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = "qline:"
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	return p.client.Publish(ctx, p.prefix+topic, payload).Err()
}
