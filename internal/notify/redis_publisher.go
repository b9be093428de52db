package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher fans events out over redis pub/sub channels named
// "<prefix>.<event type>". Dashboard sessions subscribe with PSUBSCRIBE.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) Publish(ctx context.Context, eventType string, payload any) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal event", "type", eventType, "err", err)
		return
	}

	// Detach from the request context so a client disconnect after commit
	// cannot cancel the broadcast.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()

	channel := p.prefix + "." + eventType
	if err := p.client.Publish(pubCtx, channel, data).Err(); err != nil {
		slog.Error("failed to publish event", "channel", channel, "err", err)
	}
}

var _ Publisher = (*RedisPublisher)(nil)
