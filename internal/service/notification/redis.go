package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel leave events are published on.
const DefaultChannel = "hris:leave:events"

// RedisPublisher publishes events as JSON on a Redis pub/sub channel.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Channel() string { return p.channel }

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, event leave.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode leave event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish leave event: %w", err)
	}
	return nil
}
