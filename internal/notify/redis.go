package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	redis "github.com/redis/go-redis/v9"

	"github.com/splax/statuspage/internal/ws"
)

// RedisPublisher publishes envelopes on a Redis channel per organization so
// every API instance can relay them to its own subscribers.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

// NewRedisPublisher constructs a RedisPublisher.
func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix}
}

// Name implements Publisher.
func (p *RedisPublisher) Name() string { return "redis" }

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.prefix+env.Channel, data).Err()
}

// RedisRelay forwards messages from Redis into the local hub.
type RedisRelay struct {
	client *redis.Client
	prefix string
	hub    *ws.Hub
	logger *slog.Logger
}

// NewRedisRelay constructs a RedisRelay.
func NewRedisRelay(client *redis.Client, prefix string, hub *ws.Hub, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{client: client, prefix: prefix, hub: hub, logger: logger.With("component", "redis_relay")}
}

// Run subscribes to every organization channel until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) {
	sub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer sub.Close()
	r.logger.Info("redis relay started", "pattern", r.prefix+"*")
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("redis relay stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				r.logger.Warn("redis relay subscription closed")
				return
			}
			channel := strings.TrimPrefix(msg.Channel, r.prefix)
			if err := r.hub.Broadcast(channel, []byte(msg.Payload)); err != nil {
				r.logger.Warn("relay broadcast dropped", "channel", channel, "error", err)
			}
		}
	}
}
