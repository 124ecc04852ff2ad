package chatws

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultRelayChannel = "coachcare:chat-events"

// Relay carries encoded hub messages between server instances.
type Relay interface {
	Publish(ctx context.Context, payload []byte) error
	// Subscribe blocks, calling handle for every payload, until ctx ends.
	Subscribe(ctx context.Context, handle func([]byte)) error
}

type RedisRelay struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisRelay(ctx context.Context, redisURL string, channel string, logger *zap.Logger) (*RedisRelay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if channel == "" {
		channel = DefaultRelayChannel
	}
	logger.Info("chat relay connected", zap.String("addr", opts.Addr), zap.String("channel", channel))

	return &RedisRelay{client: client, channel: channel, logger: logger}, nil
}

func (r *RedisRelay) Publish(ctx context.Context, payload []byte) error {
	return r.client.Publish(ctx, r.channel, payload).Err()
}

func (r *RedisRelay) Subscribe(ctx context.Context, handle func([]byte)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			handle([]byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}
