package fanout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisRelay replica envelopes entre instâncias via Redis Pub/Sub.
type RedisRelay struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedisRelay(client *redis.Client, channel string, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, logger: logger}
}

func (r *RedisRelay) Publish(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return r.client.Publish(ctx, r.channel, b).Err()
}

func (r *RedisRelay) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	sub := r.client.Subscribe(ctx, r.channel)
	// espera a confirmação para não perder o que for publicado logo em seguida
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	out := make(chan Envelope, 64)
	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					r.logger.Warn("invalid fanout envelope on relay", zap.Error(err))
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
