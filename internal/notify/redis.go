package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"idsguard/internal/config"
	"idsguard/internal/model"
)

type redisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// Redis publishes each alert as a JSON message on a pub/sub channel.
type Redis struct {
	client  redisClient
	channel string
}

func NewRedis(cfg config.RedisConfig) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Redis{client: redis.NewClient(opts), channel: cfg.Channel}, nil
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Publish(ctx context.Context, alerts []model.Alert) error {
	for _, a := range alerts {
		data, err := encode(a)
		if err != nil {
			return err
		}
		if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
			return fmt.Errorf("publish alert %s: %w", a.ID, err)
		}
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
