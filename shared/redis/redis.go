package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"mentorchat/backend/pkg/config"
)

type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects using the Redis section of cfg
func NewRedisClient(cfg *config.Config) *RedisClient {
	addr := cfg.Redis.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return &RedisClient{client: client}
}

func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

// Ping is used by the health checker
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
