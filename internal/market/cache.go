package market

import (
	"context"
	"encoding/json"
	"time"

	"mentorchat/backend/pkg/cache"
	"mentorchat/backend/shared/redis"
)

// Cache stores quotes between lookups.
type Cache interface {
	Get(ctx context.Context, key string) (*Quote, bool)
	Set(ctx context.Context, key string, q *Quote, ttl time.Duration)
}

// MemoryCache keeps quotes in process.
type MemoryCache struct {
	store *cache.Cache
}

// NewMemoryCache wraps an in-memory cache
func NewMemoryCache(store *cache.Cache) *MemoryCache {
	return &MemoryCache{store: store}
}

func (m *MemoryCache) Get(_ context.Context, key string) (*Quote, bool) {
	v, ok := m.store.Get(key)
	if !ok {
		return nil, false
	}
	q, ok := v.(*Quote)
	return q, ok
}

func (m *MemoryCache) Set(_ context.Context, key string, q *Quote, ttl time.Duration) {
	m.store.SetWithExpiration(key, q, ttl)
}

// RedisCache shares quotes across instances.
type RedisCache struct {
	client *redis.RedisClient
	prefix string
}

// NewRedisCache stores quotes as JSON under "quote:" keys
func NewRedisCache(client *redis.RedisClient) *RedisCache {
	return &RedisCache{client: client, prefix: "quote:"}
}

func (r *RedisCache) Get(ctx context.Context, key string) (*Quote, bool) {
	raw, err := r.client.Get(ctx, r.prefix+key)
	if err != nil {
		return nil, false
	}
	var q Quote
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return nil, false
	}
	return &q, true
}

func (r *RedisCache) Set(ctx context.Context, key string, q *Quote, ttl time.Duration) {
	raw, err := json.Marshal(q)
	if err != nil {
		return
	}
	_ = r.client.Set(ctx, r.prefix+key, raw, ttl)
}
