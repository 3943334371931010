package market

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// CachedService fronts a Service with a cache and collapses identical
// concurrent lookups into one upstream call.
type CachedService struct {
	upstream Service
	cache    Cache
	ttl      time.Duration
	group    singleflight.Group
}

// NewCachedService wraps upstream. A nil cache disables caching but keeps
// request collapsing.
func NewCachedService(upstream Service, cache Cache, ttl time.Duration) *CachedService {
	return &CachedService{upstream: upstream, cache: cache, ttl: ttl}
}

func cacheKey(symbol, region string) string {
	return strings.ToUpper(region) + ":" + symbol
}

// Lookup implements Service
func (s *CachedService) Lookup(ctx context.Context, symbol, region string) (*Quote, error) {
	key := cacheKey(symbol, region)
	if s.cache != nil {
		if q, ok := s.cache.Get(ctx, key); ok {
			return q, nil
		}
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		q, err := s.upstream.Lookup(ctx, symbol, region)
		if err != nil {
			return nil, err
		}
		if s.cache != nil && s.ttl > 0 {
			s.cache.Set(ctx, key, q, s.ttl)
		}
		return q, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Quote), nil
}
