package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentorchat/backend/pkg/cache"
	"mentorchat/backend/pkg/config"
)

func TestResolve(t *testing.T) {
	l, ok := Resolve("삼성전자")
	require.True(t, ok)
	assert.Equal(t, "005930", l.Ticker)
	assert.Equal(t, RegionKR, l.Region)

	l, ok = Resolve("005930")
	require.True(t, ok)
	assert.Equal(t, "삼성전자", l.Name)

	l, ok = Resolve("123456")
	require.True(t, ok)
	assert.Equal(t, "123456", l.Ticker)

	_, ok = Resolve("없는회사")
	assert.False(t, ok)
}

func TestHTTPClientLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quotes/005930":
			assert.Equal(t, "KR", r.URL.Query().Get("region"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ticker":"005930","price":71500,"metrics":{"PER":12.3,"PBR":1.1}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := config.Load()
	cfg.Market.BaseURL = srv.URL
	cfg.Market.Timeout = time.Second
	client := NewHTTPClient(cfg, nil)

	q, err := client.Lookup(context.Background(), "삼성전자", "")
	require.NoError(t, err)
	assert.Equal(t, 71500.0, q.Price)
	assert.Equal(t, "KRW", q.Currency)
	v, ok := q.Metric("PER")
	assert.True(t, ok)
	assert.Equal(t, 12.3, v)

	_, err = client.Lookup(context.Background(), "애플", "US")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = client.Lookup(context.Background(), "unknown", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

type countingService struct {
	calls atomic.Int32
	gate  chan struct{}
}

func (c *countingService) Lookup(ctx context.Context, symbol, region string) (*Quote, error) {
	c.calls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	return &Quote{Symbol: symbol, Region: region, Price: 100}, nil
}

func TestCachedServiceCollapsesConcurrentLookups(t *testing.T) {
	upstream := &countingService{gate: make(chan struct{})}
	svc := NewCachedService(upstream, nil, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q, err := svc.Lookup(context.Background(), "애플", "US")
			assert.NoError(t, err)
			assert.Equal(t, 100.0, q.Price)
		}()
	}

	// let the goroutines pile up on the in-flight call
	time.Sleep(20 * time.Millisecond)
	close(upstream.gate)
	wg.Wait()

	assert.Less(t, upstream.calls.Load(), int32(8))
}

func TestCachedServiceUsesMemoryCache(t *testing.T) {
	store := cache.New(cache.Options{})
	defer store.Close()

	upstream := &countingService{}
	svc := NewCachedService(upstream, NewMemoryCache(store), time.Minute)

	for i := 0; i < 3; i++ {
		_, err := svc.Lookup(context.Background(), "테슬라", "US")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), upstream.calls.Load())
}

func TestStaticLookup(t *testing.T) {
	s := NewStatic()
	s.Put(&Quote{Symbol: "삼성전자", Name: "삼성전자", Price: 70000})

	q, err := s.Lookup(context.Background(), "삼성전자", "")
	require.NoError(t, err)
	assert.Equal(t, 70000.0, q.Price)

	_, err = s.Lookup(context.Background(), "카카오", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFormatMetric(t *testing.T) {
	assert.Equal(t, "71,500원", FormatMetric("CUR", 71500, "KRW"))
	assert.Equal(t, "$189.25", FormatMetric("CUR", 189.25, "USD"))
	assert.Equal(t, "12.3배", FormatMetric("PER", 12.3, "KRW"))
	assert.Equal(t, "2.15%", FormatMetric("DIV_YIELD", 2.149, "KRW"))
	assert.Equal(t, "427조원", FormatMetric("MKT_CAP", 427e12, "KRW"))
	assert.Equal(t, "$2.9T", FormatMetric("MKT_CAP", 2.9e12, "USD"))
	assert.Equal(t, "배당수익률", MetricLabel("DIV_YIELD"))
	assert.Equal(t, "FOO", MetricLabel("FOO"))
}
