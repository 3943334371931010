package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(s Settings) (*Breaker, *clock) {
	clk := &clock{t: time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)}
	b := New(s, nil)
	b.now = clk.now
	return b, clk
}

var errUpstream = errors.New("upstream down")

func fail(context.Context) error { return errUpstream }
func ok(context.Context) error   { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(Settings{Name: "draft", Failures: 2, Cooldown: time.Minute})
	ctx := context.Background()

	assert.ErrorIs(t, b.Do(ctx, fail), errUpstream)
	assert.NoError(t, b.Do(ctx, ok))
	assert.ErrorIs(t, b.Do(ctx, fail), errUpstream)
	assert.Equal(t, StateClosed, b.State(), "a success resets the streak")

	assert.ErrorIs(t, b.Do(ctx, fail), errUpstream)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	st := b.Stats()
	assert.Equal(t, uint64(4), st.Requests)
	assert.Equal(t, uint64(3), st.Failures)
	assert.Equal(t, uint64(1), st.Rejected)
	assert.Equal(t, uint64(1), st.Opened)
	assert.Equal(t, "circuit open, 3 of 4 requests failed, 1 rejected", st.String())
}

func TestBreakerTrialAfterCooldown(t *testing.T) {
	b, clk := newTestBreaker(Settings{Name: "draft", Failures: 1, Cooldown: time.Minute})
	ctx := context.Background()

	require.Error(t, b.Do(ctx, fail))
	clk.advance(time.Minute)
	assert.Equal(t, StateHalfOpen, b.State())

	// failed trial reopens for a full cooldown
	assert.ErrorIs(t, b.Do(ctx, fail), errUpstream)
	assert.Equal(t, StateOpen, b.State())
	clk.advance(30 * time.Second)
	assert.ErrorIs(t, b.Do(ctx, ok), ErrCircuitOpen)

	clk.advance(30 * time.Second)
	assert.NoError(t, b.Do(ctx, ok))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerAdmitsOneTrialAtATime(t *testing.T) {
	b, clk := newTestBreaker(Settings{Name: "draft", Failures: 1, Cooldown: time.Second})
	ctx := context.Background()

	require.Error(t, b.Do(ctx, fail))
	clk.advance(time.Second)

	inTrial := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- b.Do(ctx, func(context.Context) error {
			close(inTrial)
			<-release
			return nil
		})
	}()

	<-inTrial
	assert.ErrorIs(t, b.Do(ctx, ok), ErrCircuitOpen)
	close(release)
	assert.NoError(t, <-done)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerIgnoresUncountedErrors(t *testing.T) {
	errMalformed := errors.New("malformed")
	b, _ := newTestBreaker(Settings{
		Name:     "validate",
		Failures: 1,
		Counts:   func(err error) bool { return !errors.Is(err, errMalformed) },
	})
	ctx := context.Background()

	assert.ErrorIs(t, b.Do(ctx, func(context.Context) error { return errMalformed }), errMalformed)
	assert.Equal(t, StateClosed, b.State())

	plain, _ := newTestBreaker(Settings{Name: "draft", Failures: 1})
	assert.ErrorIs(t, plain.Do(ctx, func(context.Context) error { return context.Canceled }), context.Canceled)
	assert.Equal(t, StateClosed, plain.State())
}

func TestBreakerDefaults(t *testing.T) {
	b := New(Settings{Name: "draft"}, nil)
	assert.Equal(t, defaultFailures, b.settings.Failures)
	assert.Equal(t, defaultCooldown, b.settings.Cooldown)
	assert.Equal(t, StateClosed, b.Stats().State)
}
