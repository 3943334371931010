package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mentorchat/backend/pkg/resilience"
)

func TestGuardedOpensAfterFailures(t *testing.T) {
	calls := 0
	failing := GeneratorFunc(func(context.Context, Request) (string, error) {
		calls++
		return "", errors.New("connection refused")
	})
	breaker := resilience.New(resilience.Settings{Name: "test", Failures: 2, Cooldown: time.Hour, Counts: tripsBreaker}, nil)
	g := NewGuarded("fake", failing, breaker)

	for i := 0; i < 2; i++ {
		_, err := g.Generate(context.Background(), Request{})
		assert.Equal(t, KindUnavailable, KindOf(err))
	}

	_, err := g.Generate(context.Background(), Request{})
	assert.Equal(t, KindUnavailable, KindOf(err))
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, calls)
}

func TestGuardedMalformedDoesNotTrip(t *testing.T) {
	malformed := GeneratorFunc(func(context.Context, Request) (string, error) {
		return "", &Error{Kind: KindMalformed, Provider: "fake"}
	})
	breaker := resilience.New(resilience.Settings{Name: "test", Failures: 1, Cooldown: time.Hour, Counts: tripsBreaker}, nil)
	g := NewGuarded("fake", malformed, breaker)

	for i := 0; i < 3; i++ {
		_, err := g.Generate(context.Background(), Request{})
		assert.Equal(t, KindMalformed, KindOf(err))
	}
	assert.Equal(t, resilience.StateClosed, breaker.State())
}

func TestWrapClassifiesStatus(t *testing.T) {
	assert.Equal(t, KindRateLimit, wrap("p", 429, errors.New("x")).Kind)
	assert.Equal(t, KindTimeout, wrap("p", 0, context.DeadlineExceeded).Kind)
	assert.Equal(t, KindUnavailable, wrap("p", 500, errors.New("x")).Kind)
}
