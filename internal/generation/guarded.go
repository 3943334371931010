package generation

import (
	"context"
	"errors"

	"mentorchat/backend/pkg/config"
	"mentorchat/backend/pkg/logger"
	"mentorchat/backend/pkg/resilience"
)

// Guarded routes calls through a circuit breaker. Malformed responses do not
// trip the breaker; the provider answered.
type Guarded struct {
	next    Generator
	breaker *resilience.Breaker
	name    string
}

// NewGuarded wraps next with breaker
func NewGuarded(name string, next Generator, breaker *resilience.Breaker) *Guarded {
	return &Guarded{next: next, breaker: breaker, name: name}
}

// Breaker exposes the breaker for health reporting
func (g *Guarded) Breaker() *resilience.Breaker { return g.breaker }

// Generate implements Generator
func (g *Guarded) Generate(ctx context.Context, req Request) (string, error) {
	var out string
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		text, err := g.next.Generate(ctx, req)
		out = text
		return err
	})
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "", &Error{Kind: KindUnavailable, Provider: g.name, Err: err}
	case err != nil:
		var ge *Error
		if !errors.As(err, &ge) {
			return "", wrap(g.name, 0, err)
		}
		return "", err
	}
	return out, nil
}

// tripsBreaker reports whether err reflects on the provider's availability.
func tripsBreaker(err error) bool {
	return KindOf(err) != KindMalformed && !errors.Is(err, context.Canceled)
}

// NewFromConfig builds the configured provider for the given model, wrapped
// in a breaker.
func NewFromConfig(cfg *config.Config, model string, log *logger.Logger) *Guarded {
	var next Generator
	name := cfg.Generation.Provider
	switch name {
	case "anthropic":
		next = NewAnthropicGenerator(cfg, model)
	default:
		name = "openai"
		next = NewOpenAIGenerator(cfg, model)
	}
	breaker := resilience.New(resilience.Settings{
		Name:     "generation-" + name + "-" + model,
		Failures: cfg.Generation.BreakerFailures,
		Cooldown: cfg.Generation.BreakerCooldown,
		Counts:   tripsBreaker,
	}, log)
	return NewGuarded(name, next, breaker)
}
