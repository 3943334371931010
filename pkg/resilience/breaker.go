// Package resilience guards calls to flaky upstreams such as generation
// providers.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mentorchat/backend/pkg/logger"
)

// ErrCircuitOpen is returned while the breaker short-circuits calls
var ErrCircuitOpen = errors.New("circuit open")

// State is the position of a breaker
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Settings configure a Breaker. Zero values take the defaults below.
type Settings struct {
	Name string

	// consecutive counted failures that open the circuit
	Failures int
	// how long the circuit stays open before one trial call is let through
	Cooldown time.Duration

	// Counts decides whether an error says something about the upstream.
	// Nil counts every error except caller cancellation.
	Counts func(error) bool
}

const (
	defaultFailures = 5
	defaultCooldown = 30 * time.Second
)

// Stats is a point-in-time view of a breaker
type Stats struct {
	Name        string
	State       State
	Requests    uint64
	Failures    uint64
	Rejected    uint64
	Opened      uint64
	LastFailure time.Time
}

func (s Stats) String() string {
	return fmt.Sprintf("circuit %s, %d of %d requests failed, %d rejected", s.State, s.Failures, s.Requests, s.Rejected)
}

// Breaker opens after a run of failures and lets a single trial call through
// once the cooldown has passed. The trial decides whether it closes again.
type Breaker struct {
	settings Settings
	logger   *logger.Logger
	now      func() time.Time

	mu          sync.Mutex
	state       State
	streak      int
	openedAt    time.Time
	trialActive bool
	stats       Stats
}

// New creates a closed breaker.
func New(s Settings, log *logger.Logger) *Breaker {
	if s.Failures <= 0 {
		s.Failures = defaultFailures
	}
	if s.Cooldown <= 0 {
		s.Cooldown = defaultCooldown
	}
	if s.Counts == nil {
		s.Counts = countsByDefault
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Breaker{
		settings: s,
		logger:   log.WithComponent("breaker"),
		now:      time.Now,
		state:    StateClosed,
		stats:    Stats{Name: s.Name},
	}
}

func countsByDefault(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// Do runs fn unless the circuit is open. fn receives ctx unchanged; errors
// from fn are returned as is.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	trial, err := b.admit()
	if err != nil {
		return err
	}

	start := b.now()
	err = fn(ctx)
	b.settle(trial, err, b.now().Sub(start))
	return err
}

func (b *Breaker) admit() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.settings.Cooldown {
		b.setState(StateHalfOpen)
	}

	switch b.state {
	case StateOpen:
		b.stats.Rejected++
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if b.trialActive {
			b.stats.Rejected++
			return false, ErrCircuitOpen
		}
		b.trialActive = true
		trial = true
	}
	b.stats.Requests++
	return trial, nil
}

func (b *Breaker) settle(trial bool, err error, took time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if trial {
		b.trialActive = false
	}

	switch {
	case err == nil:
		b.streak = 0
		if trial {
			b.setState(StateClosed)
		}

	case !b.settings.Counts(err):
		// the upstream was not at fault; a trial that ends this way is retried
		// by the next caller

	default:
		b.stats.Failures++
		b.stats.LastFailure = b.now()
		b.streak++
		b.logger.Debug("upstream call failed", "name", b.settings.Name, "streak", b.streak, "took", took.String(), "error", err)
		if trial || b.streak >= b.settings.Failures {
			b.openedAt = b.now()
			b.setState(StateOpen)
		}
	}
}

// setState logs transitions. Caller holds b.mu.
func (b *Breaker) setState(s State) {
	if b.state == s {
		return
	}
	prev := b.state
	b.state = s
	switch s {
	case StateOpen:
		b.stats.Opened++
		b.logger.Warn("circuit opened", "name", b.settings.Name, "from", string(prev), "failures", b.streak, "cooldown", b.settings.Cooldown.String())
	case StateClosed:
		b.streak = 0
		b.logger.Info("circuit closed", "name", b.settings.Name)
	default:
		b.logger.Info("circuit half-open", "name", b.settings.Name)
	}
}

// State returns the current state. An open breaker whose cooldown has passed
// reports half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

func (b *Breaker) current() State {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.settings.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Stats returns a copy of the breaker's counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.stats
	st.State = b.current()
	return st
}
