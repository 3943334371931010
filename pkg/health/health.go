package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"mentorchat/backend/pkg/logger"
	"mentorchat/backend/pkg/resilience"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates a component is working correctly
	StatusUp Status = "up"
	// StatusDown indicates a component is not working
	StatusDown Status = "down"
	// StatusDegraded indicates a component is working but with reduced functionality
	StatusDegraded Status = "degraded"
)

// Component represents a system component that can be health-checked
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	Critical    bool      `json:"critical,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check represents a health check function
type Check func(ctx context.Context) (Status, string, error)

type registered struct {
	check    Check
	critical bool
}

// Checker manages health checks for the system
type Checker struct {
	checks      map[string]registered
	components  map[string]*Component
	checkPeriod time.Duration
	timeout     time.Duration
	version     string
	mutex       sync.RWMutex
	log         *logger.Logger
}

// NewChecker creates a new health checker
func NewChecker(log *logger.Logger, checkPeriod time.Duration, version string) *Checker {
	if log == nil {
		log = logger.Discard()
	}
	if checkPeriod <= 0 {
		checkPeriod = 30 * time.Second
	}
	checker := &Checker{
		checks:      make(map[string]registered),
		components:  make(map[string]*Component),
		checkPeriod: checkPeriod,
		timeout:     5 * time.Second,
		version:     version,
		log:         log.WithComponent("health"),
	}

	checker.RegisterCheck("self", false, func(context.Context) (Status, string, error) {
		return StatusUp, "Health checker is running", nil
	})

	return checker
}

// RegisterCheck registers a new health check. A critical component that is
// down makes the whole service unhealthy.
func (c *Checker) RegisterCheck(name string, critical bool, check Check) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.checks[name] = registered{check: check, critical: critical}
	c.components[name] = &Component{
		Name:        name,
		Status:      StatusDown,
		Description: "Not checked yet",
		Critical:    critical,
	}
}

// RunChecks executes all registered health checks. Checks run outside the
// lock so a slow dependency never blocks status reads.
func (c *Checker) RunChecks(ctx context.Context) {
	c.mutex.RLock()
	checks := make(map[string]registered, len(c.checks))
	for k, v := range c.checks {
		checks[k] = v
	}
	c.mutex.RUnlock()

	type result struct {
		status      Status
		description string
		err         error
	}
	results := make(map[string]result, len(checks))
	for name, reg := range checks {
		cctx, cancel := context.WithTimeout(ctx, c.timeout)
		status, description, err := reg.check(cctx)
		cancel()
		results[name] = result{status, description, err}
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	now := time.Now()
	for name, res := range results {
		component, ok := c.components[name]
		if !ok {
			continue
		}
		component.Status = res.status
		component.Description = res.description
		component.LastChecked = now

		if res.err != nil {
			component.Error = res.err.Error()
			c.log.Error("Health check failed",
				"component", name,
				"status", string(res.status),
				"error", res.err.Error(),
			)
		} else {
			component.Error = ""
			c.log.Debug("Health check completed",
				"component", name,
				"status", string(res.status),
			)
		}
	}
}

// Run performs checks immediately and then periodically until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	c.RunChecks(ctx)

	ticker := time.NewTicker(c.checkPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunChecks(ctx)
		}
	}
}

// GetStatus returns a copy of the current component states
func (c *Checker) GetStatus() map[string]*Component {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make(map[string]*Component, len(c.components))
	for k, v := range c.components {
		componentCopy := *v
		result[k] = &componentCopy
	}

	return result
}

// IsSystemHealthy returns true if all critical components are up or degraded
func (c *Checker) IsSystemHealthy() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for _, component := range c.components {
		if component.Critical && component.Status == StatusDown {
			return false
		}
	}
	return true
}

// Overall summarises component states into one status
func (c *Checker) Overall() Status {
	if !c.IsSystemHealthy() {
		return StatusDown
	}
	for _, comp := range c.GetStatus() {
		if comp.Status != StatusUp {
			return StatusDegraded
		}
	}
	return StatusUp
}

// GinHandler reports component health. Unhealthy critical components turn
// the response into a 503.
func (c *Checker) GinHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		code := http.StatusOK
		if !c.IsSystemHealthy() {
			code = http.StatusServiceUnavailable
		}
		ctx.JSON(code, gin.H{
			"status":     c.Overall(),
			"version":    c.version,
			"timestamp":  time.Now().Format(time.RFC3339),
			"components": c.GetStatus(),
		})
	}
}

// Pinger is anything that can report reachability, such as a database or a
// Redis client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// RegisterPingCheck registers a reachability check
func (c *Checker) RegisterPingCheck(name string, critical bool, p Pinger) {
	c.RegisterCheck(name, critical, func(ctx context.Context) (Status, string, error) {
		start := time.Now()
		if err := p.Ping(ctx); err != nil {
			return StatusDown, fmt.Sprintf("%s unreachable", name), err
		}
		return StatusUp, fmt.Sprintf("%s reachable (latency: %s)", name, time.Since(start).Round(time.Millisecond)), nil
	})
}

// RegisterBreakerCheck reports a generation provider as degraded while its
// circuit breaker is not closed. Generation failures fall back to fixed
// replies, so the component is never critical.
func (c *Checker) RegisterBreakerCheck(name string, cb *resilience.Breaker) {
	c.RegisterCheck(name, false, func(context.Context) (Status, string, error) {
		st := cb.Stats()
		if st.State != resilience.StateClosed {
			return StatusDegraded, st.String(), fmt.Errorf("%w: %s", resilience.ErrCircuitOpen, st.State)
		}
		return StatusUp, st.String(), nil
	})
}

// RegisterGauge reports an informational count, such as open room connections.
func (c *Checker) RegisterGauge(name string, read func() int) {
	c.RegisterCheck(name, false, func(context.Context) (Status, string, error) {
		return StatusUp, fmt.Sprintf("%d active", read()), nil
	})
}
