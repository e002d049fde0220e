package monitoring

import (
	"context"
	"sync"
	"time"

	"callrelay/internal/core/ports"
)

// Checker aggregates named readiness probes for the health endpoints.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	timeout time.Duration
}

// CheckFunc reports readiness of one dependency. A nil error means ready.
type CheckFunc func(ctx context.Context) error

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func NewChecker(timeout time.Duration) *Checker {
	return &Checker{
		checks:  make(map[string]CheckFunc),
		timeout: timeout,
	}
}

func (c *Checker) Add(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// AddBusCheck registers the bus round trip as a readiness dependency.
func (c *Checker) AddBusCheck(bus ports.Bus) {
	c.Add("bus", func(ctx context.Context) error {
		return bus.Ping(ctx)
	})
}

// CheckAll runs every registered probe with the per-check timeout.
func (c *Checker) CheckAll(ctx context.Context) HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]string, len(c.checks)),
	}

	for name, fn := range c.checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := fn(checkCtx)
		cancel()

		if err != nil {
			status.Status = "unhealthy"
			status.Checks[name] = err.Error()
		} else {
			status.Checks[name] = "healthy"
		}
	}

	return status
}

// IsReady reports whether every probe passed.
func (c *Checker) IsReady(ctx context.Context) bool {
	return c.CheckAll(ctx).Status == "healthy"
}
