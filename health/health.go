// Package health aggregates health checks of the module service: the state
// store and the modules quarantined after a failed activation.
package health

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/vapvarun/fymodules"
)

var (
	ErrDuplicateCheck      = errors.New("health check already registered")
	ErrHealthCheckNotFound = errors.New("health check not found")
)

// HealthStatus is the status of one check or of the whole service.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

func (s HealthStatus) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// HealthChecker is a single health check.
type HealthChecker interface {
	// Check returns the current status. A returned error marks the check
	// unhealthy.
	Check(ctx context.Context) (*CheckResult, error)

	// Name returns the unique name of the check.
	Name() string
}

// CheckResult is the result of one health check.
type CheckResult struct {
	Name      string         `json:"name"`
	Status    HealthStatus   `json:"status"`
	Message   string         `json:"message,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  time.Duration  `json:"duration"`
	Details   map[string]any `json:"details,omitempty"`
}

// AggregatedStatus is the worst status of all checks with their results.
type AggregatedStatus struct {
	Status    HealthStatus   `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Checks    []*CheckResult `json:"checks"`
}

// Aggregator runs registered checks, in registration order.
type Aggregator struct {
	mu       sync.RWMutex
	checkers []HealthChecker
	timeout  time.Duration
}

// NewAggregator creates an aggregator that gives every check timeout to
// finish. A zero timeout means 5s.
func NewAggregator(timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Aggregator{timeout: timeout}
}

func (a *Aggregator) RegisterCheck(checker HealthChecker) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if slices.ContainsFunc(a.checkers, func(c HealthChecker) bool { return c.Name() == checker.Name() }) {
		return fmt.Errorf("%w: %s", ErrDuplicateCheck, checker.Name())
	}
	a.checkers = append(a.checkers, checker)
	return nil
}

func (a *Aggregator) UnregisterCheck(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := slices.IndexFunc(a.checkers, func(c HealthChecker) bool { return c.Name() == name })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrHealthCheckNotFound, name)
	}
	a.checkers = slices.Delete(a.checkers, i, i+1)
	return nil
}

// CheckAll runs every check. An aggregator without checks is healthy.
func (a *Aggregator) CheckAll(ctx context.Context) *AggregatedStatus {
	a.mu.RLock()
	checkers := slices.Clone(a.checkers)
	a.mu.RUnlock()

	status := &AggregatedStatus{Status: StatusHealthy, Timestamp: time.Now()}
	for _, c := range checkers {
		res := a.run(ctx, c)
		if res.Status.rank() > status.Status.rank() {
			status.Status = res.Status
		}
		status.Checks = append(status.Checks, res)
	}
	return status
}

func (a *Aggregator) run(ctx context.Context, c HealthChecker) *CheckResult {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	res, err := c.Check(ctx)
	if res == nil {
		res = &CheckResult{Status: StatusHealthy}
	}
	if err != nil {
		res.Status = StatusUnhealthy
		res.Error = err.Error()
	}
	res.Name = c.Name()
	res.Timestamp = start
	res.Duration = time.Since(start)
	return res
}

// BasicChecker is healthy while its function returns nil.
type BasicChecker struct {
	name      string
	checkFunc func(context.Context) error
}

func NewBasicChecker(name string, checkFunc func(context.Context) error) *BasicChecker {
	return &BasicChecker{name: name, checkFunc: checkFunc}
}

func (c *BasicChecker) Check(ctx context.Context) (*CheckResult, error) {
	if err := c.checkFunc(ctx); err != nil {
		return nil, err
	}
	return &CheckResult{Status: StatusHealthy}, nil
}

func (c *BasicChecker) Name() string {
	return c.name
}

// StoreChecker reads a record to verify the state store answers.
func StoreChecker(store fymodules.Store) *BasicChecker {
	return NewBasicChecker("store", func(ctx context.Context) error {
		_, _, err := store.Get(ctx, "__health__")
		return err
	})
}

// ModulesChecker reports the service degraded while any enabled module is
// quarantined.
type ModulesChecker struct {
	registry *fymodules.Registry
}

func NewModulesChecker(registry *fymodules.Registry) *ModulesChecker {
	return &ModulesChecker{registry: registry}
}

func (c *ModulesChecker) Name() string {
	return "modules"
}

func (c *ModulesChecker) Check(ctx context.Context) (*CheckResult, error) {
	if err := c.registry.Load(ctx); err != nil {
		return nil, err
	}

	var enabled, errored []string
	for _, d := range c.registry.All() {
		st, err := c.registry.State(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		if st.Enabled {
			enabled = append(enabled, d.ID)
		}
		if st.Errored() {
			errored = append(errored, d.ID)
		}
	}

	res := &CheckResult{
		Status:  StatusHealthy,
		Details: map[string]any{"enabled": enabled, "errored": errored},
	}
	if len(errored) > 0 {
		res.Status = StatusDegraded
		res.Message = fmt.Sprintf("%d module(s) quarantined", len(errored))
	}
	return res, nil
}
