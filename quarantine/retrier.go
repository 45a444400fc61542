// Package quarantine periodically retries modules that are enabled but
// failed to load.
package quarantine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vapvarun/fymodules"
)

// Target is the operation the retrier runs. *fymodules.Manager implements
// it.
type Target interface {
	RetryErrored(ctx context.Context) ([]fymodules.Result, error)
}

// Report summarizes one retry run.
type Report struct {
	At        time.Time `json:"at"`
	Recovered []string  `json:"recovered"`
	Errored   []string  `json:"errored"`
}

// Retrier runs Target.RetryErrored on a cron schedule. Runs never overlap.
type Retrier struct {
	target   Target
	schedule string
	logger   fymodules.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	last    Report
}

// New creates a Retrier. schedule is a standard five-field cron expression
// or a descriptor such as "@every 5m".
func New(target Target, schedule string, logger fymodules.Logger) (*Retrier, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid cron expression '%s': %w", schedule, err)
	}
	if logger == nil {
		logger = fymodules.NopLogger()
	}
	return &Retrier{target: target, schedule: schedule, logger: logger}, nil
}

// Start schedules the retries. Calling Start twice is a no-op.
func (r *Retrier) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	r.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := r.cron.AddFunc(r.schedule, func() {
		if _, err := r.RunOnce(r.ctx); err != nil {
			r.logger.Error("Quarantine retry failed", "error", err)
		}
	}); err != nil {
		r.cancel()
		return fmt.Errorf("failed to schedule quarantine retry: %w", err)
	}
	r.cron.Start()
	r.started = true
	r.logger.Info("Quarantine retries scheduled", "schedule", r.schedule)
	return nil
}

// Stop cancels future runs and waits for a running one to finish or for
// ctx to end.
func (r *Retrier) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	r.cancel()
	done := r.cron.Stop()
	r.mu.Unlock()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce retries every quarantined module now.
func (r *Retrier) RunOnce(ctx context.Context) (Report, error) {
	results, err := r.target.RetryErrored(ctx)
	report := Report{At: time.Now().UTC()}
	for _, res := range results {
		if res.Warning != nil {
			report.Errored = append(report.Errored, res.Module)
		} else {
			report.Recovered = append(report.Recovered, res.Module)
		}
	}

	r.mu.Lock()
	r.last = report
	r.mu.Unlock()

	if len(results) > 0 {
		r.logger.Info("Retried quarantined modules", "recovered", report.Recovered, "errored", report.Errored)
	}
	return report, err
}

// LastReport returns the report of the most recent run.
func (r *Retrier) LastReport() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
