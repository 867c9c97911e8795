// Package reconcile implements the safety net behind webhook delivery.
// Completed jobs whose results were never fetched get their notification
// re-sent on a schedule, up to a bounded retry budget, until the retention
// window closes.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/phrazzld/relay-api/internal/delivery"
	"github.com/phrazzld/relay-api/internal/metrics"
	"github.com/phrazzld/relay-api/internal/platform/logger"
	"github.com/phrazzld/relay-api/internal/store"
)

// Config holds the reconciliation selection and pacing parameters.
type Config struct {
	// Grace is how long after completion a job is left alone before it is
	// considered undelivered. Covers the normal fetch path.
	Grace time.Duration

	// Retention bounds how far back reconciliation looks. Jobs completed
	// before now-Retention are abandoned.
	Retention time.Duration

	// MaxRetries caps re-deliveries per job across all reconciliation runs.
	MaxRetries int

	// BatchSize is how many jobs one run handles per store query.
	BatchSize int

	// BatchDelay is the pause between batches, keeping pressure off the
	// callback hosts.
	BatchDelay time.Duration

	// RunBudget bounds one run's wall-clock time. The run stops between
	// batches once exceeded; remaining jobs wait for the next run.
	RunBudget time.Duration
}

// DefaultConfig returns the production reconciliation settings: retry jobs
// completed between 2 and 30 minutes ago, at most 3 times each.
func DefaultConfig() Config {
	return Config{
		Grace:      2 * time.Minute,
		Retention:  30 * time.Minute,
		MaxRetries: 3,
		BatchSize:  20,
		BatchDelay: time.Second,
		RunBudget:  90 * time.Second,
	}
}

// Summary reports what one reconciliation run did.
type Summary struct {
	Found     int `json:"found"`
	Retried   int `json:"retried"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Monitor periodically re-delivers notifications for unconfirmed jobs.
type Monitor struct {
	jobs      store.JobStore
	deliverer *delivery.Deliverer
	config    Config
}

// NewMonitor creates a Monitor.
func NewMonitor(jobs store.JobStore, deliverer *delivery.Deliverer, config Config) *Monitor {
	if config.BatchSize < 1 {
		config.BatchSize = 1
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	return &Monitor{jobs: jobs, deliverer: deliverer, config: config}
}

// maxPerRun caps how many unconfirmed jobs one run selects. Anything beyond
// waits for the next scheduled run.
const maxPerRun = 200

// Run executes one reconciliation pass: select the unconfirmed jobs once,
// then work through them in batches with a delay in between. Each job has
// its retry counter bumped before the push, so a crash mid-run costs budget
// rather than producing unbounded retries.
func (m *Monitor) Run(ctx context.Context) (Summary, error) {
	log := logger.FromContext(ctx)
	start := time.Now()
	var summary Summary

	unconfirmed, err := m.jobs.ListUnconfirmed(ctx, m.config.Grace, m.config.Retention, m.config.MaxRetries, maxPerRun)
	if err != nil {
		return summary, err
	}
	if len(unconfirmed) == 0 {
		return summary, nil
	}
	summary.Found = len(unconfirmed)

	for i, job := range unconfirmed {
		if i > 0 && i%m.config.BatchSize == 0 {
			if m.config.RunBudget > 0 && time.Since(start) > m.config.RunBudget {
				log.InfoContext(ctx, "reconciliation run budget exceeded, stopping",
					"handled", i,
					"remaining", len(unconfirmed)-i,
					"elapsed", time.Since(start).String())
				return summary, nil
			}
			select {
			case <-time.After(m.config.BatchDelay):
			case <-ctx.Done():
				return summary, ctx.Err()
			}
		}

		if err := m.jobs.RecordDeliveryRetry(ctx, job.ID, m.config.MaxRetries); err != nil {
			if errors.Is(err, store.ErrRetryBudgetExhausted) {
				// Another instance spent the budget since selection.
				continue
			}
			log.WarnContext(ctx, "failed to record delivery retry",
				"job_id", job.ID,
				"error", err)
			continue
		}
		summary.Retried++

		if err := m.deliverer.Deliver(ctx, job); err != nil {
			summary.Failed++
			metrics.ReconcileRetriesTotal.WithLabelValues("failed").Inc()
			continue
		}
		summary.Succeeded++
		metrics.ReconcileRetriesTotal.WithLabelValues("succeeded").Inc()
	}

	log.InfoContext(ctx, "reconciliation run finished",
		"found", summary.Found,
		"retried", summary.Retried,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"elapsed", time.Since(start).String())
	return summary, nil
}

// RunEvery runs reconciliation on the given interval until the context is
// cancelled. Intended to be launched as a goroutine from main.
func (m *Monitor) RunEvery(ctx context.Context, interval time.Duration) {
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.ErrorContext(ctx, "reconciliation run failed", "error", err)
			}
		}
	}
}
