package task

import (
	"context"
	"log/slog"
	"sync"

	"github.com/phrazzld/relay-api/internal/platform/logger"
	"github.com/phrazzld/relay-api/internal/store"
)

// RunnerConfig holds configuration for the worker pool.
type RunnerConfig struct {
	// WorkerCount determines how many jobs process concurrently.
	WorkerCount int

	// RecoveryBatchSize caps how many queued jobs are re-triggered at
	// startup.
	RecoveryBatchSize int
}

// DefaultRunnerConfig returns the production worker-pool settings.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:       4,
		RecoveryBatchSize: 100,
	}
}

// Runner consumes job ids from the trigger and hands each to the processor.
// Workers are the only consumers of the trigger stream; duplicate
// notifications are harmless because the processor's claim is conditional.
type Runner struct {
	processor *Processor
	trigger   Trigger
	jobs      store.JobStore
	config    RunnerConfig
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a Runner.
func NewRunner(processor *Processor, trigger Trigger, jobs store.JobStore, config RunnerConfig, log *slog.Logger) *Runner {
	if config.WorkerCount < 1 {
		config.WorkerCount = 1
	}
	return &Runner{
		processor: processor,
		trigger:   trigger,
		jobs:      jobs,
		config:    config,
		logger:    log,
	}
}

// Start recovers jobs left queued by a previous run and launches the worker
// pool. Recovery is a re-trigger, not a state change: the rows are already
// queued and the claim decides who processes them.
func (r *Runner) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	if err := r.recover(ctx); err != nil {
		r.logger.WarnContext(ctx, "startup recovery failed", "error", err)
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(runCtx, i)
	}
	return nil
}

// Stop drains the worker pool. In-flight jobs run to completion; jobs still
// in the trigger buffer stay queued in the database for the next run.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Runner) recover(ctx context.Context) error {
	queued, err := r.jobs.ListQueued(ctx, r.config.RecoveryBatchSize)
	if err != nil {
		return err
	}
	if len(queued) == 0 {
		return nil
	}

	r.logger.InfoContext(ctx, "re-triggering queued jobs from previous run",
		"count", len(queued))
	for _, job := range queued {
		if err := r.trigger.Notify(ctx, job.ID); err != nil {
			r.logger.WarnContext(ctx, "failed to re-trigger queued job",
				"job_id", job.ID,
				"error", err)
		}
	}
	return nil
}

func (r *Runner) worker(ctx context.Context, id int) {
	defer r.wg.Done()

	log := r.logger.With("worker_id", id)
	log.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug("worker stopping")
			return
		case jobID, ok := <-r.trigger.Jobs():
			if !ok {
				log.Debug("trigger closed, worker stopping")
				return
			}
			// Detached from the run context so shutdown does not abort an
			// in-flight upstream call.
			jobCtx := logger.WithLogger(context.Background(), log)
			if err := r.processor.Process(jobCtx, jobID); err != nil && !store.IsNoOpBegin(err) {
				log.Error("job processing error",
					"job_id", jobID,
					"error", err)
			}
		}
	}
}
