package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/phrazzld/relay-api/internal/delivery"
	"github.com/phrazzld/relay-api/internal/domain"
	"github.com/phrazzld/relay-api/internal/generation"
	"github.com/phrazzld/relay-api/internal/metrics"
	"github.com/phrazzld/relay-api/internal/normalize"
	"github.com/phrazzld/relay-api/internal/platform/logger"
	"github.com/phrazzld/relay-api/internal/redact"
	"github.com/phrazzld/relay-api/internal/store"
)

// DefaultStaleAfter is how long a job may sit in processing before another
// worker may reclaim it. It exceeds the worst-case upstream budget so a live
// worker is never raced by a reclaimer.
const DefaultStaleAfter = 20 * time.Minute

// Processor drives one job from queued to a terminal state: claim the row,
// call the upstream provider, normalize the response, persist the outcome,
// and push the webhook notification.
type Processor struct {
	jobs       store.JobStore
	generator  generation.Generator
	deliverer  *delivery.Deliverer
	staleAfter time.Duration
}

// NewProcessor creates a Processor. A zero staleAfter gets DefaultStaleAfter.
func NewProcessor(jobs store.JobStore, generator generation.Generator, deliverer *delivery.Deliverer, staleAfter time.Duration) *Processor {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Processor{
		jobs:       jobs,
		generator:  generator,
		deliverer:  deliverer,
		staleAfter: staleAfter,
	}
}

// Process runs the full lifecycle for the given job id. The conditional
// claim in BeginProcessing is the sole concurrency guard: a second call for
// the same job observes a no-op claim error and does nothing. Errors from
// the upstream provider fail the job rather than failing Process; Process
// itself errors only on claim rejection or storage trouble.
func (p *Processor) Process(ctx context.Context, jobID string) error {
	log := logger.FromContext(ctx).With("job_id", jobID)
	ctx = logger.WithLogger(ctx, log)

	if err := p.jobs.BeginProcessing(ctx, jobID, p.staleAfter); err != nil {
		if store.IsNoOpBegin(err) {
			log.InfoContext(ctx, "job not claimable, skipping", "reason", err.Error())
		}
		return err
	}
	start := time.Now()
	log.InfoContext(ctx, "job claimed for processing")

	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("loading claimed job: %w", err)
	}

	payload, err := domain.ParseJobPayload(job.Payload)
	if err != nil {
		return p.fail(ctx, job, start, fmt.Sprintf("invalid job payload: %v", err))
	}

	raw, err := p.generator.Generate(ctx, payload.Request)
	if err != nil {
		return p.fail(ctx, job, start, err.Error())
	}

	result, err := p.normalizeResult(raw, payload)
	if err != nil {
		return p.fail(ctx, job, start, fmt.Sprintf("normalizing response: %v", err))
	}

	if err := p.jobs.Complete(ctx, jobID, result); err != nil {
		if errors.Is(err, store.ErrNotProcessing) {
			// Claim was lost to a stale reclaim; the other worker owns the
			// outcome now.
			log.WarnContext(ctx, "claim lost before completion, discarding result")
			return nil
		}
		return fmt.Errorf("completing job: %w", err)
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.JobProcessingSeconds.Observe(time.Since(start).Seconds())
	log.InfoContext(ctx, "job completed",
		"duration", time.Since(start).String())

	p.notify(ctx, jobID)
	return nil
}

// fail records the terminal failure and sends the failure notification. The
// returned error is nil when the failure was persisted: a failed job is a
// processed job.
func (p *Processor) fail(ctx context.Context, job *domain.Job, start time.Time, errMsg string) error {
	log := logger.FromContext(ctx)

	// Upstream error text can carry credentials from URLs or headers; scrub
	// before it lands in the jobs table and the logs.
	errMsg = redact.String(errMsg)

	if err := p.jobs.Fail(ctx, job.ID, errMsg); err != nil {
		if errors.Is(err, store.ErrNotProcessing) {
			log.WarnContext(ctx, "claim lost before failure recorded")
			return nil
		}
		return fmt.Errorf("failing job: %w", err)
	}

	metrics.JobsProcessedTotal.WithLabelValues("failed").Inc()
	metrics.JobProcessingSeconds.Observe(time.Since(start).Seconds())
	log.WarnContext(ctx, "job failed",
		"error", errMsg,
		"duration", time.Since(start).String())

	p.notify(ctx, job.ID)
	return nil
}

// notify reloads the terminal job and pushes the webhook. Delivery failures
// never affect the job outcome; the reconciliation monitor covers them.
func (p *Processor) notify(ctx context.Context, jobID string) {
	if p.deliverer == nil {
		return
	}
	log := logger.FromContext(ctx)

	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		log.WarnContext(ctx, "cannot load job for delivery", "error", err)
		return
	}

	if err := p.deliverer.Deliver(ctx, job); err != nil {
		metrics.DeliveriesTotal.WithLabelValues("error").Inc()
		return
	}
	metrics.DeliveriesTotal.WithLabelValues("ok").Inc()
}

// normalizeResult runs the response normalizer with the options carried in
// the job payload and returns the marshaled stable result shape.
func (p *Processor) normalizeResult(raw json.RawMessage, payload *domain.JobPayload) (json.RawMessage, error) {
	resp, err := normalize.Parse(raw)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]normalize.Price, len(payload.Prices))
	for model, price := range payload.Prices {
		prices[model] = normalize.Price{
			InputPerMTok:  price.InputPerMTok,
			OutputPerMTok: price.OutputPerMTok,
		}
	}

	res, err := normalize.Normalize(resp, normalize.Options{
		ConsolidateCitations: payload.ConsolidateCitations,
		StructuredContent:    payload.StructuredContent,
		FullWrapper:          payload.FullWrapper,
		Prices:               prices,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}
