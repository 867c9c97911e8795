package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/phrazzld/relay-api/internal/domain"
)

// JobStore defines the persistence operations for jobs. The job row is the
// only shared mutable resource in the system; all state transitions go
// through this interface.
type JobStore interface {
	// Create inserts a new queued job. Returns ErrJobExists when the
	// caller-supplied id is already present.
	Create(ctx context.Context, job *domain.Job) error

	// Get returns the job with the given id, or ErrJobNotFound.
	Get(ctx context.Context, id string) (*domain.Job, error)

	// BeginProcessing atomically transitions a job to processing and stamps
	// processing_started_at, clearing any prior error. A job already in
	// processing is reclaimed only when its processing_started_at is older
	// than staleAfter. Returns ErrAlreadyCompleted, ErrAlreadyFailed,
	// ErrJobBusy, or ErrJobNotFound otherwise. This is the single
	// synchronization point preventing duplicate processing.
	BeginProcessing(ctx context.Context, id string, staleAfter time.Duration) error

	// Complete transitions a processing job to completed with the given
	// result and stamps completed_at.
	Complete(ctx context.Context, id string, result json.RawMessage) error

	// Fail transitions a processing job to failed with the given error
	// message and stamps completed_at.
	Fail(ctx context.Context, id string, errMsg string) error

	// MarkFetched sets fetched_at on a completed job if it is unset. It is
	// idempotent and never clears the timestamp.
	MarkFetched(ctx context.Context, id string) error

	// ListUnconfirmed returns completed jobs whose delivery has not been
	// confirmed: fetched_at is null, completed_at lies between now-retention
	// and now-grace, and delivery_retry_count < maxRetries. Results are
	// ordered oldest-completed first and capped at limit.
	ListUnconfirmed(ctx context.Context, grace, retention time.Duration, maxRetries, limit int) ([]*domain.Job, error)

	// RecordDeliveryRetry increments delivery_retry_count and stamps
	// last_delivery_retry_at, but only while the counter is below
	// maxRetries; otherwise it returns ErrRetryBudgetExhausted.
	RecordDeliveryRetry(ctx context.Context, id string, maxRetries int) error

	// ListQueued returns queued jobs for startup recovery, oldest first.
	ListQueued(ctx context.Context, limit int) ([]*domain.Job, error)
}

// DeliveryLog records webhook delivery attempts for observability. It is
// write-only on the hot path and optional: implementations may discard.
type DeliveryLog interface {
	RecordAttempt(ctx context.Context, jobID string, statusCode int, attemptErr error) error
}
