package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/phrazzld/relay-api/internal/domain"
	"github.com/phrazzld/relay-api/internal/metrics"
	"github.com/phrazzld/relay-api/internal/platform/logger"
	"github.com/phrazzld/relay-api/internal/store"
)

// jobColumns is the select list shared by every query returning full rows.
const jobColumns = `id, status, payload, result, error, created_at,
	processing_started_at, completed_at, fetched_at,
	delivery_retry_count, last_delivery_retry_at`

// PostgresJobStore implements store.JobStore against a jobs table. All state
// transitions are single conditional UPDATE statements, so two concurrent
// workers can never both claim the same job.
type PostgresJobStore struct {
	db store.DBTX
}

// NewPostgresJobStore creates a new PostgresJobStore.
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

// Create inserts a new queued job.
func (s *PostgresJobStore) Create(ctx context.Context, job *domain.Job) error {
	log := logger.FromContext(ctx)

	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}

	query := `
		INSERT INTO jobs (id, status, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.Status,
		[]byte(job.Payload),
		job.CreatedAt,
	)
	if err != nil {
		log.Error("failed to create job", "job_id", job.ID, "error", err)
		return fmt.Errorf("failed to create job: %w", mapError(err))
	}
	return nil
}

// Get returns the job with the given id.
func (s *PostgresJobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", mapError(err))
	}
	return job, nil
}

// BeginProcessing atomically claims a job for processing. A queued job is
// always claimable; a processing job only once its processing_started_at is
// older than staleAfter (the stuck-job reclaim path). Terminal jobs are
// never claimed.
func (s *PostgresJobStore) BeginProcessing(ctx context.Context, id string, staleAfter time.Duration) error {
	log := logger.FromContext(ctx)
	now := time.Now().UTC()

	claim := `
		UPDATE jobs
		SET status = $2, processing_started_at = $3, error = NULL
		WHERE id = $1 AND status = $4
	`
	rows, err := s.exec(ctx, claim, id, domain.JobStatusProcessing, now, domain.JobStatusQueued)
	if err != nil {
		log.Error("failed to begin processing", "job_id", id, "error", err)
		return fmt.Errorf("failed to begin processing: %w", err)
	}
	if rows > 0 {
		return nil
	}

	reclaim := `
		UPDATE jobs
		SET status = $2, processing_started_at = $3, error = NULL
		WHERE id = $1 AND status = $2 AND processing_started_at < $4
	`
	rows, err = s.exec(ctx, reclaim, id, domain.JobStatusProcessing, now, now.Add(-staleAfter))
	if err != nil {
		log.Error("failed to reclaim stale job", "job_id", id, "error", err)
		return fmt.Errorf("failed to begin processing: %w", err)
	}
	if rows > 0 {
		metrics.StaleReclaimsTotal.Inc()
		log.Warn("reclaimed stale processing job", "job_id", id)
		return nil
	}

	// The claim did not apply; read the status to report why.
	var status domain.JobStatus
	err = s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return mapError(err)
	}
	switch status {
	case domain.JobStatusCompleted:
		return store.ErrAlreadyCompleted
	case domain.JobStatusFailed:
		return store.ErrAlreadyFailed
	default:
		return store.ErrJobBusy
	}
}

// Complete transitions a processing job to completed.
func (s *PostgresJobStore) Complete(ctx context.Context, id string, resultJSON json.RawMessage) error {
	return s.finish(ctx, id, domain.JobStatusCompleted, []byte(resultJSON), sql.NullString{})
}

// Fail transitions a processing job to failed.
func (s *PostgresJobStore) Fail(ctx context.Context, id string, errMsg string) error {
	return s.finish(ctx, id, domain.JobStatusFailed, nil, sql.NullString{String: errMsg, Valid: true})
}

// finish applies a terminal transition. The status = processing guard means
// a worker that lost its claim (stale reclaim happened underneath it) still
// writes, by design: the reclaim path resets status to processing, so the
// last writer wins.
func (s *PostgresJobStore) finish(ctx context.Context, id string, status domain.JobStatus, result []byte, errMsg sql.NullString) error {
	log := logger.FromContext(ctx)
	now := time.Now().UTC()

	query := `
		UPDATE jobs
		SET status = $2, result = $3, error = $4, completed_at = $5
		WHERE id = $1 AND status = $6
	`
	res, err := s.db.ExecContext(ctx, query, id, status, result, errMsg, now, domain.JobStatusProcessing)
	if err != nil {
		log.Error("failed to finish job", "job_id", id, "status", status, "error", err)
		return fmt.Errorf("failed to finish job: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// Distinguish a missing row from a lost claim.
		var current domain.JobStatus
		err := s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&current)
		if err != nil {
			return mapError(err)
		}
		log.Warn("terminal transition skipped, job not processing",
			"job_id", id, "current_status", current, "attempted_status", status)
		return store.ErrNotProcessing
	}
	return nil
}

// MarkFetched sets fetched_at on a completed job if unset. Idempotent: once
// set, the timestamp is never changed or cleared.
func (s *PostgresJobStore) MarkFetched(ctx context.Context, id string) error {
	query := `
		UPDATE jobs
		SET fetched_at = $2
		WHERE id = $1 AND status = $3 AND fetched_at IS NULL
	`
	_, err := s.db.ExecContext(ctx, query, id, time.Now().UTC(), domain.JobStatusCompleted)
	if err != nil {
		return fmt.Errorf("failed to mark job fetched: %w", err)
	}
	return nil
}

// ListUnconfirmed returns completed-but-unconfirmed jobs eligible for a
// delivery retry, oldest completion first.
func (s *PostgresJobStore) ListUnconfirmed(ctx context.Context, grace, retention time.Duration, maxRetries, limit int) ([]*domain.Job, error) {
	now := time.Now().UTC()

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1
		  AND fetched_at IS NULL
		  AND completed_at < $2
		  AND completed_at > $3
		  AND delivery_retry_count < $4
		ORDER BY completed_at ASC
		LIMIT $5
	`
	rows, err := s.db.QueryContext(ctx, query,
		domain.JobStatusCompleted, now.Add(-grace), now.Add(-retention), maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unconfirmed jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectJobs(rows)
}

// RecordDeliveryRetry bumps the retry counter, refusing once the budget is
// spent so reconciliation can never retry a job more than maxRetries times.
func (s *PostgresJobStore) RecordDeliveryRetry(ctx context.Context, id string, maxRetries int) error {
	query := `
		UPDATE jobs
		SET delivery_retry_count = delivery_retry_count + 1,
		    last_delivery_retry_at = $2
		WHERE id = $1 AND delivery_retry_count < $3
	`
	res, err := s.db.ExecContext(ctx, query, id, time.Now().UTC(), maxRetries)
	if err != nil {
		return fmt.Errorf("failed to record delivery retry: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var count int
		err := s.db.QueryRowContext(ctx, `SELECT delivery_retry_count FROM jobs WHERE id = $1`, id).Scan(&count)
		if err != nil {
			return mapError(err)
		}
		return store.ErrRetryBudgetExhausted
	}
	return nil
}

// ListQueued returns queued jobs for startup recovery, oldest first.
func (s *PostgresJobStore) ListQueued(ctx context.Context, limit int) ([]*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, domain.JobStatusQueued, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectJobs(rows)
}

// exec runs a statement and returns the affected row count.
func (s *PostgresJobStore) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job                 domain.Job
		payload, result     []byte
		errMsg              sql.NullString
		processingStartedAt sql.NullTime
		completedAt         sql.NullTime
		fetchedAt           sql.NullTime
		lastRetryAt         sql.NullTime
	)

	err := row.Scan(
		&job.ID,
		&job.Status,
		&payload,
		&result,
		&errMsg,
		&job.CreatedAt,
		&processingStartedAt,
		&completedAt,
		&fetchedAt,
		&job.DeliveryRetryCount,
		&lastRetryAt,
	)
	if err != nil {
		return nil, err
	}

	job.Payload = json.RawMessage(payload)
	if len(result) > 0 {
		job.Result = json.RawMessage(result)
	}
	job.Error = errMsg.String
	if processingStartedAt.Valid {
		t := processingStartedAt.Time
		job.ProcessingStartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if fetchedAt.Valid {
		t := fetchedAt.Time
		job.FetchedAt = &t
	}
	if lastRetryAt.Valid {
		t := lastRetryAt.Time
		job.LastDeliveryRetryAt = &t
	}
	return &job, nil
}

func collectJobs(rows *sql.Rows) ([]*domain.Job, error) {
	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}
	return jobs, nil
}
