package domain

import (
	"encoding/json"
	"time"
)

// JobStatus represents the current state of a job in its lifecycle.
type JobStatus string

// Possible job status values. A job moves queued -> processing -> completed
// or queued -> processing -> failed; both terminal states are final.
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the status is one of the two final states.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsValid reports whether the status is one of the known values.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Job is the single persistent entity of the system: one durable record
// representing an asynchronous request from submission to terminal
// resolution. The payload is treated as an immutable blob; its internal
// shape belongs to the submitter-facing layer.
type Job struct {
	ID      string
	Status  JobStatus
	Payload json.RawMessage
	Result  json.RawMessage
	Error   string

	CreatedAt           time.Time
	ProcessingStartedAt *time.Time
	CompletedAt         *time.Time

	// FetchedAt is set once the caller has confirmed receipt of the result,
	// either by reading it through the status endpoint or by acknowledging
	// the webhook. It is never cleared and is the signal reconciliation
	// relies on.
	FetchedAt *time.Time

	DeliveryRetryCount  int
	LastDeliveryRetryAt *time.Time
}

// NewJob creates a queued job with the given caller-supplied id and opaque
// payload. It validates the structural invariants but not the payload
// contents.
func NewJob(id string, payload json.RawMessage) (*Job, error) {
	job := &Job{
		ID:        id,
		Status:    JobStatusQueued,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// Validate checks the job's structural invariants. It is called before
// persisting and by tests asserting state-machine properties.
func (j *Job) Validate() error {
	if j.ID == "" {
		return ErrEmptyJobID
	}
	if !j.Status.IsValid() {
		return ErrInvalidJobStatus
	}
	if len(j.Payload) == 0 {
		return ErrEmptyPayload
	}

	// Exactly one of result/error once terminal; both empty before that.
	hasResult := len(j.Result) > 0
	hasError := j.Error != ""
	switch j.Status {
	case JobStatusCompleted:
		if !hasResult || hasError {
			return ErrInvalidTerminalState
		}
	case JobStatusFailed:
		if hasResult || !hasError {
			return ErrInvalidTerminalState
		}
	default:
		if hasResult || hasError {
			return ErrInvalidTerminalState
		}
	}

	if (j.Status == JobStatusQueued) != (j.ProcessingStartedAt == nil) {
		return ErrInvalidTimestamps
	}
	if j.Status.IsTerminal() == (j.CompletedAt == nil) {
		return ErrInvalidTimestamps
	}
	return nil
}

// ProcessingDuration returns how long the job has been (or was) processing.
// It returns zero for jobs that never started.
func (j *Job) ProcessingDuration() time.Duration {
	if j.ProcessingStartedAt == nil {
		return 0
	}
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(*j.ProcessingStartedAt)
	}
	return time.Since(*j.ProcessingStartedAt)
}

// Stale reports whether a processing job has exceeded the stuck-job
// threshold and may be reclaimed by a new worker invocation.
func (j *Job) Stale(threshold time.Duration, now time.Time) bool {
	if j.Status != JobStatusProcessing || j.ProcessingStartedAt == nil {
		return false
	}
	return now.Sub(*j.ProcessingStartedAt) > threshold
}
