package api

import (
	"encoding/json"
	"time"

	"github.com/phrazzld/relay-api/internal/domain"
)

// SubmitJobRequest defines the payload for the job submission endpoint. The
// id is caller-supplied so submission can be retried idempotently; the
// request blob is forwarded to the upstream provider untouched.
type SubmitJobRequest struct {
	ID            string          `json:"id"             validate:"required,min=1,max=128"`
	Request       json.RawMessage `json:"request"        validate:"required"`
	CallbackURL   string          `json:"callback_url"   validate:"omitempty,url"`
	CallbackToken string          `json:"callback_token" validate:"omitempty,max=512"`

	ConsolidateCitations bool `json:"consolidate_citations,omitempty"`
	StructuredContent    bool `json:"structured_content,omitempty"`
	FullWrapper          bool `json:"full_wrapper,omitempty"`

	Prices map[string]domain.ModelPrice `json:"prices,omitempty"`
}

// JobResponse represents a job's externally visible state. Result and Error
// are mutually exclusive and only present once the job is terminal.
type JobResponse struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`

	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`

	// ProcessingSeconds is elapsed time in processing: final for terminal
	// jobs, still growing for jobs in flight.
	ProcessingSeconds *float64 `json:"processing_seconds,omitempty"`
}

// jobToResponse converts a domain.Job to its DTO.
func jobToResponse(job *domain.Job) JobResponse {
	resp := JobResponse{
		ID:                  job.ID,
		Status:              string(job.Status),
		CreatedAt:           job.CreatedAt,
		Result:              job.Result,
		Error:               job.Error,
		ProcessingStartedAt: job.ProcessingStartedAt,
		CompletedAt:         job.CompletedAt,
	}
	if job.ProcessingStartedAt != nil {
		seconds := job.ProcessingDuration().Seconds()
		resp.ProcessingSeconds = &seconds
	}
	return resp
}
