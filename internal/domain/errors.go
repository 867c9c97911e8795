package domain

import "errors"

// Validation errors returned by Job.Validate and NewJob.
var (
	// ErrEmptyJobID indicates a job was created without a caller-supplied id.
	ErrEmptyJobID = errors.New("job id cannot be empty")

	// ErrInvalidJobStatus indicates a status outside the known enum.
	ErrInvalidJobStatus = errors.New("invalid job status")

	// ErrEmptyPayload indicates a job without an outbound request payload.
	ErrEmptyPayload = errors.New("job payload cannot be empty")

	// ErrInvalidTerminalState indicates the result/error fields do not match
	// the job's status: completed jobs carry exactly a result, failed jobs
	// exactly an error, and non-terminal jobs neither.
	ErrInvalidTerminalState = errors.New("result/error fields inconsistent with status")

	// ErrInvalidTimestamps indicates the lifecycle timestamps do not match
	// the job's status.
	ErrInvalidTimestamps = errors.New("lifecycle timestamps inconsistent with status")
)
