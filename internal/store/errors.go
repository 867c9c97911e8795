package store

import "errors"

// Common store errors used across all store implementations.
var (
	// ErrJobNotFound is returned when the requested job id does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists is returned when creating a job whose caller-supplied id
	// is already present.
	ErrJobExists = errors.New("job already exists")

	// ErrAlreadyCompleted is returned by BeginProcessing when the job has
	// already completed. Callers treat it as a successful no-op.
	ErrAlreadyCompleted = errors.New("job already completed")

	// ErrAlreadyFailed is returned by BeginProcessing when the job has
	// already failed. Callers treat it as a no-op.
	ErrAlreadyFailed = errors.New("job already failed")

	// ErrJobBusy is returned by BeginProcessing when another worker holds the
	// job and its processing_started_at is still within the staleness
	// threshold.
	ErrJobBusy = errors.New("job is being processed")

	// ErrNotProcessing is returned by Complete and Fail when the job is not
	// in the processing state, which indicates the caller lost the claim.
	ErrNotProcessing = errors.New("job is not processing")

	// ErrRetryBudgetExhausted is returned by RecordDeliveryRetry when the
	// delivery retry counter has reached its cap.
	ErrRetryBudgetExhausted = errors.New("delivery retry budget exhausted")
)

// IsNoOpBegin reports whether a BeginProcessing error means the job is
// already terminal and the trigger should be acknowledged without work.
func IsNoOpBegin(err error) bool {
	return errors.Is(err, ErrAlreadyCompleted) || errors.Is(err, ErrAlreadyFailed)
}
