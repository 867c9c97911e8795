package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/relay-api/internal/domain"
	"github.com/phrazzld/relay-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, store.ErrJobNotFound):
		return http.StatusNotFound

	// A repeated submission or a processing request for a job that is
	// already claimed or terminal is a conflict, not a failure.
	case errors.Is(err, store.ErrJobExists),
		errors.Is(err, store.ErrJobBusy),
		errors.Is(err, store.ErrAlreadyCompleted),
		errors.Is(err, store.ErrAlreadyFailed),
		errors.Is(err, store.ErrNotProcessing):
		return http.StatusConflict

	case errors.Is(err, domain.ErrEmptyJobID),
		errors.Is(err, domain.ErrEmptyPayload),
		errors.Is(err, domain.ErrInvalidJobStatus),
		errors.Is(err, domain.ErrInvalidTerminalState),
		errors.Is(err, domain.ErrInvalidTimestamps):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, store.ErrJobNotFound):
		return "Job not found"

	case errors.Is(err, store.ErrJobExists):
		return "A job with this id already exists"

	case errors.Is(err, store.ErrJobBusy):
		return "Job is already being processed"

	case errors.Is(err, store.ErrAlreadyCompleted):
		return "Job has already completed"

	case errors.Is(err, store.ErrAlreadyFailed):
		return "Job has already failed"

	case errors.Is(err, store.ErrNotProcessing):
		return "Job is not being processed"

	case errors.Is(err, domain.ErrEmptyJobID):
		return "Job id must not be empty"

	case errors.Is(err, domain.ErrEmptyPayload):
		return "Job payload must not be empty"

	default:
		return "An unexpected error occurred"
	}
}
