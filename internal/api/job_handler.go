package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/relay-api/internal/api/shared"
	"github.com/phrazzld/relay-api/internal/domain"
	"github.com/phrazzld/relay-api/internal/metrics"
	"github.com/phrazzld/relay-api/internal/platform/logger"
	"github.com/phrazzld/relay-api/internal/reconcile"
	"github.com/phrazzld/relay-api/internal/store"
	"github.com/phrazzld/relay-api/internal/task"
)

// JobProcessor runs one job through its full lifecycle. Implemented by
// task.Processor.
type JobProcessor interface {
	Process(ctx context.Context, jobID string) error
}

// JobHandler handles job-related HTTP requests.
type JobHandler struct {
	jobs      store.JobStore
	processor JobProcessor
	trigger   task.Trigger
	monitor   *reconcile.Monitor
	validator *validator.Validate
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(jobs store.JobStore, processor JobProcessor, trigger task.Trigger, monitor *reconcile.Monitor) *JobHandler {
	return &JobHandler{
		jobs:      jobs,
		processor: processor,
		trigger:   trigger,
		monitor:   monitor,
		validator: validator.New(),
	}
}

// SubmitJob handles POST /api/jobs requests. The job row is durably queued
// before the trigger fires, so a lost trigger only delays processing.
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req SubmitJobRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	payload, err := json.Marshal(domain.JobPayload{
		CallbackURL:          req.CallbackURL,
		CallbackToken:        req.CallbackToken,
		Request:              req.Request,
		ConsolidateCitations: req.ConsolidateCitations,
		StructuredContent:    req.StructuredContent,
		FullWrapper:          req.FullWrapper,
		Prices:               req.Prices,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to store job", err)
		return
	}

	job, err := domain.NewJob(req.ID, payload)
	if err != nil {
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}

	if err := h.jobs.Create(r.Context(), job); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err),
			GetSafeErrorMessage(err), err)
		return
	}
	metrics.JobsSubmittedTotal.Inc()

	if err := h.trigger.Notify(r.Context(), job.ID); err != nil {
		// The job stays queued; recovery or an explicit processing request
		// picks it up.
		log.WarnContext(r.Context(), "job queued but trigger failed",
			"job_id", job.ID,
			"error", err)
	}

	log.InfoContext(r.Context(), "job accepted", "job_id", job.ID)
	shared.RespondWithJSON(w, r, http.StatusAccepted, jobToResponse(job))
}

// ProcessJob handles POST /api/jobs/{id}/process requests. It runs the job
// synchronously: the call returns once the job is terminal. Queue consumers
// use this endpoint; its conditional claim makes concurrent calls safe, so a
// duplicate trigger for an already-terminal job is a 200 no-op rather than
// an error.
func (h *JobHandler) ProcessJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Job id is required")
		return
	}

	if err := h.processor.Process(r.Context(), jobID); err != nil {
		if errors.Is(err, store.ErrAlreadyCompleted) || errors.Is(err, store.ErrAlreadyFailed) {
			// Fall through to return the terminal job as-is.
		} else {
			shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err),
				GetSafeErrorMessage(err), err)
			return
		}
	}

	job, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err),
			GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// GetJob handles GET /api/jobs/{id} requests. Reading a completed job marks
// it fetched, which is the receipt confirmation reconciliation keys on.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Job id is required")
		return
	}

	job, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err),
			GetSafeErrorMessage(err), err)
		return
	}

	if job.Status == domain.JobStatusCompleted {
		if err := h.jobs.MarkFetched(r.Context(), job.ID); err != nil {
			// The caller still gets the result; the fetch mark is retried by
			// the next read.
			log.WarnContext(r.Context(), "failed to mark job fetched",
				"job_id", job.ID,
				"error", err)
		}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// Reconcile handles POST /api/reconcile requests, running one reconciliation
// pass on demand and reporting what it did.
func (h *JobHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	summary, err := h.monitor.Run(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Reconciliation failed", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, summary)
}

// SanitizeValidationError turns a validator error into a short message that
// names the offending field without echoing submitted values.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return fmt.Sprintf("Invalid %s: required field", fe.Field())
		case "url":
			return fmt.Sprintf("Invalid %s: must be a valid URL", fe.Field())
		case "min":
			return fmt.Sprintf("Invalid %s: too short", fe.Field())
		case "max":
			return fmt.Sprintf("Invalid %s: too long", fe.Field())
		default:
			return fmt.Sprintf("Invalid %s", fe.Field())
		}
	}
	return "Validation error"
}
