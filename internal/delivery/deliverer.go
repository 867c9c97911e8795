// Package delivery implements the webhook push notifying a caller's service
// that its job reached a terminal state. Pushes are best-effort hints; the
// durable state lives in the job row, and the reconciliation monitor retries
// jobs whose results were never fetched.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/phrazzld/relay-api/internal/domain"
	"github.com/phrazzld/relay-api/internal/platform/logger"
	"github.com/phrazzld/relay-api/internal/redact"
	"github.com/phrazzld/relay-api/internal/store"
)

// DefaultTimeout bounds a single webhook POST.
const DefaultTimeout = 10 * time.Second

// notification is the body POSTed to the callback URL. Deliberately minimal:
// the receiver fetches the full result through the status endpoint.
type notification struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Deliverer pushes terminal-state notifications to callback URLs, pacing
// sends per callback host through the configured rate limiter and recording
// every attempt in the delivery log.
type Deliverer struct {
	httpClient *http.Client
	limiter    RateLimiter
	log        store.DeliveryLog
}

// NewDeliverer creates a Deliverer. A nil httpClient gets the default with
// DefaultTimeout; a nil deliveryLog disables attempt recording.
func NewDeliverer(limiter RateLimiter, deliveryLog store.DeliveryLog, httpClient *http.Client) *Deliverer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Deliverer{httpClient: httpClient, limiter: limiter, log: deliveryLog}
}

// Deliver sends the notification for a terminal job. It blocks on the rate
// limiter for the callback host, POSTs once, and returns an error on any
// non-2xx outcome. Callers treat the error as a logging matter, not a job
// failure.
func (d *Deliverer) Deliver(ctx context.Context, job *domain.Job) error {
	log := logger.FromContext(ctx)

	payload, err := domain.ParseJobPayload(job.Payload)
	if err != nil {
		return fmt.Errorf("parsing job payload: %w", err)
	}
	if payload.CallbackURL == "" {
		log.DebugContext(ctx, "job has no callback URL, skipping delivery",
			"job_id", job.ID)
		return nil
	}

	host, err := callbackHost(payload.CallbackURL)
	if err != nil {
		return fmt.Errorf("invalid callback URL: %w", err)
	}

	if d.limiter != nil {
		if err := d.limiter.Acquire(ctx, host); err != nil {
			return fmt.Errorf("waiting for delivery slot: %w", err)
		}
	}

	statusCode, err := d.post(ctx, payload, job)
	d.record(ctx, job.ID, statusCode, err)
	if err != nil {
		// Transport errors echo the callback URL, which may carry secrets in
		// its query string.
		log.WarnContext(ctx, "webhook delivery failed",
			"job_id", job.ID,
			"callback_host", host,
			"status_code", statusCode,
			"error", redact.Error(err))
		return err
	}

	log.InfoContext(ctx, "webhook delivered",
		"job_id", job.ID,
		"callback_host", host,
		"status_code", statusCode)
	return nil
}

func (d *Deliverer) post(ctx context.Context, payload *domain.JobPayload, job *domain.Job) (int, error) {
	body, err := json.Marshal(notification{ID: job.ID, Status: string(job.Status)})
	if err != nil {
		return 0, fmt.Errorf("encoding notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payload.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if payload.CallbackToken != "" {
		req.Header.Set("Authorization", "Bearer "+payload.CallbackToken)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("callback returned %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// record writes the attempt to the delivery log. Log failures are swallowed;
// the log is observability, not state.
func (d *Deliverer) record(ctx context.Context, jobID string, statusCode int, attemptErr error) {
	if d.log == nil {
		return
	}
	if err := d.log.RecordAttempt(ctx, jobID, statusCode, attemptErr); err != nil {
		logger.FromContext(ctx).WarnContext(ctx, "failed to record delivery attempt",
			"job_id", jobID,
			"error", err)
	}
}

// callbackHost extracts the rate-limit key from a callback URL.
func callbackHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("callback URL %q has no host", rawURL)
	}
	return u.Host, nil
}
