// Package upstream implements the generation.Generator interface against the
// HTTP API of the text-generation provider. Requests and responses are opaque
// JSON bodies; this package owns timeouts, retry, and error classification
// and nothing else.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/phrazzld/relay-api/internal/generation"
	"github.com/phrazzld/relay-api/internal/metrics"
	"github.com/phrazzld/relay-api/internal/platform/logger"
)

// Config holds the settings for the upstream HTTP client.
type Config struct {
	// BaseURL is the provider endpoint the request body is POSTed to.
	BaseURL string

	// APIKey is sent as a bearer token on every request.
	APIKey string

	// MaxAttempts is the total number of tries, first attempt included.
	MaxAttempts int

	// BaseDelay is the delay before the first retry; it doubles per attempt
	// up to MaxDelay.
	BaseDelay time.Duration

	// MaxDelay caps the per-retry backoff.
	MaxDelay time.Duration

	// AttemptTimeout bounds a single HTTP round trip. Generation can run for
	// minutes, so this is far above usual HTTP client defaults.
	AttemptTimeout time.Duration

	// OverallBudget bounds the whole Generate call across attempts and
	// backoff waits.
	OverallBudget time.Duration
}

// DefaultConfig returns the production settings: three attempts with 1s/2s
// backoff capped at 5s, an 11 minute attempt timeout, and a 13 minute
// overall budget.
func DefaultConfig(baseURL, apiKey string) Config {
	return Config{
		BaseURL:        baseURL,
		APIKey:         apiKey,
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       5 * time.Second,
		AttemptTimeout: 11 * time.Minute,
		OverallBudget:  13 * time.Minute,
	}
}

// Client calls the upstream provider over HTTP. It implements
// generation.Generator.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Compile-time check.
var _ generation.Generator = (*Client)(nil)

// NewClient creates an upstream client from the given config. An optional
// httpClient can be supplied for tests; pass nil for the default.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", generation.ErrInvalidConfig)
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("%w: max attempts must be at least 1", generation.ErrInvalidConfig)
	}
	if cfg.AttemptTimeout <= 0 {
		return nil, fmt.Errorf("%w: attempt timeout must be positive", generation.ErrInvalidConfig)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.AttemptTimeout}
	}
	return &Client{cfg: cfg, httpClient: httpClient}, nil
}

// Generate validates the request shape, then POSTs the opaque body to the
// provider with bounded retries. Transient failures (429, 5xx, timeouts,
// transport errors) are retried with doubling backoff; other 4xx responses
// return immediately wrapping generation.ErrTerminalFailure.
func (c *Client) Generate(ctx context.Context, request json.RawMessage) (json.RawMessage, error) {
	log := logger.FromContext(ctx)

	if err := generation.ValidateRequest(request); err != nil {
		return nil, err
	}

	if c.cfg.OverallBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.OverallBudget)
		defer cancel()
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		body, err := c.doAttempt(ctx, request)
		if err == nil {
			log.DebugContext(ctx, "upstream call succeeded",
				"attempt", attempt,
				"elapsed", time.Since(start).String())
			return body, nil
		}
		lastErr = err

		if !errors.Is(err, generation.ErrTransientFailure) {
			log.WarnContext(ctx, "upstream call failed permanently",
				"attempt", attempt,
				"error", err)
			return nil, err
		}

		if attempt == c.cfg.MaxAttempts {
			break
		}

		metrics.UpstreamRetriesTotal.Inc()
		delay := c.backoff(attempt)
		log.InfoContext(ctx, "retrying upstream call",
			"attempt", attempt,
			"delay", delay.String(),
			"error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, c.exhausted(ctx.Err(), start)
		}
	}

	return nil, c.exhausted(lastErr, start)
}

// backoff returns the delay before the retry following the given attempt:
// BaseDelay doubled per attempt, capped at MaxDelay.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.cfg.BaseDelay << (attempt - 1)
	if delay > c.cfg.MaxDelay {
		delay = c.cfg.MaxDelay
	}
	return delay
}

// exhausted wraps the final error with the retry count and elapsed time so
// the job's stored error message says how the budget was spent.
func (c *Client) exhausted(lastErr error, start time.Time) error {
	elapsed := time.Since(start).Round(time.Second)
	kind := "connection"
	var netErr net.Error
	if errors.As(lastErr, &netErr) && netErr.Timeout() {
		kind = "timeout"
	} else if errors.Is(lastErr, context.DeadlineExceeded) {
		kind = "timeout"
	}
	return fmt.Errorf("%w: exhausted %d attempts in %s (last failure: %s): %v",
		generation.ErrTransientFailure, c.cfg.MaxAttempts, elapsed, kind, lastErr)
}

// doAttempt performs one HTTP round trip and classifies the outcome.
func (c *Client) doAttempt(ctx context.Context, request json.RawMessage) (json.RawMessage, error) {
	attemptCtx := ctx
	if c.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(request))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", generation.ErrTerminalFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport failures and timeouts are both worth retrying.
		return nil, fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", generation.ErrTransientFailure, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: upstream returned %d: %s",
			generation.ErrTransientFailure, resp.StatusCode, summarize(body))
	default:
		return nil, fmt.Errorf("%w: upstream returned %d: %s",
			generation.ErrTerminalFailure, resp.StatusCode, summarize(body))
	}
}

// summarize trims a response body for inclusion in an error message.
func summarize(body []byte) string {
	const max = 256
	s := string(bytes.TrimSpace(body))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
