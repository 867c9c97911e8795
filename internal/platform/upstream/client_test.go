package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/relay-api/internal/generation"
)

func validRequest() json.RawMessage {
	return json.RawMessage(`{"model":"sonar-large","messages":[{"role":"user","content":"hi"}]}`)
}

// testConfig returns a config with near-zero backoff so retry tests run fast.
func testConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		MaxAttempts:    3,
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		AttemptTimeout: 2 * time.Second,
		OverallBudget:  5 * time.Second,
	}
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = NewClient(Config{BaseURL: "http://x", MaxAttempts: 0, AttemptTimeout: time.Second}, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = NewClient(Config{BaseURL: "http://x", MaxAttempts: 1}, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}

func TestGenerateSuccess(t *testing.T) {
	var gotAuth, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"msg_01","content":[{"type":"text","text":"hello"}]}`))
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), nil)
	require.NoError(t, err)

	body, err := client.Generate(context.Background(), validRequest())
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"msg_01","content":[{"type":"text","text":"hello"}]}`, string(body))
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
}

func TestGenerateMalformedRequestNotSent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), nil)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), json.RawMessage(`{"messages":[]}`))
	assert.ErrorIs(t, err, generation.ErrMalformedRequest)
	assert.Equal(t, int32(0), calls.Load())
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"msg_02"}`))
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), nil)
	require.NoError(t, err)

	body, err := client.Generate(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Contains(t, string(body), "msg_02")
	assert.Equal(t, int32(3), calls.Load())
}

func TestGenerateRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"id":"msg_03"}`))
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), nil)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerateExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), nil)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), validRequest())
	assert.ErrorIs(t, err, generation.ErrTransientFailure)
	assert.Contains(t, err.Error(), "exhausted 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestGenerateClientErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid model"}`))
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), nil)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), validRequest())
	assert.ErrorIs(t, err, generation.ErrTerminalFailure)
	assert.Contains(t, err.Error(), "invalid model")
	// 4xx other than 429 is never retried.
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateTransportErrorRetried(t *testing.T) {
	// Point at a closed server so every attempt fails at the transport level.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client, err := NewClient(testConfig(srv.URL), nil)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), validRequest())
	assert.ErrorIs(t, err, generation.ErrTransientFailure)
	assert.Contains(t, err.Error(), "connection")
}

func TestGenerateContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.BaseDelay = time.Minute
	cfg.MaxDelay = time.Minute
	client, err := NewClient(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.Generate(ctx, validRequest())
	assert.ErrorIs(t, err, generation.ErrTransientFailure)
}

func TestBackoffSchedule(t *testing.T) {
	client, err := NewClient(Config{
		BaseURL:        "http://x",
		MaxAttempts:    5,
		BaseDelay:      time.Second,
		MaxDelay:       5 * time.Second,
		AttemptTimeout: time.Second,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, time.Second, client.backoff(1))
	assert.Equal(t, 2*time.Second, client.backoff(2))
	assert.Equal(t, 4*time.Second, client.backoff(3))
	assert.Equal(t, 5*time.Second, client.backoff(4))
}
