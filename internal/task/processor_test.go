package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/relay-api/internal/delivery"
	"github.com/phrazzld/relay-api/internal/domain"
	"github.com/phrazzld/relay-api/internal/store"
	"github.com/phrazzld/relay-api/internal/store/storetest"
)

type stubGenerator struct {
	mu       sync.Mutex
	response json.RawMessage
	err      error
	calls    int
}

func (g *stubGenerator) Generate(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.response, g.err
}

func (g *stubGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func testPayload(t *testing.T, callbackURL string) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"callback_url": callbackURL,
		"request":      map[string]any{"model": "m", "messages": []any{map[string]any{"role": "user"}}},
		"prices": map[string]any{
			"m": map[string]any{"input_per_mtok": 3.0, "output_per_mtok": 15.0},
		},
	})
	require.NoError(t, err)
	return payload
}

func seedQueuedJob(t *testing.T, jobs *storetest.MemoryJobStore, id, callbackURL string) {
	t.Helper()
	job, err := domain.NewJob(id, testPayload(t, callbackURL))
	require.NoError(t, err)
	jobs.Seed(job)
}

func upstreamResponse() json.RawMessage {
	return json.RawMessage(`{
		"id": "msg_01",
		"model": "m",
		"stop_reason": "end_turn",
		"content": [{"type": "text", "text": "generated answer"}],
		"usage": {"input_tokens": 1000, "output_tokens": 500}
	}`)
}

func TestProcessorCompletesJob(t *testing.T) {
	var notified []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		notified = append(notified, body.ID+":"+body.Status)
		mu.Unlock()
	}))
	defer srv.Close()

	jobs := storetest.NewMemoryJobStore()
	seedQueuedJob(t, jobs, "job-1", srv.URL)

	gen := &stubGenerator{response: upstreamResponse()}
	deliverer := delivery.NewDeliverer(delivery.NewLocalRateLimiter(time.Millisecond), nil, nil)
	p := NewProcessor(jobs, gen, deliverer, 0)

	require.NoError(t, p.Process(context.Background(), "job-1"))

	job, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	require.NoError(t, job.Validate())

	var result map[string]any
	require.NoError(t, json.Unmarshal(job.Result, &result))
	assert.Equal(t, "generated answer", result["content"])
	cost, ok := result["cost"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 0.0105, cost["total_cost"], 1e-9)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"job-1:completed"}, notified)
}

func TestProcessorFailsJobOnUpstreamError(t *testing.T) {
	jobs := storetest.NewMemoryJobStore()
	seedQueuedJob(t, jobs, "job-2", "")

	gen := &stubGenerator{err: fmt.Errorf("transient upstream error: exhausted 3 attempts")}
	p := NewProcessor(jobs, gen, nil, 0)

	// A failed job is still a processed job.
	require.NoError(t, p.Process(context.Background(), "job-2"))

	job, err := jobs.Get(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "exhausted 3 attempts")
	assert.Empty(t, job.Result)
	require.NoError(t, job.Validate())
}

func TestProcessorFailsJobOnMalformedUpstreamResponse(t *testing.T) {
	jobs := storetest.NewMemoryJobStore()
	seedQueuedJob(t, jobs, "job-3", "")

	gen := &stubGenerator{response: json.RawMessage(`{not json`)}
	p := NewProcessor(jobs, gen, nil, 0)

	require.NoError(t, p.Process(context.Background(), "job-3"))

	job, err := jobs.Get(context.Background(), "job-3")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "normalizing response")
}

func TestProcessorFailsJobOnInvalidPayload(t *testing.T) {
	jobs := storetest.NewMemoryJobStore()
	job, err := domain.NewJob("job-4", json.RawMessage(`"not an object"`))
	require.NoError(t, err)
	jobs.Seed(job)

	p := NewProcessor(jobs, &stubGenerator{}, nil, 0)
	require.NoError(t, p.Process(context.Background(), "job-4"))

	got, err := jobs.Get(context.Background(), "job-4")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "invalid job payload")
}

func TestProcessorSkipsTerminalJob(t *testing.T) {
	jobs := storetest.NewMemoryJobStore()
	now := time.Now().UTC()
	jobs.Seed(&domain.Job{
		ID:                  "job-5",
		Status:              domain.JobStatusCompleted,
		Payload:             testPayload(t, ""),
		Result:              json.RawMessage(`{"content":"done"}`),
		CreatedAt:           now,
		ProcessingStartedAt: &now,
		CompletedAt:         &now,
	})

	gen := &stubGenerator{response: upstreamResponse()}
	p := NewProcessor(jobs, gen, nil, 0)

	err := p.Process(context.Background(), "job-5")
	assert.ErrorIs(t, err, store.ErrAlreadyCompleted)
	assert.True(t, store.IsNoOpBegin(err))
	assert.Equal(t, 0, gen.callCount())
}

func TestProcessorSkipsBusyJob(t *testing.T) {
	jobs := storetest.NewMemoryJobStore()
	now := time.Now().UTC()
	jobs.Seed(&domain.Job{
		ID:                  "job-6",
		Status:              domain.JobStatusProcessing,
		Payload:             testPayload(t, ""),
		CreatedAt:           now,
		ProcessingStartedAt: &now,
	})

	p := NewProcessor(jobs, &stubGenerator{}, nil, 0)
	err := p.Process(context.Background(), "job-6")
	assert.ErrorIs(t, err, store.ErrJobBusy)
}

func TestProcessorReclaimsStaleJob(t *testing.T) {
	jobs := storetest.NewMemoryJobStore()
	now := time.Now().UTC()
	staleStart := now.Add(-time.Hour)
	jobs.Seed(&domain.Job{
		ID:                  "job-7",
		Status:              domain.JobStatusProcessing,
		Payload:             testPayload(t, ""),
		CreatedAt:           staleStart,
		ProcessingStartedAt: &staleStart,
	})

	gen := &stubGenerator{response: upstreamResponse()}
	p := NewProcessor(jobs, gen, nil, 20*time.Minute)

	require.NoError(t, p.Process(context.Background(), "job-7"))

	job, err := jobs.Get(context.Background(), "job-7")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, gen.callCount())
}

func TestProcessorUnknownJob(t *testing.T) {
	p := NewProcessor(storetest.NewMemoryJobStore(), &stubGenerator{}, nil, 0)
	err := p.Process(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrJobNotFound)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunnerProcessesTriggeredJobs(t *testing.T) {
	jobs := storetest.NewMemoryJobStore()
	seedQueuedJob(t, jobs, "job-a", "")
	seedQueuedJob(t, jobs, "job-b", "")

	gen := &stubGenerator{response: upstreamResponse()}
	p := NewProcessor(jobs, gen, nil, 0)

	trigger := NewChannelTrigger(10, discardLogger())
	runner := NewRunner(p, trigger, jobs, RunnerConfig{WorkerCount: 2, RecoveryBatchSize: 10}, discardLogger())

	require.NoError(t, runner.Start(context.Background()))
	defer runner.Stop()

	// Startup recovery re-triggers both queued jobs without explicit Notify.
	require.Eventually(t, func() bool {
		a, err := jobs.Get(context.Background(), "job-a")
		if err != nil || a.Status != domain.JobStatusCompleted {
			return false
		}
		b, err := jobs.Get(context.Background(), "job-b")
		return err == nil && b.Status == domain.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunnerDuplicateTriggersAreHarmless(t *testing.T) {
	jobs := storetest.NewMemoryJobStore()
	seedQueuedJob(t, jobs, "job-dup", "")

	gen := &stubGenerator{response: upstreamResponse()}
	p := NewProcessor(jobs, gen, nil, 0)

	trigger := NewChannelTrigger(10, discardLogger())
	runner := NewRunner(p, trigger, jobs, RunnerConfig{WorkerCount: 1, RecoveryBatchSize: 0}, discardLogger())
	require.NoError(t, runner.Start(context.Background()))
	defer runner.Stop()

	ctx := context.Background()
	require.NoError(t, trigger.Notify(ctx, "job-dup"))
	require.NoError(t, trigger.Notify(ctx, "job-dup"))
	require.NoError(t, trigger.Notify(ctx, "job-dup"))

	require.Eventually(t, func() bool {
		job, err := jobs.Get(ctx, "job-dup")
		return err == nil && job.Status == domain.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	// Only the first trigger resulted in an upstream call.
	assert.Equal(t, 1, gen.callCount())
}

func TestChannelTriggerDropsWhenFull(t *testing.T) {
	trigger := NewChannelTrigger(1, discardLogger())
	ctx := context.Background()

	require.NoError(t, trigger.Notify(ctx, "first"))
	// Buffer full; the notification is dropped, not blocked on.
	require.NoError(t, trigger.Notify(ctx, "second"))

	assert.Equal(t, "first", <-trigger.Jobs())
	select {
	case id := <-trigger.Jobs():
		t.Fatalf("unexpected job id %q", id)
	default:
	}
}

func TestProcessorCompleteAfterClaimLost(t *testing.T) {
	jobs := storetest.NewMemoryJobStore()
	seedQueuedJob(t, jobs, "job-race", "")

	// The generator simulates a slow call during which another worker
	// reclaims and finishes the job.
	gen := &stubGenerator{response: upstreamResponse()}
	p := NewProcessor(jobs, gen, nil, 0)

	require.NoError(t, jobs.BeginProcessing(context.Background(), "job-race", time.Minute))
	require.NoError(t, jobs.Fail(context.Background(), "job-race", "finished elsewhere"))

	err := p.Process(context.Background(), "job-race")
	assert.True(t, errors.Is(err, store.ErrAlreadyFailed))
}
