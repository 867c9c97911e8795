// Package storetest provides in-memory implementations of the store
// interfaces with the same transition semantics as the Postgres ones, for
// use in package tests.
package storetest

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/phrazzld/relay-api/internal/domain"
	"github.com/phrazzld/relay-api/internal/store"
)

// MemoryJobStore is a map-backed store.JobStore. All transition guards match
// the SQL implementation so state-machine tests exercise the same rules.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job

	// Now is the clock used for timestamps; replace it in tests that need
	// deterministic time.
	Now func() time.Time
}

// NewMemoryJobStore creates an empty in-memory store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]*domain.Job),
		Now:  func() time.Time { return time.Now().UTC() },
	}
}

var _ store.JobStore = (*MemoryJobStore)(nil)

// Seed inserts a job directly, bypassing transition checks.
func (m *MemoryJobStore) Seed(job *domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
}

func (m *MemoryJobStore) Create(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return store.ErrJobExists
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MemoryJobStore) Get(_ context.Context, id string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *MemoryJobStore) BeginProcessing(_ context.Context, id string, staleAfter time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	now := m.Now()
	switch job.Status {
	case domain.JobStatusQueued:
	case domain.JobStatusProcessing:
		if !job.Stale(staleAfter, now) {
			return store.ErrJobBusy
		}
	case domain.JobStatusCompleted:
		return store.ErrAlreadyCompleted
	case domain.JobStatusFailed:
		return store.ErrAlreadyFailed
	}
	job.Status = domain.JobStatusProcessing
	job.ProcessingStartedAt = &now
	job.Error = ""
	return nil
}

func (m *MemoryJobStore) Complete(_ context.Context, id string, result json.RawMessage) error {
	return m.finish(id, func(job *domain.Job) {
		job.Status = domain.JobStatusCompleted
		job.Result = result
		job.Error = ""
	})
}

func (m *MemoryJobStore) Fail(_ context.Context, id string, errMsg string) error {
	return m.finish(id, func(job *domain.Job) {
		job.Status = domain.JobStatusFailed
		job.Result = nil
		job.Error = errMsg
	})
}

func (m *MemoryJobStore) finish(id string, apply func(*domain.Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return store.ErrNotProcessing
	}
	apply(job)
	now := m.Now()
	job.CompletedAt = &now
	return nil
}

func (m *MemoryJobStore) MarkFetched(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.Status == domain.JobStatusCompleted && job.FetchedAt == nil {
		now := m.Now()
		job.FetchedAt = &now
	}
	return nil
}

func (m *MemoryJobStore) ListUnconfirmed(_ context.Context, grace, retention time.Duration, maxRetries, limit int) ([]*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	var out []*domain.Job
	for _, job := range m.jobs {
		if job.Status != domain.JobStatusCompleted || job.FetchedAt != nil || job.CompletedAt == nil {
			continue
		}
		if job.DeliveryRetryCount >= maxRetries {
			continue
		}
		age := now.Sub(*job.CompletedAt)
		if age < grace || age > retention {
			continue
		}
		cp := *job
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.Before(*out[j].CompletedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryJobStore) RecordDeliveryRetry(_ context.Context, id string, maxRetries int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.DeliveryRetryCount >= maxRetries {
		return store.ErrRetryBudgetExhausted
	}
	job.DeliveryRetryCount++
	now := m.Now()
	job.LastDeliveryRetryAt = &now
	return nil
}

func (m *MemoryJobStore) ListQueued(_ context.Context, limit int) ([]*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Job
	for _, job := range m.jobs {
		if job.Status != domain.JobStatusQueued {
			continue
		}
		cp := *job
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemoryDeliveryLog records attempts in memory.
type MemoryDeliveryLog struct {
	mu       sync.Mutex
	attempts []Attempt
}

// Attempt is one recorded delivery attempt.
type Attempt struct {
	JobID      string
	StatusCode int
	Err        error
}

var _ store.DeliveryLog = (*MemoryDeliveryLog)(nil)

func (l *MemoryDeliveryLog) RecordAttempt(_ context.Context, jobID string, statusCode int, attemptErr error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, Attempt{JobID: jobID, StatusCode: statusCode, Err: attemptErr})
	return nil
}

// Attempts returns a copy of the recorded attempts.
func (l *MemoryDeliveryLog) Attempts() []Attempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Attempt(nil), l.attempts...)
}
