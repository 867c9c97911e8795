package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPayload() json.RawMessage {
	return json.RawMessage(`{"callback_url":"https://example.com/hook","request":{}}`)
}

func TestNewJob(t *testing.T) {
	job, err := NewJob("req_abc", validPayload())
	require.NoError(t, err)

	assert.Equal(t, "req_abc", job.ID)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Nil(t, job.ProcessingStartedAt)
	assert.Nil(t, job.CompletedAt)
	assert.Nil(t, job.FetchedAt)
	assert.Zero(t, job.DeliveryRetryCount)
	assert.NoError(t, job.Validate())
}

func TestNewJobValidation(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		payload json.RawMessage
		wantErr error
	}{
		{"empty id", "", validPayload(), ErrEmptyJobID},
		{"empty payload", "req_abc", nil, ErrEmptyPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJob(tt.id, tt.payload)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateTerminalStateInvariants(t *testing.T) {
	now := time.Now().UTC()
	started := now.Add(-time.Minute)

	tests := []struct {
		name    string
		mutate  func(*Job)
		wantErr error
	}{
		{
			name: "completed with result is valid",
			mutate: func(j *Job) {
				j.Status = JobStatusCompleted
				j.Result = json.RawMessage(`{"content":"ok"}`)
				j.ProcessingStartedAt = &started
				j.CompletedAt = &now
			},
		},
		{
			name: "failed with error is valid",
			mutate: func(j *Job) {
				j.Status = JobStatusFailed
				j.Error = "upstream exhausted retries"
				j.ProcessingStartedAt = &started
				j.CompletedAt = &now
			},
		},
		{
			name: "completed without result",
			mutate: func(j *Job) {
				j.Status = JobStatusCompleted
				j.ProcessingStartedAt = &started
				j.CompletedAt = &now
			},
			wantErr: ErrInvalidTerminalState,
		},
		{
			name: "completed with both result and error",
			mutate: func(j *Job) {
				j.Status = JobStatusCompleted
				j.Result = json.RawMessage(`{}`)
				j.Error = "boom"
				j.ProcessingStartedAt = &started
				j.CompletedAt = &now
			},
			wantErr: ErrInvalidTerminalState,
		},
		{
			name: "queued with result",
			mutate: func(j *Job) {
				j.Result = json.RawMessage(`{}`)
			},
			wantErr: ErrInvalidTerminalState,
		},
		{
			name: "queued with processing_started_at set",
			mutate: func(j *Job) {
				j.ProcessingStartedAt = &started
			},
			wantErr: ErrInvalidTimestamps,
		},
		{
			name: "processing without processing_started_at",
			mutate: func(j *Job) {
				j.Status = JobStatusProcessing
			},
			wantErr: ErrInvalidTimestamps,
		},
		{
			name: "completed without completed_at",
			mutate: func(j *Job) {
				j.Status = JobStatusCompleted
				j.Result = json.RawMessage(`{}`)
				j.ProcessingStartedAt = &started
			},
			wantErr: ErrInvalidTimestamps,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := NewJob("req_abc", validPayload())
			require.NoError(t, err)
			tt.mutate(job)

			err = job.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.False(t, JobStatusQueued.IsTerminal())
	assert.False(t, JobStatusProcessing.IsTerminal())

	assert.True(t, JobStatusQueued.IsValid())
	assert.False(t, JobStatus("cancelled").IsValid())
}

func TestStale(t *testing.T) {
	now := time.Now().UTC()
	started := now.Add(-25 * time.Minute)

	job := &Job{
		ID:                  "req_abc",
		Status:              JobStatusProcessing,
		Payload:             validPayload(),
		CreatedAt:           now.Add(-30 * time.Minute),
		ProcessingStartedAt: &started,
	}

	assert.True(t, job.Stale(20*time.Minute, now))
	assert.False(t, job.Stale(30*time.Minute, now))

	job.Status = JobStatusQueued
	job.ProcessingStartedAt = nil
	assert.False(t, job.Stale(20*time.Minute, now))
}

func TestProcessingDuration(t *testing.T) {
	started := time.Now().UTC().Add(-10 * time.Minute)
	done := started.Add(3 * time.Minute)

	job := &Job{ProcessingStartedAt: &started, CompletedAt: &done}
	assert.Equal(t, 3*time.Minute, job.ProcessingDuration())

	assert.Zero(t, (&Job{}).ProcessingDuration())
}

func TestParseJobPayload(t *testing.T) {
	raw := json.RawMessage(`{
		"callback_url": "https://caller.example/hook",
		"callback_token": "tok_123",
		"request": {"model": "sonar-large", "messages": [{"role": "user", "content": "hi"}]},
		"consolidate_citations": true,
		"prices": {"sonar-large": {"input_per_mtok": 3.0, "output_per_mtok": 15.0}}
	}`)

	p, err := ParseJobPayload(raw)
	require.NoError(t, err)
	assert.Equal(t, "https://caller.example/hook", p.CallbackURL)
	assert.Equal(t, "tok_123", p.CallbackToken)
	assert.True(t, p.ConsolidateCitations)
	assert.False(t, p.StructuredContent)
	assert.Equal(t, 3.0, p.Prices["sonar-large"].InputPerMTok)
	assert.NotEmpty(t, p.Request)

	_, err = ParseJobPayload(json.RawMessage(`{not json`))
	assert.Error(t, err)
}
