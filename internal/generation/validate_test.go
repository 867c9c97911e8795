package generation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		request json.RawMessage
		wantErr error
	}{
		{
			name:    "valid minimal request",
			request: json.RawMessage(`{"model":"sonar-large","messages":[{"role":"user","content":"hi"}]}`),
			wantErr: nil,
		},
		{
			name:    "empty body",
			request: nil,
			wantErr: ErrMalformedRequest,
		},
		{
			name:    "not JSON",
			request: json.RawMessage(`{broken`),
			wantErr: ErrMalformedRequest,
		},
		{
			name:    "missing model",
			request: json.RawMessage(`{"messages":[{"role":"user","content":"hi"}]}`),
			wantErr: ErrMalformedRequest,
		},
		{
			name:    "no messages",
			request: json.RawMessage(`{"model":"sonar-large","messages":[]}`),
			wantErr: ErrMalformedRequest,
		},
		{
			name:    "extra provider fields tolerated",
			request: json.RawMessage(`{"model":"m","messages":[{}],"temperature":0.2,"tools":[{"type":"web_search"}]}`),
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.request)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRequestModel(t *testing.T) {
	assert.Equal(t, "sonar-large", RequestModel(json.RawMessage(`{"model":"sonar-large","messages":[{}]}`)))
	assert.Empty(t, RequestModel(json.RawMessage(`{"messages":[{}]}`)))
	assert.Empty(t, RequestModel(json.RawMessage(`{broken`)))
}
