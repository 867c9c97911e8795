package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/relay-api/internal/domain"
	"github.com/phrazzld/relay-api/internal/store"
)

func TestMapErrorToStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", store.ErrJobNotFound, http.StatusNotFound},
		{"duplicate id", store.ErrJobExists, http.StatusConflict},
		{"busy", store.ErrJobBusy, http.StatusConflict},
		{"already completed", store.ErrAlreadyCompleted, http.StatusConflict},
		{"already failed", store.ErrAlreadyFailed, http.StatusConflict},
		{"empty id", domain.ErrEmptyJobID, http.StatusBadRequest},
		{"empty payload", domain.ErrEmptyPayload, http.StatusBadRequest},
		{"wrapped", fmt.Errorf("loading job: %w", store.ErrJobNotFound), http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapErrorToStatusCode(tt.err))
		})
	}
}

func TestGetSafeErrorMessageNeverEchoesInternals(t *testing.T) {
	err := fmt.Errorf("pq: connection to postgres://u:p@db failed: %w", errors.New("boom"))
	msg := GetSafeErrorMessage(err)
	assert.Equal(t, "An unexpected error occurred", msg)
	assert.NotContains(t, msg, "postgres")
}
