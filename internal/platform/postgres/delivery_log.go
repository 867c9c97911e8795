package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/relay-api/internal/store"
)

// PostgresDeliveryLog records webhook delivery attempts in a side table.
// Purely for observability; nothing on the hot path reads it.
type PostgresDeliveryLog struct {
	db store.DBTX
}

// NewPostgresDeliveryLog creates a new PostgresDeliveryLog.
func NewPostgresDeliveryLog(db store.DBTX) *PostgresDeliveryLog {
	return &PostgresDeliveryLog{db: db}
}

// RecordAttempt inserts one delivery attempt row.
func (l *PostgresDeliveryLog) RecordAttempt(ctx context.Context, jobID string, statusCode int, attemptErr error) error {
	var errMsg string
	if attemptErr != nil {
		errMsg = attemptErr.Error()
	}

	query := `
		INSERT INTO delivery_attempts (id, job_id, http_status, error, attempted_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
	`
	_, err := l.db.ExecContext(ctx, query,
		uuid.New(), jobID, statusCode, errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record delivery attempt: %w", err)
	}
	return nil
}
