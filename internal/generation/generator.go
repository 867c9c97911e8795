package generation

import (
	"context"
	"encoding/json"
)

// Generator defines the interface for executing a job's outbound request
// against the upstream text-generation provider. It is the boundary between
// the application core and the external service; the request body is opaque
// and forwarded verbatim.
type Generator interface {
	// Generate sends the request and returns the provider's raw response
	// body. Errors are classified per errors.go: transient failures are
	// retried internally, and the returned error reflects the final
	// outcome.
	Generate(ctx context.Context, request json.RawMessage) (json.RawMessage, error)
}
