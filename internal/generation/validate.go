package generation

import (
	"encoding/json"
	"fmt"
)

// requestShape is the minimum structure every outbound request must carry.
// Everything else in the body is the provider's concern.
type requestShape struct {
	Model    string            `json:"model"`
	Messages []json.RawMessage `json:"messages"`
}

// ValidateRequest checks the opaque request body for the minimum required
// shape before any network time is spent. Failures wrap
// ErrMalformedRequest and are never retried.
func ValidateRequest(request json.RawMessage) error {
	if len(request) == 0 {
		return fmt.Errorf("%w: empty request body", ErrMalformedRequest)
	}

	var shape requestShape
	if err := json.Unmarshal(request, &shape); err != nil {
		return fmt.Errorf("%w: not a JSON object: %v", ErrMalformedRequest, err)
	}
	if shape.Model == "" {
		return fmt.Errorf("%w: missing model identifier", ErrMalformedRequest)
	}
	if len(shape.Messages) == 0 {
		return fmt.Errorf("%w: request has no messages", ErrMalformedRequest)
	}
	return nil
}

// RequestModel extracts the model identifier from an opaque request body,
// for logging and price-table lookup. Returns an empty string when absent.
func RequestModel(request json.RawMessage) string {
	var shape requestShape
	if err := json.Unmarshal(request, &shape); err != nil {
		return ""
	}
	return shape.Model
}
