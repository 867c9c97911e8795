package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNilResponse is returned when Normalize is called without a response.
var ErrNilResponse = errors.New("response cannot be nil")

// Parse decodes a raw upstream response body into the typed block tree.
func Parse(raw json.RawMessage) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode upstream response: %w", err)
	}
	return &resp, nil
}

// Normalize runs the full pipeline over a raw response: strip sensitive
// fields, consolidate citations, bound sizes, normalize the shape, and
// attach the cost block. It is pure and deterministic; the same response
// and options always yield the same result.
func Normalize(resp *Response, opts Options) (*Result, error) {
	if resp == nil {
		return nil, ErrNilResponse
	}
	max := opts.MaxTextLen
	if max <= 0 {
		max = DefaultMaxTextLen
	}

	stripped := Strip(resp)
	content, thinking, sources := consolidate(stripped, opts.ConsolidateCitations)

	res := &Result{
		ID:         stripped.ID,
		Model:      stripped.Model,
		Content:    content,
		Thinking:   thinking,
		Citations:  sources,
		StopReason: stripped.StopReason,
		Usage:      stripped.Usage,
	}
	if opts.FullWrapper {
		res.Response = stripped
	}

	// A structured-content response that no longer parses falls back to
	// plain text rather than failing the job.
	structuredExempt := false
	if opts.StructuredContent {
		if json.Valid([]byte(content)) {
			res.StructuredContent = json.RawMessage(content)
			structuredExempt = true
		}
	}

	bound(res, max, structuredExempt)
	res.Cost = computeCost(stripped.Model, stripped.Usage, opts.Prices)

	return res, nil
}
