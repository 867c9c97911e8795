package domain

import "encoding/json"

// JobPayload is the decoded form of a job's payload blob. The core treats
// the stored payload as immutable; this struct exists so the worker and the
// deliverer can read the delivery metadata and formatting flags recorded at
// submission time.
type JobPayload struct {
	// CallbackURL is where the completion notice is pushed.
	CallbackURL string `json:"callback_url"`

	// CallbackToken is the opaque bearer token presented on the push. It is
	// supplied by the caller and passed through verbatim.
	CallbackToken string `json:"callback_token"`

	// Request is the complete outbound request body for the upstream
	// provider, forwarded as-is.
	Request json.RawMessage `json:"request"`

	// Formatting flags selected at submission time.
	ConsolidateCitations bool `json:"consolidate_citations,omitempty"`
	StructuredContent    bool `json:"structured_content,omitempty"`
	FullWrapper          bool `json:"full_wrapper,omitempty"`

	// Prices maps model identifiers to per-million-token rates used for the
	// cost block. Optional; cost is omitted when absent.
	Prices map[string]ModelPrice `json:"prices,omitempty"`
}

// ModelPrice holds the input/output rates for one model, expressed per
// million tokens.
type ModelPrice struct {
	InputPerMTok  float64 `json:"input_per_mtok"`
	OutputPerMTok float64 `json:"output_per_mtok"`
}

// ParseJobPayload decodes a stored payload blob.
func ParseJobPayload(raw json.RawMessage) (*JobPayload, error) {
	var p JobPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
