package normalize

import "encoding/json"

// Known content block types. The normalizer walks a closed set of variants;
// unknown types pass through untouched so new upstream block kinds degrade
// gracefully instead of failing the job.
const (
	BlockTypeText             = "text"
	BlockTypeThinking         = "thinking"
	BlockTypeToolUse          = "tool_use"
	BlockTypeServerToolUse    = "server_tool_use"
	BlockTypeSearchToolResult = "web_search_tool_result"
	BlockTypeSearchResult     = "web_search_result"
)

// Citation location types attached to text blocks.
const (
	CitationTypeWebSearchLocation = "web_search_result_location"
	CitationTypeCharLocation      = "char_location"
)

// Response is the decoded upstream response. Only the fields the normalizer
// acts on are typed; everything else rides along in the block list.
type Response struct {
	ID         string  `json:"id,omitempty"`
	Model      string  `json:"model,omitempty"`
	StopReason string  `json:"stop_reason,omitempty"`
	Content    []Block `json:"content"`
	Usage      *Usage  `json:"usage,omitempty"`
}

// Block is one content block variant. The Type field selects which of the
// remaining fields are meaningful.
type Block struct {
	Type string `json:"type"`

	// text
	Text      string     `json:"text,omitempty"`
	Citations []Citation `json:"citations,omitempty"`

	// thinking; Signature is an integrity blob and is always stripped.
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// tool_use / server_tool_use
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// web_search_tool_result wraps nested web_search_result blocks.
	Content []Block `json:"content,omitempty"`

	// web_search_result; EncryptedContent and EncryptedIndex are opaque
	// replay blobs and are always stripped.
	URL              string `json:"url,omitempty"`
	Title            string `json:"title,omitempty"`
	EncryptedContent string `json:"encrypted_content,omitempty"`
	EncryptedIndex   string `json:"encrypted_index,omitempty"`
}

// Citation is a structured citation object attached to a text block.
type Citation struct {
	Type          string `json:"type,omitempty"`
	URL           string `json:"url,omitempty"`
	Title         string `json:"title,omitempty"`
	CitedText     string `json:"cited_text,omitempty"`
	DocumentIndex *int   `json:"document_index,omitempty"`
}

// Usage carries the token counts reported by the provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Price holds per-million-token rates for one model.
type Price struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// Options selects the pipeline stages applied to a response.
type Options struct {
	// ConsolidateCitations enables citation rewriting and the Sources
	// section. Set when the request used a search-augmented mode.
	ConsolidateCitations bool

	// StructuredContent marks the primary content field as
	// caller-requested structured output; while it parses as JSON it is
	// exempt from size capping.
	StructuredContent bool

	// FullWrapper includes the stripped upstream response alongside the
	// consolidated fields instead of the simplified output alone.
	FullWrapper bool

	// MaxTextLen caps every text-bearing string. Zero means DefaultMaxTextLen.
	MaxTextLen int

	// Prices maps model identifiers to rates; the cost block is attached
	// only when both a price entry and usage are present.
	Prices map[string]Price
}

// DefaultMaxTextLen is the per-field cap applied when Options.MaxTextLen is
// zero.
const DefaultMaxTextLen = 45000

// TruncationMarker is appended to any string the size-bounding stage capped,
// so callers can detect loss.
const TruncationMarker = "\n[truncated]"

// Result is the single predictable top-level structure returned for every
// job, regardless of which features were enabled.
type Result struct {
	ID                string          `json:"id,omitempty"`
	Model             string          `json:"model,omitempty"`
	Content           string          `json:"content"`
	StructuredContent json.RawMessage `json:"structured_content,omitempty"`
	Thinking          string          `json:"thinking,omitempty"`
	Citations         []Source        `json:"citations,omitempty"`
	Cost              *Cost           `json:"cost,omitempty"`
	StopReason        string          `json:"stop_reason,omitempty"`
	Usage             *Usage          `json:"usage,omitempty"`
	Truncated         bool            `json:"truncated,omitempty"`

	// Response is the stripped upstream response, present only when the
	// full-wrapper flag was requested.
	Response *Response `json:"response,omitempty"`
}

// Source is one entry of the consolidated, deduplicated citation list.
type Source struct {
	Number int    `json:"number"`
	URL    string `json:"url,omitempty"`
	Title  string `json:"title,omitempty"`
}

// Cost is the computed price block.
type Cost struct {
	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	TotalCost  float64 `json:"total_cost"`
}
