package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// citeTagPattern matches inline citation markers embedded in text, e.g.
// <cite index="0">claimed fact</cite>. The index refers to a search result
// in document order; compound indexes like "0-1" are tolerated by taking
// the leading number.
var citeTagPattern = regexp.MustCompile(`(?s)<cite\s+index="([^"]*)"\s*>(.*?)</cite>`)

// sourceList assigns each unique citation source a stable sequence number
// on first encounter. The canonical key is source identity: the URL when
// one exists, otherwise the document index.
type sourceList struct {
	byKey   map[string]int
	sources []Source
}

func newSourceList() *sourceList {
	return &sourceList{byKey: make(map[string]int)}
}

// add returns the number for the given source, assigning the next one in
// first-seen order when the key is new.
func (s *sourceList) add(key, url, title string) int {
	if n, ok := s.byKey[key]; ok {
		return n
	}
	n := len(s.sources) + 1
	s.byKey[key] = n
	s.sources = append(s.sources, Source{Number: n, URL: url, Title: title})
	return n
}

func citationKey(c Citation) string {
	if c.URL != "" {
		return c.URL
	}
	if c.DocumentIndex != nil {
		return fmt.Sprintf("doc:%d", *c.DocumentIndex)
	}
	return "text:" + c.CitedText
}

// consolidate walks the response's content blocks, rewrites both citation
// shapes (inline marker tags and structured citation-object arrays) to
// sequence numbers, and returns the consolidated text, the thinking trace,
// and the deduplicated source list. Numbering is deterministic: first-seen
// order over the block list.
func consolidate(resp *Response, withCitations bool) (content, thinking string, sources []Source) {
	list := newSourceList()
	searchResults := collectSearchResults(resp.Content)

	var parts []string
	var thinkingParts []string
	for _, b := range resp.Content {
		switch b.Type {
		case BlockTypeText:
			text := b.Text
			if withCitations {
				text = rewriteInlineMarkers(text, searchResults, list)
				text = appendBlockMarkers(text, b.Citations, list)
			}
			if text != "" {
				parts = append(parts, text)
			}
		case BlockTypeThinking:
			if b.Thinking != "" {
				thinkingParts = append(thinkingParts, b.Thinking)
			}
		}
	}

	content = strings.Join(parts, "\n\n")
	thinking = strings.Join(thinkingParts, "\n\n")

	if withCitations && len(list.sources) > 0 {
		content += "\n\n" + renderSources(list.sources)
	}
	return content, thinking, list.sources
}

// collectSearchResults flattens the web_search_result blocks nested inside
// tool-result blocks, in document order, for resolving inline marker
// indexes.
func collectSearchResults(blocks []Block) []Block {
	var results []Block
	for _, b := range blocks {
		switch b.Type {
		case BlockTypeSearchToolResult:
			for _, nested := range b.Content {
				if nested.Type == BlockTypeSearchResult {
					results = append(results, nested)
				}
			}
		case BlockTypeSearchResult:
			results = append(results, b)
		}
	}
	return results
}

// rewriteInlineMarkers replaces <cite> tags with the cited text followed by
// a numbered marker. A marker referencing an unknown source index renders
// as a placeholder rather than failing the pipeline.
func rewriteInlineMarkers(text string, searchResults []Block, list *sourceList) string {
	return citeTagPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := citeTagPattern.FindStringSubmatch(match)
		index, cited := groups[1], groups[2]

		idx, ok := parseCiteIndex(index)
		if !ok || idx < 0 || idx >= len(searchResults) {
			return cited + " [?]"
		}
		sr := searchResults[idx]
		key := sr.URL
		if key == "" {
			key = fmt.Sprintf("doc:%d", idx)
		}
		n := list.add(key, sr.URL, sr.Title)
		return fmt.Sprintf("%s [%d]", cited, n)
	})
}

// parseCiteIndex accepts a plain index and tolerates the historical
// compound "a-b" form by using the leading number.
func parseCiteIndex(s string) (int, bool) {
	if i := strings.IndexByte(s, '-'); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

// appendBlockMarkers appends numbered markers for a text block's structured
// citation array, deduplicating repeated sources within the block.
func appendBlockMarkers(text string, citations []Citation, list *sourceList) string {
	if len(citations) == 0 {
		return text
	}
	seen := make(map[int]bool)
	var markers []string
	for _, c := range citations {
		n := list.add(citationKey(c), c.URL, c.Title)
		if !seen[n] {
			seen[n] = true
			markers = append(markers, fmt.Sprintf("[%d]", n))
		}
	}
	return text + " " + strings.Join(markers, "")
}

// renderSources renders the single consolidated Sources section appended to
// the content.
func renderSources(sources []Source) string {
	var sb strings.Builder
	sb.WriteString("Sources:\n")
	for i, s := range sources {
		if i > 0 {
			sb.WriteByte('\n')
		}
		switch {
		case s.Title != "" && s.URL != "":
			fmt.Fprintf(&sb, "[%d] %s (%s)", s.Number, s.Title, s.URL)
		case s.URL != "":
			fmt.Fprintf(&sb, "[%d] %s", s.Number, s.URL)
		case s.Title != "":
			fmt.Fprintf(&sb, "[%d] %s", s.Number, s.Title)
		default:
			fmt.Fprintf(&sb, "[%d] (unattributed source)", s.Number)
		}
	}
	return sb.String()
}
