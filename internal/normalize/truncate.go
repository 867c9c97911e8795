package normalize

// capText bounds a single string at max characters, appending the
// truncation marker when anything was cut so callers can detect loss.
func capText(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	return s[:max] + TruncationMarker, true
}

// bound applies the size cap to every text-bearing field of the result.
// When the caller requested structured content and the primary field still
// parses per the requested structure, that field is exempt: truncating it
// would corrupt the structure.
func bound(res *Result, max int, structuredExempt bool) {
	var truncated bool

	if !structuredExempt {
		var cut bool
		res.Content, cut = capText(res.Content, max)
		truncated = truncated || cut
	}

	var cut bool
	res.Thinking, cut = capText(res.Thinking, max)
	truncated = truncated || cut

	if res.Response != nil {
		res.Response.Content, cut = boundBlocks(res.Response.Content, max)
		truncated = truncated || cut
	}

	res.Truncated = truncated
}

func boundBlocks(blocks []Block, max int) ([]Block, bool) {
	var truncated bool
	for i := range blocks {
		var cut bool
		blocks[i].Text, cut = capText(blocks[i].Text, max)
		truncated = truncated || cut
		blocks[i].Thinking, cut = capText(blocks[i].Thinking, max)
		truncated = truncated || cut
		if len(blocks[i].Content) > 0 {
			blocks[i].Content, cut = boundBlocks(blocks[i].Content, max)
			truncated = truncated || cut
		}
	}
	return blocks, truncated
}
