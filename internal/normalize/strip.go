package normalize

// Strip returns a copy of the response with bulk and internal-only fields
// removed: thinking signatures and the encrypted replay blobs carried by
// search results. These are never semantically needed by the caller and
// dominate response size.
func Strip(resp *Response) *Response {
	if resp == nil {
		return nil
	}
	out := *resp
	out.Content = stripBlocks(resp.Content)
	return &out
}

func stripBlocks(blocks []Block) []Block {
	if blocks == nil {
		return nil
	}
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		b.Signature = ""
		b.EncryptedContent = ""
		b.EncryptedIndex = ""
		if len(b.Content) > 0 {
			b.Content = stripBlocks(b.Content)
		}
		if len(b.Citations) > 0 {
			b.Citations = append([]Citation(nil), b.Citations...)
		}
		out[i] = b
	}
	return out
}
