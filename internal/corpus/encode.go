package corpus

// TextEncoder maps text to dictionary ids. *vocab.Tokenizer implements it.
type TextEncoder interface {
	EncodeIDs(text string) []int32
}

// Encode tokenizes each sentence of doc and terminates it with sep. Sentences
// that encode to nothing are dropped. The result is truncated to maxTokens
// when maxTokens > 0, keeping the final separator.
func Encode(doc *Document, enc TextEncoder, sep int32, maxTokens int) []int32 {
	var out []int32
	for _, s := range doc.Sentences {
		ids := enc.EncodeIDs(s.Text)
		if len(ids) == 0 {
			continue
		}
		out = append(out, ids...)
		out = append(out, sep)
	}
	if maxTokens > 0 && len(out) > maxTokens {
		out = out[:maxTokens]
		out[maxTokens-1] = sep
	}
	return out
}
