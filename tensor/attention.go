package tensor

// TokenMask is the attention mask of the token encoder. Allowed is [B, T]
// for a key padding mask or [B, T, T] for a pairwise mask, and is true where
// attention is permitted.
type TokenMask struct {
	Allowed *Bool
}

// NewTokenMask builds the token attention mask of a document batch. Without
// otherSentences it marks every non-pad token as attendable. With it, a
// token may only attend tokens of its own sentence; the last sentence spans
// to the end of the non-pad tokens.
func NewTokenMask(tokens, clsPos *Long, nsents []int, pad int64, otherSentences bool) TokenMask {
	bsz, length := tokens.Dim(0), tokens.Dim(1)
	keys := NewBool(false, bsz, length)
	nTokens := make([]int, bsz)
	for i := 0; i < bsz; i++ {
		row := keys.Row(i)
		for j, tok := range tokens.Row(i) {
			if tok != pad {
				row[j] = true
				nTokens[i]++
			}
		}
	}
	if !otherSentences {
		return TokenMask{Allowed: keys}
	}

	pairs := NewBool(false, bsz, length, length)
	for i := 0; i < bsz; i++ {
		for s := 0; s < nsents[i]; s++ {
			start := int(clsPos.At(i, s))
			end := nTokens[i]
			if s+1 < nsents[i] {
				end = int(clsPos.At(i, s+1))
			}
			for q := start; q < end; q++ {
				row := pairs.Row(i, q)
				for k := start; k < end; k++ {
					row[k] = true
				}
			}
		}
	}
	return TokenMask{Allowed: pairs}
}

// Pairwise reports whether the mask restricts attention per query token.
func (m TokenMask) Pairwise() bool {
	return m.Allowed != nil && len(m.Allowed.shape) == 3
}

// Allows reports whether query q of document b may attend key k.
func (m TokenMask) Allows(b, q, k int) bool {
	if m.Pairwise() {
		return m.Allowed.At(b, q, k)
	}
	return m.Allowed.At(b, k)
}

// Int64 returns the mask as 0/1 values with the shape the encoder expects:
// [B, T] or [B, 1, T, T].
func (m TokenMask) Int64() ([]int64, []int64) {
	data := make([]int64, len(m.Allowed.data))
	for i, ok := range m.Allowed.data {
		if ok {
			data[i] = 1
		}
	}
	s := m.Allowed.shape
	if m.Pairwise() {
		return data, []int64{int64(s[0]), 1, int64(s[1]), int64(s[2])}
	}
	return data, []int64{int64(s[0]), int64(s[1])}
}
