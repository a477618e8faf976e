package vocab

import (
	"strings"
	"unicode"
)

const (
	negInf = -1e9

	sentencePieceSpace = '▁'
)

// EncodeIDs returns dictionary ids for the input text.
func (t *Tokenizer) EncodeIDs(text string) []int32 {
	tokens := t.Encode(text)
	ids := make([]int32, len(tokens))
	for i, tok := range tokens {
		ids[i] = tok.ID
	}
	return ids
}

// Encode tokenizes text with the unigram Viterbi search.
func (t *Tokenizer) Encode(text string) []TokenInfo {
	normalized := t.normalize(text)
	if normalized == "" {
		return nil
	}

	runes := []rune(normalized)
	n := len(runes)

	// best[i] is the best score for runes[0:i]; parent[i] the start of the
	// token ending at i.
	best := make([]float64, n+1)
	parent := make([]int, n+1)
	tokenAt := make([]string, n+1)
	for i := 1; i <= n; i++ {
		best[i] = negInf
		parent[i] = -1
	}

	for i := 1; i <= n; i++ {
		for j := i - 1; j >= 0; j-- {
			substr := string(runes[j:i])
			if len(substr) > t.maxTokenLen {
				break
			}
			score, ok := t.scores[substr]
			if !ok {
				continue
			}
			if candidate := best[j] + float64(score); candidate > best[i] {
				best[i] = candidate
				parent[i] = j
				tokenAt[i] = substr
			}
		}

		if best[i] == negInf {
			best[i] = best[i-1] + float64(t.unkScore)
			parent[i] = i - 1
			tokenAt[i] = string(runes[i-1 : i])
		}
	}

	var tokens []TokenInfo
	for pos := n; pos > 0; pos = parent[pos] {
		piece := tokenAt[pos]
		spIndex, ok := t.pieces[piece]
		if !ok {
			spIndex = 0
		}
		tokens = append(tokens, TokenInfo{
			ID:    spIndexToID(spIndex),
			Text:  piece,
			Start: parent[pos],
			End:   pos,
		})
	}

	for i, j := 0, len(tokens)-1; i < j; i, j = i+1, j-1 {
		tokens[i], tokens[j] = tokens[j], tokens[i]
	}
	return tokens
}

// normalize collapses whitespace runs into ▁, trims trailing space and adds
// the dummy prefix when the model asks for it.
func (t *Tokenizer) normalize(text string) string {
	var b strings.Builder
	needSpace := t.addDummyPrefix
	for _, r := range text {
		if unicode.IsSpace(r) {
			if b.Len() > 0 {
				needSpace = true
			}
			continue
		}
		if needSpace {
			b.WriteRune(sentencePieceSpace)
			needSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
