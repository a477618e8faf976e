// Package document turns flat token sequences into sentence-structured
// documents and applies the permutation and masking corruptions used for
// pretraining.
package document

import (
	"errors"
	"slices"
)

// ErrInvariant reports a violated structural postcondition. It indicates a
// bug, never bad input.
var ErrInvariant = errors.New("document: invariant violated")

// Sentence is a token id sequence.
type Sentence []int32

// Document is an ordered list of sentences.
type Document []Sentence

// Specials are the token ids the transforms insert or check.
type Specials struct {
	CLS  int32
	Sep  int32
	Mask int32
}

// NumTokens returns the total token count.
func (d Document) NumTokens() int {
	n := 0
	for _, s := range d {
		n += len(s)
	}
	return n
}

// Clone deep copies d.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for i, s := range d {
		out[i] = slices.Clone(s)
	}
	return out
}

// Structure is a flattened document with the offset of each sentence's first
// token.
type Structure struct {
	Tokens  []int32
	Offsets []int
}

// Flatten concatenates the sentences of d and records their start offsets.
func (d Document) Flatten() Structure {
	s := Structure{
		Tokens:  make([]int32, 0, d.NumTokens()),
		Offsets: make([]int, len(d)),
	}
	for i, sent := range d {
		s.Offsets[i] = len(s.Tokens)
		s.Tokens = append(s.Tokens, sent...)
	}
	return s
}

// NumSentences returns the sentence count.
func (s Structure) NumSentences() int { return len(s.Offsets) }

// Sentence returns sentence i as a view into Tokens.
func (s Structure) Sentence(i int) Sentence {
	end := len(s.Tokens)
	if i+1 < len(s.Offsets) {
		end = s.Offsets[i+1]
	}
	return s.Tokens[s.Offsets[i]:end]
}

// Split cuts tokens after each sep occurrence. A trailing remainder without
// separator becomes the last sentence.
func Split(tokens []int32, sep int32) []Sentence {
	var out []Sentence
	start := 0
	for i, tok := range tokens {
		if tok == sep {
			out = append(out, Sentence(slices.Clone(tokens[start:i+1])))
			start = i + 1
		}
	}
	if start < len(tokens) {
		out = append(out, Sentence(slices.Clone(tokens[start:])))
	}
	return out
}

// Limits bound the size of a prepared document. Zero means unlimited.
type Limits struct {
	MaxSentences   int
	MaxSentenceLen int
	MaxTokens      int
}

// Prepare splits a source sequence into sentences, caps their count and
// length, prefixes the class id to each and truncates the document to the
// token budget. A nil result means the source had no sentences.
func Prepare(source []int32, ids Specials, lim Limits) Document {
	sents := Split(source, ids.Sep)
	if len(sents) == 0 {
		return nil
	}
	if lim.MaxSentences > 0 && len(sents) > lim.MaxSentences {
		sents = sents[:lim.MaxSentences]
	}

	doc := make(Document, len(sents))
	for i, s := range sents {
		// Capped sentences keep MaxSentenceLen tokens plus the separator.
		if lim.MaxSentenceLen > 0 && len(s) > lim.MaxSentenceLen+1 {
			s = append(s[:lim.MaxSentenceLen:lim.MaxSentenceLen], ids.Sep)
		}
		doc[i] = append(Sentence{ids.CLS}, s...)
	}

	last := doc[len(doc)-1]
	if last[len(last)-1] != ids.Sep {
		doc[len(doc)-1] = append(last, ids.Sep)
	}

	if lim.MaxTokens > 0 {
		doc = Truncate(doc, lim.MaxTokens)
	}
	return doc
}

// Truncate keeps the longest sentence prefix of d whose token total stays
// within maxTokens.
func Truncate(d Document, maxTokens int) Document {
	total := 0
	for i, s := range d {
		total += len(s)
		if total > maxTokens {
			return d[:i]
		}
	}
	return d
}
