package model

import (
	"context"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/jamesainslie/go-sentperm/tensor"
)

// TokenEncoder is the pretrained token-level encoder. Encode returns one
// [T, hidden] matrix of final hidden states per document.
type TokenEncoder interface {
	Encode(ctx context.Context, tokens, segments *tensor.Long, mask tensor.TokenMask) ([]*mat.Dense, error)
}

// EncoderOut holds the sentence representations of a batch.
type EncoderOut struct {
	// States holds one [maxSentences, hidden] matrix per document.
	States []*mat.Dense
	// Padding is [B, maxSentences], true on padding slots.
	Padding *tensor.Bool
}

// keyAllowed returns the key padding predicate of document b.
func (e *EncoderOut) keyAllowed(b int) func(q, k int) bool {
	row := e.Padding.Row(b)
	return func(_, k int) bool { return !row[k] }
}

// numSentences counts the non-padding slots of document b.
func (e *EncoderOut) numSentences(b int) int {
	n := 0
	for _, p := range e.Padding.Row(b) {
		if !p {
			n++
		}
	}
	return n
}

// SentenceEncoder builds sentence representations from the token encoder's
// class-token states, adds a learned sentence position embedding and
// contextualizes them with a BERT-style transformer.
type SentenceEncoder struct {
	Tokens    TokenEncoder
	Positions *mat.Dense
	Layers    []*EncoderLayer

	pad    int
	hidden int
}

// NewSentenceEncoder returns a randomly initialized sentence encoder.
func NewSentenceEncoder(cfg Config, tokens TokenEncoder, rng *rand.Rand) *SentenceEncoder {
	e := &SentenceEncoder{
		Tokens:    tokens,
		Positions: normal(sentencePositions, cfg.Hidden, cfg.InitRange, rng),
		pad:       cfg.Pad,
		hidden:    cfg.Hidden,
	}
	for i := 0; i < cfg.SentenceLayers; i++ {
		e.Layers = append(e.Layers, newEncoderLayer(cfg.Hidden, cfg.SentenceHeads, cfg.SentenceFFN, cfg.LayerNormEps, cfg.InitRange, rng))
	}
	return e
}

// Forward encodes a batch. docPad marks padding sentence slots and clsPos
// holds the token offset of every sentence.
func (e *SentenceEncoder) Forward(ctx context.Context, tokens, segments *tensor.Long, mask tensor.TokenMask, docPad *tensor.Bool, clsPos *tensor.Long) (*EncoderOut, error) {
	bsz, maxN := clsPos.Dim(0), clsPos.Dim(1)
	if e.pad+maxN+1 > sentencePositions {
		return nil, fmt.Errorf("%w: %d sentences exceed the %d position slots", ErrInput, maxN, sentencePositions-e.pad-1)
	}

	hidden, err := e.Tokens.Encode(ctx, tokens, segments, mask)
	if err != nil {
		return nil, fmt.Errorf("encoding tokens: %w", err)
	}
	if len(hidden) != bsz {
		return nil, fmt.Errorf("%w: token encoder returned %d documents for %d", ErrInput, len(hidden), bsz)
	}

	out := &EncoderOut{States: make([]*mat.Dense, bsz), Padding: docPad}
	for b := 0; b < bsz; b++ {
		if _, c := hidden[b].Dims(); c != e.hidden {
			return nil, fmt.Errorf("%w: token encoder hidden size %d, want %d", ErrInput, c, e.hidden)
		}
		x := mat.NewDense(maxN, e.hidden, nil)
		for j := 0; j < maxN; j++ {
			row := x.RawRowView(j)
			copy(row, hidden[b].RawRowView(int(clsPos.At(b, j))))
			floats.Add(row, e.Positions.RawRowView(e.pad+1+j))
		}
		allowed := out.keyAllowed(b)
		for _, l := range e.Layers {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			x = l.Forward(x, allowed)
		}
		out.States[b] = x
	}
	return out, nil
}
