package model

import (
	"context"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/jamesainslie/go-sentperm/tensor"
)

// TransformerTokenEncoder is an in-process BERT-style token encoder. It
// stands in for the pretrained encoder when no exported model is available.
type TransformerTokenEncoder struct {
	Tokens    *Embedding
	Positions *mat.Dense
	Segments  *mat.Dense
	EmbedLN   *LayerNorm
	Layers    []*EncoderLayer
}

// NewTransformerTokenEncoder returns a randomly initialized encoder over the
// source vocabulary accepting up to maxLen tokens.
func NewTransformerTokenEncoder(cfg Config, layers, maxLen int, rng *rand.Rand) *TransformerTokenEncoder {
	e := &TransformerTokenEncoder{
		Tokens:    newEmbedding(cfg.SourceVocab, cfg.Hidden, cfg.Pad, rng),
		Positions: normal(maxLen, cfg.Hidden, cfg.InitRange, rng),
		Segments:  normal(2, cfg.Hidden, cfg.InitRange, rng),
		EmbedLN:   newLayerNorm(cfg.Hidden, cfg.LayerNormEps),
	}
	for i := 0; i < layers; i++ {
		e.Layers = append(e.Layers, newEncoderLayer(cfg.Hidden, cfg.SentenceHeads, cfg.SentenceFFN, cfg.LayerNormEps, cfg.InitRange, rng))
	}
	return e
}

// Encode implements TokenEncoder.
func (e *TransformerTokenEncoder) Encode(ctx context.Context, tokens, segments *tensor.Long, mask tensor.TokenMask) ([]*mat.Dense, error) {
	bsz, length := tokens.Dim(0), tokens.Dim(1)
	if maxLen, _ := e.Positions.Dims(); length > maxLen {
		return nil, fmt.Errorf("%w: %d tokens exceed %d positions", ErrInput, length, maxLen)
	}
	_, dim := e.Positions.Dims()

	out := make([]*mat.Dense, bsz)
	for b := 0; b < bsz; b++ {
		x := mat.NewDense(length, dim, nil)
		for t, id := range tokens.Row(b) {
			if id < 0 || int(id) >= e.Tokens.Size() {
				return nil, fmt.Errorf("%w: token id %d out of vocabulary", ErrInput, id)
			}
			row := x.RawRowView(t)
			copy(row, e.Tokens.Row(int(id)))
			floats.Add(row, e.Positions.RawRowView(t))
			floats.Add(row, e.Segments.RawRowView(int(segments.At(b, t))%2))
		}
		x = e.EmbedLN.Forward(x)

		allowed := func(q, k int) bool { return mask.Allows(b, q, k) }
		for _, l := range e.Layers {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			x = l.Forward(x, allowed)
		}
		out[b] = x
	}
	return out, nil
}
