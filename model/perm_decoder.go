package model

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/jamesainslie/go-sentperm/tensor"
)

// PermDecoder predicts the original sentence order from the encoded
// shuffled document.
type PermDecoder struct {
	Embed  *Embedding
	Layers []*DecoderLayer
	Scorer Scorer

	scale float64
	pad   int
}

// NewPermDecoder returns a randomly initialized permutation decoder.
func NewPermDecoder(cfg Config, rng *rand.Rand) (*PermDecoder, error) {
	d := &PermDecoder{
		Embed: newEmbedding(cfg.TargetVocab, cfg.Hidden, cfg.Pad, rng),
		scale: math.Sqrt(float64(cfg.Hidden)),
		pad:   cfg.Pad,
	}
	for i := 0; i < cfg.PermLayers; i++ {
		d.Layers = append(d.Layers, newDecoderLayer(cfg.Hidden, cfg.PermHeads, cfg.PermFFN, !cfg.ShortenDecoder, cfg.LayerNormEps, rng))
	}

	scorer, err := NewScorer(cfg, d.Embed, rng)
	if err != nil {
		return nil, err
	}
	d.Scorer = scorer
	return d, nil
}

// Forward returns one [maxN+1, width] logit matrix per document. prev holds
// bos followed by the teacher-forced order; step t >= 1 additionally
// receives the encoder state of the slot prev[b, t] names.
func (d *PermDecoder) Forward(ctx context.Context, prev *tensor.Long, enc *EncoderOut) ([]*mat.Dense, error) {
	bsz, steps := prev.Dim(0), prev.Dim(1)
	_, dim := d.Embed.W.Dims()

	out := make([]*mat.Dense, bsz)
	for b := 0; b < bsz; b++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		states := enc.States[b]
		slots, _ := states.Dims()
		n := enc.numSentences(b)

		x := mat.NewDense(steps, dim, nil)
		for t, id := range prev.Row(b) {
			row := x.RawRowView(t)
			if t > n {
				// Padding steps see the pad embedding in place of a sentence.
				floats.AddScaled(row, d.scale+1, d.Embed.Row(d.pad))
				continue
			}
			if id < 0 || int(id) >= d.Embed.Size() {
				return nil, fmt.Errorf("%w: order token %d out of vocabulary", ErrInput, id)
			}
			floats.AddScaled(row, d.scale, d.Embed.Row(int(id)))
			sinusoid(row, d.pad+1+t)
			if t > 0 {
				if int(id) >= slots {
					return nil, fmt.Errorf("%w: order token %d names slot beyond %d", ErrInput, id, slots)
				}
				floats.Add(row, states.RawRowView(int(id)))
			}
		}

		memAllowed := enc.keyAllowed(b)
		for _, l := range d.Layers {
			x = l.Forward(x, states, memAllowed)
		}
		out[b] = d.Scorer.Score(x, states)
	}
	return out, nil
}
