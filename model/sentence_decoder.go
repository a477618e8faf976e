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

// SentenceDecoder reconstructs masked sentences. positions is
// [B, maxSelected] with counts[b] valid entries per row, prev is the
// [B, maxSelected, maxLen] teacher-forcing input. The result holds, per
// document, one [maxLen, vocab] logit matrix per valid masked sentence.
type SentenceDecoder interface {
	Decode(ctx context.Context, enc *EncoderOut, positions *tensor.Long, counts []int, prev *tensor.Long) ([][]*mat.Dense, error)
}

// TransformerSentenceDecoder is a transformer decoder conditioned on the
// encoder state of the masked slot and attending over the whole document.
type TransformerSentenceDecoder struct {
	Embed  *Embedding
	Layers []*DecoderLayer

	scale float64
	pad   int
}

// NewTransformerSentenceDecoder returns a randomly initialized decoder over
// the source vocabulary.
func NewTransformerSentenceDecoder(cfg Config, rng *rand.Rand) *TransformerSentenceDecoder {
	d := &TransformerSentenceDecoder{
		Embed: newEmbedding(cfg.SourceVocab, cfg.Hidden, cfg.Pad, rng),
		scale: math.Sqrt(float64(cfg.Hidden)),
		pad:   cfg.Pad,
	}
	for i := 0; i < cfg.MaskLayers; i++ {
		d.Layers = append(d.Layers, newDecoderLayer(cfg.Hidden, cfg.MaskHeads, cfg.MaskFFN, true, cfg.LayerNormEps, rng))
	}
	return d
}

// Decode implements SentenceDecoder.
func (d *TransformerSentenceDecoder) Decode(ctx context.Context, enc *EncoderOut, positions *tensor.Long, counts []int, prev *tensor.Long) ([][]*mat.Dense, error) {
	bsz := positions.Dim(0)
	if len(counts) != bsz || prev.Dim(0) != bsz {
		return nil, fmt.Errorf("%w: %d position rows, %d counts, %d input rows", ErrInput, bsz, len(counts), prev.Dim(0))
	}
	length := prev.Dim(2)
	_, dim := d.Embed.W.Dims()

	out := make([][]*mat.Dense, bsz)
	for b := 0; b < bsz; b++ {
		states := enc.States[b]
		slots, _ := states.Dims()
		memAllowed := enc.keyAllowed(b)

		out[b] = make([]*mat.Dense, counts[b])
		for j := 0; j < counts[b]; j++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			slot := int(positions.At(b, j))
			if slot < 0 || slot >= slots {
				return nil, fmt.Errorf("%w: masked position %d beyond %d slots", ErrInput, slot, slots)
			}
			slotState := states.RawRowView(slot)

			x := mat.NewDense(length, dim, nil)
			for t, id := range prev.Row(b, j) {
				if id < 0 || int(id) >= d.Embed.Size() {
					return nil, fmt.Errorf("%w: token id %d out of vocabulary", ErrInput, id)
				}
				row := x.RawRowView(t)
				floats.AddScaled(row, d.scale, d.Embed.Row(int(id)))
				if int(id) != d.pad {
					sinusoid(row, d.pad+1+t)
				}
				floats.Add(row, slotState)
			}
			for _, l := range d.Layers {
				x = l.Forward(x, states, memAllowed)
			}

			var logits mat.Dense
			logits.Mul(x, d.Embed.W.T())
			out[b][j] = &logits
		}
	}
	return out, nil
}
