package inference

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/jamesainslie/go-sentperm/model"
	"github.com/jamesainslie/go-sentperm/tensor"
)

var _ model.TokenEncoder = (*Encoder)(nil)

// Encoder adapts a session pool to model.TokenEncoder.
type Encoder struct {
	pool *Pool
	// Segments controls whether segment ids are passed through. RoBERTa
	// exports reject non-zero token types.
	Segments bool
}

// NewEncoder returns an encoder backed by pool.
func NewEncoder(pool *Pool) *Encoder {
	return &Encoder{pool: pool, Segments: true}
}

// Encode runs one padded batch through the exported encoder.
func (e *Encoder) Encode(ctx context.Context, tokens, segments *tensor.Long, mask tensor.TokenMask) ([]*mat.Dense, error) {
	in := batchInput(tokens, segments, mask, e.Segments)

	var out Output
	err := e.pool.Run(ctx, func(s *Session) error {
		var err error
		out, err = s.Infer(ctx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return hiddenStates(out, tokens.Dim(0), tokens.Dim(1))
}

func batchInput(tokens, segments *tensor.Long, mask tensor.TokenMask, withSegments bool) Input {
	data, shape := mask.Int64()
	in := Input{
		Batch:         int64(tokens.Dim(0)),
		SeqLen:        int64(tokens.Dim(1)),
		InputIDs:      tokens.Data(),
		AttentionMask: data,
		MaskShape:     shape,
	}
	if withSegments && segments != nil {
		in.TokenTypeIDs = segments.Data()
	}
	return in
}

// hiddenStates splits a [B, T, H] output into one matrix per document.
func hiddenStates(out Output, bsz, seqLen int) ([]*mat.Dense, error) {
	if len(out.Shape) != 3 || out.Shape[0] != int64(bsz) || out.Shape[1] != int64(seqLen) {
		return nil, fmt.Errorf("%w: encoder output %v for batch %d x %d", ErrShape, out.Shape, bsz, seqLen)
	}
	hidden := int(out.Shape[2])
	if hidden <= 0 || len(out.Hidden) != bsz*seqLen*hidden {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShape, len(out.Hidden), out.Shape)
	}

	states := make([]*mat.Dense, bsz)
	stride := seqLen * hidden
	for b := range states {
		data := make([]float64, stride)
		for i, v := range out.Hidden[b*stride : (b+1)*stride] {
			data[i] = float64(v)
		}
		states[b] = mat.NewDense(seqLen, hidden, data)
	}
	return states, nil
}
