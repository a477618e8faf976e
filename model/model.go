package model

import (
	"context"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	sentperm "github.com/jamesainslie/go-sentperm"
	"github.com/jamesainslie/go-sentperm/tensor"
)

// Output holds the logits of both decoders.
type Output struct {
	// Perm holds one [N+1, width] matrix per document.
	Perm []*mat.Dense
	// Masked holds, per document, one [L, vocab] matrix per masked sentence.
	Masked [][]*mat.Dense
}

// Model is the dual-decoder network. Forward has no side effects, so a
// Model may serve concurrent calls when its TokenEncoder does.
type Model struct {
	cfg      Config
	Encoder  *SentenceEncoder
	Perm     *PermDecoder
	Sentence SentenceDecoder
}

// Option customizes model construction.
type Option func(*Model)

// WithSentenceDecoder replaces the reference masked sentence decoder.
func WithSentenceDecoder(d SentenceDecoder) Option {
	return func(m *Model) {
		if d != nil {
			m.Sentence = d
		}
	}
}

// New builds a randomly initialized model around a token encoder.
func New(cfg Config, tokens TokenEncoder, rng *rand.Rand, opts ...Option) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	perm, err := NewPermDecoder(cfg, rng)
	if err != nil {
		return nil, err
	}

	m := &Model{
		cfg:     cfg,
		Encoder: NewSentenceEncoder(cfg, tokens, rng),
		Perm:    perm,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.Sentence == nil {
		m.Sentence = NewTransformerSentenceDecoder(cfg, rng)
	}
	return m, nil
}

// Config returns the model configuration.
func (m *Model) Config() Config { return m.cfg }

// Forward runs both passes over a collated batch: the permuted view through
// the permutation decoder and the masked view through the sentence decoder.
func (m *Model) Forward(ctx context.Context, in *sentperm.NetInput) (*Output, error) {
	permEnc, err := m.Encoder.Forward(ctx, in.Tokens, in.SegmentIDs, in.TokenMask, in.DocPadMask, in.ClsPos)
	if err != nil {
		return nil, fmt.Errorf("encoding permuted view: %w", err)
	}
	perm, err := m.Perm.Forward(ctx, in.PrevOutputTokensPerm, permEnc)
	if err != nil {
		return nil, fmt.Errorf("decoding order: %w", err)
	}

	docPad := in.DocPadMask
	if m.cfg.IgnoreSentMask {
		docPad = HideMasked(docPad, in.MaskedSentPositions, in.MaskedCounts)
	}
	maskEnc, err := m.Encoder.Forward(ctx, in.TokensWithMask, in.SegmentIDs, in.TokenMaskWithMask, docPad, in.ClsPosMask)
	if err != nil {
		return nil, fmt.Errorf("encoding masked view: %w", err)
	}
	masked, err := m.Sentence.Decode(ctx, maskEnc, in.MaskedSentPositions, in.MaskedCounts, in.PrevOutputTokens)
	if err != nil {
		return nil, fmt.Errorf("decoding masked sentences: %w", err)
	}

	return &Output{Perm: perm, Masked: masked}, nil
}

// HideMasked returns a copy of docPad that also marks the valid masked
// positions as padding.
func HideMasked(docPad *tensor.Bool, positions *tensor.Long, counts []int) *tensor.Bool {
	out := docPad.Clone()
	for b, n := range counts {
		for j := 0; j < n; j++ {
			out.Set(true, b, int(positions.At(b, j)))
		}
	}
	return out
}

// NormalizedProbs converts each row of logits to probabilities, or to log
// probabilities when logProbs is set. The result is a new matrix.
func NormalizedProbs(logits *mat.Dense, logProbs bool) *mat.Dense {
	out := mat.DenseCopyOf(logits)
	rows, _ := out.Dims()
	for i := 0; i < rows; i++ {
		if logProbs {
			logSoftmax(out.RawRowView(i))
		} else {
			softmax(out.RawRowView(i))
		}
	}
	return out
}
