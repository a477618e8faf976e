// Package model implements the dual-decoder forward pass: a sentence encoder
// over a pretrained token encoder, a permutation decoder that predicts the
// original sentence order and a decoder that reconstructs masked sentences.
//
// Parameters live in gonum matrices. The package has no training support;
// weights are randomly initialized from an explicit source or loaded by the
// caller through the exported layer accessors.
package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for construction and input problems.
var (
	// ErrInvalidConfig indicates a configuration the model cannot be built
	// from.
	ErrInvalidConfig = errors.New("model: invalid configuration")

	// ErrUnsupportedArch indicates an unknown prediction architecture or
	// pointer attention type.
	ErrUnsupportedArch = errors.New("model: unsupported architecture")

	// ErrInput indicates a batch that does not fit the model.
	ErrInput = errors.New("model: invalid input")
)

// PredictArch selects how the permutation decoder scores its output.
type PredictArch string

// Prediction architectures.
const (
	Seq2Seq    PredictArch = "seq2seq"
	PointerNet PredictArch = "pointer_net"
)

// PointerAttn selects the pointer network scoring function.
type PointerAttn string

// Pointer network scoring functions.
const (
	Perceptron PointerAttn = "perceptron"
	General    PointerAttn = "general"
	Dot        PointerAttn = "dot"
)

// sentencePositions is the size of the sentence slot position table.
const sentencePositions = 128

// Config describes the model dimensions and variants.
type Config struct {
	// Hidden is the width shared by the token encoder output, the sentence
	// encoder and both decoders.
	Hidden int

	SentenceLayers int
	SentenceHeads  int
	SentenceFFN    int

	PermLayers int
	PermHeads  int
	PermFFN    int
	// ShortenDecoder drops encoder attention from the permutation decoder.
	ShortenDecoder bool

	MaskLayers int
	MaskHeads  int
	MaskFFN    int

	PredictArch PredictArch
	PointerAttn PointerAttn
	// ShareDecoderInputOutput reuses the target embedding as the seq2seq
	// output projection.
	ShareDecoderInputOutput bool
	// ShareAllEmbeddings is not supported and rejected at construction.
	ShareAllEmbeddings bool
	// IgnoreSentMask hides masked sentence slots from the second encoder
	// pass.
	IgnoreSentMask bool

	// SourceVocab and TargetVocab are the dictionary sizes of the token and
	// order vocabularies.
	SourceVocab int
	TargetVocab int
	Pad         int
	EOS         int

	LayerNormEps float64
	// InitRange is the standard deviation of the sentence encoder weights.
	InitRange float64
}

// DefaultConfig returns a base sized configuration for the given
// vocabularies.
func DefaultConfig(sourceVocab, targetVocab int) Config {
	return Config{
		Hidden:                  768,
		SentenceLayers:          2,
		SentenceHeads:           12,
		SentenceFFN:             3072,
		PermLayers:              6,
		PermHeads:               12,
		PermFFN:                 3072,
		MaskLayers:              6,
		MaskHeads:               12,
		MaskFFN:                 3072,
		PredictArch:             PointerNet,
		PointerAttn:             Perceptron,
		ShareDecoderInputOutput: true,
		SourceVocab:             sourceVocab,
		TargetVocab:             targetVocab,
		Pad:                     1,
		EOS:                     2,
		LayerNormEps:            1e-5,
		InitRange:               0.02,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	switch {
	case c.ShareAllEmbeddings:
		return fmt.Errorf("%w: sharing all embeddings requires a joined dictionary", ErrInvalidConfig)
	case c.Hidden <= 0:
		return fmt.Errorf("%w: hidden size %d", ErrInvalidConfig, c.Hidden)
	case c.SentenceHeads <= 0 || c.Hidden%c.SentenceHeads != 0:
		return fmt.Errorf("%w: %d sentence heads for hidden size %d", ErrInvalidConfig, c.SentenceHeads, c.Hidden)
	case c.PermHeads <= 0 || c.Hidden%c.PermHeads != 0:
		return fmt.Errorf("%w: %d permutation heads for hidden size %d", ErrInvalidConfig, c.PermHeads, c.Hidden)
	case c.MaskHeads <= 0 || c.Hidden%c.MaskHeads != 0:
		return fmt.Errorf("%w: %d mask decoder heads for hidden size %d", ErrInvalidConfig, c.MaskHeads, c.Hidden)
	case c.Pad < 0 || c.Pad+2 > sentencePositions:
		return fmt.Errorf("%w: pad id %d leaves no sentence positions", ErrInvalidConfig, c.Pad)
	case c.SourceVocab <= c.Pad || c.TargetVocab <= max(c.Pad, c.EOS):
		return fmt.Errorf("%w: vocabulary sizes %d and %d", ErrInvalidConfig, c.SourceVocab, c.TargetVocab)
	}

	switch c.PredictArch {
	case Seq2Seq:
	case PointerNet:
		switch c.PointerAttn {
		case Perceptron, General, Dot:
		default:
			return fmt.Errorf("%w: pointer attention %q", ErrUnsupportedArch, c.PointerAttn)
		}
	default:
		return fmt.Errorf("%w: predict arch %q", ErrUnsupportedArch, c.PredictArch)
	}
	return nil
}

// MaxSentences returns the largest sentence count the position table can
// hold.
func (c Config) MaxSentences() int {
	return sentencePositions - c.Pad - 1
}
