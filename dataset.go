package sentperm

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/jamesainslie/go-sentperm/document"
	"github.com/jamesainslie/go-sentperm/vocab"
)

// Dataset serves samples and collates them into training batches.
//
// A Dataset owns its random source and is not safe for concurrent use; give
// each worker its own Dataset.
type Dataset struct {
	source SampleSource
	dict   *vocab.Dictionary
	tgt    *vocab.Dictionary
	cfg    config
	rng    *rand.Rand
	logger *slog.Logger

	ids    document.Specials
	limits document.Limits
	masker document.Masker
}

// New creates a Dataset over source using dict as the source dictionary.
func New(source SampleSource, dict *vocab.Dictionary, opts ...Option) (*Dataset, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	sepSym, err := vocab.SeparatorFor(cfg.modelFamily)
	if err != nil {
		return nil, err
	}
	sep := dict.Index(sepSym)
	if sep == dict.Unk() {
		return nil, fmt.Errorf("%w: separator %q not in dictionary", ErrInvalidVocabulary, sepSym)
	}
	mask := dict.Index(vocab.SentMaskSymbol)
	if mask == dict.Unk() {
		return nil, fmt.Errorf("%w: %q not in dictionary", ErrInvalidVocabulary, vocab.SentMaskSymbol)
	}

	tgt := cfg.targetDict
	if tgt == nil {
		tgt = dict
	}
	rng := cfg.rng
	if rng == nil {
		rng = rand.New(rand.NewPCG(1, 1))
	}

	ids := document.Specials{CLS: dict.CLS(), Sep: sep, Mask: mask}
	d := &Dataset{
		source: source,
		dict:   dict,
		tgt:    tgt,
		cfg:    cfg,
		rng:    rng,
		logger: cfg.logger,
		ids:    ids,
		limits: document.Limits{
			MaxSentences:   cfg.maxSentences,
			MaxSentenceLen: cfg.maxSentenceLen,
			MaxTokens:      cfg.maxTokens,
		},
		masker: document.Masker{
			Prob:           cfg.maskedProb,
			MinPredictions: cfg.minPredictions,
			MaxPredictions: cfg.maxPredictions,
			ShuffleProb:    cfg.shuffleProb,
			IDs:            ids,
		},
	}

	d.logger.Debug("dataset ready",
		"samples", source.Len(),
		"model_family", cfg.modelFamily,
		"separator", sep,
		"sent_mask", mask,
		"pointer_net", cfg.pointerNet)
	return d, nil
}

func (c config) validate() error {
	switch {
	case c.fixRatio < 0 || c.fixRatio >= 1:
		return fmt.Errorf("%w: fix ratio %v not in [0, 1)", ErrInvalidConfig, c.fixRatio)
	case c.maskedProb < 0 || c.maskedProb > 1:
		return fmt.Errorf("%w: masked sentence probability %v not in [0, 1]", ErrInvalidConfig, c.maskedProb)
	case c.shuffleProb < 0 || c.shuffleProb > 1:
		return fmt.Errorf("%w: shuffle probability %v not in [0, 1]", ErrInvalidConfig, c.shuffleProb)
	case c.minPredictions < 0 || c.maxPredictions < 1:
		return fmt.Errorf("%w: predictions per document [%d, %d]", ErrInvalidConfig, c.minPredictions, c.maxPredictions)
	case c.maxSentenceLen < 1 || c.maxSentences < 1 || c.maxTokens < 1:
		return fmt.Errorf("%w: limits must be positive", ErrInvalidConfig)
	}
	return nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return d.source.Len() }

// Get returns sample i.
func (d *Dataset) Get(ctx context.Context, i int) (Sample, error) {
	s, err := d.source.Get(ctx, i)
	if err != nil {
		return Sample{}, fmt.Errorf("getting sample %d: %w", i, err)
	}
	return s, nil
}

// NumTokens returns the larger of the source and target sizes of sample i.
func (d *Dataset) NumTokens(i int) int {
	src, tgt := d.source.Sizes(i)
	return max(src, tgt)
}

// Size returns the source and target sizes of sample i.
func (d *Dataset) Size(i int) (src, tgt int) {
	return d.source.Sizes(i)
}

// ValidSize reports whether sample i fits within the given limits and the
// dataset's configured maximum positions. Non-positive limits are ignored.
func (d *Dataset) ValidSize(i, maxSrc, maxTgt int) bool {
	limSrc, limTgt := d.cfg.maxSourcePositions, d.cfg.maxTargetPositions
	if maxSrc > 0 {
		limSrc = min(limSrc, maxSrc)
	}
	if maxTgt > 0 {
		limTgt = min(limTgt, maxTgt)
	}
	src, tgt := d.source.Sizes(i)
	return src <= limSrc && tgt <= limTgt
}

// OrderedIndices returns the sample visiting order: a random permutation
// when shuffling is enabled, identity otherwise.
func (d *Dataset) OrderedIndices() []int {
	if d.cfg.shuffle {
		return d.rng.Perm(d.Len())
	}
	out := make([]int, d.Len())
	for i := range out {
		out[i] = i
	}
	return out
}

// Dictionary returns the source dictionary.
func (d *Dataset) Dictionary() *vocab.Dictionary { return d.dict }

// Specials returns the class, separator and mask ids in use.
func (d *Dataset) Specials() document.Specials { return d.ids }
