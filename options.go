package sentperm

import (
	"log/slog"
	"math/rand/v2"

	"github.com/jamesainslie/go-sentperm/vocab"
)

// Option configures a Dataset.
type Option func(*config)

type config struct {
	fixRatio           float64
	maxSentenceLen     int
	maxSentences       int
	maxTokens          int
	maskedProb         float64
	minPredictions     int
	maxPredictions     int
	shuffleProb        float64
	maskOtherSentences bool
	pointerNet         bool
	modelFamily        string
	shuffle            bool
	maxSourcePositions int
	maxTargetPositions int
	targetDict         *vocab.Dictionary
	rng                *rand.Rand
	logger             *slog.Logger
}

func defaultConfig() config {
	return config{
		maxSentenceLen:     50,
		maxSentences:       30,
		maxTokens:          512,
		maskedProb:         0.15,
		minPredictions:     1,
		maxPredictions:     5,
		shuffleProb:        1,
		pointerNet:         true,
		modelFamily:        "roberta-base",
		shuffle:            true,
		maxSourcePositions: 1024,
		maxTargetPositions: 1024,
		logger:             slog.Default(),
	}
}

// WithFixRatio keeps a contiguous window of floor(n*r) sentences in place
// when permuting (default: 0, full permutation).
func WithFixRatio(r float64) Option {
	return func(c *config) {
		c.fixRatio = r
	}
}

// WithMaxSentenceLen caps sentences at n tokens plus the separator
// (default: 50).
func WithMaxSentenceLen(n int) Option {
	return func(c *config) {
		c.maxSentenceLen = n
	}
}

// WithMaxSentences caps the number of sentences per document (default: 30).
func WithMaxSentences(n int) Option {
	return func(c *config) {
		c.maxSentences = n
	}
}

// WithMaxTokens sets the per-document token budget (default: 512).
func WithMaxTokens(n int) Option {
	return func(c *config) {
		c.maxTokens = n
	}
}

// WithMaskedProb sets the fraction of sentences selected for
// reconstruction (default: 0.15).
func WithMaskedProb(p float64) Option {
	return func(c *config) {
		c.maskedProb = p
	}
}

// WithPredictions bounds the number of masked sentences per document
// (default: 1 to 5).
func WithPredictions(lo, hi int) Option {
	return func(c *config) {
		c.minPredictions = lo
		c.maxPredictions = hi
	}
}

// WithShuffleProb sets the probability of permuting the unselected
// sentences of the masked view (default: 1).
func WithShuffleProb(p float64) Option {
	return func(c *config) {
		c.shuffleProb = p
	}
}

// WithMaskOtherSentences restricts token attention to the token's own
// sentence.
func WithMaskOtherSentences(on bool) Option {
	return func(c *config) {
		c.maskOtherSentences = on
	}
}

// WithPointerNet selects pointer network targets (default) or seq2seq
// targets ending in eos.
func WithPointerNet(on bool) Option {
	return func(c *config) {
		c.pointerNet = on
	}
}

// WithModelFamily names the pretrained encoder family, which decides the
// sentence separator (default: roberta-base).
func WithModelFamily(name string) Option {
	return func(c *config) {
		c.modelFamily = name
	}
}

// WithShuffle toggles random OrderedIndices (default: true).
func WithShuffle(on bool) Option {
	return func(c *config) {
		c.shuffle = on
	}
}

// WithMaxPositions sets the source and target size limits used by
// ValidSize (default: 1024 each).
func WithMaxPositions(src, tgt int) Option {
	return func(c *config) {
		if src > 0 {
			c.maxSourcePositions = src
		}
		if tgt > 0 {
			c.maxTargetPositions = tgt
		}
	}
}

// WithTargetDictionary sets the dictionary providing bos, eos and pad of
// the permutation targets (default: the source dictionary).
func WithTargetDictionary(d *vocab.Dictionary) Option {
	return func(c *config) {
		c.targetDict = d
	}
}

// WithSeed seeds the dataset's random source.
func WithSeed(seed uint64) Option {
	return func(c *config) {
		c.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithRand sets the dataset's random source.
func WithRand(r *rand.Rand) Option {
	return func(c *config) {
		if r != nil {
			c.rng = r
		}
	}
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
