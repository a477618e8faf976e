package model

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Scorer turns permutation decoder states into output logits. x is the
// [steps, hidden] decoder output of one document and states its
// [maxSentences, hidden] sentence representations.
type Scorer interface {
	Score(x, states *mat.Dense) *mat.Dense
	// Width returns the logit count per step for a document with maxN
	// sentence slots.
	Width(maxN int) int
}

// NewScorer builds the scorer selected by cfg. embed is the permutation
// decoder's input embedding.
func NewScorer(cfg Config, embed *Embedding, rng *rand.Rand) (Scorer, error) {
	std := math.Pow(float64(cfg.Hidden), -0.5)
	switch cfg.PredictArch {
	case Seq2Seq:
		if cfg.ShareDecoderInputOutput {
			return &vocabScorer{out: embed.W}, nil
		}
		return &vocabScorer{out: normal(embed.Size(), cfg.Hidden, std, rng)}, nil
	case PointerNet:
		p := pointer{eos: embed.Row(cfg.EOS)}
		switch cfg.PointerAttn {
		case Perceptron:
			return &perceptronScorer{
				pointer: p,
				enc:     normal(cfg.Hidden, cfg.Hidden, std, rng),
				dec:     normal(cfg.Hidden, cfg.Hidden, std, rng),
				v:       normal(1, cfg.Hidden, std, rng).RawRowView(0),
			}, nil
		case General:
			return &generalScorer{pointer: p, w: normal(cfg.Hidden, cfg.Hidden, std, rng)}, nil
		case Dot:
			return &dotScorer{pointer: p}, nil
		}
		return nil, fmt.Errorf("%w: pointer attention %q", ErrUnsupportedArch, cfg.PointerAttn)
	}
	return nil, fmt.Errorf("%w: predict arch %q", ErrUnsupportedArch, cfg.PredictArch)
}

// vocabScorer projects onto the target vocabulary.
type vocabScorer struct {
	out *mat.Dense
}

func (s *vocabScorer) Score(x, _ *mat.Dense) *mat.Dense {
	var logits mat.Dense
	logits.Mul(x, s.out.T())
	return &logits
}

func (s *vocabScorer) Width(int) int {
	n, _ := s.out.Dims()
	return n
}

// pointer scores against the sentence slots plus an end sentinel embedded
// as eos.
type pointer struct {
	eos []float64
}

// query stacks states and the end sentinel.
func (p pointer) query(states *mat.Dense) *mat.Dense {
	n, dim := states.Dims()
	q := mat.NewDense(n+1, dim, nil)
	for i := 0; i < n; i++ {
		copy(q.RawRowView(i), states.RawRowView(i))
	}
	copy(q.RawRowView(n), p.eos)
	return q
}

func (pointer) Width(maxN int) int { return maxN + 1 }

// perceptronScorer computes v·tanh(Wenc·q + Wdec·x) for every step and slot.
type perceptronScorer struct {
	pointer
	enc, dec *mat.Dense
	v        []float64
}

func (s *perceptronScorer) Score(x, states *mat.Dense) *mat.Dense {
	q := s.query(states)
	var qe, xd mat.Dense
	qe.Mul(q, s.enc.T())
	xd.Mul(x, s.dec.T())

	steps, _ := x.Dims()
	slots, dim := q.Dims()
	out := mat.NewDense(steps, slots, nil)
	tmp := make([]float64, dim)
	for t := 0; t < steps; t++ {
		for k := 0; k < slots; k++ {
			floats.AddTo(tmp, qe.RawRowView(k), xd.RawRowView(t))
			for i, v := range tmp {
				tmp[i] = math.Tanh(v)
			}
			out.Set(t, k, floats.Dot(tmp, s.v))
		}
	}
	return out
}

// generalScorer computes x·W·qᵀ.
type generalScorer struct {
	pointer
	w *mat.Dense
}

func (s *generalScorer) Score(x, states *mat.Dense) *mat.Dense {
	var xw, out mat.Dense
	xw.Mul(x, s.w)
	out.Mul(&xw, s.query(states).T())
	return &out
}

// dotScorer computes x·qᵀ.
type dotScorer struct {
	pointer
}

func (s *dotScorer) Score(x, states *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Mul(x, s.query(states).T())
	return &out
}
