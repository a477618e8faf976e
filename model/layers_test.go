package model

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func randomMatrix(rows, cols int, rng *rand.Rand) *mat.Dense {
	return normal(rows, cols, 1, rng)
}

func TestLayerNorm(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	x := randomMatrix(4, 16, rng)
	newLayerNorm(16, 1e-5).Forward(x)

	for i := 0; i < 4; i++ {
		mean, variance := stat.PopMeanVariance(x.RawRowView(i), nil)
		assert.InDelta(t, 0, mean, 1e-9)
		assert.InDelta(t, 1, variance, 1e-3)
	}
}

func TestAttention_CausalMask(t *testing.T) {
	rng := rand.New(rand.NewPCG(2, 2))
	attn := newAttention(8, 2, func(in, out int) *mat.Dense { return xavier(in, out, rng) })

	x := randomMatrix(5, 8, rng)
	before := attn.Forward(x, x, causal)

	// Changing the last row must not affect earlier rows.
	y := mat.DenseCopyOf(x)
	for j := 0; j < 8; j++ {
		y.Set(4, j, 3)
	}
	after := attn.Forward(y, y, causal)

	for i := 0; i < 4; i++ {
		assert.True(t, floats.EqualApprox(before.RawRowView(i), after.RawRowView(i), 1e-12), "row %d", i)
	}
	assert.False(t, floats.EqualApprox(before.RawRowView(4), after.RawRowView(4), 1e-12))
}

func TestAttention_KeyPadding(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))
	attn := newAttention(4, 1, func(in, out int) *mat.Dense { return xavier(in, out, rng) })

	q := randomMatrix(2, 4, rng)
	mem := randomMatrix(3, 4, rng)
	allowed := func(_, k int) bool { return k < 2 }
	before := attn.Forward(q, mem, allowed)

	mem.Set(2, 0, 100)
	after := attn.Forward(q, mem, allowed)
	assert.True(t, mat.EqualApprox(before, after, 1e-12))
}

func TestEncoderLayer_Shape(t *testing.T) {
	rng := rand.New(rand.NewPCG(4, 4))
	l := newEncoderLayer(8, 2, 16, 1e-5, 0.02, rng)

	out := l.Forward(randomMatrix(3, 8, rng), nil)
	r, c := out.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 8, c)
}

func TestEmbedding_PadRowZero(t *testing.T) {
	e := newEmbedding(6, 4, 1, rand.New(rand.NewPCG(5, 5)))
	assert.Equal(t, []float64{0, 0, 0, 0}, e.Row(1))
	assert.NotEqual(t, []float64{0, 0, 0, 0}, e.Row(2))
	assert.Equal(t, 6, e.Size())
}

func TestSinusoid(t *testing.T) {
	row := make([]float64, 8)
	sinusoid(row, 0)
	assert.Equal(t, []float64{0, 0, 0, 0, 1, 1, 1, 1}, row)

	a, b := make([]float64, 8), make([]float64, 8)
	sinusoid(a, 3)
	sinusoid(b, 4)
	assert.NotEqual(t, a, b)
}

func TestScorers(t *testing.T) {
	rng := rand.New(rand.NewPCG(6, 6))
	cfg := smallConfig(12)
	embed := newEmbedding(12, cfg.Hidden, cfg.Pad, rng)
	x := randomMatrix(4, cfg.Hidden, rng)
	states := randomMatrix(3, cfg.Hidden, rng)

	for _, attn := range []PointerAttn{Perceptron, General, Dot} {
		cfg.PredictArch, cfg.PointerAttn = PointerNet, attn
		s, err := NewScorer(cfg, embed, rng)
		require.NoError(t, err)

		out := s.Score(x, states)
		r, c := out.Dims()
		assert.Equal(t, 4, r, "%s", attn)
		assert.Equal(t, 4, c, "%s", attn)
		assert.Equal(t, 4, s.Width(3))
	}

	cfg.PointerAttn = Dot
	s, err := NewScorer(cfg, embed, rng)
	require.NoError(t, err)
	out := s.Score(x, states)
	assert.InDelta(t, floats.Dot(x.RawRowView(1), states.RawRowView(2)), out.At(1, 2), 1e-12)
	assert.InDelta(t, floats.Dot(x.RawRowView(0), embed.Row(cfg.EOS)), out.At(0, 3), 1e-12)

	cfg.PredictArch = Seq2Seq
	s, err = NewScorer(cfg, embed, rng)
	require.NoError(t, err)
	assert.Equal(t, 12, s.Width(3))

	cfg.PredictArch = "other"
	_, err = NewScorer(cfg, embed, rng)
	assert.ErrorIs(t, err, ErrUnsupportedArch)
}
