package model

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// maskedScore replaces the attention score of disallowed pairs.
const maskedScore = -1e9

// normal returns a rows×cols matrix drawn from N(0, std²).
func normal(rows, cols int, std float64, rng *rand.Rand) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.NormFloat64() * std
	}
	return mat.NewDense(rows, cols, data)
}

// xavier returns a Glorot uniform in×out matrix.
func xavier(in, out int, rng *rand.Rand) *mat.Dense {
	limit := math.Sqrt(6 / float64(in+out))
	data := make([]float64, in*out)
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * limit
	}
	return mat.NewDense(in, out, data)
}

// Linear computes x·W + b with W stored as in×out.
type Linear struct {
	W *mat.Dense
	B []float64
}

func newLinear(w *mat.Dense) *Linear {
	_, out := w.Dims()
	return &Linear{W: w, B: make([]float64, out)}
}

// Forward applies the layer to each row of x.
func (l *Linear) Forward(x mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Mul(x, l.W)
	rows, _ := out.Dims()
	for i := 0; i < rows; i++ {
		floats.Add(out.RawRowView(i), l.B)
	}
	return &out
}

// LayerNorm normalizes each row to zero mean and unit variance.
type LayerNorm struct {
	Gamma []float64
	Beta  []float64
	Eps   float64
}

func newLayerNorm(dim int, eps float64) *LayerNorm {
	gamma := make([]float64, dim)
	for i := range gamma {
		gamma[i] = 1
	}
	return &LayerNorm{Gamma: gamma, Beta: make([]float64, dim), Eps: eps}
}

// Forward normalizes x in place and returns it.
func (ln *LayerNorm) Forward(x *mat.Dense) *mat.Dense {
	rows, _ := x.Dims()
	for i := 0; i < rows; i++ {
		row := x.RawRowView(i)
		mean, variance := stat.PopMeanVariance(row, nil)
		inv := 1 / math.Sqrt(variance+ln.Eps)
		for j, v := range row {
			row[j] = (v-mean)*inv*ln.Gamma[j] + ln.Beta[j]
		}
	}
	return x
}

// softmaxRows applies a numerically stable softmax to each row of x.
func softmaxRows(x *mat.Dense) {
	rows, _ := x.Dims()
	for i := 0; i < rows; i++ {
		softmax(x.RawRowView(i))
	}
}

func softmax(row []float64) {
	m := floats.Max(row)
	sum := 0.0
	for j, v := range row {
		row[j] = math.Exp(v - m)
		sum += row[j]
	}
	floats.Scale(1/sum, row)
}

func logSoftmax(row []float64) {
	m := floats.Max(row)
	sum := 0.0
	for _, v := range row {
		sum += math.Exp(v - m)
	}
	floats.AddConst(-(m + math.Log(sum)), row)
}

// Attention is multi-head scaled dot-product attention.
type Attention struct {
	Q, K, V, O *Linear
	Heads      int
}

func newAttention(dim, heads int, init func(in, out int) *mat.Dense) *Attention {
	return &Attention{
		Q:     newLinear(init(dim, dim)),
		K:     newLinear(init(dim, dim)),
		V:     newLinear(init(dim, dim)),
		O:     newLinear(init(dim, dim)),
		Heads: heads,
	}
}

// Forward attends each row of query over the rows of memory. allowed may be
// nil; otherwise pairs for which it returns false are excluded.
func (a *Attention) Forward(query, memory *mat.Dense, allowed func(q, k int) bool) *mat.Dense {
	q := a.Q.Forward(query)
	k := a.K.Forward(memory)
	v := a.V.Forward(memory)

	nq, dim := q.Dims()
	nk, _ := k.Dims()
	hd := dim / a.Heads
	scale := 1 / math.Sqrt(float64(hd))

	ctx := mat.NewDense(nq, dim, nil)
	scores := mat.NewDense(nq, nk, nil)
	for h := 0; h < a.Heads; h++ {
		lo, hi := h*hd, (h+1)*hd
		scores.Mul(q.Slice(0, nq, lo, hi), k.Slice(0, nk, lo, hi).T())
		scores.Scale(scale, scores)
		if allowed != nil {
			for i := 0; i < nq; i++ {
				row := scores.RawRowView(i)
				for j := range row {
					if !allowed(i, j) {
						row[j] = maskedScore
					}
				}
			}
		}
		softmaxRows(scores)
		ctx.Slice(0, nq, lo, hi).(*mat.Dense).Mul(scores, v.Slice(0, nk, lo, hi))
	}
	return a.O.Forward(ctx)
}

// FeedForward is the position-wise two layer network.
type FeedForward struct {
	In, Out *Linear
	Act     func(float64) float64
}

// Forward applies the network to each row of x.
func (f *FeedForward) Forward(x *mat.Dense) *mat.Dense {
	h := f.In.Forward(x)
	h.Apply(func(_, _ int, v float64) float64 { return f.Act(v) }, h)
	return f.Out.Forward(h)
}

func gelu(x float64) float64 {
	return 0.5 * x * (1 + math.Erf(x/math.Sqrt2))
}

func relu(x float64) float64 {
	return math.Max(0, x)
}

// EncoderLayer is a post-norm BERT layer.
type EncoderLayer struct {
	Attn    *Attention
	AttnLN  *LayerNorm
	FFN     *FeedForward
	FFNNorm *LayerNorm
}

func newEncoderLayer(dim, heads, ffn int, eps, std float64, rng *rand.Rand) *EncoderLayer {
	init := func(in, out int) *mat.Dense { return normal(in, out, std, rng) }
	return &EncoderLayer{
		Attn:    newAttention(dim, heads, init),
		AttnLN:  newLayerNorm(dim, eps),
		FFN:     &FeedForward{In: newLinear(init(dim, ffn)), Out: newLinear(init(ffn, dim)), Act: gelu},
		FFNNorm: newLayerNorm(dim, eps),
	}
}

// Forward runs self-attention restricted by allowed, then the feed-forward
// block.
func (l *EncoderLayer) Forward(x *mat.Dense, allowed func(q, k int) bool) *mat.Dense {
	h := l.Attn.Forward(x, x, allowed)
	h.Add(h, x)
	h = l.AttnLN.Forward(h)

	out := l.FFN.Forward(h)
	out.Add(out, h)
	return l.FFNNorm.Forward(out)
}

// DecoderLayer is a post-norm transformer decoder layer. CrossAttn is nil
// when the layer does not attend to the encoder.
type DecoderLayer struct {
	SelfAttn  *Attention
	SelfLN    *LayerNorm
	CrossAttn *Attention
	CrossLN   *LayerNorm
	FFN       *FeedForward
	FFNNorm   *LayerNorm
}

func newDecoderLayer(dim, heads, ffn int, cross bool, eps float64, rng *rand.Rand) *DecoderLayer {
	init := func(in, out int) *mat.Dense { return xavier(in, out, rng) }
	l := &DecoderLayer{
		SelfAttn: newAttention(dim, heads, init),
		SelfLN:   newLayerNorm(dim, eps),
		FFN:      &FeedForward{In: newLinear(init(dim, ffn)), Out: newLinear(init(ffn, dim)), Act: relu},
		FFNNorm:  newLayerNorm(dim, eps),
	}
	if cross {
		l.CrossAttn = newAttention(dim, heads, init)
		l.CrossLN = newLayerNorm(dim, eps)
	}
	return l
}

func causal(q, k int) bool { return k <= q }

// Forward runs causal self-attention, attention over memory restricted by
// memAllowed, and the feed-forward block.
func (l *DecoderLayer) Forward(x, memory *mat.Dense, memAllowed func(q, k int) bool) *mat.Dense {
	h := l.SelfAttn.Forward(x, x, causal)
	h.Add(h, x)
	h = l.SelfLN.Forward(h)

	if l.CrossAttn != nil {
		c := l.CrossAttn.Forward(h, memory, memAllowed)
		c.Add(c, h)
		h = l.CrossLN.Forward(c)
	}

	out := l.FFN.Forward(h)
	out.Add(out, h)
	return l.FFNNorm.Forward(out)
}

// Embedding is a lookup table with a zero padding row.
type Embedding struct {
	W   *mat.Dense
	Pad int
}

func newEmbedding(n, dim, pad int, rng *rand.Rand) *Embedding {
	w := normal(n, dim, math.Pow(float64(dim), -0.5), rng)
	if pad >= 0 && pad < n {
		for j := range w.RawRowView(pad) {
			w.Set(pad, j, 0)
		}
	}
	return &Embedding{W: w, Pad: pad}
}

// Row returns the embedding of id as a view.
func (e *Embedding) Row(id int) []float64 { return e.W.RawRowView(id) }

// Size returns the number of rows.
func (e *Embedding) Size() int {
	n, _ := e.W.Dims()
	return n
}

// sinusoid writes the fairseq sinusoidal embedding of position pos into dst.
func sinusoid(dst []float64, pos int) {
	half := len(dst) / 2
	if half < 2 {
		return
	}
	step := math.Log(10000) / float64(half-1)
	for i := 0; i < half; i++ {
		angle := float64(pos) * math.Exp(-step*float64(i))
		dst[i] += math.Sin(angle)
		dst[half+i] += math.Cos(angle)
	}
}
