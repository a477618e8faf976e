// Package metrics evaluates model outputs: sentence ordering quality of the
// permutation decoder and token accuracy of the masked sentence decoder.
package metrics

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/jamesainslie/go-sentperm/tensor"
)

// Order holds sentence ordering results averaged over documents.
type Order struct {
	Documents        int
	KendallTau       float64
	PerfectMatch     float64 // fraction of documents ordered exactly
	PositionAccuracy float64 // fraction of sentences placed correctly
}

// KendallTau returns Kendall's tau between two orders of the same length.
// Orders of fewer than two sentences score 1.
func KendallTau(pred, truth []int) float64 {
	if len(pred) < 2 {
		return 1
	}
	x := make([]float64, len(pred))
	y := make([]float64, len(truth))
	for i := range pred {
		x[i] = float64(pred[i])
		y[i] = float64(truth[i])
	}
	return stat.Kendall(x, y, nil)
}

// DecodeOrder greedily decodes n steps of permutation logits, picking at
// every step the highest scoring slot among [0, n) not used yet.
func DecodeOrder(logits *mat.Dense, n int) []int {
	used := make([]bool, n)
	order := make([]int, n)
	for t := 0; t < n; t++ {
		row := logits.RawRowView(t)
		best := -1
		for c := 0; c < n; c++ {
			if used[c] {
				continue
			}
			if best < 0 || row[c] > row[best] {
				best = c
			}
		}
		used[best] = true
		order[t] = best
	}
	return order
}

// SentenceCounts returns the number of non-padding slots per document.
func SentenceCounts(docPad *tensor.Bool) []int {
	counts := make([]int, docPad.Dim(0))
	for b := range counts {
		for _, p := range docPad.Row(b) {
			if !p {
				counts[b]++
			}
		}
	}
	return counts
}

// EvaluateOrder scores one decoded order against the truth.
func EvaluateOrder(pred, truth []int) Order {
	m := Order{Documents: 1, KendallTau: KendallTau(pred, truth)}
	correct := 0
	for i := range truth {
		if pred[i] == truth[i] {
			correct++
		}
	}
	if len(truth) > 0 {
		m.PositionAccuracy = float64(correct) / float64(len(truth))
	}
	if correct == len(truth) {
		m.PerfectMatch = 1
	}
	return m
}

// EvaluateOrders decodes the permutation logits of a batch and compares them
// with the target orders. target is the [B, maxN+1] permutation target.
func EvaluateOrders(logits []*mat.Dense, target *tensor.Long, nsents []int) Order {
	var agg Order
	for b, l := range logits {
		n := nsents[b]
		truth := make([]int, n)
		for i, v := range target.Row(b)[:n] {
			truth[i] = int(v)
		}
		agg = agg.Add(EvaluateOrder(DecodeOrder(l, n), truth))
	}
	return agg
}

// Add merges two results, weighting by document count.
func (m Order) Add(o Order) Order {
	total := m.Documents + o.Documents
	if total == 0 {
		return m
	}
	mean := func(a, b float64) float64 {
		return (a*float64(m.Documents) + b*float64(o.Documents)) / float64(total)
	}
	return Order{
		Documents:        total,
		KendallTau:       mean(m.KendallTau, o.KendallTau),
		PerfectMatch:     mean(m.PerfectMatch, o.PerfectMatch),
		PositionAccuracy: mean(m.PositionAccuracy, o.PositionAccuracy),
	}
}

// Tokens holds masked sentence reconstruction results.
type Tokens struct {
	Correct  int
	Total    int
	Accuracy float64
}

// Add merges two results.
func (m Tokens) Add(o Tokens) Tokens {
	sum := Tokens{Correct: m.Correct + o.Correct, Total: m.Total + o.Total}
	if sum.Total > 0 {
		sum.Accuracy = float64(sum.Correct) / float64(sum.Total)
	}
	return sum
}

// EvaluateMasked compares the argmax of the masked decoder logits with the
// [B, maxSelected, maxLen] target, skipping pad targets.
func EvaluateMasked(logits [][]*mat.Dense, target *tensor.Long, counts []int, pad int64) Tokens {
	var m Tokens
	for b, sents := range logits {
		for j := 0; j < counts[b] && j < len(sents); j++ {
			for k, want := range target.Row(b, j) {
				if want == pad {
					continue
				}
				m.Total++
				if floats.MaxIdx(sents[j].RawRowView(k)) == int(want) {
					m.Correct++
				}
			}
		}
	}
	if m.Total > 0 {
		m.Accuracy = float64(m.Correct) / float64(m.Total)
	}
	return m
}
