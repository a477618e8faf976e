package metrics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/jamesainslie/go-sentperm/tensor"
)

func TestKendallTau(t *testing.T) {
	tests := []struct {
		name  string
		pred  []int
		truth []int
		want  float64
	}{
		{name: "identical", pred: []int{0, 1, 2, 3}, truth: []int{0, 1, 2, 3}, want: 1},
		{name: "reversed", pred: []int{3, 2, 1, 0}, truth: []int{0, 1, 2, 3}, want: -1},
		{name: "one swap", pred: []int{1, 0, 2}, truth: []int{0, 1, 2}, want: 1.0 / 3},
		{name: "single", pred: []int{0}, truth: []int{0}, want: 1},
		{name: "empty", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := KendallTau(tt.pred, tt.truth)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("KendallTau() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeOrder(t *testing.T) {
	// Step 1 prefers slot 0 again, which is taken; it falls back to slot 2.
	logits := mat.NewDense(4, 4, []float64{
		5, 1, 0, 9,
		4, 0, 3, 9,
		0, 0, 0, 9,
		0, 0, 0, 0,
	})

	got := DecodeOrder(logits, 3)
	want := []int{0, 2, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("DecodeOrder() = %v, want %v", got, want)
		}
	}
}

func TestEvaluateOrder(t *testing.T) {
	m := EvaluateOrder([]int{0, 2, 1}, []int{0, 1, 2})
	if m.PerfectMatch != 0 {
		t.Errorf("PerfectMatch = %v, want 0", m.PerfectMatch)
	}
	if math.Abs(m.PositionAccuracy-1.0/3) > 1e-12 {
		t.Errorf("PositionAccuracy = %v, want 1/3", m.PositionAccuracy)
	}

	m = EvaluateOrder([]int{1, 0}, []int{1, 0})
	if m.PerfectMatch != 1 || m.PositionAccuracy != 1 || m.KendallTau != 1 {
		t.Errorf("exact order scored %+v", m)
	}
}

func TestOrder_Add(t *testing.T) {
	a := Order{Documents: 1, KendallTau: 1, PerfectMatch: 1, PositionAccuracy: 1}
	b := Order{Documents: 3, KendallTau: -1, PerfectMatch: 0, PositionAccuracy: 0}

	got := a.Add(b)
	if got.Documents != 4 {
		t.Errorf("Documents = %d, want 4", got.Documents)
	}
	if math.Abs(got.KendallTau-(-0.5)) > 1e-12 {
		t.Errorf("KendallTau = %v, want -0.5", got.KendallTau)
	}
	if math.Abs(got.PerfectMatch-0.25) > 1e-12 {
		t.Errorf("PerfectMatch = %v, want 0.25", got.PerfectMatch)
	}

	if (Order{}).Add(Order{}) != (Order{}) {
		t.Error("adding empty results should stay empty")
	}
}

func TestEvaluateOrders(t *testing.T) {
	// Document 0 has two sentences, document 1 has one; maxN is 2 and the
	// pointer sentinel is slot 2.
	target := tensor.FromSlice([]int64{
		1, 0, 2,
		0, 2, 1,
	}, 2, 3)
	logits := []*mat.Dense{
		mat.NewDense(3, 3, []float64{0, 1, 0, 1, 0, 0, 0, 0, 1}),
		mat.NewDense(3, 3, []float64{1, 0, 0, 0, 0, 1, 0, 0, 0}),
	}

	got := EvaluateOrders(logits, target, []int{2, 1})
	if got.Documents != 2 || got.PerfectMatch != 1 || got.PositionAccuracy != 1 {
		t.Errorf("EvaluateOrders() = %+v", got)
	}
}

func TestSentenceCounts(t *testing.T) {
	docPad := tensor.FromSlice([]bool{false, false, true, false, true, true}, 2, 3)
	got := SentenceCounts(docPad)
	if len(got) != 2 || got[0] != 2 || got[1] != 1 {
		t.Errorf("SentenceCounts() = %v, want [2 1]", got)
	}
}

func TestEvaluateMasked(t *testing.T) {
	const pad = 1
	// One document with two masked sentences of width 2; the second is
	// beyond the count and ignored.
	target := tensor.FromSlice([]int64{
		3, pad,
		4, 2,
	}, 1, 2, 2)
	logits := [][]*mat.Dense{{
		mat.NewDense(2, 5, []float64{
			0, 0, 0, 1, 0,
			1, 0, 0, 0, 0,
		}),
		mat.NewDense(2, 5, nil),
	}}

	got := EvaluateMasked(logits, target, []int{1}, pad)
	if got.Total != 1 || got.Correct != 1 || got.Accuracy != 1 {
		t.Errorf("EvaluateMasked() = %+v", got)
	}

	logits[0][0].Set(0, 3, -1)
	got = EvaluateMasked(logits, target, []int{1}, pad)
	if got.Correct != 0 || got.Accuracy != 0 {
		t.Errorf("EvaluateMasked() after change = %+v", got)
	}
}

func TestTokens_Add(t *testing.T) {
	got := Tokens{Correct: 1, Total: 4, Accuracy: 0.25}.Add(Tokens{Correct: 3, Total: 4, Accuracy: 0.75})
	if got.Correct != 4 || got.Total != 8 || got.Accuracy != 0.5 {
		t.Errorf("Add() = %+v", got)
	}
	if (Tokens{}).Add(Tokens{}).Accuracy != 0 {
		t.Error("empty accuracy should be 0")
	}
}
