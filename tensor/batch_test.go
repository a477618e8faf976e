package tensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/go-sentperm/document"
)

const (
	cls  = 0
	pad  = 1
	sep  = 2
	mask = 50
)

var ids = document.Specials{CLS: cls, Sep: sep, Mask: mask}

func structures(docs ...document.Document) []document.Structure {
	out := make([]document.Structure, len(docs))
	for i, d := range docs {
		out[i] = d.Flatten()
	}
	return out
}

func TestDocuments_Padding(t *testing.T) {
	// Token lengths 5, 3 and 7.
	docs := []document.Document{
		{{cls, 10, sep}, {cls, sep}},
		{{cls, 11, sep}},
		{{cls, 12, sep}, {cls, sep}, {cls, sep}},
	}
	b := Documents(structures(docs...), pad)

	require.Equal(t, []int{3, 7}, b.Tokens.Shape())
	assert.Equal(t, []int64{cls, 10, sep, cls, sep, pad, pad}, b.Tokens.Row(0))
	assert.Equal(t, []int64{cls, 11, sep, pad, pad, pad, pad}, b.Tokens.Row(1))
	assert.Equal(t, []int64{cls, 12, sep, cls, sep, cls, sep}, b.Tokens.Row(2))

	assert.Equal(t, []int{2, 1, 3}, b.NSents)
	require.Equal(t, []int{3, 3}, b.DocPadMask.Shape())
	for i, n := range b.NSents {
		padded := 0
		for _, p := range b.DocPadMask.Row(i) {
			if p {
				padded++
			}
		}
		assert.Equal(t, 3-n, padded, "row %d", i)
	}

	assert.Equal(t, 0, len(b.SegmentIDs.Data())-b.SegmentIDs.Count(0))
	assert.Equal(t, []int64{0, 3, 0}, b.ClsPos.Row(0))
}

func TestDocuments_ClsPosRoundTrip(t *testing.T) {
	docs := []document.Document{
		{{cls, 10, 11, sep}, {cls, sep}, {cls, 12, 13, 14, sep}},
		{{cls, 15, sep}, {cls, 16, 17, sep}},
	}
	b := Documents(structures(docs...), pad)

	for i, n := range b.NSents {
		for j := 0; j < n; j++ {
			pos := int(b.ClsPos.At(i, j))
			assert.Equal(t, int64(cls), b.Tokens.At(i, pos), "doc %d sentence %d", i, j)
			assert.Equal(t, int64(docs[i][j][1]), b.Tokens.At(i, pos+1))
		}
	}
}

func TestMaskedTargets(t *testing.T) {
	selected := [][]int{{0, 2}, {1}}
	originals := [][]document.Sentence{
		{{cls, 10, 11, sep}, {cls, 12, sep}},
		{{cls, 13, 14, 15, sep}},
	}

	b, err := MaskedTargets(selected, originals, ids, pad)
	require.NoError(t, err)

	require.Equal(t, []int{2, 2}, b.Positions.Shape())
	assert.Equal(t, []int64{0, 2}, b.Positions.Row(0))
	assert.Equal(t, []int64{1, 0}, b.Positions.Row(1))
	assert.Equal(t, []int{2, 1}, b.Counts)

	require.Equal(t, []int{2, 2, 5}, b.Target.Shape())
	assert.Equal(t, []int64{10, 11, sep, pad, pad}, b.Target.Row(0, 0))
	assert.Equal(t, []int64{cls, 10, 11, pad, pad}, b.Input.Row(0, 0))
	assert.Equal(t, []int64{12, sep, pad, pad, pad}, b.Target.Row(0, 1))
	assert.Equal(t, []int64{cls, 12, pad, pad, pad}, b.Input.Row(0, 1))
	assert.Equal(t, []int64{13, 14, 15, sep, pad}, b.Target.Row(1, 0))
	assert.Equal(t, []int64{cls, 13, 14, 15, pad}, b.Input.Row(1, 0))
	assert.Equal(t, []int64{cls, pad, pad, pad, pad}, b.Input.Row(1, 1))
	assert.Equal(t, []int64{pad, pad, pad, pad, pad}, b.Target.Row(1, 1))

	assert.Equal(t, 9, b.NonPad(pad))
}

func TestMaskedTargets_Invariants(t *testing.T) {
	tests := []struct {
		name      string
		selected  [][]int
		originals [][]document.Sentence
	}{
		{"count mismatch", [][]int{{0, 1}}, [][]document.Sentence{{{cls, 5, sep}}}},
		{"missing class", [][]int{{0}}, [][]document.Sentence{{{5, 6, sep}}}},
		{"missing separator", [][]int{{0}}, [][]document.Sentence{{{cls, 5, 6}}}},
		{"batch mismatch", [][]int{{0}, {0}}, [][]document.Sentence{{{cls, 5, sep}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MaskedTargets(tt.selected, tt.originals, ids, pad)
			assert.True(t, errors.Is(err, ErrInvariant), "got %v", err)
		})
	}
}

func TestPermutationTargets(t *testing.T) {
	const bos, eos = 0, 2
	orders := [][]int{{2, 0, 1}, {0}}
	nsents := []int{3, 1}

	target, prev, err := PermutationTargets(orders, nsents, bos, eos, pad, false)
	require.NoError(t, err)
	require.Equal(t, []int{2, 4}, target.Shape())
	assert.Equal(t, []int64{2, 0, 1, eos}, target.Row(0))
	assert.Equal(t, []int64{0, eos, pad, pad}, target.Row(1))
	assert.Equal(t, []int64{bos, 2, 0, 1}, prev.Row(0))
	assert.Equal(t, []int64{bos, 0, pad, pad}, prev.Row(1))

	target, _, err = PermutationTargets(orders, nsents, bos, eos, pad, true)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 0, 1, 3}, target.Row(0))
	assert.Equal(t, []int64{0, 3, pad, pad}, target.Row(1))

	_, _, err = PermutationTargets([][]int{{0, 1}}, []int{3}, bos, eos, pad, false)
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestDocPositionTokens(t *testing.T) {
	docPad := FromSlice([]bool{false, false, true, false, true, true}, 2, 3)
	got := DocPositionTokens(docPad, cls, pad)
	assert.Equal(t, []int64{cls, cls, pad, cls, pad, pad}, got.Data())
}

func TestCheckConsistent(t *testing.T) {
	docs := []document.Document{
		{{cls, 10, sep}, {cls, 11, 12, sep}},
		{{cls, 13, sep}},
	}
	a := Documents(structures(docs...), pad)

	corrupted := []document.Document{
		{{cls, 11, 12, sep}, {cls, mask, sep}},
		{{cls, mask, sep}},
	}
	b := Documents(structures(corrupted...), pad)
	require.NoError(t, CheckConsistent(a, b))

	shorter := Documents(structures(docs[0][:1], docs[1]), pad)
	err := CheckConsistent(a, shorter)
	assert.ErrorIs(t, err, ErrInconsistentViews)
	assert.ErrorIs(t, err, ErrInvariant)

	b.NSents = []int{2, 2}
	assert.ErrorIs(t, CheckConsistent(a, b), ErrInconsistentViews)
}

func TestTwoSingleSentenceDocuments(t *testing.T) {
	docs := []document.Document{
		document.Truncate(document.Document{{cls, 'a', 'b', sep}}, 100),
		document.Truncate(document.Document{{cls, 'c', 'd', 'e', sep}}, 100),
	}
	require.Equal(t, document.Sentence{cls, 'a', 'b', sep}, docs[0][0])

	b := Documents(structures(docs...), pad)
	assert.Equal(t, []int64{0}, b.ClsPos.Row(0))
	assert.Equal(t, []int64{0}, b.ClsPos.Row(1))
	assert.Equal(t, []int{1, 1}, b.NSents)
}
