package document

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeDoc(n int) Document {
	doc := make(Document, n)
	for i := range doc {
		doc[i] = Sentence{cls, int32(100 + i), sep}
	}
	return doc
}

func TestPermute_Bijection(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for n := 1; n <= 12; n++ {
		doc := makeDoc(n)
		out, order, err := Permute(doc, 0, rng)
		require.NoError(t, err)
		require.True(t, IsPermutation(order), "order %v", order)
		for i := range doc {
			assert.Equal(t, doc[i], out[order[i]])
		}
	}
}

func TestPermute_FixedWindow(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	for trial := 0; trial < 200; trial++ {
		n := 1 + trial%10
		ratio := 0.1 + float64(trial%8)/10
		doc := makeDoc(n)

		out, order, err := Permute(doc, ratio, rng)
		require.NoError(t, err)
		require.True(t, IsPermutation(order))

		window := int(float64(n) * ratio)
		fixedRun, best := 0, 0
		for i := range order {
			if order[i] == i {
				fixedRun++
			} else {
				fixedRun = 0
			}
			best = max(best, fixedRun)
		}
		assert.GreaterOrEqual(t, best, window, "n=%d ratio=%.1f order=%v", n, ratio, order)
		assert.Equal(t, doc.NumTokens(), out.NumTokens())
	}
}

func TestPermute_Empty(t *testing.T) {
	out, order, err := Permute(nil, 0.5, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, order)
}

func TestPermute_OffsetsFollowPermutedLengths(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	doc := Document{{cls, 1, sep}, {cls, 1, 2, 3, sep}, {cls, sep}, {cls, 4, 5, sep}}

	out, _, err := Permute(doc, 0, rng)
	require.NoError(t, err)

	s := out.Flatten()
	total := 0
	for i, sent := range out {
		assert.Equal(t, total, s.Offsets[i])
		total += len(sent)
	}
}

func TestIsPermutation(t *testing.T) {
	assert.True(t, IsPermutation([]int{2, 0, 1}))
	assert.True(t, IsPermutation(nil))
	assert.False(t, IsPermutation([]int{0, 0}))
	assert.False(t, IsPermutation([]int{0, 2}))
}
