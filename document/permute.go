package document

import (
	"fmt"
	"math/rand/v2"
)

// Permute reorders the sentences of d. order[i] is the slot sentence i moves
// to, so the result satisfies out[order[i]] == d[i].
//
// With fixRatio > 0 a contiguous window of floor(len(d)*fixRatio) sentences
// at a uniform start keeps its place and only the remaining sentences are
// permuted among themselves.
func Permute(d Document, fixRatio float64, rng *rand.Rand) (Document, []int, error) {
	n := len(d)
	fixed := make([]bool, n)
	if fixRatio > 0 && n > 0 {
		window := int(float64(n) * fixRatio)
		start := rng.IntN(n - window + 1)
		for i := start; i < start+window; i++ {
			fixed[i] = true
		}
	}

	order := permuteExcept(fixed, rng)
	for i, f := range fixed {
		if f && order[i] != i {
			return nil, nil, fmt.Errorf("%w: fixed sentence %d moved to %d", ErrInvariant, i, order[i])
		}
	}

	out := make(Document, n)
	for i, s := range d {
		out[order[i]] = s
	}
	return out, order, nil
}

// permuteExcept returns a permutation of 0..len(fixed)-1 that maps every
// fixed index to itself and shuffles the others among their own positions.
func permuteExcept(fixed []bool, rng *rand.Rand) []int {
	order := make([]int, len(fixed))
	var free []int
	for i := range order {
		order[i] = i
		if !fixed[i] {
			free = append(free, i)
		}
	}

	targets := append([]int(nil), free...)
	rng.Shuffle(len(targets), func(i, j int) {
		targets[i], targets[j] = targets[j], targets[i]
	})
	for k, i := range free {
		order[i] = targets[k]
	}
	return order
}

// IsPermutation reports whether order is a bijection over 0..len(order)-1.
func IsPermutation(order []int) bool {
	seen := make([]bool, len(order))
	for _, v := range order {
		if v < 0 || v >= len(order) || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}
