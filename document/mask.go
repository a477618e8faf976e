package document

import (
	"fmt"
	"math/rand/v2"
	"slices"
)

// siblingRetries bounds the attempts to draw a sibling document other than
// the one being masked.
const siblingRetries = 10

// Action records how a selected sentence was corrupted.
type Action int

// Corruptions applied to selected sentences.
const (
	ActionMask Action = iota
	ActionKeep
	ActionReplace
)

func (a Action) String() string {
	switch a {
	case ActionMask:
		return "mask"
	case ActionKeep:
		return "keep"
	case ActionReplace:
		return "replace"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Masker selects sentences of a document for reconstruction and corrupts
// them in a copy.
type Masker struct {
	Prob           float64
	MinPredictions int
	MaxPredictions int
	// ShuffleProb is the probability of also permuting the unselected
	// sentences of the corrupted copy.
	ShuffleProb float64
	IDs         Specials
}

// Masked is the result of masking one document.
type Masked struct {
	// Doc is the corrupted copy.
	Doc Document
	// Selected holds the masked slots in ascending order.
	Selected []int
	// Originals holds the uncorrupted sentences of Selected, in the same
	// order. They are the reconstruction targets.
	Originals []Sentence
	Actions   []Action
}

// Count returns how many sentences of an n sentence document are selected.
func (m Masker) Count(n int) int {
	k := max(int(float64(n)*m.Prob), m.MinPredictions)
	if m.MaxPredictions > 0 {
		k = min(k, m.MaxPredictions)
	}
	return min(k, n)
}

// Mask corrupts docs[index]. The other documents of docs are the pool for
// random sentence replacement.
func (m Masker) Mask(docs []Document, index int, rng *rand.Rand) (Masked, error) {
	doc := docs[index]
	n := len(doc)

	candidates := rng.Perm(n)
	selected := candidates[:m.Count(n)]
	slices.Sort(selected)

	out := doc.Clone()
	if rng.Float64() < m.ShuffleProb {
		fixed := make([]bool, n)
		for _, i := range selected {
			fixed[i] = true
		}
		order := permuteExcept(fixed, rng)
		for i, s := range doc {
			out[order[i]] = slices.Clone(s)
		}
	}

	res := Masked{
		Doc:       out,
		Selected:  selected,
		Originals: make([]Sentence, len(selected)),
		Actions:   make([]Action, len(selected)),
	}
	for k, i := range selected {
		res.Originals[k] = slices.Clone(doc[i])

		switch {
		case rng.Float64() < 0.8:
			out[i] = m.maskSentence(len(out[i]))
			res.Actions[k] = ActionMask
		case rng.Float64() < 0.5:
			out[i] = slices.Clone(doc[i])
			res.Actions[k] = ActionKeep
		default:
			out[i] = m.replaceSentence(len(out[i]), m.siblingSentence(docs, index, rng))
			res.Actions[k] = ActionReplace
		}
	}

	if err := m.check(res); err != nil {
		return Masked{}, err
	}
	return res, nil
}

func (m Masker) maskSentence(n int) Sentence {
	s := make(Sentence, n)
	for i := range s {
		s[i] = m.IDs.Mask
	}
	s[0] = m.IDs.CLS
	s[n-1] = m.IDs.Sep
	return s
}

// replaceSentence fits rnd to length n: longer sentences keep their first
// n-1 tokens and their terminal token, shorter ones are padded with mask ids
// before the separator.
func (m Masker) replaceSentence(n int, rnd Sentence) Sentence {
	if len(rnd) >= n {
		out := slices.Clone(rnd[:n-1])
		return append(out, rnd[len(rnd)-1])
	}
	out := slices.Clone(rnd[:len(rnd)-1])
	for len(out) < n-1 {
		out = append(out, m.IDs.Mask)
	}
	return append(out, m.IDs.Sep)
}

// siblingSentence draws a random sentence from a document other than
// docs[index]. After siblingRetries attempts it settles for the last draw.
func (m Masker) siblingSentence(docs []Document, index int, rng *rand.Rand) Sentence {
	j := rng.IntN(len(docs))
	for try := 1; try < siblingRetries && j == index && len(docs) > 1; try++ {
		j = rng.IntN(len(docs))
	}
	d := docs[j]
	return d[rng.IntN(len(d))]
}

func (m Masker) check(res Masked) error {
	for k, i := range res.Selected {
		if k > 0 && res.Selected[k-1] >= i {
			return fmt.Errorf("%w: selection %v not ascending", ErrInvariant, res.Selected)
		}
		orig := res.Originals[k]
		if len(orig) < 2 || orig[0] != m.IDs.CLS || orig[len(orig)-1] != m.IDs.Sep {
			return fmt.Errorf("%w: sentence %d lacks class or separator", ErrInvariant, i)
		}
	}
	return nil
}
