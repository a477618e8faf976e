package tensor

import (
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/jamesainslie/go-sentperm/document"
)

var (
	// ErrInvariant reports a batch that violates its structural contract.
	// It is the same sentinel as document.ErrInvariant.
	ErrInvariant = document.ErrInvariant

	// ErrInconsistentViews reports that the permuted and masked views of a
	// batch disagree on their shared structure.
	ErrInconsistentViews = fmt.Errorf("%w: permutation and masking views disagree", ErrInvariant)
)

// DocBatch is the padded tensor view of a list of flattened documents.
type DocBatch struct {
	// Tokens is [B, maxTokens], pad filled.
	Tokens *Long
	// DocPadMask is [B, maxSentences], true on padding slots.
	DocPadMask *Bool
	// SegmentIDs is [B, maxTokens], all zero.
	SegmentIDs *Long
	// ClsPos is [B, maxSentences], 0 on padding slots.
	ClsPos *Long
	NSents []int
}

// Documents pads structs into a DocBatch.
func Documents(structs []document.Structure, pad int64) DocBatch {
	maxTokens := lo.Max(lo.Map(structs, func(s document.Structure, _ int) int { return len(s.Tokens) }))
	nsents := lo.Map(structs, func(s document.Structure, _ int) int { return s.NumSentences() })
	maxSents := lo.Max(nsents)

	b := DocBatch{
		Tokens:     NewLong(pad, len(structs), maxTokens),
		DocPadMask: NewBool(true, len(structs), maxSents),
		SegmentIDs: NewLong(0, len(structs), maxTokens),
		ClsPos:     NewLong(0, len(structs), maxSents),
		NSents:     nsents,
	}
	for i, s := range structs {
		row := b.Tokens.Row(i)
		for j, tok := range s.Tokens {
			row[j] = int64(tok)
		}
		for j, off := range s.Offsets {
			b.DocPadMask.Set(false, i, j)
			b.ClsPos.Set(int64(off), i, j)
		}
	}
	return b
}

// MaskedBatch holds the reconstruction targets of the masked view.
type MaskedBatch struct {
	// Positions is [B, maxSelected], 0 padded.
	Positions *Long
	// Counts holds the number of valid entries per row of Positions.
	Counts []int
	// Input is [B, maxSelected, maxLen]: the class id followed by the
	// sentence without class and final token.
	Input *Long
	// Target is [B, maxSelected, maxLen]: the sentence without class.
	Target *Long
}

// MaskedTargets tensorizes the selections and original sentences of a masked
// batch. maxLen counts the class token, so every row keeps at least one
// trailing pad.
func MaskedTargets(selected [][]int, originals [][]document.Sentence, ids document.Specials, pad int64) (MaskedBatch, error) {
	if len(selected) != len(originals) {
		return MaskedBatch{}, fmt.Errorf("%w: %d selections for %d documents", ErrInvariant, len(selected), len(originals))
	}

	counts := lo.Map(selected, func(s []int, _ int) int { return len(s) })
	maxSel := lo.Max(counts)
	maxLen := 0
	for i, sents := range originals {
		if len(sents) != counts[i] {
			return MaskedBatch{}, fmt.Errorf("%w: document %d has %d selections and %d targets", ErrInvariant, i, counts[i], len(sents))
		}
		for _, s := range sents {
			maxLen = max(maxLen, len(s))
		}
	}

	b := MaskedBatch{
		Positions: NewLong(0, len(selected), maxSel),
		Counts:    counts,
		Input:     NewLong(pad, len(selected), maxSel, maxLen),
		Target:    NewLong(pad, len(selected), maxSel, maxLen),
	}
	for i, sel := range selected {
		for j, pos := range sel {
			b.Positions.Set(int64(pos), i, j)
		}
		for j := 0; j < maxSel; j++ {
			if maxLen > 0 {
				b.Input.Set(int64(ids.CLS), i, j, 0)
			}
		}
		for j, sent := range originals[i] {
			if len(sent) < 2 || sent[0] != ids.CLS || sent[len(sent)-1] != ids.Sep {
				return MaskedBatch{}, fmt.Errorf("%w: masked sentence %d of document %d lacks class or separator", ErrInvariant, j, i)
			}
			body := sent[1:]
			in, tgt := b.Input.Row(i, j), b.Target.Row(i, j)
			for k, tok := range body {
				tgt[k] = int64(tok)
				if k+1 < len(body) {
					in[k+1] = int64(tok)
				}
			}
		}
	}
	return b, nil
}

// NonPad counts the target tokens that are not padding.
func (b MaskedBatch) NonPad(pad int64) int {
	return len(b.Target.Data()) - b.Target.Count(pad)
}

// PermutationTargets builds the target and teacher-forcing input of the
// permutation decoder, both [B, maxN+1]. target holds the order followed by
// eos, or by maxN when pointer is set (the slot of the end sentinel). prev
// holds bos followed by the order.
func PermutationTargets(orders [][]int, nsents []int, bos, eos, pad int64, pointer bool) (target, prev *Long, err error) {
	maxN := lo.Max(nsents)
	target = NewLong(pad, len(orders), maxN+1)
	prev = NewLong(pad, len(orders), maxN+1)

	for i, order := range orders {
		n := nsents[i]
		if len(order) != n {
			return nil, nil, fmt.Errorf("%w: document %d has %d sentences and order of length %d", ErrInvariant, i, n, len(order))
		}
		t, p := target.Row(i), prev.Row(i)
		for j, v := range order {
			t[j] = int64(v)
			p[j+1] = int64(v)
		}
		if pointer {
			t[n] = int64(maxN)
		} else {
			t[n] = eos
		}
		p[0] = bos
	}
	return target, prev, nil
}

// DocPositionTokens returns a [B, maxN] tensor holding cls on sentence slots
// and pad on padding slots.
func DocPositionTokens(docPad *Bool, cls, pad int64) *Long {
	out := NewLong(cls, docPad.Shape()...)
	for i, padded := range docPad.Data() {
		if padded {
			out.data[i] = pad
		}
	}
	return out
}

// CheckConsistent verifies that two views of the same documents agree on
// padding, segments and sentence counts.
func CheckConsistent(a, b DocBatch) error {
	switch {
	case !a.DocPadMask.Equal(b.DocPadMask):
		return fmt.Errorf("%w: doc_pad_mask %v vs %v", ErrInconsistentViews, a.DocPadMask, b.DocPadMask)
	case !a.SegmentIDs.Equal(b.SegmentIDs):
		return fmt.Errorf("%w: segment ids %v vs %v", ErrInconsistentViews, a.SegmentIDs, b.SegmentIDs)
	case !slices.Equal(a.NSents, b.NSents):
		return fmt.Errorf("%w: nsents %v vs %v", ErrInconsistentViews, a.NSents, b.NSents)
	}
	return nil
}
