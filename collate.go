package sentperm

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/jamesainslie/go-sentperm/document"
	"github.com/jamesainslie/go-sentperm/tensor"
	"github.com/jamesainslie/go-sentperm/vocab"
)

// NetInput holds the model inputs of a batch. B is the number of documents,
// T the padded token length, N the padded sentence count, S the padded
// masked sentence count and L the padded masked sentence length.
type NetInput struct {
	// Tokens is the permuted view, [B, T].
	Tokens *tensor.Long
	// TokensWithMask is the masked view, [B, T].
	TokensWithMask *tensor.Long
	// DocPadMask is [B, N], true on padding slots.
	DocPadMask *tensor.Bool
	// TokenMask and TokenMaskWithMask are the token attention masks of the
	// two views.
	TokenMask         tensor.TokenMask
	TokenMaskWithMask tensor.TokenMask
	// SegmentIDs is [B, T], all zero.
	SegmentIDs *tensor.Long
	// DocPosTokens is [B, N]: the class id on sentence slots, pad elsewhere.
	DocPosTokens *tensor.Long
	// PrevOutputTokensPerm is [B, N+1]: bos followed by the target order.
	PrevOutputTokensPerm *tensor.Long
	// ClsPos and ClsPosMask hold the sentence offsets of the two views,
	// [B, N].
	ClsPos     *tensor.Long
	ClsPosMask *tensor.Long
	// MaskedSentPositions is [B, S], 0 padded; MaskedCounts holds the valid
	// entries per row.
	MaskedSentPositions *tensor.Long
	MaskedCounts        []int
	// PrevOutputTokens is the masked sentence teacher-forcing input,
	// [B, S, L].
	PrevOutputTokens *tensor.Long
}

// Batch is a collated training batch.
type Batch struct {
	// IDs holds the sample ids of the documents that were kept.
	IDs []int
	// NTokens counts the non-pad masked sentence target tokens.
	NTokens int
	// NTokensSent counts the sentences of the batch.
	NTokensSent int
	NetInput    NetInput
	// TargetPerm is [B, N+1]: the order followed by eos or the end slot.
	TargetPerm *tensor.Long
	// Target is the masked sentence reconstruction target, [B, S, L].
	Target *tensor.Long
}

// Size returns the number of documents.
func (b *Batch) Size() int { return len(b.IDs) }

// Collate builds a Batch from samples. Samples without sentences are
// dropped; when none remain the result is nil.
func (d *Dataset) Collate(samples []Sample) (*Batch, error) {
	return d.collate(samples, d.masker)
}

func (d *Dataset) collate(samples []Sample, masker document.Masker) (*Batch, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	var (
		ids  []int
		docs []document.Document
	)
	for _, s := range samples {
		doc := document.Prepare(s.Source, d.ids, d.limits)
		if len(doc) == 0 {
			continue
		}
		ids = append(ids, s.ID)
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		d.logger.Debug("no documents in batch", "samples", len(samples))
		return nil, nil
	}

	permuted := make([]document.Structure, len(docs))
	orders := make([][]int, len(docs))
	for i, doc := range docs {
		out, order, err := document.Permute(doc, d.cfg.fixRatio, d.rng)
		if err != nil {
			return nil, fmt.Errorf("permuting sample %d: %w", ids[i], err)
		}
		permuted[i] = out.Flatten()
		orders[i] = order
	}

	masked := make([]document.Structure, len(docs))
	selected := make([][]int, len(docs))
	originals := make([][]document.Sentence, len(docs))
	for i := range docs {
		res, err := masker.Mask(docs, i, d.rng)
		if err != nil {
			return nil, fmt.Errorf("masking sample %d: %w", ids[i], err)
		}
		masked[i] = res.Doc.Flatten()
		selected[i] = res.Selected
		originals[i] = res.Originals
	}

	pad := int64(d.dict.Pad())
	permBatch := tensor.Documents(permuted, pad)
	maskBatch := tensor.Documents(masked, pad)
	if err := tensor.CheckConsistent(permBatch, maskBatch); err != nil {
		return nil, err
	}

	targets, err := tensor.MaskedTargets(selected, originals, d.ids, pad)
	if err != nil {
		return nil, err
	}
	targetPerm, prevPerm, err := tensor.PermutationTargets(orders, permBatch.NSents,
		int64(d.tgt.BOS()), int64(d.tgt.EOS()), int64(d.tgt.Pad()), d.cfg.pointerNet)
	if err != nil {
		return nil, err
	}

	b := &Batch{
		IDs:         ids,
		NTokens:     targets.NonPad(pad),
		NTokensSent: lo.Sum(permBatch.NSents),
		NetInput: NetInput{
			Tokens:               permBatch.Tokens,
			TokensWithMask:       maskBatch.Tokens,
			DocPadMask:           permBatch.DocPadMask,
			TokenMask:            tensor.NewTokenMask(permBatch.Tokens, permBatch.ClsPos, permBatch.NSents, pad, d.cfg.maskOtherSentences),
			TokenMaskWithMask:    tensor.NewTokenMask(maskBatch.Tokens, maskBatch.ClsPos, maskBatch.NSents, pad, d.cfg.maskOtherSentences),
			SegmentIDs:           permBatch.SegmentIDs,
			DocPosTokens:         tensor.DocPositionTokens(permBatch.DocPadMask, int64(d.ids.CLS), pad),
			PrevOutputTokensPerm: prevPerm,
			ClsPos:               permBatch.ClsPos,
			ClsPosMask:           maskBatch.ClsPos,
			MaskedSentPositions:  targets.Positions,
			MaskedCounts:         targets.Counts,
			PrevOutputTokens:     targets.Input,
		},
		TargetPerm: targetPerm,
		Target:     targets.Target,
	}

	d.logger.Debug("collated batch",
		"docs", len(docs),
		"dropped", len(samples)-len(docs),
		"tokens", permBatch.Tokens.Dim(1),
		"ntokens", b.NTokens,
		"ntokens_sent", b.NTokensSent)
	return b, nil
}

// DummyBatch returns a batch of n synthetic documents that fill the token
// budget with the maximum sentence count. Every document gets the maximum
// number of masked sentences.
func (d *Dataset) DummyBatch(n int) (*Batch, error) {
	maxDoc := d.cfg.maxSentences
	sentLen := d.cfg.maxTokens / maxDoc
	lastLen := d.cfg.maxTokens - (maxDoc-1)*sentLen

	unk := d.dict.Unk()
	var src []int32
	for i := 0; i < maxDoc; i++ {
		cur := sentLen
		if i == maxDoc-1 {
			cur = lastLen
		}
		for j := 0; j < cur-1; j++ {
			src = append(src, unk)
		}
		if i != maxDoc-1 {
			src = append(src, d.ids.Sep)
		}
	}
	tgt := make([]int32, maxDoc)
	for i := range tgt {
		tgt[i] = d.tgt.Index("F")
	}

	samples := make([]Sample, n)
	for i := range samples {
		samples[i] = Sample{ID: i, Source: src, Target: tgt}
	}

	masker := d.masker
	masker.MinPredictions = masker.MaxPredictions
	return d.collate(samples, masker)
}

// Describe renders document i of the batch's two token views for logging.
func (b *Batch) Describe(dict *vocab.Dictionary, i int) (perm, masked string) {
	render := func(row []int64) string {
		ids := make([]int32, 0, len(row))
		for _, v := range row {
			if int32(v) == dict.Pad() {
				break
			}
			ids = append(ids, int32(v))
		}
		return dict.String(ids)
	}
	return render(b.NetInput.Tokens.Row(i)), render(b.NetInput.TokensWithMask.Row(i))
}
