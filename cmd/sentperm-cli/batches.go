package main

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	sentperm "github.com/jamesainslie/go-sentperm"
	"github.com/jamesainslie/go-sentperm/internal/store"
	"github.com/jamesainslie/go-sentperm/vocab"
)

// session holds what the batch commands share.
type session struct {
	dataset *sentperm.Dataset
	dict    *vocab.Dictionary
	store   *store.Store
}

func (s *session) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

func openSession(cmd *cobra.Command) (*session, error) {
	if err := loadConfig(cmd); err != nil {
		return nil, err
	}
	tok, dict, err := loadVocabulary()
	if err != nil {
		return nil, err
	}
	if tok != nil {
		_ = tok.Close()
	}

	st, err := store.Open(cfg.Data.Store)
	if err != nil {
		return nil, err
	}
	ds, err := sentperm.New(st, dict, cfg.Options(logger)...)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return &session{dataset: ds, dict: dict, store: st}, nil
}

// batches collates up to limit batches in dataset order and calls fn on
// each. limit <= 0 means all.
func (s *session) batches(ctx context.Context, limit int, fn func(i int, b *sentperm.Batch) error) error {
	chunks := lo.Chunk(s.dataset.OrderedIndices(), cfg.Data.BatchSize)
	if limit > 0 && len(chunks) > limit {
		chunks = chunks[:limit]
	}
	for i, chunk := range chunks {
		samples := make([]sentperm.Sample, 0, len(chunk))
		for _, idx := range chunk {
			sample, err := s.dataset.Get(ctx, idx)
			if err != nil {
				return err
			}
			samples = append(samples, sample)
		}
		b, err := s.dataset.Collate(samples)
		if err != nil {
			return fmt.Errorf("collating batch %d: %w", i, err)
		}
		if b == nil {
			logger.Debug("skipping empty batch", "batch", i)
			continue
		}
		if err := fn(i, b); err != nil {
			return err
		}
	}
	return nil
}
