package main

import (
	"errors"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/go-sentperm/internal/corpus"
	"github.com/jamesainslie/go-sentperm/internal/store"
	"github.com/jamesainslie/go-sentperm/vocab"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest DIR",
	Short: "Tokenize a directory of .txt documents into the sample store",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if err := loadConfig(cmd); err != nil {
		return err
	}
	tok, dict, err := loadVocabulary()
	if err != nil {
		return err
	}
	if tok == nil {
		return errors.New("ingest requires data.tokenizer")
	}
	defer func() { _ = tok.Close() }()

	sepSym, err := vocab.SeparatorFor(cfg.Data.BertModel)
	if err != nil {
		return err
	}
	sep := dict.Index(sepSym)

	docs, err := corpus.LoadCorpus(cmd.Context(), args[0], cfg.Data.Workers)
	if err != nil {
		return err
	}

	records := lo.FilterMap(docs, func(d *corpus.Document, _ int) (store.Record, bool) {
		ids := corpus.Encode(d, tok, sep, cfg.Data.MaxTokens)
		return store.Record{Name: d.ID, Source: ids}, len(ids) > 0
	})

	s, err := store.Open(cfg.Data.Store)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if _, err := s.Put(cmd.Context(), records...); err != nil {
		return err
	}

	logger.Info("ingested corpus",
		"dir", args[0],
		"documents", len(docs),
		"stored", len(records),
		"store", s.Path())
	cmd.Printf("Stored %d of %d documents in %s (%d total)\n", len(records), len(docs), s.Path(), s.Len())
	return nil
}
