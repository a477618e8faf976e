package main

import (
	"github.com/spf13/cobra"

	sentperm "github.com/jamesainslie/go-sentperm"
)

var (
	collateBatches int
	collateShow    bool
	collateDummy   bool
)

var collateCmd = &cobra.Command{
	Use:   "collate",
	Short: "Collate batches from the sample store and print their layout",
	Args:  cobra.NoArgs,
	RunE:  runCollate,
}

func init() {
	collateCmd.Flags().IntVarP(&collateBatches, "batches", "n", 1, "number of batches (0 for all)")
	collateCmd.Flags().BoolVar(&collateShow, "show", false, "print the permuted and masked documents")
	collateCmd.Flags().BoolVar(&collateDummy, "dummy", false, "collate a synthetic batch instead of stored samples")
	rootCmd.AddCommand(collateCmd)
}

func runCollate(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	report := func(i int, b *sentperm.Batch) error {
		in := b.NetInput
		cmd.Printf("batch %d: docs=%d ntokens=%d ntokens_sent=%d tokens=%v masked=%v target_perm=%v\n",
			i, b.Size(), b.NTokens, b.NTokensSent, in.Tokens, in.PrevOutputTokens, b.TargetPerm)
		if !collateShow {
			return nil
		}
		for j, id := range b.IDs {
			perm, masked := b.Describe(s.dict, j)
			cmd.Printf("  [%d] order  %v\n", id, b.TargetPerm.Row(j))
			cmd.Printf("      perm   %s\n", perm)
			cmd.Printf("      masked %s\n", masked)
		}
		return nil
	}

	if collateDummy {
		b, err := s.dataset.DummyBatch(cfg.Data.BatchSize)
		if err != nil {
			return err
		}
		return report(0, b)
	}
	return s.batches(cmd.Context(), collateBatches, report)
}
