package main

import (
	"math/rand/v2"

	"github.com/spf13/cobra"

	sentperm "github.com/jamesainslie/go-sentperm"
	"github.com/jamesainslie/go-sentperm/inference"
	"github.com/jamesainslie/go-sentperm/internal/metrics"
	"github.com/jamesainslie/go-sentperm/model"
)

var forwardBatches int

var forwardCmd = &cobra.Command{
	Use:   "forward",
	Short: "Run the dual-decoder forward pass and report ordering and reconstruction scores",
	Long: `Runs collated batches through the sentence encoder and both decoders.
The token encoder is the configured ONNX export, or a randomly initialized
in-process encoder when encoder.path is empty.`,
	Args: cobra.NoArgs,
	RunE: runForward,
}

func init() {
	forwardCmd.Flags().IntVarP(&forwardBatches, "batches", "n", 1, "number of batches (0 for all)")
	rootCmd.AddCommand(forwardCmd)
}

func runForward(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	dict := s.dict
	mc := cfg.ModelParams(dict.Len(), dict.Len(), int(dict.Pad()), int(dict.EOS()))
	if err := mc.Validate(); err != nil {
		return err
	}
	rng := rand.New(rand.NewPCG(cfg.Data.Seed, cfg.Data.Seed+1))

	var tokens model.TokenEncoder
	if cfg.Encoder.Path != "" {
		pool, err := inference.NewPool(cfg.Encoder.Path, cfg.Encoder.PoolSize, cfg.EncoderOptions()...)
		if err != nil {
			return err
		}
		defer func() { _ = pool.Close() }()
		enc := inference.NewEncoder(pool)
		enc.Segments = cfg.Encoder.TokenTypeIDs != ""
		tokens = enc
	} else {
		logger.Warn("no encoder.path configured, using a randomly initialized token encoder")
		tokens = model.NewTransformerTokenEncoder(mc, cfg.Model.TokenLayers, cfg.Data.MaxTokens, rng)
	}

	m, err := model.New(mc, tokens, rng)
	if err != nil {
		return err
	}

	var (
		order  metrics.Order
		masked metrics.Tokens
	)
	err = s.batches(cmd.Context(), forwardBatches, func(i int, b *sentperm.Batch) error {
		out, err := m.Forward(cmd.Context(), &b.NetInput)
		if err != nil {
			return err
		}

		o := metrics.EvaluateOrders(out.Perm, b.TargetPerm, metrics.SentenceCounts(b.NetInput.DocPadMask))
		t := metrics.EvaluateMasked(out.Masked, b.Target, b.NetInput.MaskedCounts, int64(dict.Pad()))
		order = order.Add(o)
		masked = masked.Add(t)

		logger.Debug("forward",
			"batch", i,
			"docs", b.Size(),
			"kendall_tau", o.KendallTau,
			"masked_accuracy", t.Accuracy)
		return nil
	})
	if err != nil {
		return err
	}

	cmd.Printf("Documents:         %d\n", order.Documents)
	cmd.Printf("Kendall tau:       %.4f\n", order.KendallTau)
	cmd.Printf("Perfect match:     %.4f\n", order.PerfectMatch)
	cmd.Printf("Position accuracy: %.4f\n", order.PositionAccuracy)
	cmd.Printf("Masked accuracy:   %.4f (%d/%d tokens)\n", masked.Accuracy, masked.Correct, masked.Total)
	return nil
}
