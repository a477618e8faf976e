package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/go-sentperm/internal/config"
	"github.com/jamesainslie/go-sentperm/vocab"
)

var (
	configPath string
	verbose    bool

	// cfg is loaded before every command that needs it.
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sentperm-cli",
	Short: "Sentence permutation and masked sentence pretraining tools",
	Long: `Builds document-level pretraining batches: documents are split into
sentences, one view is shuffled for order prediction and another has whole
sentences masked for reconstruction.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().String("store", "", "sample database path (data.store)")
	rootCmd.PersistentFlags().Uint64("seed", 0, "random seed (data.seed)")
	rootCmd.PersistentFlags().String("encoder", "", "ONNX token encoder path (encoder.path)")
}

// loadConfig reads the config file, environment and flags set on cmd.
func loadConfig(cmd *cobra.Command) error {
	v := config.New()
	for key, name := range map[string]string{
		"data.store":   "store",
		"data.seed":    "seed",
		"encoder.path": "encoder",
	} {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("binding --%s: %w", name, err)
			}
		}
	}

	loaded, err := config.Load(v, configPath)
	if err != nil {
		return err
	}
	cfg = loaded
	return nil
}

// loadVocabulary returns the tokenizer, when configured, and the source
// dictionary. A dictionary file takes precedence over the tokenizer's
// vocabulary; the sentence mask symbol is added when missing.
func loadVocabulary() (*vocab.Tokenizer, *vocab.Dictionary, error) {
	var tok *vocab.Tokenizer
	if cfg.Data.Tokenizer != "" {
		t, err := vocab.NewTokenizer(cfg.Data.Tokenizer)
		if err != nil {
			return nil, nil, fmt.Errorf("loading tokenizer: %w", err)
		}
		tok = t
	}

	switch {
	case cfg.Data.Dictionary != "":
		dict, err := vocab.LoadDictionary(cfg.Data.Dictionary)
		if err != nil {
			return nil, nil, fmt.Errorf("loading dictionary: %w", err)
		}
		if !dict.Contains(vocab.SentMaskSymbol) {
			dict.Add(vocab.SentMaskSymbol)
		}
		return tok, dict, nil
	case tok != nil:
		return tok, tok.Dictionary(), nil
	}
	return nil, nil, fmt.Errorf("%w: set data.dictionary or data.tokenizer", config.ErrInvalid)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
