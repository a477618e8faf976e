// Package config loads the CLI configuration from a TOML file, SENTPERM_
// environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	sentperm "github.com/jamesainslie/go-sentperm"
	"github.com/jamesainslie/go-sentperm/inference"
	"github.com/jamesainslie/go-sentperm/model"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid")

// EnvPrefix prefixes environment overrides, e.g. SENTPERM_DATA_SEED.
const EnvPrefix = "SENTPERM"

// Config is the complete CLI configuration.
type Config struct {
	Data    DataConfig    `mapstructure:"data" toml:"data"`
	Model   ModelConfig   `mapstructure:"model" toml:"model"`
	Encoder EncoderConfig `mapstructure:"encoder" toml:"encoder"`
}

// DataConfig controls vocabulary, storage and batch construction.
type DataConfig struct {
	Store          string  `mapstructure:"store" toml:"store"`
	Dictionary     string  `mapstructure:"dictionary" toml:"dictionary"`
	Tokenizer      string  `mapstructure:"tokenizer" toml:"tokenizer"`
	BertModel      string  `mapstructure:"bert_model" toml:"bert_model"`
	FixRatio       float64 `mapstructure:"fix_ratio" toml:"fix_ratio"`
	MaxSentenceLen int     `mapstructure:"max_sentence_len" toml:"max_sentence_len"`
	MaxSentences   int     `mapstructure:"max_sentences" toml:"max_sentences"`
	MaxTokens      int     `mapstructure:"max_tokens" toml:"max_tokens"`
	MaskedProb     float64 `mapstructure:"masked_prob" toml:"masked_prob"`
	MinPredictions int     `mapstructure:"min_predictions" toml:"min_predictions"`
	MaxPredictions int     `mapstructure:"max_predictions" toml:"max_predictions"`
	ShuffleProb    float64 `mapstructure:"shuffle_prob" toml:"shuffle_prob"`
	MaskOthers     bool    `mapstructure:"mask_other_sentences" toml:"mask_other_sentences"`
	Shuffle        bool    `mapstructure:"shuffle" toml:"shuffle"`
	Seed           uint64  `mapstructure:"seed" toml:"seed"`
	BatchSize      int     `mapstructure:"batch_size" toml:"batch_size"`
	Workers        int     `mapstructure:"workers" toml:"workers"`
}

// ModelConfig selects the decoder variants and sizes.
type ModelConfig struct {
	PredictArch    string `mapstructure:"predict_arch" toml:"predict_arch"`
	PointerAttn    string `mapstructure:"pointer_attn" toml:"pointer_attn"`
	Hidden         int    `mapstructure:"hidden" toml:"hidden"`
	SentenceLayers int    `mapstructure:"sentence_layers" toml:"sentence_layers"`
	PermLayers     int    `mapstructure:"perm_layers" toml:"perm_layers"`
	MaskLayers     int    `mapstructure:"mask_layers" toml:"mask_layers"`
	Heads          int    `mapstructure:"heads" toml:"heads"`
	FFN            int    `mapstructure:"ffn" toml:"ffn"`
	ShortenDecoder bool   `mapstructure:"shorten_decoder" toml:"shorten_decoder"`
	IgnoreSentMask bool   `mapstructure:"ignore_sent_mask" toml:"ignore_sent_mask"`
	// TokenLayers sizes the in-process token encoder used when no ONNX
	// encoder is configured.
	TokenLayers int `mapstructure:"token_layers" toml:"token_layers"`
}

// EncoderConfig points at the exported token encoder.
type EncoderConfig struct {
	Path          string `mapstructure:"path" toml:"path"`
	PoolSize      int    `mapstructure:"pool_size" toml:"pool_size"`
	InputIDs      string `mapstructure:"input_ids" toml:"input_ids"`
	TokenTypeIDs  string `mapstructure:"token_type_ids" toml:"token_type_ids"`
	AttentionMask string `mapstructure:"attention_mask" toml:"attention_mask"`
	Hidden        string `mapstructure:"hidden" toml:"hidden"`
}

// Default returns the built-in configuration.
func Default() Config {
	names := inference.DefaultNames()
	return Config{
		Data: DataConfig{
			Store:          "data/samples.db",
			BertModel:      "roberta-base",
			MaxSentenceLen: 50,
			MaxSentences:   30,
			MaxTokens:      512,
			MaskedProb:     0.15,
			MinPredictions: 1,
			MaxPredictions: 5,
			ShuffleProb:    1,
			Shuffle:        true,
			Seed:           1,
			BatchSize:      8,
			Workers:        4,
		},
		Model: ModelConfig{
			PredictArch:    string(model.PointerNet),
			PointerAttn:    string(model.Perceptron),
			Hidden:         768,
			SentenceLayers: 2,
			PermLayers:     6,
			MaskLayers:     6,
			Heads:          12,
			FFN:            3072,
			TokenLayers:    2,
		},
		Encoder: EncoderConfig{
			PoolSize:      1,
			InputIDs:      names.InputIDs,
			TokenTypeIDs:  names.TokenTypeIDs,
			AttentionMask: names.AttentionMask,
			Hidden:        names.Hidden,
		},
	}
}

// New returns a viper instance holding the defaults and reading
// SENTPERM_ environment overrides. Callers may bind flags to it before Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults registers every key of cfg so env and flag lookups resolve.
func setDefaults(v *viper.Viper, cfg Config) {
	d := cfg.Data
	v.SetDefault("data.store", d.Store)
	v.SetDefault("data.dictionary", d.Dictionary)
	v.SetDefault("data.tokenizer", d.Tokenizer)
	v.SetDefault("data.bert_model", d.BertModel)
	v.SetDefault("data.fix_ratio", d.FixRatio)
	v.SetDefault("data.max_sentence_len", d.MaxSentenceLen)
	v.SetDefault("data.max_sentences", d.MaxSentences)
	v.SetDefault("data.max_tokens", d.MaxTokens)
	v.SetDefault("data.masked_prob", d.MaskedProb)
	v.SetDefault("data.min_predictions", d.MinPredictions)
	v.SetDefault("data.max_predictions", d.MaxPredictions)
	v.SetDefault("data.shuffle_prob", d.ShuffleProb)
	v.SetDefault("data.mask_other_sentences", d.MaskOthers)
	v.SetDefault("data.shuffle", d.Shuffle)
	v.SetDefault("data.seed", d.Seed)
	v.SetDefault("data.batch_size", d.BatchSize)
	v.SetDefault("data.workers", d.Workers)

	m := cfg.Model
	v.SetDefault("model.predict_arch", m.PredictArch)
	v.SetDefault("model.pointer_attn", m.PointerAttn)
	v.SetDefault("model.hidden", m.Hidden)
	v.SetDefault("model.sentence_layers", m.SentenceLayers)
	v.SetDefault("model.perm_layers", m.PermLayers)
	v.SetDefault("model.mask_layers", m.MaskLayers)
	v.SetDefault("model.heads", m.Heads)
	v.SetDefault("model.ffn", m.FFN)
	v.SetDefault("model.shorten_decoder", m.ShortenDecoder)
	v.SetDefault("model.ignore_sent_mask", m.IgnoreSentMask)
	v.SetDefault("model.token_layers", m.TokenLayers)

	e := cfg.Encoder
	v.SetDefault("encoder.path", e.Path)
	v.SetDefault("encoder.pool_size", e.PoolSize)
	v.SetDefault("encoder.input_ids", e.InputIDs)
	v.SetDefault("encoder.token_type_ids", e.TokenTypeIDs)
	v.SetDefault("encoder.attention_mask", e.AttentionMask)
	v.SetDefault("encoder.hidden", e.Hidden)
}

// Load reads path into v when it is non-empty, decodes and validates the
// result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		slog.Debug("loaded config", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Write stores cfg as TOML at path, creating parent directories.
func Write(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks values the library constructors would otherwise reject
// late or not at all.
func (c Config) Validate() error {
	d, m, e := c.Data, c.Model, c.Encoder
	switch {
	case d.FixRatio < 0 || d.FixRatio >= 1:
		return fmt.Errorf("%w: fix_ratio %v not in [0, 1)", ErrInvalid, d.FixRatio)
	case d.MaskedProb < 0 || d.MaskedProb > 1:
		return fmt.Errorf("%w: masked_prob %v not in [0, 1]", ErrInvalid, d.MaskedProb)
	case d.ShuffleProb < 0 || d.ShuffleProb > 1:
		return fmt.Errorf("%w: shuffle_prob %v not in [0, 1]", ErrInvalid, d.ShuffleProb)
	case d.MinPredictions < 0 || d.MinPredictions > d.MaxPredictions:
		return fmt.Errorf("%w: predictions [%d, %d]", ErrInvalid, d.MinPredictions, d.MaxPredictions)
	case d.MaxSentenceLen <= 0 || d.MaxSentences <= 0 || d.MaxTokens <= 0:
		return fmt.Errorf("%w: document limits must be positive", ErrInvalid)
	case d.BatchSize <= 0:
		return fmt.Errorf("%w: batch_size %d", ErrInvalid, d.BatchSize)
	case e.Path != "" && (e.InputIDs == "" || e.AttentionMask == "" || e.Hidden == ""):
		return fmt.Errorf("%w: encoder input and output names are required", ErrInvalid)
	case m.TokenLayers < 0:
		return fmt.Errorf("%w: token_layers %d", ErrInvalid, m.TokenLayers)
	}
	return nil
}

// Options maps the data section onto dataset options.
func (c Config) Options(logger *slog.Logger) []sentperm.Option {
	d := c.Data
	return []sentperm.Option{
		sentperm.WithModelFamily(d.BertModel),
		sentperm.WithFixRatio(d.FixRatio),
		sentperm.WithMaxSentenceLen(d.MaxSentenceLen),
		sentperm.WithMaxSentences(d.MaxSentences),
		sentperm.WithMaxTokens(d.MaxTokens),
		sentperm.WithMaskedProb(d.MaskedProb),
		sentperm.WithPredictions(d.MinPredictions, d.MaxPredictions),
		sentperm.WithShuffleProb(d.ShuffleProb),
		sentperm.WithMaskOtherSentences(d.MaskOthers),
		sentperm.WithShuffle(d.Shuffle),
		sentperm.WithPointerNet(c.Model.PredictArch == string(model.PointerNet)),
		sentperm.WithSeed(d.Seed),
		sentperm.WithLogger(logger),
	}
}

// ModelParams maps the model section onto a model configuration for the
// given vocabulary sizes and special ids.
func (c Config) ModelParams(sourceVocab, targetVocab, pad, eos int) model.Config {
	m := c.Model
	cfg := model.DefaultConfig(sourceVocab, targetVocab)
	cfg.Hidden = m.Hidden
	cfg.SentenceLayers, cfg.SentenceHeads, cfg.SentenceFFN = m.SentenceLayers, m.Heads, m.FFN
	cfg.PermLayers, cfg.PermHeads, cfg.PermFFN = m.PermLayers, m.Heads, m.FFN
	cfg.MaskLayers, cfg.MaskHeads, cfg.MaskFFN = m.MaskLayers, m.Heads, m.FFN
	cfg.PredictArch = model.PredictArch(m.PredictArch)
	cfg.PointerAttn = model.PointerAttn(m.PointerAttn)
	cfg.ShortenDecoder = m.ShortenDecoder
	cfg.IgnoreSentMask = m.IgnoreSentMask
	cfg.Pad, cfg.EOS = pad, eos
	return cfg
}

// EncoderOptions maps the encoder section onto session options.
func (c Config) EncoderOptions() []inference.Option {
	e := c.Encoder
	return []inference.Option{inference.WithNames(inference.Names{
		InputIDs:      e.InputIDs,
		TokenTypeIDs:  e.TokenTypeIDs,
		AttentionMask: e.AttentionMask,
		Hidden:        e.Hidden,
	})}
}
