package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/go-sentperm/internal/config"
	"github.com/jamesainslie/go-sentperm/internal/store"
	"github.com/jamesainslie/go-sentperm/vocab"
)

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	configPath, verbose, configForce = "", false, false
	collateBatches, collateShow, collateDummy = 1, false, false
	forwardBatches = 1

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentperm.toml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	loaded, err := config.Load(config.New(), path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), *loaded)

	_, err = execute(t, "config", "init", path)
	assert.Error(t, err)

	_, err = execute(t, "config", "init", "--force", path)
	assert.NoError(t, err)
}

func TestConfigShow(t *testing.T) {
	out, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "bert_model")
	assert.Contains(t, out, "roberta-base")
}

// fixture writes a dictionary, a small model config and three stored
// documents, and returns the config path.
func fixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	dictPath := filepath.Join(dir, "dict.txt")
	require.NoError(t, os.WriteFile(dictPath, []byte("a 9\nb 8\nc 7\nd 6\n"), 0o644))
	dict, err := vocab.LoadDictionary(dictPath)
	require.NoError(t, err)
	a, b, c, d, sep := dict.Index("a"), dict.Index("b"), dict.Index("c"), dict.Index("d"), dict.EOS()

	cfg := config.Default()
	cfg.Data.Dictionary = dictPath
	cfg.Data.Store = filepath.Join(dir, "samples.db")
	cfg.Data.BatchSize = 2
	cfg.Data.MaxTokens = 64
	cfg.Model.Hidden, cfg.Model.Heads, cfg.Model.FFN = 8, 2, 16
	cfg.Model.SentenceLayers, cfg.Model.PermLayers, cfg.Model.MaskLayers = 1, 1, 1
	cfg.Model.TokenLayers = 1
	path := filepath.Join(dir, "sentperm.toml")
	require.NoError(t, config.Write(path, cfg))

	s, err := store.Open(cfg.Data.Store)
	require.NoError(t, err)
	_, err = s.Put(context.Background(),
		store.Record{Name: "one", Source: []int32{a, b, sep, c, sep, d, sep}},
		store.Record{Name: "two", Source: []int32{b, sep, a, a, sep}},
		store.Record{Name: "three", Source: []int32{c, d, sep}},
	)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	return path
}

func TestCollate(t *testing.T) {
	path := fixture(t)

	out, err := execute(t, "collate", "-c", path, "--show")
	require.NoError(t, err)
	assert.Contains(t, out, "batch 0: docs=2")
	assert.Contains(t, out, "perm")
	assert.Contains(t, out, "masked")

	out, err = execute(t, "collate", "-c", path, "--batches", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "batch 1: docs=1")

	out, err = execute(t, "collate", "-c", path, "--dummy")
	require.NoError(t, err)
	assert.Contains(t, out, "batch 0: docs=2")
}

func TestForward(t *testing.T) {
	path := fixture(t)

	out, err := execute(t, "forward", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Documents:         2")
	assert.Contains(t, out, "Masked accuracy:")
}

func TestIngest_RequiresTokenizer(t *testing.T) {
	path := fixture(t)

	_, err := execute(t, "ingest", "-c", path, t.TempDir())
	assert.ErrorContains(t, err, "tokenizer")
}

func TestMissingVocabulary(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Data.Store = filepath.Join(dir, "samples.db")
	path := filepath.Join(dir, "sentperm.toml")
	require.NoError(t, config.Write(path, cfg))

	_, err := execute(t, "collate", "-c", path)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestVersionCmd(t *testing.T) {
	originalVersion := version
	version = "test-version-1.0.0"
	defer func() { version = originalVersion }()

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "sentperm-cli version test-version-1.0.0")
}
