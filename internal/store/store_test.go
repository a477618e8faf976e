package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sentperm "github.com/jamesainslie/go-sentperm"
	"github.com/jamesainslie/go-sentperm/vocab"
)

// setupTestStore creates a store in a temporary directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "samples.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s
}

func TestStore_PutGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ids, err := s.Put(ctx,
		Record{Name: "a", Source: []int32{5, 6, 2, 7, 2}},
		Record{Name: "b", Source: []int32{8, 2}, Target: []int32{9, 9, 2}},
	)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])

	assert.Equal(t, 2, s.Len())

	src, tgt := s.Sizes(0)
	assert.Equal(t, 5, src)
	assert.Equal(t, 0, tgt)
	src, tgt = s.Sizes(1)
	assert.Equal(t, 2, src)
	assert.Equal(t, 3, tgt)

	sample, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, sample.ID)
	assert.Equal(t, []int32{8, 2}, sample.Source)
	assert.Equal(t, []int32{9, 9, 2}, sample.Target)

	sample, err = s.Get(ctx, 0)
	require.NoError(t, err)
	assert.Nil(t, sample.Target)

	idx, err := s.Index(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	name, err := s.Name(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "a", name)
}

func TestStore_NotFound(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Index(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Name(ctx, 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "samples.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Put(ctx, Record{Name: "a", Source: []int32{4, 2}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { assert.NoError(t, s.Close()) }()

	assert.Equal(t, 1, s.Len())
	_, err = s.Put(ctx, Record{Name: "b", Source: []int32{3, 3, 2}})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	sample, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int32{3, 3, 2}, sample.Source)
}

func TestStore_PutCanceled(t *testing.T) {
	s := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, Record{Name: "a", Source: []int32{1}})
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestTokenBlobs(t *testing.T) {
	ids := []int32{0, 1, -1, 1 << 30}
	got, err := decodeTokens(encodeTokens(ids))
	require.NoError(t, err)
	assert.Equal(t, ids, got)

	_, err = decodeTokens([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestStore_AsDatasetSource(t *testing.T) {
	s := setupTestStore(t)
	dict := vocab.FromSymbols(vocab.SentMaskSymbol, "x", "y")
	x, y, sep := dict.Index("x"), dict.Index("y"), dict.EOS()

	_, err := s.Put(context.Background(),
		Record{Name: "one", Source: []int32{x, y, sep, y, sep}},
		Record{Name: "two", Source: []int32{x, sep}},
	)
	require.NoError(t, err)

	ds, err := sentperm.New(s, dict, sentperm.WithSeed(1))
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())

	var samples []sentperm.Sample
	for i := 0; i < ds.Len(); i++ {
		sample, err := ds.Get(context.Background(), i)
		require.NoError(t, err)
		samples = append(samples, sample)
	}
	batch, err := ds.Collate(samples)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, []int{0, 1}, batch.IDs)
}
