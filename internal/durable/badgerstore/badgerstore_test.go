package badgerstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsayer/materialize/internal/durable"
	"github.com/vsayer/materialize/internal/durable/badgerstore"
	"github.com/vsayer/materialize/pkg/catalog"
)

func TestOpenRequiresPath(t *testing.T) {
	_, err := badgerstore.Open(badgerstore.Config{})
	assert.ErrorIs(t, err, catalog.ErrInvalidConfig)
}

func TestScanIsPrefixScopedAndOrdered(t *testing.T) {
	ctx := context.Background()
	s, err := badgerstore.Open(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Update(ctx, func(w durable.Writer) error {
		for _, kv := range [][3]string{
			{"item", "002", "b"},
			{"item", "001", "a"},
			{"items", "000", "other collection"},
			{"role", "001", "r"},
		} {
			if err := w.Put(ctx, kv[0], kv[1], []byte(kv[2])); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.View(ctx, func(r durable.Reader) error {
		pairs, err := r.Scan(ctx, "item")
		require.NoError(t, err)
		require.Len(t, pairs, 2)
		assert.Equal(t, durable.Pair{Key: "001", Value: []byte("a")}, pairs[0])
		assert.Equal(t, durable.Pair{Key: "002", Value: []byte("b")}, pairs[1])

		_, ok, err := r.Get(ctx, "item", "003")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestUpdateIsAtomic(t *testing.T) {
	ctx := context.Background()
	s, err := badgerstore.Open(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	defer s.Close()

	boom := errors.New("boom")
	err = s.Update(ctx, func(w durable.Writer) error {
		require.NoError(t, w.Put(ctx, "setting", "k", []byte("v")))
		v, ok, err := w.Get(ctx, "setting", "k")
		require.NoError(t, err)
		require.True(t, ok, "writers read their own writes")
		assert.Equal(t, []byte("v"), v)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, s.View(ctx, func(r durable.Reader) error {
		_, ok, err := r.Get(ctx, "setting", "k")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestDeleteAndReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := badgerstore.Open(badgerstore.DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, func(w durable.Writer) error {
		if err := w.Put(ctx, "item", "001", []byte("a")); err != nil {
			return err
		}
		return w.Put(ctx, "item", "002", []byte("b"))
	}))
	require.NoError(t, s.Update(ctx, func(w durable.Writer) error {
		return w.Delete(ctx, "item", "001")
	}))
	require.NoError(t, s.Close())

	s, err = badgerstore.Open(badgerstore.DefaultConfig(dir))
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.View(ctx, func(r durable.Reader) error {
		pairs, err := r.Scan(ctx, "item")
		require.NoError(t, err)
		assert.Equal(t, []durable.Pair{{Key: "002", Value: []byte("b")}}, pairs)
		return nil
	}))
}

func TestCanceledContext(t *testing.T) {
	s, err := badgerstore.Open(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.View(ctx, func(durable.Reader) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
