// Package blobtest provides a conformance suite for blobstore.Store
// implementations.
package blobtest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecdir/blobstore"
)

// Run exercises the Store contract against a fresh store from newStore.
func Run(t *testing.T, newStore func(t *testing.T) blobstore.Store) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "missing.vdc")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("PutGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		data := []byte("hello world")
		require.NoError(t, s.Put(ctx, "a.vdc", data))

		got, err := s.Get(ctx, "a.vdc")
		require.NoError(t, err)
		assert.Equal(t, data, got)

		// Callers own returned slices.
		got[0] = 'X'
		again, err := s.Get(ctx, "a.vdc")
		require.NoError(t, err)
		assert.Equal(t, data, again)
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, "a.vdc", []byte("first version")))
		require.NoError(t, s.Put(ctx, "a.vdc", []byte("second")))

		got, err := s.Get(ctx, "a.vdc")
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), got)
	})

	t.Run("EmptyBlob", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, "empty.vdc", nil))
		got, err := s.Get(ctx, "empty.vdc")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, "a.vdc", []byte("x")))
		require.NoError(t, s.Delete(ctx, "a.vdc"))

		_, err := s.Get(ctx, "a.vdc")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)

		err = s.Delete(ctx, "a.vdc")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		names, err := s.List(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, names)

		for _, n := range []string{"c.vdc", "a.vdc", "b.vdc", "other.bin"} {
			require.NoError(t, s.Put(ctx, n, []byte(n)))
		}

		names, err = s.List(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.vdc", "b.vdc", "c.vdc", "other.bin"}, names)

		names, err = s.List(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, []string{"b.vdc"}, names)
	})

	t.Run("EscapedNames", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		name := "a%2Fb%20c.vdc"
		require.NoError(t, s.Put(ctx, name, []byte("escaped")))
		got, err := s.Get(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, []byte("escaped"), got)

		names, err := s.List(ctx, "a%")
		require.NoError(t, err)
		assert.Equal(t, []string{name}, names)
	})

	t.Run("Concurrent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				name := fmt.Sprintf("blob-%d.vdc", i)
				data := []byte(name)
				for j := 0; j < 5; j++ {
					assert.NoError(t, s.Put(ctx, name, data))
					got, err := s.Get(ctx, name)
					assert.NoError(t, err)
					assert.Equal(t, data, got)
				}
			}(i)
		}
		wg.Wait()

		names, err := s.List(ctx, "blob-")
		require.NoError(t, err)
		assert.Len(t, names, 8)
	})
}
