// Package storagetest checks a storage.Storage implementation against the
// behaviour the orchestrator relies on. Custom backends can run it from
// their own tests.
package storagetest

import (
	"testing"

	"github.com/on-the-ground/memo_ive_go/cachekey"
	"github.com/on-the-ground/memo_ive_go/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// FuncID is the function identity used by the keys this package builds.
var FuncID = cachekey.FuncID{Module: "example.com/storagetest", Name: "compute"}

// Key builds a literal key for FuncID.
func Key(t testing.TB, args ...any) cachekey.CacheKey {
	t.Helper()
	k, err := cachekey.Build(FuncID, nil, args...)
	require.NoError(t, err)
	return k
}

// Run exercises every operation of the storage contract. newStorage must
// return an empty storage each time it is called.
func Run(t *testing.T, newStorage func(t *testing.T) storage.Storage) {
	t.Run("StoreThenFetch", func(t *testing.T) {
		s := newStorage(t)
		k := Key(t, "foo")

		require.NoError(t, s.Store(k, "value"))
		ok, err := s.Contains(k)
		require.NoError(t, err)
		assert.True(t, ok)

		v, err := s.Fetch(k)
		require.NoError(t, err)
		assert.Equal(t, "value", v)
	})

	t.Run("FetchMissingKey", func(t *testing.T) {
		s := newStorage(t)
		k := Key(t, "missing")

		ok, err := s.Contains(k)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.Fetch(k)
		assert.ErrorIs(t, err, storage.ErrKeyNotFound)
	})

	t.Run("StoreOverwrites", func(t *testing.T) {
		s := newStorage(t)
		k := Key(t, 1)

		require.NoError(t, s.Store(k, 10))
		require.NoError(t, s.Store(k, 20))

		v, err := s.Fetch(k)
		require.NoError(t, err)
		assert.Equal(t, 20, v)

		keys, err := s.Keys()
		require.NoError(t, err)
		assert.Len(t, keys, 1)
	})

	t.Run("Remove", func(t *testing.T) {
		s := newStorage(t)
		k := Key(t, "gone")

		removed, err := s.Remove(k)
		require.NoError(t, err)
		assert.False(t, removed)

		require.NoError(t, s.Store(k, "x"))
		removed, err = s.Remove(k)
		require.NoError(t, err)
		assert.True(t, removed)

		ok, err := s.Contains(k)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("KeysSnapshot", func(t *testing.T) {
		s := newStorage(t)
		fetched := Key(t, "foo")
		derived := cachekey.New(FuncID, cachekey.Derived(fetched))
		element := cachekey.New(FuncID, cachekey.Derived(fetched.Element(1)))

		for i, k := range []cachekey.CacheKey{fetched, derived, element} {
			require.NoError(t, s.Store(k, i))
		}

		keys, err := s.Keys()
		require.NoError(t, err)
		require.Len(t, keys, 3)
		for _, want := range []cachekey.CacheKey{fetched, derived, element} {
			assert.True(t, containsKey(keys, want), "missing %s", want)
		}

		v, err := s.Fetch(element)
		require.NoError(t, err)
		assert.Equal(t, 2, v)
	})

	t.Run("Clear", func(t *testing.T) {
		s := newStorage(t)
		for i := 0; i < 5; i++ {
			require.NoError(t, s.Store(Key(t, i), i))
		}
		require.NoError(t, s.Clear())

		keys, err := s.Keys()
		require.NoError(t, err)
		assert.Empty(t, keys)

		ok, err := s.Contains(Key(t, 0))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func containsKey(keys []cachekey.CacheKey, want cachekey.CacheKey) bool {
	for _, k := range keys {
		if k.Equal(want) {
			return true
		}
	}
	return false
}
