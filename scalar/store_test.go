package scalar

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()

	badgerStore, err := OpenBadger(InMemoryBadgerConfig())
	require.NoError(t, err)

	return map[string]Store{
		"memory": NewMemory(),
		"badger": badgerStore,
	}
}

func TestStore_PutGetDelete(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			require.NoError(t, store.Put(1, []byte(`{"name":"sora"}`)))

			doc, err := store.Get(1)
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"name":"sora"}`), doc)

			// Overwrite replaces the previous value.
			require.NoError(t, store.Put(1, []byte(`{"name":"kai"}`)))
			doc, err = store.Get(1)
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"name":"kai"}`), doc)

			require.NoError(t, store.Delete(1))
			_, err = store.Get(1)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_MissingID(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			_, err := store.Get(42)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, store.Delete(42), ErrNotFound)
		})
	}
}

func TestStore_EachAndLen(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			docs := map[uint64][]byte{
				1:              []byte("a"),
				7:              []byte("b"),
				math.MaxUint64: []byte("c"),
			}
			for id, doc := range docs {
				require.NoError(t, store.Put(id, doc))
			}

			n, err := store.Len()
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			seen := make(map[uint64][]byte)
			require.NoError(t, store.Each(func(id uint64, doc []byte) bool {
				seen[id] = doc
				return true
			}))
			assert.Equal(t, docs, seen)

			// Each stops when fn returns false.
			var count int
			require.NoError(t, store.Each(func(uint64, []byte) bool {
				count++
				return false
			}))
			assert.Equal(t, 1, count)
		})
	}
}

func TestStore_Clear(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			require.NoError(t, store.Put(1, []byte("a")))
			require.NoError(t, store.Put(2, []byte("b")))
			require.NoError(t, store.Clear())

			n, err := store.Len()
			require.NoError(t, err)
			assert.Equal(t, 0, n)
		})
	}
}

func TestStore_ReturnsPrivateCopies(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			original := []byte("abc")
			require.NoError(t, store.Put(1, original))
			original[0] = 'x'

			doc, err := store.Get(1)
			require.NoError(t, err)
			assert.Equal(t, []byte("abc"), doc)

			doc[1] = 'y'
			again, err := store.Get(1)
			require.NoError(t, err)
			assert.Equal(t, []byte("abc"), again)
		})
	}
}

func TestBadger_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultBadgerConfig(dir)
	cfg.GCInterval = 0

	store, err := OpenBadger(cfg)
	require.NoError(t, err)
	require.NoError(t, store.Put(9, []byte(`{"age":30}`)))
	require.NoError(t, store.Close())

	reopened, err := OpenBadger(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	doc, err := reopened.Get(9)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"age":30}`), doc)
}

func TestBadger_RequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	require.Error(t, err)
}
