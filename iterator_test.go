package woofdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRange(t *testing.T, h *DBHandle) {
	t.Helper()
	for _, kv := range [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}, {"d", "4"}} {
		require.NoError(t, h.Put([]byte(kv[0]), []byte(kv[1]), false))
	}
}

// A forward range with an exclusive start and inclusive end yields the keys
// strictly after Start through and including End.
func TestIteratorExclusiveStartInclusiveEnd(t *testing.T) {
	var dir = filepath.Join(t.TempDir(), "db")
	var r = NewDescriptorRegistry(GlobalSettings())

	h, err := r.Open(dir, OpenOptions{Mode: Optimistic})
	require.NoError(t, err)
	defer h.Close()
	seedRange(t, h)

	it, err := h.GetRange(RangeOptions{
		Start:          []byte("a"),
		End:            []byte("c"),
		ExclusiveStart: true,
		InclusiveEnd:   true,
		Values:         true,
	})
	require.NoError(t, err)
	defer it.Close()

	var got []string
	for {
		k, _, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, string(k))
	}
	assert.Equal(t, []string{"b", "c"}, got)
}

// Reverse traversal yields keys from the high end of the range to the low
// end.
func TestIteratorReverse(t *testing.T) {
	var dir = filepath.Join(t.TempDir(), "db")
	var r = NewDescriptorRegistry(GlobalSettings())

	h, err := r.Open(dir, OpenOptions{Mode: Optimistic})
	require.NoError(t, err)
	defer h.Close()
	seedRange(t, h)

	it, err := h.GetRange(RangeOptions{Reverse: true, Values: true})
	require.NoError(t, err)
	defer it.Close()

	var got []string
	for {
		k, _, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, string(k))
	}
	assert.Equal(t, []string{"d", "c", "b", "a"}, got)
}

// Reverse traversal with an exclusive start excludes the start key at the
// tail of iteration, where the engine's (inclusive) lower bound would
// otherwise let it through.
func TestIteratorReverseExclusiveStart(t *testing.T) {
	var dir = filepath.Join(t.TempDir(), "db")
	var r = NewDescriptorRegistry(GlobalSettings())

	h, err := r.Open(dir, OpenOptions{Mode: Optimistic})
	require.NoError(t, err)
	defer h.Close()
	seedRange(t, h)

	it, err := h.GetRange(RangeOptions{
		Start:          []byte("b"),
		End:            []byte("d"),
		ExclusiveStart: true,
		InclusiveEnd:   true,
		Reverse:        true,
		Values:         true,
	})
	require.NoError(t, err)
	defer it.Close()

	var got []string
	for {
		k, _, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, string(k))
	}
	assert.Equal(t, []string{"d", "c"}, got)
}

// Closing an iterator twice is a no-op, and Next on a closed iterator
// returns ErrIteratorClosed.
func TestIteratorCloseIdempotentAndGuardsNext(t *testing.T) {
	var dir = filepath.Join(t.TempDir(), "db")
	var r = NewDescriptorRegistry(GlobalSettings())

	h, err := r.Open(dir, OpenOptions{Mode: Optimistic})
	require.NoError(t, err)
	defer h.Close()
	seedRange(t, h)

	it, err := h.GetRange(RangeOptions{})
	require.NoError(t, err)

	require.NoError(t, it.Close())
	require.NoError(t, it.Close())

	_, _, _, err = it.Next()
	assert.ErrorIs(t, err, ErrIteratorClosed)
}
