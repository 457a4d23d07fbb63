package woofdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A DBHandle exposes its descriptor's lock table to host code: a held key
// queues a second caller's callback, which fires only once the first
// releases.
func TestHandleLockCallSerializesThroughDescriptor(t *testing.T) {
	var dir = filepath.Join(t.TempDir(), "db")
	var r = NewDescriptorRegistry(GlobalSettings())

	h, err := r.Open(dir, OpenOptions{Mode: Optimistic})
	require.NoError(t, err)
	defer h.Close()

	var done = make(chan struct{}, 1)
	var order []int

	ranImmediately, err := h.LockCall("K", func() {}, nil)
	require.NoError(t, err)
	require.True(t, ranImmediately)
	order = append(order, 1)

	ranImmediately, err = h.LockCall("K", func() {
		order = append(order, 2)
		done <- struct{}{}
	}, nil)
	require.NoError(t, err)
	require.False(t, ranImmediately)

	require.NoError(t, h.LockRelease("K"))
	<-done

	assert.Equal(t, []int{1, 2}, order)
}

// Put/Get/Remove round-trip directly against the engine, outside any
// transaction.
func TestHandlePutGetRemoveRoundTrip(t *testing.T) {
	var dir = filepath.Join(t.TempDir(), "db")
	var r = NewDescriptorRegistry(GlobalSettings())

	h, err := r.Open(dir, OpenOptions{Mode: Optimistic})
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Put([]byte("k"), []byte("v"), false))

	v, err := h.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, h.Remove([]byte("k"), false))
	_, err = h.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrNotFound)
}

// Operations against a closed handle fail with ErrDatabaseNotOpen rather
// than touching the (possibly torn-down) descriptor.
func TestHandleRejectsOperationsAfterClose(t *testing.T) {
	var dir = filepath.Join(t.TempDir(), "db")
	var r = NewDescriptorRegistry(GlobalSettings())

	h, err := r.Open(dir, OpenOptions{Mode: Optimistic})
	require.NoError(t, err)
	require.NoError(t, h.Close())
	require.NoError(t, h.Close()) // idempotent

	_, err = h.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrDatabaseNotOpen)
}

// A transaction log created on a handle survives the handle's own close, as
// long as the descriptor itself stays alive via another handle.
func TestTransactionLogOutlivesCreatingHandle(t *testing.T) {
	var dir = filepath.Join(t.TempDir(), "db")
	var r = NewDescriptorRegistry(GlobalSettings())

	keepAlive, err := r.Open(dir, OpenOptions{Mode: Optimistic})
	require.NoError(t, err)
	defer keepAlive.Close()

	h, err := r.Open(dir, OpenOptions{Mode: Optimistic})
	require.NoError(t, err)

	log, err := h.CreateTransactionLog("audit")
	require.NoError(t, err)

	require.NoError(t, h.Close())
	require.NoError(t, log.AddEntry(1, []byte("still alive")))
	require.NoError(t, log.Close())
}
