package woofdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Opening the same path twice in the same mode reuses the descriptor and
// hands back a DBHandle selecting the requested column family.
func TestRegistryReusesDescriptorSameMode(t *testing.T) {
	var dir = filepath.Join(t.TempDir(), "db")
	var r = NewDescriptorRegistry(GlobalSettings())

	h1, err := r.Open(dir, OpenOptions{Name: "default", Mode: Optimistic})
	require.NoError(t, err)
	defer h1.Close()

	h2, err := r.Open(dir, OpenOptions{Name: "other", Mode: Optimistic})
	require.NoError(t, err)
	defer h2.Close()

	assert.Same(t, h1.descriptor, h2.descriptor)
	assert.Equal(t, 1, r.Size())
}

// Opening an already-open path in a conflicting mode fails with
// ConflictingMode, and the first descriptor is left untouched.
func TestRegistryRejectsConflictingMode(t *testing.T) {
	var dir = filepath.Join(t.TempDir(), "db")
	var r = NewDescriptorRegistry(GlobalSettings())

	h1, err := r.Open(dir, OpenOptions{Mode: Optimistic})
	require.NoError(t, err)
	defer h1.Close()

	_, err = r.Open(dir, OpenOptions{Mode: Pessimistic})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflictingMode)
	assert.Equal(t, 1, r.Size())
}

// Closing the last DBHandle on a path tears down the descriptor; a
// subsequent Open constructs a fresh one rather than reusing the expired
// weak reference.
func TestRegistryReopensAfterLastHandleCloses(t *testing.T) {
	var dir = filepath.Join(t.TempDir(), "db")
	var r = NewDescriptorRegistry(GlobalSettings())

	h1, err := r.Open(dir, OpenOptions{Mode: Optimistic})
	require.NoError(t, err)
	require.NoError(t, h1.Close())
	assert.Equal(t, 0, r.Size())

	h2, err := r.Open(dir, OpenOptions{Mode: Pessimistic})
	require.NoError(t, err)
	defer h2.Close()
	assert.Equal(t, Pessimistic, h2.descriptor.mode)
}

// A transaction's committed write is visible via a plain Get on the handle
// outside the transaction; an aborted transaction's writes never become
// visible.
func TestTransactionCommitAndAbortOrdering(t *testing.T) {
	var dir = filepath.Join(t.TempDir(), "db")
	var r = NewDescriptorRegistry(GlobalSettings())

	h, err := r.Open(dir, OpenOptions{Mode: Optimistic})
	require.NoError(t, err)
	defer h.Close()

	txn, err := h.CreateTransaction()
	require.NoError(t, err)
	require.NoError(t, txn.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, txn.CommitSync())

	v, err := h.Get([]byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)

	txn2, err := h.CreateTransaction()
	require.NoError(t, err)
	require.NoError(t, txn2.Put([]byte("k2"), []byte("v2")))
	require.NoError(t, txn2.Abort())

	_, err = h.Get([]byte("k2"))
	assert.ErrorIs(t, err, ErrNotFound)
}
