package woofdb

// DBHandle is a per-open lightweight handle owned by the host: it selects a
// column family on a shared Descriptor and registers/deregisters itself as
// a strong reference that keeps the Descriptor alive.

import (
	"sync/atomic"

	"github.com/jgraettinger/gorocksdb"
)

// DBHandle is returned by DescriptorRegistry.Open.
type DBHandle struct {
	descriptor *Descriptor
	cf         *gorocksdb.ColumnFamilyHandle
	closed     atomic.Bool
}

func newDBHandle(d *Descriptor, cf *gorocksdb.ColumnFamilyHandle) *DBHandle {
	d.acquire()
	return &DBHandle{descriptor: d, cf: cf}
}

// IsOpen reports whether Close has not yet been called.
func (h *DBHandle) IsOpen() bool { return !h.closed.Load() }

// Close idempotently releases this handle's hold on the shared Descriptor.
// When the last DBHandle on a Descriptor closes, the Descriptor is torn
// down: every attached closable is closed, then the engine and log stores.
func (h *DBHandle) Close() error {
	if h.closed.CompareAndSwap(false, true) {
		h.descriptor.release()
	}
	return nil
}

// Get reads the key directly from the engine (no transaction/snapshot).
func (h *DBHandle) Get(key []byte) ([]byte, error) {
	if !h.IsOpen() {
		return nil, ErrDatabaseNotOpen
	}
	return h.descriptor.engine.get(h.cf, key)
}

// Put writes key/value directly to the engine.
func (h *DBHandle) Put(key, value []byte, disableWAL bool) error {
	if !h.IsOpen() {
		return ErrDatabaseNotOpen
	}
	return h.descriptor.engine.put(h.cf, key, value, disableWAL)
}

// Remove deletes key directly from the engine.
func (h *DBHandle) Remove(key []byte, disableWAL bool) error {
	if !h.IsOpen() {
		return ErrDatabaseNotOpen
	}
	return h.descriptor.engine.remove(h.cf, key, disableWAL)
}

// GetRange returns a bounded range iterator over this handle's column
// family.
func (h *DBHandle) GetRange(o RangeOptions) (*IteratorHandle, error) {
	if !h.IsOpen() {
		return nil, ErrDatabaseNotOpen
	}
	return newIteratorFromHandle(h, o)
}

// CreateTransactionLog resolves (or creates) the descriptor's log store
// named name and returns a handle registered as a descriptor closable.
func (h *DBHandle) CreateTransactionLog(name string) (*TransactionLogHandle, error) {
	if !h.IsOpen() {
		return nil, ErrDatabaseNotOpen
	}
	store, err := h.descriptor.resolveTransactionLogStore(name)
	if err != nil {
		return nil, err
	}
	var lh = &TransactionLogHandle{descriptor: h.descriptor, store: store, name: name}
	h.descriptor.attach(lh)
	return lh, nil
}

// LockCall attempts to run fn immediately under the descriptor's per-key
// lock table. If ranImmediately is true the caller must invoke fn itself;
// otherwise fn has been enqueued behind the current holder for key and will
// run later, dispatched on the host loop as earlier holders release.
// aliveCheck, if non-nil, lets a queued-but-expired owner be skipped rather
// than block its successors.
func (h *DBHandle) LockCall(key string, fn func(), aliveCheck func() bool) (ranImmediately bool, err error) {
	if !h.IsOpen() {
		return false, ErrDatabaseNotOpen
	}
	return h.descriptor.locks.LockCall(key, fn, aliveCheck), nil
}

// LockEnqueueCallback enqueues fn for key, running it on the host loop once
// it reaches the head of the queue rather than ever reporting "ran
// immediately" to the caller. See LockTable.LockEnqueueCallback.
func (h *DBHandle) LockEnqueueCallback(key string, fn func(), aliveCheck func() bool, skipIfExists bool) (enqueued bool, err error) {
	if !h.IsOpen() {
		return false, ErrDatabaseNotOpen
	}
	return h.descriptor.locks.LockEnqueueCallback(key, fn, aliveCheck, skipIfExists), nil
}

// LockRelease releases key's running slot. If callbacks are queued behind
// it, the next live one is dequeued and dispatched on the host loop.
func (h *DBHandle) LockRelease(key string) error {
	if !h.IsOpen() {
		return ErrDatabaseNotOpen
	}
	h.descriptor.locks.LockRelease(key)
	return nil
}

// FireNextCallback dispatches key's next queued callback on the host loop and
// marks key as running, without first releasing the current holder as
// LockRelease does, for hosts that want to explicitly pump a key's queue
// (e.g. after reconnecting an owner).
func (h *DBHandle) FireNextCallback(key string) error {
	if !h.IsOpen() {
		return ErrDatabaseNotOpen
	}
	h.descriptor.locks.FireNextCallback(key)
	return nil
}

// FireNextCallbackImmediate dispatches key's next queued callback
// synchronously, in the calling goroutine.
func (h *DBHandle) FireNextCallbackImmediate(key string) error {
	if !h.IsOpen() {
		return ErrDatabaseNotOpen
	}
	h.descriptor.locks.FireNextCallbackImmediate(key)
	return nil
}
