package woofdb

import (
	"bytes"
	"sync"
	"sync/atomic"

	"github.com/jgraettinger/gorocksdb"
)

// IteratorHandle is a bounded, optionally-reversed range iterator over
// either a DBHandle or a TransactionHandle. It registers with its
// descriptor as a closable so the engine cannot be torn down while
// iterators are live, and is eagerly released if the descriptor is closed
// out from under it.
type IteratorHandle struct {
	descriptor *Descriptor

	it *gorocksdb.Iterator
	ro *gorocksdb.ReadOptions

	reverse        bool
	values         bool
	startKey       []byte
	exclusiveStart bool

	mu        sync.Mutex
	started   bool
	exhausted bool
	closed    atomic.Bool

	// keepAlive anchors whichever owning handle (DBHandle or
	// TransactionHandle) this iterator was created from.
	keepAlive any
}

// inclusiveUpperBound appends a zero byte to end, since the engine treats
// iterate_upper_bound as exclusive.
func inclusiveUpperBound(end []byte) []byte {
	var b = make([]byte, len(end)+1)
	copy(b, end)
	return b
}

func buildReadOptions(o RangeOptions) *gorocksdb.ReadOptions {
	var ro = gorocksdb.NewDefaultReadOptions()
	if o.Start != nil {
		ro.SetIterateLowerBound(o.Start)
	}
	if o.End != nil {
		if o.InclusiveEnd {
			ro.SetIterateUpperBound(inclusiveUpperBound(o.End))
		} else {
			ro.SetIterateUpperBound(o.End)
		}
	}
	return ro
}

func newIteratorFromHandle(h *DBHandle, o RangeOptions) (*IteratorHandle, error) {
	var ro = buildReadOptions(o)
	var it = h.descriptor.engine.base.NewIteratorCF(ro, h.cf)
	return newIteratorHandle(h.descriptor, it, ro, o, h)
}

// GetRange returns a range iterator over this transaction's snapshot.
func (t *TransactionHandle) GetRange(o RangeOptions) (*IteratorHandle, error) {
	if err := t.requireOpen(); err != nil {
		return nil, err
	}
	var ro = buildReadOptions(o)
	ro.SetSnapshot(t.engineTxn.GetSnapshot())
	var it = t.engineTxn.NewIteratorCF(ro, t.handle.cf)
	return newIteratorHandle(t.descriptor, it, ro, o, t)
}

func newIteratorHandle(d *Descriptor, it *gorocksdb.Iterator, ro *gorocksdb.ReadOptions, o RangeOptions, keepAlive any) (*IteratorHandle, error) {
	var ih = &IteratorHandle{
		descriptor:     d,
		it:             it,
		ro:             ro,
		reverse:        o.Reverse,
		values:         o.Values,
		startKey:       o.Start,
		exclusiveStart: o.ExclusiveStart,
		keepAlive:      keepAlive,
	}
	d.attach(ih)
	if txn, ok := keepAlive.(*TransactionHandle); ok {
		txn.attachChild(ih)
	}
	return ih, nil
}

// ensureStarted seeks to the initial position. In forward traversal the
// initial position is the start key itself, so an exclusive start is
// excluded right here with a single extra step. In reverse traversal the
// start key is reached at the *tail* of iteration instead (the engine's
// lower bound is inclusive), so exclusion there is handled in Next.
func (it *IteratorHandle) ensureStarted() {
	if it.started {
		return
	}
	it.started = true

	if it.reverse {
		it.it.SeekToLast()
	} else {
		it.it.SeekToFirst()
	}

	if !it.reverse && it.exclusiveStart && it.startKey != nil && it.it.Valid() {
		var key = it.it.Key()
		var atStart = bytes.Equal(key.Data(), it.startKey)
		key.Free()
		if atStart {
			it.step()
		}
	}
}

func (it *IteratorHandle) step() {
	if it.reverse {
		it.it.Prev()
	} else {
		it.it.Next()
	}
}

// Next returns the next (key, value) pair, or just key when Values is
// false. ok is false once the iterator is exhausted.
func (it *IteratorHandle) Next() (key, value []byte, ok bool, err error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.closed.Load() {
		return nil, nil, false, ErrIteratorClosed
	}
	if it.exhausted {
		return nil, nil, false, nil
	}

	it.ensureStarted()

	if !it.it.Valid() {
		return nil, nil, false, it.it.Err()
	}

	var ks = it.it.Key()
	var kd = append([]byte(nil), ks.Data()...)
	ks.Free()

	if it.reverse && it.exclusiveStart && it.startKey != nil && bytes.Equal(kd, it.startKey) {
		it.exhausted = true
		return nil, nil, false, nil
	}
	key = kd

	if it.values {
		var vs = it.it.Value()
		value = append([]byte(nil), vs.Data()...)
		vs.Free()
	}

	it.step()
	return key, value, true, nil
}

// Return closes the iterator, compatible with host iteration protocols
// (e.g. JS generators' `.return()`).
func (it *IteratorHandle) Return() error {
	return it.Close()
}

// Throw is a compatibility hook for host iteration protocols that forward
// exceptions into generator-like iterators; woofdb iterators carry no
// internal generator state to unwind, so Throw simply closes.
func (it *IteratorHandle) Throw(error) error {
	return it.Close()
}

// Close releases the iterator's engine resources. Idempotent. Takes it.mu so
// it cannot free the underlying CGo iterator while a Next call is still
// using it.
func (it *IteratorHandle) Close() error {
	if it.closed.CompareAndSwap(false, true) {
		it.descriptor.detach(it)
		if txn, ok := it.keepAlive.(*TransactionHandle); ok {
			txn.detachChild(it)
		}
		it.mu.Lock()
		it.it.Close()
		it.ro.Destroy()
		it.mu.Unlock()
	}
	return nil
}

func (it *IteratorHandle) closeFromDescriptor() {
	it.closed.Store(true)
	it.mu.Lock()
	it.it.Close()
	it.ro.Destroy()
	it.mu.Unlock()
}
