package woofdb

// TransactionLogHandle is a host-facing handle onto one descriptor's
// TransactionLogStore.

import (
	"sync/atomic"

	"github.com/estuary/woofdb/txnlog"
)

type TransactionLogHandle struct {
	descriptor *Descriptor
	store      *txnlog.Store
	name       string
	closed     atomic.Bool
}

// AddEntry appends a single, immediately-batched entry attributed to txnID,
// independent of any in-flight engine transaction.
func (h *TransactionLogHandle) AddEntry(txnID uint32, data []byte) error {
	if h.closed.Load() {
		return ErrLogClosed
	}
	return h.store.AppendBatch([]txnlog.Entry{{TxnID: txnID, Data: data}})
}

// GetRange returns the entries of every log file whose sequence number is
// >= o.StartSeq, in append order (or reversed when o.Reverse is set). It has
// no end bound and none of DBHandle.GetRange's key-bound options.
func (h *TransactionLogHandle) GetRange(o txnlog.RangeOptions) (*txnlog.RangeIterator, error) {
	return h.store.GetRange(o)
}

// FindPosition binary-searches across log files by last-batch timestamp,
// then linear-scans within the located file.
func (h *TransactionLogHandle) FindPosition(timestamp float64) (txnlog.Position, error) {
	return h.store.FindPositionByTimestamp(timestamp)
}

// GetMemoryMap lazily memory-maps the file with the given sequence number
// for zero-copy host reads.
func (h *TransactionLogHandle) GetMemoryMap(seq uint64) (*txnlog.MemoryMap, error) {
	return h.store.GetMemoryMap(seq)
}

// Close detaches this handle from the descriptor. The underlying store
// persists (it is shared descriptor state) until the descriptor itself is
// torn down.
func (h *TransactionLogHandle) Close() error {
	if h.closed.CompareAndSwap(false, true) {
		h.descriptor.detach(h)
	}
	return nil
}

func (h *TransactionLogHandle) closeFromDescriptor() {
	h.closed.Store(true)
}
