package woofdb

// TransactionHandle is one transaction against a descriptor. Commit is
// modeled as a future (client.AsyncOperation) so hosts can await completion
// without blocking the dispatch goroutine, while CommitSync offers a
// synchronous variant.

import (
	"sync"

	"github.com/estuary/woofdb/txnlog"
	"github.com/jgraettinger/gorocksdb"
	"go.gazette.dev/core/broker/client"
)

// TransactionHandle is one transaction: a snapshot acquired at creation, a
// buffered ordered sequence of pending log entries, and a bound log store
// (nullable, set on first AddLogEntry).
type TransactionHandle struct {
	descriptor *Descriptor
	handle     *DBHandle
	id         uint32
	engineTxn  *gorocksdb.Transaction

	mu      sync.Mutex
	closed  bool
	pending []txnlog.Entry

	boundLog     *txnlog.Store
	boundLogName string

	logErrMu sync.Mutex
	logErr   error

	childMu  sync.Mutex
	children map[closable]struct{}
}

// attachChild registers c (an IteratorHandle created from this transaction's
// snapshot) so it is force-closed before engineTxn is destroyed.
func (t *TransactionHandle) attachChild(c closable) {
	t.childMu.Lock()
	defer t.childMu.Unlock()
	if t.children == nil {
		t.children = make(map[closable]struct{})
	}
	t.children[c] = struct{}{}
}

// detachChild unregisters c; idempotent.
func (t *TransactionHandle) detachChild(c closable) {
	t.childMu.Lock()
	defer t.childMu.Unlock()
	delete(t.children, c)
}

// closeChildren force-closes every iterator still open against this
// transaction's snapshot. Must run before engineTxn is destroyed: an
// IteratorHandle holds a raw CGo reference into the transaction and does not
// otherwise know when the transaction itself concludes.
func (t *TransactionHandle) closeChildren() {
	t.childMu.Lock()
	var cs = make([]closable, 0, len(t.children))
	for c := range t.children {
		cs = append(cs, c)
	}
	t.children = nil
	t.childMu.Unlock()

	for _, c := range cs {
		c.closeFromDescriptor()
	}
}

// CreateTransaction begins a new engine transaction in the descriptor's
// mode, capturing a snapshot for subsequent reads.
func (h *DBHandle) CreateTransaction() (*TransactionHandle, error) {
	if !h.IsOpen() {
		return nil, ErrDatabaseNotOpen
	}

	var engineTxn = h.descriptor.engine.beginTransaction(DefaultLockTimeoutMillis)
	var t = &TransactionHandle{descriptor: h.descriptor, handle: h, engineTxn: engineTxn}

	id, err := h.descriptor.transactionAdd(t)
	if err != nil {
		engineTxn.Rollback()
		engineTxn.Destroy()
		return nil, err
	}
	t.id = id
	h.descriptor.attach(t)
	return t, nil
}

// ID returns the transaction's descriptor-unique, monotonically increasing
// identifier.
func (t *TransactionHandle) ID() uint32 { return t.id }

func (t *TransactionHandle) requireOpen() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTxnClosed
	}
	return nil
}

func (t *TransactionHandle) readOptions() *gorocksdb.ReadOptions {
	var ro = gorocksdb.NewDefaultReadOptions()
	ro.SetSnapshot(t.engineTxn.GetSnapshot())
	return ro
}

// Get reads via the transaction's snapshot.
func (t *TransactionHandle) Get(key []byte) ([]byte, error) {
	if err := t.requireOpen(); err != nil {
		return nil, err
	}
	var ro = t.readOptions()
	defer ro.Destroy()

	slice, err := t.engineTxn.GetCF(ro, t.handle.cf, key)
	if err != nil {
		return nil, newError(KindCommitFailed, "txn get", err)
	}
	defer slice.Free()
	if !slice.Exists() {
		return nil, ErrNotFound
	}
	var out = make([]byte, len(slice.Data()))
	copy(out, slice.Data())
	return out, nil
}

// GetAsync resolves onResolve/onReject on the descriptor's host loop.
func (t *TransactionHandle) GetAsync(key []byte, onResolve func([]byte), onReject func(error)) {
	go func() {
		v, err := t.Get(key)
		t.descriptor.locks.loop.post(func() {
			if err != nil {
				onReject(err)
			} else {
				onResolve(v)
			}
		})
	}()
}

// Put buffers a write in the engine transaction.
func (t *TransactionHandle) Put(key, value []byte) error {
	if err := t.requireOpen(); err != nil {
		return err
	}
	if err := t.engineTxn.PutCF(t.handle.cf, key, value); err != nil {
		return newError(KindCommitFailed, "txn put", err)
	}
	return nil
}

// Remove buffers a delete in the engine transaction.
func (t *TransactionHandle) Remove(key []byte) error {
	if err := t.requireOpen(); err != nil {
		return err
	}
	if err := t.engineTxn.DeleteCF(t.handle.cf, key); err != nil {
		return newError(KindCommitFailed, "txn remove", err)
	}
	return nil
}

// AddLogEntry appends data to the pending buffer, binding the transaction
// to log on first call. Subsequent calls naming a different log store fail
// with ErrLogAlreadyBound: a transaction cannot be bound to more than one
// log store.
func (t *TransactionHandle) AddLogEntry(log *TransactionLogHandle, data []byte) error {
	if err := t.requireOpen(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.boundLog == nil {
		t.boundLog = log.store
		t.boundLogName = log.name
	} else if t.boundLog != log.store {
		return ErrLogAlreadyBound
	}

	var cp = make([]byte, len(data))
	copy(cp, data)
	t.pending = append(t.pending, txnlog.Entry{TxnID: t.id, Data: cp})
	return nil
}

// commitLocked performs a two-phase commit: engine commit, then (on success
// only) hand-off of pending log entries. Failure at the log-store phase
// does not roll back the engine commit; it is reported to the caller
// out-of-band via the returned error, while the transaction itself is
// still considered successfully committed.
func (t *TransactionHandle) commitLocked() (logErr error, err error) {
	if cErr := t.engineTxn.Commit(); cErr != nil {
		var kind = KindCommitFailed
		if t.descriptor.mode == Optimistic {
			kind = KindConflict
		}
		t.pending = nil // discard pending entries on commit failure.
		return nil, newError(kind, "commit", cErr)
	}

	if len(t.pending) > 0 && t.boundLog != nil {
		if err := t.boundLog.AppendBatch(t.pending); err != nil {
			logErr = newError(KindLogFileIOError, "append transaction log batch", err)
		}
	}
	return logErr, nil
}

// Commit asynchronously commits the transaction, invoking onResolve() or
// onReject(err) on the host loop once the engine phase has concluded. A
// failure in the log-append phase that follows a successful engine commit
// does not reject the operation -- the commit itself did succeed -- and is
// instead recorded for retrieval via LogError.
func (t *TransactionHandle) Commit(onResolve func(), onReject func(error)) *client.AsyncOperation {
	var op = client.NewAsyncOperation()

	go func() {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			var err = ErrTxnClosed
			t.descriptor.locks.loop.post(func() {
				if onReject != nil {
					onReject(err)
				}
				op.Resolve(err)
			})
			return
		}
		logErr, err := t.commitLocked()
		t.closed = true
		t.mu.Unlock()

		t.descriptor.detach(t)
		t.descriptor.transactionRemove(t.id)
		t.closeChildren()
		t.engineTxn.Destroy()

		if logErr != nil {
			t.logErrMu.Lock()
			t.logErr = logErr
			t.logErrMu.Unlock()
		}

		t.descriptor.locks.loop.post(func() {
			if err != nil {
				if onReject != nil {
					onReject(err)
				}
				op.Resolve(err)
				return
			}
			if onResolve != nil {
				onResolve()
			}
			op.Resolve(nil)
		})
	}()

	return op
}

// CommitSync blocks the caller until commit resolves.
func (t *TransactionHandle) CommitSync() error {
	var op = t.Commit(nil, nil)
	<-op.Done()
	return op.Err()
}

// LogError returns the error (if any) from the log-append phase of this
// transaction's last commit. It is distinct from the commit's own
// resolve/reject outcome: a non-nil LogError can coexist with a
// successfully resolved commit, since the engine write and the log append
// are not atomic with one another.
func (t *TransactionHandle) LogError() error {
	t.logErrMu.Lock()
	defer t.logErrMu.Unlock()
	return t.logErr
}

// Abort rolls back the engine transaction, discards buffered log entries,
// and closes the transaction.
func (t *TransactionHandle) Abort() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.pending = nil
	t.mu.Unlock()

	t.descriptor.detach(t)
	t.descriptor.transactionRemove(t.id)
	t.closeChildren()

	var err = t.engineTxn.Rollback()
	t.engineTxn.Destroy()
	if err != nil {
		return newError(KindCommitFailed, "rollback", err)
	}
	return nil
}

// Close idempotently tears down the transaction without committing,
// equivalent to Abort but never reporting a rollback error -- used when the
// host is simply releasing a handle it never intends to commit.
func (t *TransactionHandle) Close() error {
	_ = t.Abort()
	return nil
}

func (t *TransactionHandle) closeFromDescriptor() {
	t.mu.Lock()
	var closed = t.closed
	t.mu.Unlock()
	if !closed {
		_ = t.Abort()
	}
}
