package woofdb

// Descriptor is per-database shared state: a shared engine handle,
// column-family table, transaction table, lock table, attached closables,
// and transaction-log stores, all under a structural mutex with a separate
// lock-table mutex to avoid self-dependency.

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"weak"

	log "github.com/sirupsen/logrus"

	"github.com/estuary/woofdb/txnlog"
	"github.com/jgraettinger/gorocksdb"
)

// closable is any subordinate resource (iterator, transaction, log handle)
// that must be torn down before the descriptor.
type closable interface {
	closeFromDescriptor()
}

// descriptorCleanupState is the GC-cleanup backstop target. It is kept
// separate from Descriptor itself so runtime.AddCleanup's argument does not
// retain a strong reference to the Descriptor it is cleaning up.
type descriptorCleanupState struct {
	mu     sync.Mutex
	closed bool
	engine *engineDB
	logs   *sync.Map // logName -> *txnlog.Store, snapshotted at teardown time
}

// Descriptor is per-path shared state, at most one live instance per path.
// It is shared-owned by every live DBHandle and weakly observed by the
// DescriptorRegistry.
type Descriptor struct {
	registry *DescriptorRegistry
	path     string
	mode     Mode

	engine *engineDB

	structMu  sync.Mutex
	closables map[closable]struct{}

	mu        sync.Mutex // guards txns + nextTxnID
	txns      map[uint32]weak.Pointer[TransactionHandle]
	nextTxnID uint32

	locks *LockTable

	logMu     sync.Mutex
	logStores map[string]*txnlog.Store
	logOpts   txnlog.Options

	refCount atomic.Int64
	cleanup  *descriptorCleanupState
}

func newDescriptor(r *DescriptorRegistry, path string, o OpenOptions) (*Descriptor, error) {
	var cache = r.settings.sharedCache()
	e, err := openEngine(path, o.Mode, nil, o, cache)
	if err != nil {
		return nil, err
	}

	var d = &Descriptor{
		registry:  r,
		path:      path,
		mode:      o.Mode,
		engine:    e,
		closables: make(map[closable]struct{}),
		txns:      make(map[uint32]weak.Pointer[TransactionHandle]),
		locks:     NewLockTable(nil),
		logStores: make(map[string]*txnlog.Store),
		logOpts: txnlog.Options{
			Dir:         path,
			MaxFileSize: 64 << 20,
			RetentionMs: o.TransactionLogRetentionMs,
		},
		cleanup: &descriptorCleanupState{engine: e, logs: &sync.Map{}},
	}

	runtime.AddCleanup(d, func(cs *descriptorCleanupState) {
		cs.mu.Lock()
		defer cs.mu.Unlock()
		if cs.closed {
			return
		}
		cs.closed = true
		log.Warn("woofdb: descriptor garbage-collected without explicit close; tearing down as backstop")
		cs.logs.Range(func(_, v any) bool {
			v.(*txnlog.Store).Close()
			return true
		})
		cs.engine.close()
	}, d.cleanup)

	return d, nil
}

func (d *Descriptor) ensureColumnFamily(name string) (*gorocksdb.ColumnFamilyHandle, error) {
	d.structMu.Lock()
	defer d.structMu.Unlock()
	return d.engine.ensureColumnFamily(name)
}

// attach registers c as a closable that must be torn down before teardown.
func (d *Descriptor) attach(c closable) {
	d.structMu.Lock()
	defer d.structMu.Unlock()
	d.closables[c] = struct{}{}
}

// detach unregisters c; idempotent.
func (d *Descriptor) detach(c closable) {
	d.structMu.Lock()
	defer d.structMu.Unlock()
	delete(d.closables, c)
}

// acquire increments the strong handle count; release decrements it and
// tears the descriptor down once it reaches zero.
func (d *Descriptor) acquire() { d.refCount.Add(1) }

func (d *Descriptor) release() {
	if d.refCount.Add(-1) != 0 {
		return
	}

	d.registry.mu.Lock()
	// Re-check under the registry lock: a concurrent Open may have observed
	// this descriptor via its still-live weak pointer and re-acquired it
	// (inside its own registry.mu critical section) between our decrement
	// above and taking the lock here.
	if d.refCount.Load() != 0 {
		d.registry.mu.Unlock()
		return
	}
	if wp, ok := d.registry.descriptors[d.path]; ok && wp.Value() == d {
		delete(d.registry.descriptors, d.path)
	}
	d.registry.mu.Unlock()
	d.teardown()
}

// teardown walks all attached closables, closes them, then closes the
// engine and every log store. Safe to call more than once.
func (d *Descriptor) teardown() {
	d.cleanup.mu.Lock()
	if d.cleanup.closed {
		d.cleanup.mu.Unlock()
		return
	}
	d.cleanup.closed = true
	d.cleanup.mu.Unlock()

	d.structMu.Lock()
	var toClose = make([]closable, 0, len(d.closables))
	for c := range d.closables {
		toClose = append(toClose, c)
	}
	d.closables = make(map[closable]struct{})
	d.structMu.Unlock()

	for _, c := range toClose {
		c.closeFromDescriptor()
	}

	d.logMu.Lock()
	for _, s := range d.logStores {
		s.Close()
	}
	d.logMu.Unlock()

	d.engine.close()
	log.WithField("path", d.path).Debug("woofdb: descriptor torn down")
}

// transactionAdd issues the next monotonic id and registers t. Wraparound
// is undefined behavior and is refused here.
func (d *Descriptor) transactionAdd(t *TransactionHandle) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.nextTxnID == ^uint32(0) {
		return 0, newError(KindInvalidArgument, "transaction id space exhausted", nil)
	}
	d.nextTxnID++
	var id = d.nextTxnID
	d.txns[id] = weak.Make(t)
	return id, nil
}

// transactionGet returns the transaction registered under id, iff it is
// still open.
func (d *Descriptor) transactionGet(id uint32) *TransactionHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if wp, ok := d.txns[id]; ok {
		return wp.Value()
	}
	return nil
}

func (d *Descriptor) transactionRemove(id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.txns, id)
}

// resolveTransactionLogStore returns the existing store for logName, or
// constructs one.
func (d *Descriptor) resolveTransactionLogStore(logName string) (*txnlog.Store, error) {
	d.logMu.Lock()
	defer d.logMu.Unlock()

	if s, ok := d.logStores[logName]; ok {
		return s, nil
	}

	var opts = d.logOpts
	opts.Dir = fmt.Sprintf("%s/.woof-logs/%s", d.path, logName)
	s, err := txnlog.Open(opts)
	if err != nil {
		return nil, newError(KindLogFormatInvalid, "open transaction log store "+logName, err)
	}
	d.logStores[logName] = s
	d.cleanup.logs.Store(logName, s)
	return s, nil
}
