package woofdb

// engine.go isolates the gorocksdb-specific calling conventions behind a
// small surface the rest of the package consumes, keeping CGo specifics
// confined to one file. The storage engine itself is an explicit external
// collaborator; this file never reimplements engine internals, only
// opens/wraps what gorocksdb already provides.

import (
	"github.com/jgraettinger/gorocksdb"
)

// engineDB wraps either a pessimistic (TransactionDB) or optimistic
// (OptimisticTransactionDB) engine handle, normalized behind one interface.
type engineDB struct {
	mode Mode

	txnDB *gorocksdb.TransactionDB
	optDB *gorocksdb.OptimisticTransactionDB
	base  *gorocksdb.DB

	opts  *gorocksdb.Options
	cache *gorocksdb.Cache

	cfs map[string]*gorocksdb.ColumnFamilyHandle
}

// openEngine opens (creating if missing) the database at path in the given
// mode, with the default column family plus cfNames present.
func openEngine(path string, mode Mode, cfNames []string, o OpenOptions, cache *gorocksdb.Cache) (*engineDB, error) {
	var opts = gorocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)
	opts.SetCreateIfMissingColumnFamilies(true)
	opts.IncreaseParallelism(o.ParallelismThreads)

	if !o.NoBlockCache {
		var bbto = gorocksdb.NewDefaultBlockBasedTableOptions()
		bbto.SetBlockCache(cache)
		opts.SetBlockBasedTableFactory(bbto)
	}

	var names = append([]string{"default"}, cfNames...)
	var cfOpts = make([]*gorocksdb.Options, len(names))
	for i := range cfOpts {
		cfOpts[i] = opts
	}

	var e = &engineDB{mode: mode, opts: opts, cache: cache, cfs: make(map[string]*gorocksdb.ColumnFamilyHandle)}

	switch mode {
	case Pessimistic:
		var tdbOpts = gorocksdb.NewDefaultTransactionDBOptions()
		db, handles, err := gorocksdb.OpenTransactionDbColumnFamilies(opts, tdbOpts, path, names, cfOpts)
		if err != nil {
			return nil, newError(KindEngineOpenFailed, "open transaction db", err)
		}
		e.txnDB = db
		e.base = db.GetBaseDB()
		for i, n := range names {
			e.cfs[n] = handles[i]
		}
	case Optimistic:
		db, handles, err := gorocksdb.OpenOptimisticTransactionDbColumnFamilies(opts, path, names, cfOpts)
		if err != nil {
			return nil, newError(KindEngineOpenFailed, "open optimistic transaction db", err)
		}
		e.optDB = db
		e.base = db.GetBaseDB()
		for i, n := range names {
			e.cfs[n] = handles[i]
		}
	}

	return e, nil
}

// ensureColumnFamily returns the existing handle for name, or creates it.
func (e *engineDB) ensureColumnFamily(name string) (*gorocksdb.ColumnFamilyHandle, error) {
	if name == "" {
		name = "default"
	}
	if h, ok := e.cfs[name]; ok {
		return h, nil
	}
	h, err := e.base.CreateColumnFamily(e.opts, name)
	if err != nil {
		return nil, newError(KindColumnFamilyCreateFailed, "create column family "+name, err)
	}
	e.cfs[name] = h
	return h, nil
}

// beginTransaction begins a new engine transaction consistent with the
// descriptor's mode, capturing a snapshot for subsequent reads.
func (e *engineDB) beginTransaction(lockTimeoutMs int64) *gorocksdb.Transaction {
	var wo = gorocksdb.NewDefaultWriteOptions()
	defer wo.Destroy()

	var txn *gorocksdb.Transaction
	switch e.mode {
	case Pessimistic:
		var to = gorocksdb.NewDefaultTransactionOptions()
		defer to.Destroy()
		to.SetLockTimeout(lockTimeoutMs)
		txn = e.txnDB.TransactionBegin(wo, to, nil)
	case Optimistic:
		var oto = gorocksdb.NewDefaultOptimisticTransactionOptions()
		defer oto.Destroy()
		txn = e.optDB.TransactionBegin(wo, oto, nil)
	}
	txn.SetSnapshot()
	return txn
}

func (e *engineDB) get(cf *gorocksdb.ColumnFamilyHandle, key []byte) ([]byte, error) {
	var ro = gorocksdb.NewDefaultReadOptions()
	defer ro.Destroy()

	slice, err := e.base.GetCF(ro, cf, key)
	if err != nil {
		return nil, newError(KindCommitFailed, "get", err)
	}
	defer slice.Free()
	if !slice.Exists() {
		return nil, ErrNotFound
	}
	var out = make([]byte, len(slice.Data()))
	copy(out, slice.Data())
	return out, nil
}

func (e *engineDB) put(cf *gorocksdb.ColumnFamilyHandle, key, value []byte, disableWAL bool) error {
	var wo = gorocksdb.NewDefaultWriteOptions()
	defer wo.Destroy()
	wo.DisableWAL(disableWAL)

	if err := e.base.PutCF(wo, cf, key, value); err != nil {
		return newError(KindCommitFailed, "put", err)
	}
	return nil
}

func (e *engineDB) remove(cf *gorocksdb.ColumnFamilyHandle, key []byte, disableWAL bool) error {
	var wo = gorocksdb.NewDefaultWriteOptions()
	defer wo.Destroy()
	wo.DisableWAL(disableWAL)

	if err := e.base.DeleteCF(wo, cf, key); err != nil {
		return newError(KindCommitFailed, "remove", err)
	}
	return nil
}

func (e *engineDB) close() {
	for _, h := range e.cfs {
		h.Destroy()
	}
	switch e.mode {
	case Pessimistic:
		if e.txnDB != nil {
			e.txnDB.Close()
		}
	case Optimistic:
		if e.optDB != nil {
			e.optDB.Close()
		}
	}
	e.opts.Destroy()
}
