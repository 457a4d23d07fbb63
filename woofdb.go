// Package woofdb is the mediation layer between a host runtime and an
// embedded, ordered, transactional key-value engine with column families
// (github.com/jgraettinger/gorocksdb). It multiplexes host-side handles onto
// a single shared engine instance per filesystem path, coordinates
// optimistic/pessimistic transactions and their snapshots, provides a
// named-key serialized callback queue ("locks") for host-side async work,
// and implements an auxiliary append-only transaction log (package
// woofdb/txnlog) alongside bounded range iteration.
//
// The storage engine itself -- its LSM internals, its own WAL, replication,
// and secondary indexes -- is out of scope; this package only coordinates
// access to it.
package woofdb

// Open opens (or reuses) the database at path using the process-wide
// DescriptorRegistry and Settings.
func Open(path string, o OpenOptions) (*DBHandle, error) {
	return GlobalRegistry().Open(path, o)
}
