// Package txnlog implements an auxiliary, user-facing append-only
// transaction log: block-structured on-disk layout, file rotation by
// sequence number, batched durable writes, and memory-mapped readback, all
// independent of the underlying engine's own WAL.
package txnlog

// Entry is one logical transaction-log record, attributed to the engine
// transaction id that produced it.
type Entry struct {
	TxnID uint32
	Data  []byte
}

// Options configures a Store.
type Options struct {
	// Dir is the directory holding this log's files.
	Dir string
	// MaxFileSize is the size threshold past which an append rotates to a
	// new LogFile.
	MaxFileSize int64
	// RetentionMs bounds how long a rotated-out file is retained once no
	// MemoryMap over it is live, measured from the file's newest batch
	// timestamp. Zero disables automatic retention.
	RetentionMs int64
}

// Position identifies a point in the log by (sequence number, byte offset).
type Position struct {
	Sequence uint64
	Offset   int64
}

// RangeOptions configures Store.GetRange.
type RangeOptions struct {
	// StartSeq is the first file sequence number to read; zero means the
	// oldest retained file.
	StartSeq uint64
	// Reverse traverses from the newest file/entry to the oldest.
	Reverse bool
}
