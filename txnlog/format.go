package txnlog

// Format constants mirror the host-facing exported constants in the root
// package (WoofToken, BlockSize, FileHeaderSize, BlockHeaderSize,
// TxnHeaderSize, ContinuationFlag). They are duplicated here rather than
// imported from the root woofdb package to avoid an import cycle (the root
// package imports txnlog, not the reverse).
const (
	woofToken uint32 = 0x574F4F46
	logVersion uint8 = 1

	// fileHeaderSize: magic (4B) + version (1B) + initial timestamp (8B).
	fileHeaderSize = 13

	// blockSize is the implementation-defined, even block size chunking
	// batch payloads.
	blockSize = 4096

	// blockHeaderSize: batch timestamp (8B) + payload length (4B) + flags (1B).
	blockHeaderSize = 13

	// entryHeaderSize: per logical entry, within a block's payload stream:
	// transaction id (4B) + entry length (4B).
	entryHeaderSize = 8

	// continuationFlag, when set on a block's flags byte, indicates more
	// blocks follow in the same batch; cleared on the batch's last block.
	continuationFlag byte = 1 << 0

	maxBlockPayload = blockSize - blockHeaderSize
)
