package txnlog

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// LogFile is one file in a TransactionLogStore, addressed by sequence
// number.
type LogFile struct {
	mu sync.Mutex

	seq  uint64
	path string
	f    *os.File

	size               int64
	lastBatchTimestamp float64

	// mapped counts live MemoryMaps over this file; the store must not
	// unlink a file with mapped > 0.
	mapped int
}

func logFileName(seq uint64) string {
	return fmt.Sprintf("%020d.woof", seq)
}

// createLogFile creates a new file for seq, writing its header.
func createLogFile(dir string, seq uint64, initialTimestamp float64) (*LogFile, error) {
	var path = filepath.Join(dir, logFileName(seq))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}

	var hdr [fileHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], woofToken)
	hdr[4] = logVersion
	binary.LittleEndian.PutUint64(hdr[5:13], math.Float64bits(initialTimestamp))

	if _, err := f.Write(hdr[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("write log file header: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("sync log file header: %w", err)
	}

	return &LogFile{seq: seq, path: path, f: f, size: fileHeaderSize, lastBatchTimestamp: initialTimestamp}, nil
}

// openLogFile opens an existing file, validating its header.
func openLogFile(dir string, seq uint64) (*LogFile, error) {
	var path = filepath.Join(dir, logFileName(seq))
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() < fileHeaderSize {
		f.Close()
		return nil, fmt.Errorf("%w: log file %s shorter than header size", errFormatInvalid, path)
	}

	var hdr [fileHeaderSize]byte
	if _, err := f.ReadAt(hdr[:], 0); err != nil {
		f.Close()
		return nil, err
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != woofToken {
		f.Close()
		return nil, fmt.Errorf("%w: invalid magic token in %s", errFormatInvalid, path)
	}

	var lf = &LogFile{
		seq:                seq,
		path:               path,
		f:                  f,
		size:               info.Size(),
		lastBatchTimestamp: math.Float64frombits(binary.LittleEndian.Uint64(hdr[5:13])),
	}

	// Scan blocks to recover the true last-batch timestamp (the header only
	// records the file's *initial* timestamp).
	if err := lf.scanLastBatchTimestamp(); err != nil {
		f.Close()
		return nil, err
	}

	return lf, nil
}

func (lf *LogFile) scanLastBatchTimestamp() error {
	var offset int64 = fileHeaderSize
	for offset < lf.size {
		ts, _, payloadLen, flags, err := lf.readBlockHeader(offset)
		if err != nil {
			return err
		}
		offset += blockHeaderSize + int64(payloadLen)
		if flags&continuationFlag == 0 {
			lf.lastBatchTimestamp = ts
		}
	}
	return nil
}

// appendBatch encodes entries as one or more chained blocks and issues a
// single vectored write for the whole batch, then durably syncs. It returns
// the byte offset the batch was written at.
func (lf *LogFile) appendBatch(timestamp float64, entries []Entry) (int64, error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	var payload []byte
	for _, e := range entries {
		var hdr [entryHeaderSize]byte
		binary.LittleEndian.PutUint32(hdr[0:4], e.TxnID)
		binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(e.Data)))
		payload = append(payload, hdr[:]...)
		payload = append(payload, e.Data...)
	}

	var startOffset = lf.size
	var iovecs [][]byte

	for len(payload) > 0 || len(iovecs) == 0 {
		var chunk []byte
		if len(payload) > maxBlockPayload {
			chunk, payload = payload[:maxBlockPayload], payload[maxBlockPayload:]
		} else {
			chunk, payload = payload, nil
		}

		var flags byte
		if len(payload) > 0 {
			flags = continuationFlag
		}

		var hdr [blockHeaderSize]byte
		binary.LittleEndian.PutUint64(hdr[0:8], math.Float64bits(timestamp))
		binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(chunk)))
		hdr[12] = flags

		iovecs = append(iovecs, hdr[:], chunk)
		if len(payload) == 0 {
			break
		}
	}

	n, err := writev(lf.f, iovecs)
	if err != nil {
		return 0, fmt.Errorf("%w: writev log file %s", err, lf.path)
	}
	lf.size += int64(n)
	lf.lastBatchTimestamp = timestamp

	if err := fdatasync(lf.f); err != nil {
		return 0, fmt.Errorf("durable sync log file %s: %w", lf.path, err)
	}

	return startOffset, nil
}

// readBlockHeader reads the block header at offset, returning the batch
// timestamp, the header's own size, the payload length, and flags.
func (lf *LogFile) readBlockHeader(offset int64) (timestamp float64, headerSize int64, payloadLen uint32, flags byte, err error) {
	var hdr [blockHeaderSize]byte
	if _, err = lf.f.ReadAt(hdr[:], offset); err != nil {
		return 0, 0, 0, 0, err
	}
	timestamp = math.Float64frombits(binary.LittleEndian.Uint64(hdr[0:8]))
	payloadLen = binary.LittleEndian.Uint32(hdr[8:12])
	flags = hdr[12]
	return timestamp, blockHeaderSize, payloadLen, flags, nil
}

// readBatchAt reads the full, possibly-multi-block batch starting at
// offset, returning its entries and the offset immediately following it.
func (lf *LogFile) readBatchAt(offset int64) (entries []Entry, next int64, err error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	var payload []byte
	for {
		_, _, payloadLen, flags, err := lf.readBlockHeader(offset)
		if err != nil {
			return nil, 0, err
		}
		var chunk = make([]byte, payloadLen)
		if _, err := lf.f.ReadAt(chunk, offset+blockHeaderSize); err != nil {
			return nil, 0, err
		}
		payload = append(payload, chunk...)
		offset += blockHeaderSize + int64(payloadLen)

		if flags&continuationFlag == 0 {
			break
		}
	}

	for len(payload) > 0 {
		if len(payload) < entryHeaderSize {
			return nil, 0, fmt.Errorf("%w: truncated entry header", errFormatInvalid)
		}
		var txnID = binary.LittleEndian.Uint32(payload[0:4])
		var length = binary.LittleEndian.Uint32(payload[4:8])
		payload = payload[entryHeaderSize:]
		if uint32(len(payload)) < length {
			return nil, 0, fmt.Errorf("%w: truncated entry payload", errFormatInvalid)
		}
		entries = append(entries, Entry{TxnID: txnID, Data: payload[:length]})
		payload = payload[length:]
	}

	return entries, offset, nil
}

func (lf *LogFile) close() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.f.Close()
}
