package txnlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// With a small maxFileSize, crossing the threshold rotates to a second file
// whose sequence number is prev+1, and FindPositionByTimestamp for a
// timestamp in the first file returns (sequence=1, offset>=FileHeaderSize).
func TestStoreRotatesOnSize(t *testing.T) {
	var dir = t.TempDir()
	s, err := Open(Options{Dir: dir, MaxFileSize: 4096})
	require.NoError(t, err)
	defer s.Close()

	var payload = make([]byte, 512)
	for i := range payload {
		payload[i] = byte(i)
	}

	// Enough batches to exceed 4096 bytes and force a rotation.
	for i := 0; i < 12; i++ {
		require.NoError(t, s.AppendBatch([]Entry{{TxnID: uint32(i), Data: payload}}))
	}

	// Give the background writer a moment to drain the pending queue.
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		n := len(s.files)
		s.mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	s.mu.Lock()
	var seqs []uint64
	for _, f := range s.files {
		seqs = append(seqs, f.seq)
	}
	s.mu.Unlock()

	require.GreaterOrEqual(t, len(seqs), 2)
	assert.Equal(t, uint64(1), seqs[0])
	assert.Equal(t, seqs[0]+1, seqs[1])

	s.mu.Lock()
	var first = s.files[0]
	s.mu.Unlock()

	pos, err := s.FindPositionByTimestamp(first.lastBatchTimestamp)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pos.Sequence)
	assert.GreaterOrEqual(t, pos.Offset, int64(fileHeaderSize))
}

func TestStoreRoundTripsEntries(t *testing.T) {
	var dir = t.TempDir()
	s, err := Open(Options{Dir: dir, MaxFileSize: 64 << 20})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.AppendBatch([]Entry{{TxnID: 1, Data: []byte("hello")}}))
	require.NoError(t, s.AppendBatch([]Entry{{TxnID: 2, Data: []byte("world")}}))

	deadline := time.Now().Add(2 * time.Second)
	for {
		s.posMu.Lock()
		flushed := s.lastFlushed
		s.posMu.Unlock()
		if flushed.Offset > fileHeaderSize || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	it, err := s.GetRange(RangeOptions{})
	require.NoError(t, err)

	var got []string
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(e.Data))
	}
	assert.Equal(t, []string{"hello", "world"}, got)
}

func TestOpenRejectsSequenceGap(t *testing.T) {
	var dir = t.TempDir()
	_, err := createLogFile(dir, 1, 0)
	require.NoError(t, err)
	_, err = createLogFile(dir, 3, 0) // gap: missing seq 2
	require.NoError(t, err)

	_, err = Open(Options{Dir: dir, MaxFileSize: 4096})
	assert.ErrorIs(t, err, ErrFormatInvalid)
}
