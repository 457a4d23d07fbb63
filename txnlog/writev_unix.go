//go:build !windows

package txnlog

import (
	"os"

	"golang.org/x/sys/unix"
)

// writev issues a single vectored write of iovecs to f.
func writev(f *os.File, iovecs [][]byte) (int, error) {
	return unix.Writev(int(f.Fd()), iovecs)
}

// fdatasync requests a filesystem-level durable sync of data pages,
// avoiding the metadata-sync cost of a full fsync where the platform
// supports it.
func fdatasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
