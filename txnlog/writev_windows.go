//go:build windows

package txnlog

import "os"

// writev has no native vectored-write equivalent wired on Windows in this
// package; entries are written sequentially instead. Durability is still
// provided by fdatasync below.
func writev(f *os.File, iovecs [][]byte) (int, error) {
	var total int
	for _, b := range iovecs {
		n, err := f.Write(b)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func fdatasync(f *os.File) error {
	return f.Sync()
}
