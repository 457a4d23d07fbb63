//go:build !windows

package txnlog

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func mmapFile(lf *LogFile) ([]byte, error) {
	lf.mu.Lock()
	var size = lf.size
	var fd = int(lf.f.Fd())
	lf.mu.Unlock()

	if size == 0 {
		return nil, fmt.Errorf("txnlog: cannot map empty file")
	}
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return data, nil
}

func munmapFile(data []byte) error {
	return unix.Munmap(data)
}
