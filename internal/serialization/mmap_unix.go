//go:build unix

package serialization

import (
	"os"

	"golang.org/x/sys/unix"
)

func mapFile(f *os.File, size int64) (*mapping, error) {
	//nolint:gosec // G115: descriptors and validated sizes fit in int
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &mapping{data: data, unmap: func() error { return unix.Munmap(data) }}, nil
}
