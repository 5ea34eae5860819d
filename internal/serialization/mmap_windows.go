//go:build windows

package serialization

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

func mapFile(f *os.File, size int64) (*mapping, error) {
	//nolint:gosec // G115: the high and low halves of size
	h, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, windows.PAGE_READONLY, uint32(size>>32), uint32(size), nil)
	if err != nil {
		return nil, err
	}
	// The view keeps the mapping object alive.
	defer func() {
		_ = windows.CloseHandle(h)
	}()

	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ, 0, 0, uintptr(size))
	if err != nil {
		return nil, err
	}
	//nolint:govet,gosec // addr is a mapped view of size bytes, not Go memory
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))
	return &mapping{data: data, unmap: func() error { return windows.UnmapViewOfFile(addr) }}, nil
}
