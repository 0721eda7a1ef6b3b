//go:build !unix

package hostmem

import (
	"fmt"
	"unsafe"

	"learnos/kernel/mm"
)

// New allocates size bytes (rounded up to a page) of zeroed, page-aligned
// memory from the Go heap.
func New(size uintptr) (*Arena, error) {
	if size == 0 {
		return nil, fmt.Errorf("hostmem: arena size must be non-zero")
	}

	size = roundToPage(size)
	buf := make([]byte, size+mm.PageSize)
	offset := mm.AlignUp(uintptr(unsafe.Pointer(&buf[0])), mm.PageSize) - uintptr(unsafe.Pointer(&buf[0]))
	return &Arena{mem: buf[offset : offset+size : offset+size]}, nil
}
