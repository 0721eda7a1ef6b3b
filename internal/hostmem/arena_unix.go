//go:build unix

package hostmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// New maps size bytes (rounded up to a page) of zeroed anonymous memory.
func New(size uintptr) (*Arena, error) {
	if size == 0 {
		return nil, fmt.Errorf("hostmem: arena size must be non-zero")
	}

	mem, err := unix.Mmap(-1, 0, int(roundToPage(size)), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("hostmem: mmap arena: %w", err)
	}

	return &Arena{
		mem:     mem,
		release: func() error { return unix.Munmap(mem) },
	}, nil
}
