// Package hostmem provides page-aligned host memory that stands in for
// physical RAM when the memory core runs as an ordinary process.
package hostmem

import (
	"errors"
	"io"
	"unsafe"

	"learnos/kernel/mm"
)

// Arena is a contiguous, page-aligned block of host memory. Simulated
// physical address 0 corresponds to the first byte of the arena.
type Arena struct {
	mem     []byte
	release func() error
}

// Bytes returns the arena contents.
func (a *Arena) Bytes() []byte { return a.mem }

// Size returns the arena size in bytes.
func (a *Arena) Size() uintptr { return uintptr(len(a.mem)) }

// Base returns the host address of the first byte of the arena.
func (a *Arena) Base() mm.VirtAddr {
	return mm.VirtAddr(uintptr(unsafe.Pointer(&a.mem[0])))
}

// Mapping returns a direct mapping that covers the whole arena with simulated
// physical addresses starting at 0.
func (a *Arena) Mapping() mm.DirectMapping {
	return mm.DirectMapping{VirtualBase: a.Base(), PhysicalBase: 0, Size: a.Size()}
}

// Phys returns the arena bytes that back the simulated physical range r.
func (a *Arena) Phys(r mm.PhysRange) []byte {
	return a.mem[r.Start:r.End()]
}

// errOutOfArena is returned by WriteAt for writes past the end of the arena.
var errOutOfArena = errors.New("hostmem: write outside of arena")

// WriteAt copies p to the simulated physical address off. It implements
// io.WriterAt so firmware images can be installed into the arena.
func (a *Arena) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(a.mem)) {
		return 0, errOutOfArena
	}

	n := copy(a.mem[off:], p)
	if n < len(p) {
		return n, errOutOfArena
	}
	return n, nil
}

var _ io.WriterAt = (*Arena)(nil)

// Close releases the arena. The arena must not be used afterwards.
func (a *Arena) Close() error {
	if a.release == nil {
		return nil
	}

	err := a.release()
	a.mem, a.release = nil, nil
	return err
}

func roundToPage(size uintptr) uintptr {
	return mm.AlignUp(size, mm.PageSize)
}
