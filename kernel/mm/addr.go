package mm

import (
	"learnos/kernel"
	"unsafe"
)

var errBadAlignment = &kernel.Error{Module: "mm", Message: "alignment must be zero or a power of two"}

// PhysAddr is an address in the physical address space.
type PhysAddr uintptr

// VirtAddr is an address in the virtual address space. PhysAddr and VirtAddr
// are distinct types so that the two address spaces cannot be mixed up without
// an explicit translation.
type VirtAddr uintptr

// alignMask returns align-1. An alignment of 0 yields a zero mask which turns
// all alignment operations into no-ops.
func alignMask(align uintptr) uintptr {
	if align&(align-1) != 0 {
		panic(errBadAlignment)
	}

	if align == 0 {
		return 0
	}
	return align - 1
}

// AlignUp rounds x up to the next multiple of align. The padding is computed
// without adding align to x first so that an alignment of 0 leaves the maximum
// uintptr value untouched.
func AlignUp(x, align uintptr) uintptr {
	mask := alignMask(align)
	return x + ((align - (x & mask)) & mask)
}

// AlignDown rounds x down to the previous multiple of align.
func AlignDown(x, align uintptr) uintptr {
	return x &^ alignMask(align)
}

// IsAligned returns true if x is a multiple of align.
func IsAligned(x, align uintptr) bool {
	return AlignDown(x, align) == x
}

// Add returns the address offset bytes above a.
func (a PhysAddr) Add(offset uintptr) PhysAddr { return a + PhysAddr(offset) }

// Sub returns the address offset bytes below a.
func (a PhysAddr) Sub(offset uintptr) PhysAddr { return a - PhysAddr(offset) }

// AlignUp rounds a up to the given power-of-two alignment.
func (a PhysAddr) AlignUp(align uintptr) PhysAddr { return PhysAddr(AlignUp(uintptr(a), align)) }

// AlignDown rounds a down to the given power-of-two alignment.
func (a PhysAddr) AlignDown(align uintptr) PhysAddr { return PhysAddr(AlignDown(uintptr(a), align)) }

// IsAligned returns true if a is aligned to align.
func (a PhysAddr) IsAligned(align uintptr) bool { return IsAligned(uintptr(a), align) }

// Add returns the address offset bytes above a.
func (a VirtAddr) Add(offset uintptr) VirtAddr { return a + VirtAddr(offset) }

// Sub returns the address offset bytes below a.
func (a VirtAddr) Sub(offset uintptr) VirtAddr { return a - VirtAddr(offset) }

// AlignUp rounds a up to the given power-of-two alignment.
func (a VirtAddr) AlignUp(align uintptr) VirtAddr { return VirtAddr(AlignUp(uintptr(a), align)) }

// AlignDown rounds a down to the given power-of-two alignment.
func (a VirtAddr) AlignDown(align uintptr) VirtAddr { return VirtAddr(AlignDown(uintptr(a), align)) }

// IsAligned returns true if a is aligned to align.
func (a VirtAddr) IsAligned(align uintptr) bool { return IsAligned(uintptr(a), align) }

// Pointer returns an unsafe.Pointer to the memory at a. The caller must make
// sure that a is mapped.
func (a VirtAddr) Pointer() unsafe.Pointer { return unsafe.Pointer(uintptr(a)) }

// PhysRange describes the half-open physical range [Start, Start+Size).
type PhysRange struct {
	Start PhysAddr
	Size  uintptr
}

// PhysRangeFromBounds returns the range [start, end). An end below start
// yields an empty range.
func PhysRangeFromBounds(start, end PhysAddr) PhysRange {
	if end < start {
		return PhysRange{Start: start}
	}
	return PhysRange{Start: start, Size: uintptr(end - start)}
}

// End returns the first address past the range.
func (r PhysRange) End() PhysAddr { return r.Start + PhysAddr(r.Size) }

// Contains returns true if addr lies inside the range.
func (r PhysRange) Contains(addr PhysAddr) bool {
	return addr >= r.Start && uintptr(addr-r.Start) < r.Size
}

// VirtRange describes the half-open virtual range [Start, Start+Size).
type VirtRange struct {
	Start VirtAddr
	Size  uintptr
}

// VirtRangeFromBounds returns the range [start, end). An end below start
// yields an empty range.
func VirtRangeFromBounds(start, end VirtAddr) VirtRange {
	if end < start {
		return VirtRange{Start: start}
	}
	return VirtRange{Start: start, Size: uintptr(end - start)}
}

// End returns the first address past the range.
func (r VirtRange) End() VirtAddr { return r.Start + VirtAddr(r.Size) }

// Contains returns true if addr lies inside the range.
func (r VirtRange) Contains(addr VirtAddr) bool {
	return addr >= r.Start && uintptr(addr-r.Start) < r.Size
}
