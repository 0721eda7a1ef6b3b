package mm

import "math"

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by page allocators when
	// they fail to reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical address where this frame begins.
func (f Frame) Address() PhysAddr {
	return PhysAddr(f << PageShift)
}

// Next returns the frame following f.
func (f Frame) Next() Frame { return f + 1 }

// Prev returns the frame preceding f.
func (f Frame) Prev() Frame { return f - 1 }

// FrameFromAddress returns the Frame that contains the given physical
// address. Addresses that are not page-aligned are rounded down.
func FrameFromAddress(physAddr PhysAddr) Frame {
	return Frame(physAddr >> PhysAddr(PageShift))
}

// FrameNextAbove returns the first frame that starts at or above physAddr.
func FrameNextAbove(physAddr PhysAddr) Frame {
	return Frame(uintptr(physAddr)>>PageShift) + frameCarry(physAddr)
}

// frameCarry returns 1 if physAddr is not page-aligned.
func frameCarry(physAddr PhysAddr) Frame {
	if uintptr(physAddr)&(PageSize-1) != 0 {
		return 1
	}
	return 0
}

// FrameRegion describes the half-open frame interval [Start, End). A region
// whose End does not lie above Start is empty.
type FrameRegion struct {
	// The first frame included in the region.
	Start Frame

	// The first frame after the region.
	End Frame
}

// NewIncludedIn returns the largest frame region that lies entirely inside r.
// The start of r is rounded up and its end rounded down to a frame boundary.
func NewIncludedIn(r PhysRange) FrameRegion {
	return FrameRegion{
		Start: FrameNextAbove(r.Start),
		End:   FrameFromAddress(r.End()),
	}
}

// NewIncluding returns the smallest frame region that fully covers r. The
// start of r is rounded down and its end rounded up to a frame boundary. The
// end is rounded without aligning the address first so that a range ending at
// the top of the address space yields the correct frame count.
func NewIncluding(r PhysRange) FrameRegion {
	end := r.End()
	return FrameRegion{
		Start: FrameFromAddress(r.Start),
		End:   FrameFromAddress(end) + frameCarry(end),
	}
}

// FrameRegionFromCount returns the region of count frames starting at start.
func FrameRegionFromCount(start Frame, count uint64) FrameRegion {
	return FrameRegion{Start: start, End: start + Frame(count)}
}

// Len returns the number of frames in the region.
func (r FrameRegion) Len() uint64 {
	if r.Start > r.End {
		return 0
	}
	return uint64(r.End - r.Start)
}

// Empty returns true if the region contains no frames.
func (r FrameRegion) Empty() bool {
	return r.Start >= r.End
}

// Contains returns true if f belongs to the region.
func (r FrameRegion) Contains(f Frame) bool {
	return f >= r.Start && f < r.End
}

// PhysRange returns the physical byte range covered by the region.
func (r FrameRegion) PhysRange() PhysRange {
	return PhysRange{Start: r.Start.Address(), Size: uintptr(r.Len()) << PageShift}
}
