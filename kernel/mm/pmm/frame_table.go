package pmm

import (
	"learnos/kernel/mm"
	"unsafe"
)

// FrameState describes the bookkeeping state of a physical frame.
type FrameState uint8

const (
	// Free frames can be handed out by an allocator.
	Free FrameState = iota

	// Allocated frames are owned by some kernel component and can be
	// freed again.
	Allocated

	// Reserved frames are never handed out (firmware areas, memory map
	// holes). Reserved is a terminal state.
	Reserved
)

// String implements fmt.Stringer for FrameState.
func (s FrameState) String() string {
	switch s {
	case Free:
		return "free"
	case Allocated:
		return "allocated"
	case Reserved:
		return "reserved"
	default:
		return "unknown"
	}
}

// FrameInfo is the per-frame entry stored in a FrameTable.
type FrameInfo struct {
	State FrameState
}

// FrameStats summarizes the contents of a FrameTable.
type FrameStats struct {
	Total, Reserved, Allocated uint64
}

// Free returns the number of free frames.
func (s FrameStats) Free() uint64 {
	return s.Total - s.Reserved - s.Allocated
}

// FrameTable tracks the state of every physical frame in the system. Its
// entries live in memory that the table does not own: during bootstrap the
// table is carved out of the first available region large enough to hold it.
// A FrameTable has no internal locking; the allocator wrapping it is its sole
// mutator.
type FrameTable struct {
	entries []FrameInfo
}

// RequiredSizeBytes returns the number of bytes needed to store a frame table
// for frameCount frames.
func RequiredSizeBytes(frameCount uint64) uintptr {
	return uintptr(frameCount) * unsafe.Sizeof(FrameInfo{})
}

// NewFrameTable overlays a frame table for frameCount frames on the memory
// at addr and marks all entries as Free. The caller must ensure that at least
// RequiredSizeBytes(frameCount) bytes are mapped at addr.
func NewFrameTable(addr mm.VirtAddr, frameCount uint64) *FrameTable {
	table := &FrameTable{
		entries: unsafe.Slice((*FrameInfo)(addr.Pointer()), frameCount),
	}

	for i := range table.entries {
		table.entries[i].State = Free
	}

	return table
}

// Len returns the number of frames tracked by the table.
func (t *FrameTable) Len() uint64 {
	return uint64(len(t.entries))
}

// State returns the state of frame f.
func (t *FrameTable) State(f mm.Frame) FrameState {
	if uint64(f) >= t.Len() {
		panic(errRegionOutOfRange)
	}
	return t.entries[f].State
}

// MarkAllocated transitions every frame in region from Free to Allocated.
// If any frame in the region is not Free, MarkAllocated panics and leaves
// the table unmodified.
func (t *FrameTable) MarkAllocated(region mm.FrameRegion) {
	t.transition(region, Allocated)
}

// MarkReserved transitions every frame in region from Free to Reserved.
// If any frame in the region is not Free, MarkReserved panics and leaves the
// table unmodified.
func (t *FrameTable) MarkReserved(region mm.FrameRegion) {
	t.transition(region, Reserved)
}

func (t *FrameTable) transition(region mm.FrameRegion, to FrameState) {
	entries := t.slice(region)
	for i := range entries {
		if entries[i].State != Free {
			panic(errRegionNotFree)
		}
	}

	for i := range entries {
		entries[i].State = to
	}
}

// slice returns the table entries covered by region. Empty regions yield an
// empty slice.
func (t *FrameTable) slice(region mm.FrameRegion) []FrameInfo {
	if region.Empty() {
		return nil
	}

	if uint64(region.End) > t.Len() {
		panic(errRegionOutOfRange)
	}

	return t.entries[region.Start:region.End]
}

// Stats returns the number of total, reserved and allocated frames.
func (t *FrameTable) Stats() FrameStats {
	stats := FrameStats{Total: t.Len()}
	for i := range t.entries {
		switch t.entries[i].State {
		case Allocated:
			stats.Allocated++
		case Reserved:
			stats.Reserved++
		}
	}

	return stats
}
