package pmm

import (
	"learnos/kernel"
	"learnos/kernel/mm"
)

// SlowAllocator hands out frames tracked by a FrameTable using a linear
// first-fit scan. It supports freeing and contiguous region allocation and is
// used once the frame table has been bootstrapped.
type SlowAllocator struct {
	table *FrameTable
}

// NewSlowAllocator returns an allocator that manages the frames of table.
func NewSlowAllocator(table *FrameTable) *SlowAllocator {
	return &SlowAllocator{table: table}
}

// Table returns the frame table managed by the allocator.
func (alloc *SlowAllocator) Table() *FrameTable {
	return alloc.table
}

// AllocFrame reserves the lowest-numbered free frame.
func (alloc *SlowAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	for i := range alloc.table.entries {
		if alloc.table.entries[i].State == Free {
			alloc.table.entries[i].State = Allocated
			return mm.Frame(i), nil
		}
	}

	return mm.InvalidFrame, ErrOutOfMemory
}

// FreeFrame releases a frame previously returned by AllocFrame. Freeing a
// frame that is not allocated causes a panic.
func (alloc *SlowAllocator) FreeFrame(frame mm.Frame) {
	if uint64(frame) >= alloc.table.Len() || alloc.table.entries[frame].State != Allocated {
		panic(errFrameNotAllocated)
	}

	alloc.table.entries[frame].State = Free
}

// AllocRegion reserves the first run of count consecutive free frames.
func (alloc *SlowAllocator) AllocRegion(count uint64) (mm.FrameRegion, *kernel.Error) {
	if count == 0 {
		return mm.FrameRegion{}, nil
	}

	var run uint64
	for i := range alloc.table.entries {
		if alloc.table.entries[i].State != Free {
			run = 0
			continue
		}

		if run++; run == count {
			region := mm.FrameRegion{Start: mm.Frame(uint64(i) + 1 - count), End: mm.Frame(i + 1)}
			for j := region.Start; j < region.End; j++ {
				alloc.table.entries[j].State = Allocated
			}
			return region, nil
		}
	}

	return mm.FrameRegion{Start: mm.InvalidFrame, End: mm.InvalidFrame}, ErrOutOfMemory
}

// FreeRegion releases a region previously returned by AllocRegion. Every
// frame in the region must be allocated; otherwise FreeRegion panics without
// modifying the table.
func (alloc *SlowAllocator) FreeRegion(region mm.FrameRegion) {
	entries := alloc.table.slice(region)
	for i := range entries {
		if entries[i].State != Allocated {
			panic(errFrameNotAllocated)
		}
	}

	for i := range entries {
		entries[i].State = Free
	}
}

// Stats returns the current frame table statistics.
func (alloc *SlowAllocator) Stats() FrameStats {
	return alloc.table.Stats()
}
