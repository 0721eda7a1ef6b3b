package pmm

import (
	"learnos/kernel"
	"learnos/kernel/mm"
)

// RegionSource supplies the frame regions a BumpAllocator hands out. Regions
// should be returned in ascending address order.
type RegionSource interface {
	// NextRegion returns the next region or false when the source is
	// exhausted.
	NextRegion() (mm.FrameRegion, bool)
}

// SliceRegions is a RegionSource backed by a slice of regions.
type SliceRegions []mm.FrameRegion

// NextRegion implements RegionSource.
func (s *SliceRegions) NextRegion() (mm.FrameRegion, bool) {
	if len(*s) == 0 {
		return mm.FrameRegion{}, false
	}

	next := (*s)[0]
	*s = (*s)[1:]
	return next, true
}

// BumpAllocator implements a rudimentary physical memory allocator which is
// used to bootstrap the kernel before any bookkeeping structures exist.
//
// The allocator walks the regions supplied by a RegionSource and hands out
// frames from the bottom of the current region, advancing the region start
// after each allocation. Allocations are therefore monotonic and it is not
// possible to free them. Once the page frame table is set up, allocation is
// handed over to an allocator that supports freeing.
type BumpAllocator struct {
	current    mm.FrameRegion
	hasCurrent bool
	regions    RegionSource

	// allocCount tracks the total number of allocated frames.
	allocCount uint64
}

// NewBumpAllocator returns an allocator that hands out frames from regions.
func NewBumpAllocator(regions RegionSource) *BumpAllocator {
	alloc := &BumpAllocator{regions: regions}
	alloc.current, alloc.hasCurrent = regions.NextRegion()
	return alloc
}

// seek advances through the current and remaining regions until accept
// returns true for one of them. accept may adjust the region in place. Once
// the source is exhausted seek keeps returning false.
func (alloc *BumpAllocator) seek(accept func(*mm.FrameRegion) bool) bool {
	for alloc.hasCurrent {
		if accept(&alloc.current) {
			return true
		}
		alloc.current, alloc.hasCurrent = alloc.regions.NextRegion()
	}

	return false
}

// ReserveUntil discards all frames below frame. It has no effect on frames
// that have already been handed out.
func (alloc *BumpAllocator) ReserveUntil(frame mm.Frame) {
	alloc.seek(func(r *mm.FrameRegion) bool {
		if r.End <= frame {
			return false
		}

		if r.Start < frame {
			r.Start = frame
		}
		return true
	})
}

// ReserveUntilAddress discards all frames that start below addr.
func (alloc *BumpAllocator) ReserveUntilAddress(addr mm.PhysAddr) {
	alloc.ReserveUntil(mm.FrameNextAbove(addr))
}

// AllocFrame returns the next available frame.
func (alloc *BumpAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	if !alloc.seek(func(r *mm.FrameRegion) bool { return !r.Empty() }) {
		return mm.InvalidFrame, ErrOutOfMemory
	}

	frame := alloc.current.Start
	alloc.current.Start++
	alloc.allocCount++
	return frame, nil
}

// AllocRegion returns count contiguous frames. Regions too small for the
// request are skipped and their remaining frames are never handed out.
func (alloc *BumpAllocator) AllocRegion(count uint64) (mm.FrameRegion, *kernel.Error) {
	if !alloc.seek(func(r *mm.FrameRegion) bool { return r.Len() >= count }) {
		return mm.FrameRegion{Start: mm.InvalidFrame, End: mm.InvalidFrame}, ErrOutOfMemory
	}

	region := mm.FrameRegionFromCount(alloc.current.Start, count)
	alloc.current.Start = region.End
	alloc.allocCount += count
	return region, nil
}

// FreeFrame panics; frames handed out by a bump allocator cannot be freed.
func (alloc *BumpAllocator) FreeFrame(_ mm.Frame) {
	panic(errBumpFree)
}

// FreeRegion panics; frames handed out by a bump allocator cannot be freed.
func (alloc *BumpAllocator) FreeRegion(_ mm.FrameRegion) {
	panic(errBumpFree)
}

// AllocCount returns the number of frames handed out so far.
func (alloc *BumpAllocator) AllocCount() uint64 {
	return alloc.allocCount
}
