package pmm

import (
	"learnos/kernel"
	"learnos/kernel/mm"
	"learnos/kernel/sync"
)

// LockedAllocator serializes access to a frame allocator shared between
// CPUs. The spinlock is held for the full duration of every call, including
// calls that end in a panic.
type LockedAllocator struct {
	lock  sync.Spinlock
	inner mm.FrameAllocator
}

// NewLockedAllocator wraps inner with a spinlock.
func NewLockedAllocator(inner mm.FrameAllocator) *LockedAllocator {
	return &LockedAllocator{inner: inner}
}

// Swap replaces the wrapped allocator and returns the previous one. It is
// used when handing over from the boot allocator to the frame table backed
// allocator.
func (alloc *LockedAllocator) Swap(inner mm.FrameAllocator) mm.FrameAllocator {
	alloc.lock.Acquire()
	defer alloc.lock.Release()

	prev := alloc.inner
	alloc.inner = inner
	return prev
}

// AllocFrame implements mm.FrameAllocator.
func (alloc *LockedAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	alloc.lock.Acquire()
	defer alloc.lock.Release()
	return alloc.inner.AllocFrame()
}

// FreeFrame implements mm.FrameAllocator.
func (alloc *LockedAllocator) FreeFrame(frame mm.Frame) {
	alloc.lock.Acquire()
	defer alloc.lock.Release()
	alloc.inner.FreeFrame(frame)
}

// AllocRegion implements mm.FrameAllocator.
func (alloc *LockedAllocator) AllocRegion(count uint64) (mm.FrameRegion, *kernel.Error) {
	alloc.lock.Acquire()
	defer alloc.lock.Release()
	return alloc.inner.AllocRegion(count)
}

// FreeRegion implements mm.FrameAllocator.
func (alloc *LockedAllocator) FreeRegion(region mm.FrameRegion) {
	alloc.lock.Acquire()
	defer alloc.lock.Release()
	alloc.inner.FreeRegion(region)
}

// Stats returns the frame table statistics if the wrapped allocator is
// backed by a frame table.
func (alloc *LockedAllocator) Stats() (FrameStats, bool) {
	alloc.lock.Acquire()
	defer alloc.lock.Release()

	if s, ok := alloc.inner.(*SlowAllocator); ok {
		return s.Stats(), true
	}
	return FrameStats{}, false
}
