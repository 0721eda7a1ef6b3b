package pmm

import (
	"learnos/kernel"
	"learnos/kernel/mm"
)

// PanickingAllocator panics on every call. It is installed behind a
// LockedAllocator while the boot allocator hands over to the frame table, when
// any allocation would hand out a frame the table does not know about.
type PanickingAllocator struct{}

// AllocFrame panics.
func (PanickingAllocator) AllocFrame() (mm.Frame, *kernel.Error) { panic(errPanickingAlloc) }

// AllocRegion panics.
func (PanickingAllocator) AllocRegion(_ uint64) (mm.FrameRegion, *kernel.Error) {
	panic(errPanickingAlloc)
}

// FreeFrame panics.
func (PanickingAllocator) FreeFrame(_ mm.Frame) { panic(errPanickingAlloc) }

// FreeRegion panics.
func (PanickingAllocator) FreeRegion(_ mm.FrameRegion) { panic(errPanickingAlloc) }
