package mm

import "learnos/kernel"

// FrameAllocator is implemented by physical page frame allocators.
//
// Running out of frames is an expected condition and is reported through the
// returned error together with InvalidFrame. Freeing a frame or region that
// the allocator did not hand out is a programming error and causes a panic.
type FrameAllocator interface {
	// AllocFrame reserves a single physical frame.
	AllocFrame() (Frame, *kernel.Error)

	// FreeFrame returns a frame obtained by AllocFrame.
	FreeFrame(Frame)

	// AllocRegion reserves count physically contiguous frames.
	AllocRegion(count uint64) (FrameRegion, *kernel.Error)

	// FreeRegion returns a region obtained by AllocRegion.
	FreeRegion(FrameRegion)
}
