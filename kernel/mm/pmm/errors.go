package pmm

import "learnos/kernel"

var (
	// ErrOutOfMemory is returned by allocators that cannot satisfy a request.
	ErrOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of memory"}

	// ErrNoSpaceForFrameTable is returned by InitFrameTable when no
	// available region can hold the page frame table.
	ErrNoSpaceForFrameTable = &kernel.Error{Module: "pmm", Message: "no available region can hold the page frame table"}

	// ErrTooManyRegions is returned by NewBootAllocator when the memory
	// map holds more available or reserved regions than it can track.
	ErrTooManyRegions = &kernel.Error{Module: "pmm", Message: "too many memory regions"}

	errRegionOutOfRange  = &kernel.Error{Module: "pmm", Message: "frame region exceeds page frame table"}
	errRegionNotFree     = &kernel.Error{Module: "pmm", Message: "frame region is not free"}
	errFrameNotAllocated = &kernel.Error{Module: "pmm", Message: "cannot free a frame that is not allocated"}
	errBumpFree          = &kernel.Error{Module: "boot_mem_alloc", Message: "a bump allocator cannot free frames"}
	errPanickingAlloc    = &kernel.Error{Module: "pmm", Message: "frame allocation is not permitted"}
	errKernelAboveHeap   = &kernel.Error{Module: "pmm", Message: "kernel image extends past the heap start"}
)
