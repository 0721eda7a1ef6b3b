package pmm

import (
	"learnos/kernel"
	"learnos/kernel/kfmt"
	"learnos/kernel/mm"
)

// maxMemoryRegions is the number of available and the number of reserved
// memory map entries that NewBootAllocator can track.
const maxMemoryRegions = 128

// Layout describes where the kernel and the data handed over by the boot
// loader live in physical memory.
type Layout struct {
	// KernelImage is the physical range occupied by the loaded kernel.
	KernelImage mm.PhysRange

	// MultibootInfo is the physical range of the boot loader's info
	// block. The memory map, command line and RSDP copy live inside it.
	MultibootInfo mm.PhysRange

	// BootMemory is the physical range of any other data the early boot
	// code must keep around, such as boot modules. It may be empty.
	BootMemory mm.PhysRange

	// HeapStart is the first physical address that the kernel did not
	// claim during early boot. Everything below it that is backed by
	// available memory is treated as in use.
	HeapStart mm.PhysAddr
}

// BootAllocator hands out frames before the page frame table exists. It is a
// BumpAllocator over the available memory at or above the heap start, with
// the frames touched by reserved memory map entries and the boot loader data
// cut out.
//
// InitFrameTable places the page frame table using the boot allocator and
// records every frame handed out so far as Allocated. After that the boot
// allocator is exhausted and allocation must move to a SlowAllocator over
// the returned table.
type BootAllocator struct {
	*BumpAllocator

	frameCount uint64

	// backed lists the frames of available memory that no reserved entry
	// touches, sorted and merged.
	backed []mm.FrameRegion

	// usable holds the regions the bump allocator has not reached yet.
	usable SliceRegions
}

// NewBootAllocator returns a BootAllocator for the given layout and memory
// map. Overlapping entries are allowed; reserved entries win over available
// ones.
func NewBootAllocator(layout Layout, memMap []MemoryRegion) (*BootAllocator, *kernel.Error) {
	heapStartFrame := mm.FrameNextAbove(layout.HeapStart)
	if kernelFrames := mm.NewIncluding(layout.KernelImage); kernelFrames.End > heapStartFrame {
		panic(errKernelAboveHeap)
	}

	var (
		availBuf    [maxMemoryRegions]mm.FrameRegion
		reservedBuf [maxMemoryRegions]mm.FrameRegion
		bootBuf     [2]mm.FrameRegion
		boot        = &BootAllocator{}
	)

	reserved := reservedBuf[:0]
	for _, r := range memMap {
		frames := r.Frames()
		if frames.Empty() {
			continue
		}
		if uint64(frames.End) > boot.frameCount {
			boot.frameCount = uint64(frames.End)
		}

		if r.Available {
			continue
		}
		if len(reserved) == maxMemoryRegions {
			return nil, ErrTooManyRegions
		}
		reserved = insertSorted(reserved, frames)
	}

	avail := availBuf[:0]
	src := NewAvailableRegions(memMap)
	for frames, ok := src.NextRegion(); ok; frames, ok = src.NextRegion() {
		if frames.Empty() {
			continue
		}
		if len(avail) == maxMemoryRegions {
			return nil, ErrTooManyRegions
		}
		avail = insertSorted(avail, frames)
	}

	bootData := bootBuf[:0]
	for _, r := range []mm.PhysRange{layout.MultibootInfo, layout.BootMemory} {
		if r.Size != 0 {
			bootData = insertSorted(bootData, mm.NewIncluding(r))
		}
	}

	boot.backed = subtractRegions(nil, mergeRegions(avail), mergeRegions(reserved))
	boot.usable = SliceRegions(subtractRegions(nil, boot.backed, mergeRegions(bootData)))
	boot.BumpAllocator = NewBumpAllocator(&boot.usable)
	boot.ReserveUntilAddress(layout.HeapStart)

	return boot, nil
}

// remaining returns the sorted regions that the boot allocator has not
// handed out or skipped.
func (boot *BootAllocator) remaining() []mm.FrameRegion {
	rest := make([]mm.FrameRegion, 0, len(boot.usable)+1)
	if boot.hasCurrent && !boot.current.Empty() {
		rest = append(rest, boot.current)
	}
	return append(rest, boot.usable...)
}

// InitFrameTable builds the page frame table that tracks every frame reported
// by the memory map. The table is stored in the first usable memory region
// that can hold it and is accessed through dm.
//
// When InitFrameTable returns, frames not backed by available memory and
// frames touched by reserved entries are Reserved. Backed frames below the
// heap start, the boot loader data, the frames holding the table and all
// frames the boot allocator handed out are Allocated. All other frames are
// Free.
func (boot *BootAllocator) InitFrameTable(dm mm.DirectMapping) (*FrameTable, *kernel.Error) {
	log := kfmt.Logger{Module: "pmm"}

	tableFrames := (uint64(RequiredSizeBytes(boot.frameCount)) + uint64(mm.PageSize) - 1) >> mm.PageShift
	tableRegion, err := boot.AllocRegion(tableFrames)
	if err != nil || tableFrames == 0 {
		return nil, ErrNoSpaceForFrameTable
	}

	table := NewFrameTable(dm.PhysToVirt(tableRegion.Start.Address()), boot.frameCount)

	var cursor mm.Frame
	for _, r := range boot.backed {
		table.MarkReserved(mm.FrameRegion{Start: cursor, End: r.Start})
		cursor = r.End
	}
	table.MarkReserved(mm.FrameRegion{Start: cursor, End: mm.Frame(boot.frameCount)})

	for _, r := range subtractRegions(nil, boot.backed, boot.remaining()) {
		table.MarkAllocated(r)
	}

	// The table now tracks the remaining frames.
	boot.current, boot.hasCurrent = mm.FrameRegion{}, false
	boot.usable = nil

	stats := table.Stats()
	log.Printf("page frame table: %d frames at 0x%x (%d frames), %d free, %d reserved\n",
		stats.Total, uint64(tableRegion.Start.Address()), tableRegion.Len(), stats.Free(), stats.Reserved)

	return table, nil
}

// InitFrameTable builds the page frame table for layout and memMap without
// any boot allocations besides the table itself.
func InitFrameTable(layout Layout, memMap []MemoryRegion, dm mm.DirectMapping) (*FrameTable, *kernel.Error) {
	boot, err := NewBootAllocator(layout, memMap)
	if err != nil {
		return nil, err
	}
	return boot.InitFrameTable(dm)
}

// insertSorted inserts r into the start-ordered list regions. The caller must
// make sure that regions has spare capacity.
func insertSorted(regions []mm.FrameRegion, r mm.FrameRegion) []mm.FrameRegion {
	regions = append(regions, r)
	i := len(regions) - 1
	for ; i > 0 && regions[i-1].Start > r.Start; i-- {
		regions[i] = regions[i-1]
	}
	regions[i] = r
	return regions
}

// mergeRegions coalesces overlapping and adjacent regions of a start-ordered
// list in place.
func mergeRegions(regions []mm.FrameRegion) []mm.FrameRegion {
	if len(regions) == 0 {
		return regions
	}

	out := regions[:1]
	for _, r := range regions[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// subtractRegions appends to dst the parts of from that remove does not
// cover. Both lists must be sorted and merged.
func subtractRegions(dst, from, remove []mm.FrameRegion) []mm.FrameRegion {
	for _, r := range from {
		for _, cut := range remove {
			if cut.End <= r.Start {
				continue
			}
			if cut.Start >= r.End {
				break
			}
			if cut.Start > r.Start {
				dst = append(dst, mm.FrameRegion{Start: r.Start, End: cut.Start})
			}
			r.Start = cut.End
			if r.Empty() {
				break
			}
		}
		if !r.Empty() {
			dst = append(dst, r)
		}
	}
	return dst
}
