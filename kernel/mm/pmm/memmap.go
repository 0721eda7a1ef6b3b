package pmm

import (
	"learnos/kernel/kfmt"
	"learnos/kernel/mm"
	"learnos/multiboot"
)

// MemoryRegion is a physical memory map entry.
type MemoryRegion struct {
	Range     mm.PhysRange
	Available bool
}

// Frames returns the frames backing the region. Available regions only
// contribute the frames that lie entirely inside them while unavailable
// regions claim every frame they touch.
func (r MemoryRegion) Frames() mm.FrameRegion {
	if r.Available {
		return mm.NewIncludedIn(r.Range)
	}
	return mm.NewIncluding(r.Range)
}

// MultibootMemoryMap appends the memory map reported by the boot loader to
// buf and returns the extended slice. Passing a buffer with enough capacity
// avoids allocations during early boot.
func MultibootMemoryMap(buf []MemoryRegion) []MemoryRegion {
	multiboot.VisitMemRegions(func(e *multiboot.MemoryMapEntry) bool {
		buf = append(buf, MemoryRegion{
			Range:     mm.PhysRange{Start: mm.PhysAddr(e.PhysAddress), Size: uintptr(e.Length)},
			Available: e.Type == multiboot.MemAvailable,
		})
		return true
	})
	return buf
}

// AvailableRegions is a RegionSource that yields the frames of the available
// entries of a memory map in the order they appear.
type AvailableRegions struct {
	regions []MemoryRegion
}

// NewAvailableRegions returns a RegionSource over memMap.
func NewAvailableRegions(memMap []MemoryRegion) *AvailableRegions {
	return &AvailableRegions{regions: memMap}
}

// NextRegion implements RegionSource.
func (s *AvailableRegions) NextRegion() (mm.FrameRegion, bool) {
	for len(s.regions) != 0 {
		r := s.regions[0]
		s.regions = s.regions[1:]
		if r.Available {
			return r.Frames(), true
		}
	}
	return mm.FrameRegion{}, false
}

// PrintMemoryMap writes the memory map followed by the amount of available
// memory.
func PrintMemoryMap(log kfmt.Logger, memMap []MemoryRegion) {
	log.Printf("system memory map:\n")

	var totalFree mm.Size
	for _, r := range memMap {
		kind := "reserved"
		if r.Available {
			kind = "available"
			totalFree += mm.Size(r.Range.Size)
		}
		log.Printf("  [0x%10x - 0x%10x], size: %10d, type: %s\n", uint64(r.Range.Start), uint64(r.Range.End()), uint64(r.Range.Size), kind)
	}

	log.Printf("available memory: %dKb\n", uint64(totalFree/mm.Kb))
}
