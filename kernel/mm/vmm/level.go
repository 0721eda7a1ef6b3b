package vmm

import "learnos/kernel/mm"

// Level identifies one of the four paging levels.
type Level uint8

const (
	// PT entries map 4KiB pages.
	PT Level = iota

	// PD entries point to page tables or map 2MiB pages.
	PD

	// PDP entries point to page directories or map 1GiB pages.
	PDP

	// PML4 is the root of the paging hierarchy.
	PML4
)

// shift returns the number of virtual address bits below this level's index.
func (l Level) shift() uintptr {
	return mm.PageShift + 9*uintptr(l)
}

// PageSize returns the number of bytes translated by a single entry at this
// level.
func (l Level) PageSize() uintptr {
	return 1 << l.shift()
}

// OffsetMask returns the mask that extracts the offset inside a page mapped
// at this level.
func (l Level) OffsetMask() uintptr {
	return l.PageSize() - 1
}

// Index returns the index of the entry at this level that translates v.
func (l Level) Index(v mm.VirtAddr) uintptr {
	return (uintptr(v) >> l.shift()) & (entriesPerTable - 1)
}

// String implements fmt.Stringer for Level.
func (l Level) String() string {
	switch l {
	case PT:
		return "PT"
	case PD:
		return "PD"
	case PDP:
		return "PDP"
	case PML4:
		return "PML4"
	default:
		return "invalid"
	}
}
