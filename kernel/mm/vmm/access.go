package vmm

import "learnos/kernel/mm"

// TableAccess locates page tables in the virtual address space so that their
// entries can be read and written.
type TableAccess interface {
	// TableAddr returns the virtual address of the page table at level
	// that participates in the translation of v. table is the physical
	// frame holding that table.
	TableAddr(v mm.VirtAddr, level Level, table mm.Frame) mm.VirtAddr
}

// RecursiveAccess reaches page tables through a PML4 entry that points back
// to the PML4. Only the active address space can be accessed this way.
type RecursiveAccess struct {
	// Slot is the index of the recursive PML4 entry.
	Slot uintptr
}

// EntryAddr returns the virtual address of the entry at level that
// translates v.
//
// Each pass shifts the address right by one level and installs the recursive
// slot as the new PML4 index, so the MMU walks the recursive entry one extra
// time and lands on a page table instead of a data page.
func (a RecursiveAccess) EntryAddr(v mm.VirtAddr, level Level) mm.VirtAddr {
	addr := uintptr(v)
	for i := Level(0); i <= level; i++ {
		addr = ((addr >> 9) & recursiveShiftMask) | (a.Slot << PML4.shift())
	}

	if addr&canonicalBit != 0 {
		addr |= canonicalHigh
	} else {
		addr &^= canonicalHigh
	}

	return mm.VirtAddr(addr &^ 7)
}

// TableAddr implements TableAccess.
func (a RecursiveAccess) TableAddr(v mm.VirtAddr, level Level, _ mm.Frame) mm.VirtAddr {
	return a.EntryAddr(v, level).AlignDown(mm.PageSize)
}

// DirectAccess reaches page tables through a linear mapping of physical
// memory. Any address space, active or not, can be accessed this way.
type DirectAccess struct {
	Mapping mm.DirectMapping
}

// TableAddr implements TableAccess.
func (a DirectAccess) TableAddr(_ mm.VirtAddr, _ Level, table mm.Frame) mm.VirtAddr {
	return a.Mapping.PhysToVirt(table.Address())
}
