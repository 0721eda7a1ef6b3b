package vmm

import (
	"unsafe"

	"learnos/kernel"
	"learnos/kernel/mm"
	"learnos/kernel/sync"
)

// AddressSpace is a 4-level page table hierarchy rooted at a PML4 frame.
// Calls that modify the hierarchy are serialized by a spinlock; lookups are
// lock-free and rely on atomic entry access.
//
// TLB entries are only flushed while the address space is the one loaded in
// CR3.
type AddressSpace struct {
	lock   sync.Spinlock
	root   mm.Frame
	access TableAccess
	alloc  mm.FrameAllocator
	active bool
}

// NewAddressSpace returns an AddressSpace for the existing PML4 in root.
// Intermediate page tables are allocated from alloc.
func NewAddressSpace(access TableAccess, root mm.Frame, alloc mm.FrameAllocator) *AddressSpace {
	return &AddressSpace{root: root, access: access, alloc: alloc}
}

// ActiveAddressSpace returns the address space currently loaded in CR3,
// accessed through its recursive PML4 slot.
func ActiveAddressSpace(slot uintptr, alloc mm.FrameAllocator) *AddressSpace {
	root := mm.FrameFromAddress(mm.PhysAddr(activePDTFn()))
	as := NewAddressSpace(RecursiveAccess{Slot: slot}, root, alloc)
	as.active = true
	return as
}

// CreateAddressSpace allocates and clears a new PML4 which is accessed
// through dm. If recursive is true, DefaultRecursiveSlot is pointed back to
// the PML4 so that the address space can later be accessed recursively once
// activated.
func CreateAddressSpace(dm mm.DirectMapping, alloc mm.FrameAllocator, recursive bool) (*AddressSpace, *kernel.Error) {
	root, err := alloc.AllocFrame()
	if err != nil {
		return nil, ErrOutOfMemory
	}

	as := NewAddressSpace(DirectAccess{Mapping: dm}, root, alloc)
	pml4 := as.access.TableAddr(0, PML4, root)
	kernel.Memset(uintptr(pml4), 0, mm.PageSize)

	if recursive {
		var entry PageTableEntry
		entry.SetAddress(root.Address())
		entry.SetFlags(FlagPresent | FlagRW)
		store(as.entry(pml4, DefaultRecursiveSlot), entry)
	}

	return as, nil
}

// Root returns the frame holding the PML4.
func (as *AddressSpace) Root() mm.Frame { return as.root }

// Activate loads this address space into CR3 and flushes the TLB.
func (as *AddressSpace) Activate() {
	switchPDTFn(uintptr(as.root.Address()))
	as.active = true
}

// Active returns true once the address space has been loaded into CR3.
func (as *AddressSpace) Active() bool { return as.active }

func (as *AddressSpace) flushTLBEntry(v uintptr) {
	if as.active {
		flushTLBEntryFn(v)
	}
}

// entry returns a pointer to entry index of the table at tableAddr.
func (as *AddressSpace) entry(tableAddr mm.VirtAddr, index uintptr) *PageTableEntry {
	return (*PageTableEntry)(unsafe.Pointer(uintptr(tableAddr) + index<<mm.PointerShift))
}

// entryFor returns a pointer to the entry at level that translates v.
func (as *AddressSpace) entryFor(v mm.VirtAddr, level Level, table mm.Frame) *PageTableEntry {
	return as.entry(as.access.TableAddr(v, level, table), level.Index(v))
}

// Map establishes a read-write mapping of the page at v to the physical
// memory at p. level selects 4KiB (PT) or 2MiB (PD) pages; both addresses
// must be aligned to the page size of that level. Missing intermediate tables
// are allocated and cleared.
//
// Map refuses to overwrite an existing mapping and returns ErrMappingExists.
// If an intermediate table cannot be allocated, every table allocated by this
// call is released and ErrOutOfMemory is returned.
func (as *AddressSpace) Map(v mm.VirtAddr, p mm.PhysAddr, level Level) *kernel.Error {
	return as.MapWithFlags(v, p, level, 0)
}

// MapWithFlags behaves like Map but also sets flags on the final entry.
func (as *AddressSpace) MapWithFlags(v mm.VirtAddr, p mm.PhysAddr, level Level, flags PageTableEntryFlag) *kernel.Error {
	if level > PD {
		return ErrInvalidLevel
	}

	if !v.IsAligned(level.PageSize()) || !p.IsAligned(level.PageSize()) {
		panic(errMisaligned)
	}

	as.lock.Acquire()
	defer as.lock.Release()
	return as.mapAt(v, p, level, flags, PML4, as.root)
}

func (as *AddressSpace) mapAt(v mm.VirtAddr, p mm.PhysAddr, target Level, flags PageTableEntryFlag, level Level, table mm.Frame) *kernel.Error {
	entryPtr := as.entryFor(v, level, table)
	cur := load(entryPtr)

	if level == target {
		if cur.Present() {
			return ErrMappingExists
		}

		var entry PageTableEntry
		entry.SetAddress(p)
		entry.SetFlags(FlagPresent | FlagRW | flags)
		if target > PT {
			entry.SetFlags(FlagHugePage)
		}
		store(entryPtr, entry)
		as.flushTLBEntry(uintptr(v))
		return nil
	}

	if cur.Present() {
		if cur.IsHuge() {
			return ErrMappingExists
		}
		return as.mapAt(v, p, target, flags, level-1, cur.Frame())
	}

	next, err := as.alloc.AllocFrame()
	if err != nil {
		return ErrOutOfMemory
	}

	var entry PageTableEntry
	entry.SetAddress(next.Address())
	entry.SetFlags(FlagPresent | FlagRW)
	store(entryPtr, entry)

	// The new table only becomes reachable once its parent entry is
	// installed.
	nextTable := as.access.TableAddr(v, level-1, next)
	as.flushTLBEntry(uintptr(nextTable))
	kernel.Memset(uintptr(nextTable), 0, mm.PageSize)

	if err = as.mapAt(v, p, target, flags, level-1, next); err != nil {
		store(entryPtr, cur)
		as.flushTLBEntry(uintptr(nextTable))
		as.alloc.FreeFrame(next)
		return err
	}

	return nil
}

// MapRegion maps size bytes (rounded up to the page size of level) starting
// at v to the physical memory starting at p. If any page cannot be mapped,
// the pages mapped by this call are unmapped again and the error is returned.
func (as *AddressSpace) MapRegion(v mm.VirtAddr, p mm.PhysAddr, size uintptr, level Level, flags PageTableEntryFlag) *kernel.Error {
	if level > PD {
		return ErrInvalidLevel
	}

	pageSize := level.PageSize()
	count := mm.AlignUp(size, pageSize) / pageSize
	for i := uintptr(0); i < count; i++ {
		if err := as.MapWithFlags(v.Add(i*pageSize), p.Add(i*pageSize), level, flags); err != nil {
			for ; i > 0; i-- {
				_ = as.Unmap(v.Add((i - 1) * pageSize))
			}
			return err
		}
	}

	return nil
}

// Resolve returns the physical address that v translates to or
// ErrInvalidMapping if any entry along the way is not present.
func (as *AddressSpace) Resolve(v mm.VirtAddr) (mm.PhysAddr, *kernel.Error) {
	entry, level := as.leaf(v)
	if entry == nil {
		return 0, ErrInvalidMapping
	}

	pte := load(entry)
	return pte.Address().Add(uintptr(v) & level.OffsetMask()), nil
}

// Unmap removes the mapping for v and flushes its TLB entry. Intermediate
// tables are left in place even if they become empty.
func (as *AddressSpace) Unmap(v mm.VirtAddr) *kernel.Error {
	as.lock.Acquire()
	defer as.lock.Release()

	entry, _ := as.leaf(v)
	if entry == nil {
		return ErrInvalidMapping
	}

	store(entry, 0)
	as.flushTLBEntry(uintptr(v))
	return nil
}

// leaf walks the hierarchy for v and returns the present entry that maps it
// together with its level. It returns a nil entry if v is not mapped.
func (as *AddressSpace) leaf(v mm.VirtAddr) (*PageTableEntry, Level) {
	table := as.root
	for level := PML4; ; level-- {
		entryPtr := as.entryFor(v, level, table)
		pte := load(entryPtr)
		if !pte.Present() {
			return nil, level
		}

		if level == PT || (level < PML4 && pte.IsHuge()) {
			return entryPtr, level
		}

		table = pte.Frame()
	}
}
