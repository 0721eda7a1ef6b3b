package vmm

const (
	// entriesPerTable is the number of entries in each page table.
	entriesPerTable = 512

	// ptePhysPageMask extracts the physical address stored in bits 12-51
	// of a page table entry.
	ptePhysPageMask = uint64(0x000F_FFFF_FFFF_F000)

	// pteFlagsMask covers the standard x86-64 flags in the low byte.
	pteFlagsMask = uint64(0xFF)

	// Page table entries have 14 bits that the MMU ignores. The low 3 live
	// in bits 9-11 and the remaining 11 in bits 52-62.
	userDataLowMask   = uint64(0x0000_0000_0000_0E00)
	userDataLowShift  = 9
	userDataHighMask  = uint64(0x7FF0_0000_0000_0000)
	userDataHighShift = 52 - 3
	userDataBits      = 14

	// noExecuteBit marks a page as non-executable.
	noExecuteBit = 63

	// canonicalHigh is OR-ed into addresses whose bit 47 is set.
	canonicalHigh = uintptr(0xFFFF_0000_0000_0000)
	canonicalBit  = uintptr(1 << 47)

	// recursiveShiftMask clears the PML4 index bits (39-47) of an address
	// shifted right by one level so the recursive slot can be OR-ed in.
	recursiveShiftMask = uintptr(0xFFFF_007F_FFFF_FFFF)
)

const (
	// FlagPresent is set when the page is available in memory and not swapped out.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUser is set if user-mode code can access this page. If not set
	// only kernel code can access this page.
	FlagUser

	// FlagWriteThrough implies write-through caching when set and
	// write-back caching if cleared.
	FlagWriteThrough

	// FlagNoCache prevents this page from being cached if set. It is used
	// for memory-mapped device registers.
	FlagNoCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when this page is modified.
	FlagDirty

	// FlagHugePage is set on PD and PDP entries that map a 2MiB or 1GiB
	// page instead of pointing to a lower level table.
	FlagHugePage
)

// DefaultRecursiveSlot is the PML4 entry that points back to the PML4 itself
// in address spaces created by the kernel.
const DefaultRecursiveSlot = 510
