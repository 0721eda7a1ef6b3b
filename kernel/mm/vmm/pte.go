package vmm

import (
	"sync/atomic"

	"learnos/kernel/bits"
	"learnos/kernel/mm"
)

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uint64

// PageTableEntry describes an amd64 page table entry. Entries encode a
// physical address, a set of flags, the no-execute bit and 14 bits that are
// available to software.
type PageTableEntry uint64

// Address returns the physical address that this entry points to.
func (pte PageTableEntry) Address() mm.PhysAddr {
	return mm.PhysAddr(uint64(pte) & ptePhysPageMask)
}

// SetAddress updates the entry to point to addr. The low 12 bits of addr are
// ignored.
func (pte *PageTableEntry) SetAddress(addr mm.PhysAddr) {
	*pte = PageTableEntry((uint64(*pte) &^ ptePhysPageMask) | (uint64(addr) & ptePhysPageMask))
}

// Frame returns the physical frame that this entry points to.
func (pte PageTableEntry) Frame() mm.Frame {
	return mm.FrameFromAddress(pte.Address())
}

// Flags returns the flags stored in the low byte of the entry.
func (pte PageTableEntry) Flags() PageTableEntryFlag {
	return PageTableEntryFlag(uint64(pte) & pteFlagsMask)
}

// HasFlags returns true if this entry has all the input flags set.
func (pte PageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uint64(pte) & uint64(flags)) == uint64(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte PageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uint64(pte) & uint64(flags)) != 0
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *PageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = PageTableEntry(uint64(*pte) | (uint64(flags) & pteFlagsMask))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *PageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = PageTableEntry(uint64(*pte) &^ (uint64(flags) & pteFlagsMask))
}

// Present returns true if FlagPresent is set.
func (pte PageTableEntry) Present() bool { return pte.HasFlags(FlagPresent) }

// IsHuge returns true if the entry maps a large page.
func (pte PageTableEntry) IsHuge() bool { return pte.HasFlags(FlagHugePage) }

// NoExecute returns true if the no-execute bit is set.
func (pte PageTableEntry) NoExecute() bool {
	return bits.GetBit(uint64(pte), noExecuteBit)
}

// SetNoExecute updates the no-execute bit.
func (pte *PageTableEntry) SetNoExecute(on bool) {
	*pte = PageTableEntry(bits.SetBit(uint64(*pte), noExecuteBit, on))
}

// UserData returns the 14 software-defined bits of the entry.
func (pte PageTableEntry) UserData() uint16 {
	v := uint64(pte)
	return uint16((v&userDataHighMask)>>userDataHighShift | (v&userDataLowMask)>>userDataLowShift)
}

// SetUserData stores data in the software-defined bits of the entry. It
// panics if data does not fit in 14 bits.
func (pte *PageTableEntry) SetUserData(data uint16) {
	if data >= 1<<userDataBits {
		panic(errUserDataTooWide)
	}

	v := uint64(*pte) &^ (userDataHighMask | userDataLowMask)
	v |= (uint64(data) << userDataHighShift) & userDataHighMask
	v |= (uint64(data) << userDataLowShift) & userDataLowMask
	*pte = PageTableEntry(v)
}

// load atomically reads the entry at p. Page table entries are shared with
// the MMU, so reads and writes must never be split or elided.
func load(p *PageTableEntry) PageTableEntry {
	return PageTableEntry(atomic.LoadUint64((*uint64)(p)))
}

// store atomically writes v to the entry at p.
func store(p *PageTableEntry, v PageTableEntry) {
	atomic.StoreUint64((*uint64)(p), uint64(v))
}
