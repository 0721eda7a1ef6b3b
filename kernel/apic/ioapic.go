package apic

import (
	"learnos/kernel/bits"
	"learnos/kernel/mm"
	"learnos/kernel/sync"
)

// I/O APIC register window layout.
const (
	ioRegSelect = 0x00
	ioWindow    = 0x10
)

// I/O APIC indirect register indices.
const (
	ioRegID          = 0x00
	ioRegVersion     = 0x01
	ioRegArbitration = 0x02
	ioRegRedirBase   = 0x10
)

// DefaultIOAPICBase is the conventional physical address of the first I/O
// APIC.
const DefaultIOAPICBase = mm.PhysAddr(0xFEC0_0000)

// IOAPIC provides access to an I/O APIC whose register window is mapped at
// Base. Registers are reached through an index/data pair so every access is
// serialized by an internal lock.
type IOAPIC struct {
	Base mm.VirtAddr

	lock *sync.Spinlock
}

// NewIOAPIC returns an IOAPIC whose register window is mapped at base.
func NewIOAPIC(base mm.VirtAddr) IOAPIC {
	checkRegister(base)
	return IOAPIC{Base: base, lock: new(sync.Spinlock)}
}

func (io IOAPIC) read(reg uint32) uint32 {
	io.lock.Acquire()
	defer io.lock.Release()

	storeRegFn(io.Base.Add(ioRegSelect), reg)
	return loadRegFn(io.Base.Add(ioWindow))
}

func (io IOAPIC) write(reg, value uint32) {
	io.lock.Acquire()
	defer io.lock.Release()

	storeRegFn(io.Base.Add(ioRegSelect), reg)
	storeRegFn(io.Base.Add(ioWindow), value)
}

// ID returns the 4-bit I/O APIC id.
func (io IOAPIC) ID() uint8 {
	return uint8(bits.GetBits(io.read(ioRegID), bits.Inclusive(24, 27)))
}

// Version returns the implementation version.
func (io IOAPIC) Version() uint8 {
	return uint8(io.read(ioRegVersion))
}

// MaxRedirectionEntry returns the index of the last redirection entry; the
// I/O APIC handles MaxRedirectionEntry()+1 interrupt inputs.
func (io IOAPIC) MaxRedirectionEntry() uint8 {
	return uint8(bits.GetBits(io.read(ioRegVersion), bits.Inclusive(16, 23)))
}

// Arbitration returns the bus arbitration id.
func (io IOAPIC) Arbitration() uint8 {
	return uint8(bits.GetBits(io.read(ioRegArbitration), bits.Inclusive(24, 27)))
}

// RedirectionEntry returns redirection table entry i.
func (io IOAPIC) RedirectionEntry(i uint8) RedirectionEntry {
	reg := ioRegRedirBase + 2*uint32(i)
	lo := io.read(reg)
	hi := io.read(reg + 1)
	return RedirectionEntry(uint64(hi)<<32 | uint64(lo))
}

// SetRedirectionEntry replaces redirection table entry i. The entry is
// masked while the destination dword is updated so a half-written entry
// never fires.
func (io IOAPIC) SetRedirectionEntry(i uint8, e RedirectionEntry) {
	reg := ioRegRedirBase + 2*uint32(i)
	io.write(reg, uint32(e.WithMasked(true)))
	io.write(reg+1, uint32(e>>32))
	io.write(reg, uint32(e))
}
