package apic

import (
	"learnos/kernel/bits"
	"learnos/kernel/mm"
)

// Local APIC register offsets.
const (
	regID                = 0x20
	regVersion           = 0x30
	regTaskPriority      = 0x80
	regEOI               = 0xB0
	regSpuriousVector    = 0xF0
	regErrorStatus       = 0x280
	regLVTTimer          = 0x320
	regTimerInitialCount = 0x380
	regTimerCurrentCount = 0x390
	regTimerDivisor      = 0x3E0
)

// softwareEnableBit is the APIC software enable flag of the spurious
// interrupt vector register.
const softwareEnableBit = 8

// DefaultLocalAPICBase is the physical address of the local APIC registers
// after reset.
const DefaultLocalAPICBase = mm.PhysAddr(0xFEE0_0000)

// LocalAPIC provides access to the registers of the local APIC mapped at
// Base.
type LocalAPIC struct {
	Base mm.VirtAddr
}

// NewLocalAPIC returns a LocalAPIC whose register page is mapped at base.
func NewLocalAPIC(base mm.VirtAddr) LocalAPIC {
	checkRegister(base)
	return LocalAPIC{Base: base}
}

func (l LocalAPIC) read(reg uintptr) uint32 {
	addr := l.Base.Add(reg)
	checkRegister(addr)
	return loadRegFn(addr)
}

func (l LocalAPIC) write(reg uintptr, value uint32) {
	addr := l.Base.Add(reg)
	checkRegister(addr)
	storeRegFn(addr, value)
}

// ID returns the APIC id of the local APIC.
func (l LocalAPIC) ID() uint8 {
	return uint8(l.read(regID) >> 24)
}

// Version returns the version field of the local APIC version register.
func (l LocalAPIC) Version() uint8 {
	return uint8(l.read(regVersion))
}

// SpuriousVector returns the vector delivered for spurious interrupts and
// whether the APIC is software enabled.
func (l LocalAPIC) SpuriousVector() (uint8, bool) {
	v := l.read(regSpuriousVector)
	return uint8(v), bits.GetBit(v, softwareEnableBit)
}

// SetSpuriousVector programs the spurious interrupt vector and the software
// enable flag. Other bits of the register are preserved.
func (l LocalAPIC) SetSpuriousVector(vector uint8, enable bool) {
	v := l.read(regSpuriousVector)
	v = bits.SetBits(v, bits.Until(8), uint32(vector))
	v = bits.SetBit(v, softwareEnableBit, enable)
	l.write(regSpuriousVector, v)
}

// EOI signals the end of the interrupt currently being serviced.
func (l LocalAPIC) EOI() {
	l.write(regEOI, 0)
}

// TaskPriority returns the task priority register.
func (l LocalAPIC) TaskPriority() uint8 {
	return uint8(l.read(regTaskPriority))
}

// SetTaskPriority sets the task priority; interrupts whose priority class is
// not above it are held pending.
func (l LocalAPIC) SetTaskPriority(priority uint8) {
	l.write(regTaskPriority, uint32(priority))
}

// ErrorStatus latches and returns the error status register. The register
// must be written before it is read.
func (l LocalAPIC) ErrorStatus() uint32 {
	l.write(regErrorStatus, 0)
	return l.read(regErrorStatus)
}

// LVTTimer returns the timer local vector table entry.
func (l LocalAPIC) LVTTimer() LvtTimer {
	return LvtTimer(l.read(regLVTTimer))
}

// SetLVTTimer writes the timer local vector table entry.
func (l LocalAPIC) SetLVTTimer(t LvtTimer) {
	l.write(regLVTTimer, uint32(t))
}

// TimerDivisor returns the configured timer divisor.
func (l LocalAPIC) TimerDivisor() TimerDivisor {
	return decodeDivisor(l.read(regTimerDivisor))
}

// SetTimerDivisor configures the divisor applied to the bus clock. Bits of
// the register outside the divisor field are preserved.
func (l LocalAPIC) SetTimerDivisor(d TimerDivisor) {
	v := l.read(regTimerDivisor)
	l.write(regTimerDivisor, (v&^divisorFieldMask)|d.encode())
}

// SetTimerInitialCount loads the timer counter and starts counting down.
func (l LocalAPIC) SetTimerInitialCount(count uint32) {
	l.write(regTimerInitialCount, count)
}

// TimerInitialCount returns the last value loaded into the timer.
func (l LocalAPIC) TimerInitialCount() uint32 {
	return l.read(regTimerInitialCount)
}

// TimerCurrentCount returns the current value of the timer counter.
func (l LocalAPIC) TimerCurrentCount() uint32 {
	return l.read(regTimerCurrentCount)
}
