// Package apic models the memory-mapped registers of the local APIC and the
// I/O APIC.
package apic

import (
	"sync/atomic"
	"unsafe"

	"learnos/kernel"
	"learnos/kernel/mm"
)

var (
	// loadRegFn and storeRegFn perform the 32-bit MMIO accesses. Tests
	// override them to emulate devices whose registers are not plain
	// memory.
	loadRegFn  = loadReg
	storeRegFn = storeReg

	errMisalignedRegister = &kernel.Error{Module: "apic", Message: "register address is not 16-byte aligned"}
)

// registerAlign is the alignment of every APIC register.
const registerAlign = 16

func loadReg(addr mm.VirtAddr) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(uintptr(addr))))
}

func storeReg(addr mm.VirtAddr, value uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(uintptr(addr))), value)
}

func checkRegister(addr mm.VirtAddr) {
	if !addr.IsAligned(registerAlign) {
		panic(errMisalignedRegister)
	}
}
