// Package acpi locates and validates the ACPI firmware tables and extracts
// the interrupt topology of the machine from them.
package acpi

import (
	"unsafe"

	"learnos/device/acpi/table"
	"learnos/kernel"
	"learnos/kernel/mm"
)

const acpiRev2Plus uint8 = 2

var (
	errMissingRSDP = &kernel.Error{Module: "acpi", Message: "could not locate ACPI RSDP"}

	// The RSDP must be located in the physical memory region 0xe0000 to
	// 0xfffff.
	rsdpLocationLow         = mm.PhysAddr(0xe0000)
	rsdpLocationHi          = mm.PhysAddr(0xfffff)
	rsdpAlignment   uintptr = 16
)

// RootPointer is a validated root system description pointer.
type RootPointer struct {
	// Addr is the virtual address where the pointer was found.
	Addr mm.VirtAddr

	RSDP table.RSDP

	// Ext is set for ACPI 2.0+ systems.
	Ext *table.ExtRSDP
}

// Revision returns the ACPI revision reported by the pointer.
func (rp *RootPointer) Revision() uint8 { return rp.RSDP.Revision }

// RootTableAddr returns the physical address of the root table and true if
// it is an XSDT. The XSDT is preferred whenever the firmware provides one.
func (rp *RootPointer) RootTableAddr() (mm.PhysAddr, bool) {
	if rp.Ext != nil && rp.Ext.XSDTAddr != 0 {
		return mm.PhysAddr(rp.Ext.XSDTAddr), true
	}
	return mm.PhysAddr(rp.RSDP.RSDTAddr), false
}

// ParseRootPointer validates the RSDP stored at the start of mem. For
// revision 2 and later both the 20-byte and the 36-byte checksums must hold.
func ParseRootPointer(mem []byte) (*RootPointer, *kernel.Error) {
	rsdp, err := table.FromRaw[table.RSDP](mem)
	if err != nil {
		return nil, err
	}

	rp := &RootPointer{RSDP: *rsdp}
	if rsdp.Revision >= acpiRev2Plus {
		if rp.Ext, err = table.FromRaw[table.ExtRSDP](mem); err != nil {
			return nil, err
		}
	}

	return rp, nil
}

// FindRSDP scans the virtual range [start, end) for the root system
// description pointer. Candidates are only considered at 16-byte aligned
// addresses and a signature match is accepted only if the checksums hold.
func FindRSDP(start, end mm.VirtAddr) (*RootPointer, *kernel.Error) {
	if end <= start {
		return nil, errMissingRSDP
	}

	mem := unsafe.Slice((*byte)(start.Pointer()), uintptr(end-start))
	sigLen := uintptr(len(table.RSDPSignature))

	for cur := start.AlignUp(rsdpAlignment); cur >= start && uintptr(end-cur) >= sigLen; cur = cur.Add(rsdpAlignment) {
		off := uintptr(cur - start)
		if string(mem[off:off+sigLen]) != table.RSDPSignature {
			continue
		}

		rp, err := ParseRootPointer(mem[off:])
		if err != nil {
			continue
		}

		rp.Addr = cur
		return rp, nil
	}

	return nil, errMissingRSDP
}

// LocateRSDP scans the BIOS read-only memory area through the direct
// mapping.
func LocateRSDP(dm mm.DirectMapping) (*RootPointer, *kernel.Error) {
	if !dm.ContainsPhys(rsdpLocationLow) || !dm.ContainsPhys(rsdpLocationHi) {
		return nil, errMissingRSDP
	}

	return FindRSDP(dm.PhysToVirt(rsdpLocationLow), dm.PhysToVirt(rsdpLocationHi)+1)
}
