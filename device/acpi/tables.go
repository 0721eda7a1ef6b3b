package acpi

import (
	"encoding/binary"
	"io"
	"unsafe"

	"learnos/device/acpi/table"
	"learnos/kernel"
	"learnos/kernel/kfmt"
	"learnos/kernel/mm"
)

var (
	errTableOutsideMapping = &kernel.Error{Module: "acpi", Message: "ACPI table is not covered by the direct mapping"}
	errInvalidRootTable    = &kernel.Error{Module: "acpi", Message: "ACPI root table failed validation"}
	errMissingMADT         = &kernel.Error{Module: "acpi", Message: "no valid MADT found"}
)

// RootTable is a validated RSDT or XSDT.
type RootTable struct {
	Header table.SDTHeader

	// PointerSize is 4 for an RSDT and 8 for an XSDT.
	PointerSize int

	ptrs []mm.PhysAddr
}

// LoadRootTable validates mem as an XSDT (xsdt set) or RSDT.
func LoadRootTable(mem []byte, xsdt bool) (*RootTable, *kernel.Error) {
	if xsdt {
		t, err := table.FromRaw[table.XSDT](mem)
		if err != nil {
			return nil, errInvalidRootTable
		}

		rt := &RootTable{Header: t.SDTHeader, PointerSize: 8, ptrs: make([]mm.PhysAddr, len(t.Entries))}
		for i, p := range t.Entries {
			rt.ptrs[i] = mm.PhysAddr(p)
		}
		return rt, nil
	}

	t, err := table.FromRaw[table.RSDT](mem)
	if err != nil {
		return nil, errInvalidRootTable
	}

	rt := &RootTable{Header: t.SDTHeader, PointerSize: 4, ptrs: make([]mm.PhysAddr, len(t.Entries))}
	for i, p := range t.Entries {
		rt.ptrs[i] = mm.PhysAddr(p)
	}
	return rt, nil
}

// Len returns the number of table pointers, (length - 36) / PointerSize.
func (rt *RootTable) Len() int { return len(rt.ptrs) }

// Pointers returns an iterator over the table pointers.
func (rt *RootTable) Pointers() *PointerIterator {
	return &PointerIterator{ptrs: rt.ptrs}
}

// PointerIterator yields the physical addresses listed by a root table.
// Once exhausted it stays exhausted.
type PointerIterator struct {
	ptrs []mm.PhysAddr
	next int
}

// Next returns the next pointer.
func (it *PointerIterator) Next() (mm.PhysAddr, bool) {
	if it.next >= len(it.ptrs) {
		return 0, false
	}

	addr := it.ptrs[it.next]
	it.next++
	return addr, true
}

type tableEntry struct {
	signature string
	addr      mm.PhysAddr
	mem       []byte
}

// Tables records the validated tables reachable from the root pointer.
type Tables struct {
	Root    *RootPointer
	RootSDT *RootTable

	entries []tableEntry
}

// Enumerate validates the root table referenced by rp and every table it
// lists. Tables failing their checksum are reported to w and skipped. The
// DSDT is looked up through the FADT.
func Enumerate(dm mm.DirectMapping, rp *RootPointer, w io.Writer) (*Tables, *kernel.Error) {
	rootAddr, useXSDT := rp.RootTableAddr()

	mem, err := mapTable(dm, rootAddr)
	if err != nil {
		return nil, err
	}

	rootSDT, err := LoadRootTable(mem, useXSDT)
	if err != nil {
		return nil, err
	}

	tables := &Tables{Root: rp, RootSDT: rootSDT}

	for it := rootSDT.Pointers(); ; {
		addr, ok := it.Next()
		if !ok {
			break
		}

		sig, err := tables.add(dm, addr, w)
		if err != nil {
			return nil, err
		}

		// The FADT allows us to lookup the DSDT table address.
		if sig != table.FADTSignature {
			continue
		}

		fadt, err := table.FromRaw[table.FADT](tables.entries[len(tables.entries)-1].mem)
		if err != nil {
			continue
		}
		if _, err = tables.add(dm, mm.PhysAddr(fadt.DSDTAddr()), w); err != nil {
			return nil, err
		}
	}

	return tables, nil
}

// add validates and records the table at addr. It returns the table
// signature or an empty string if the table was skipped.
func (t *Tables) add(dm mm.DirectMapping, addr mm.PhysAddr, w io.Writer) (string, *kernel.Error) {
	mem, err := mapTable(dm, addr)
	if err != nil {
		return "", err
	}

	sdt, err := table.FromRaw[table.SDT](mem)
	if err != nil {
		kfmt.Fprintf(w, "%s at 0x%16x %6x [checksum mismatch; skipping]\n",
			string(mem[:4]),
			uintptr(addr),
			binary.LittleEndian.Uint32(mem[4:8]),
		)
		return "", nil
	}

	sig := sdt.SignatureString()
	t.entries = append(t.entries, tableEntry{signature: sig, addr: addr, mem: mem})
	return sig, nil
}

// LookupTable returns the bytes of the first table with the given
// signature or nil.
func (t *Tables) LookupTable(signature string) []byte {
	for _, e := range t.entries {
		if e.signature == signature {
			return e.mem
		}
	}
	return nil
}

// MADT returns the decoded MADT.
func (t *Tables) MADT() (*table.MADT, *kernel.Error) {
	mem := t.LookupTable(table.MADTSignature)
	if mem == nil {
		return nil, errMissingMADT
	}

	madt, err := table.FromRaw[table.MADT](mem)
	if err != nil {
		return nil, errMissingMADT
	}
	return madt, nil
}

// Print lists the recorded tables.
func (t *Tables) Print(w io.Writer) {
	rootAddr, _ := t.Root.RootTableAddr()
	kfmt.Fprintf(w, "%s at 0x%16x %6x (%6s %8s)\n",
		string(t.RootSDT.Header.Signature[:]),
		uintptr(rootAddr),
		t.RootSDT.Header.Length,
		string(t.RootSDT.Header.OEMID[:]),
		string(t.RootSDT.Header.OEMTableID[:]),
	)

	for _, e := range t.entries {
		kfmt.Fprintf(w, "%s at 0x%16x %6x (%6s %8s)\n",
			e.signature,
			uintptr(e.addr),
			len(e.mem),
			string(e.mem[10:16]),
			string(e.mem[16:24]),
		)
	}
}

// mapTable returns the bytes of the table at addr as reported by its
// length field. The bytes are not validated.
func mapTable(dm mm.DirectMapping, addr mm.PhysAddr) ([]byte, *kernel.Error) {
	if !dm.ContainsPhys(addr) || !dm.ContainsPhys(addr+table.SDTHeaderSize-1) {
		return nil, errTableOutsideMapping
	}

	header := unsafe.Slice((*byte)(dm.PhysToVirt(addr).Pointer()), table.SDTHeaderSize)
	length := uintptr(binary.LittleEndian.Uint32(header[4:8]))
	if length < table.SDTHeaderSize {
		length = table.SDTHeaderSize
	}

	if !dm.ContainsPhys(addr.Add(length - 1)) {
		return nil, errTableOutsideMapping
	}

	return unsafe.Slice((*byte)(dm.PhysToVirt(addr).Pointer()), length), nil
}
