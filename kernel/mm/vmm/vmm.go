// Package vmm manages amd64 4-level page tables.
package vmm

import (
	"learnos/kernel"
	"learnos/kernel/cpu"
)

var (
	// flushTLBEntryFn is used by tests to override calls to flushTLBEntry
	// which will cause a fault if called in user-mode.
	flushTLBEntryFn = cpu.FlushTLBEntry

	// activePDTFn is used by tests to override calls to activePDT which
	// will cause a fault if called in user-mode.
	activePDTFn = cpu.ActivePDT

	// switchPDTFn is used by tests to override calls to switchPDT which
	// will cause a fault if called in user-mode.
	switchPDTFn = cpu.SwitchPDT

	// ErrInvalidLevel is returned when a mapping is requested at a level
	// other than PT (4KiB) or PD (2MiB).
	ErrInvalidLevel = &kernel.Error{Module: "vmm", Message: "mappings are only supported at the PT and PD levels"}

	// ErrMappingExists is returned when the target entry is already
	// present or a large page covers the requested address.
	ErrMappingExists = &kernel.Error{Module: "vmm", Message: "virtual address is already mapped"}

	// ErrOutOfMemory is returned when no frame is available for an
	// intermediate page table.
	ErrOutOfMemory = &kernel.Error{Module: "vmm", Message: "out of memory while allocating a page table"}

	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	errMisaligned      = &kernel.Error{Module: "vmm", Message: "address is not aligned to the mapping granularity"}
	errUserDataTooWide = &kernel.Error{Module: "vmm", Message: "page table entry user data exceeds 14 bits"}
)
