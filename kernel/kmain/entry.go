package kmain

import (
	"unsafe"

	"learnos/kernel"
	"learnos/kernel/cpu"
	"learnos/kernel/kfmt"
	"learnos/kernel/mm"
	"learnos/kernel/mm/pmm"
	"learnos/multiboot"
)

// maxBootMemoryRegions bounds the memory map entries copied out of the
// multiboot info block.
const maxBootMemoryRegions = 64

var (
	// physMapping is the direct mapping of physical memory established by
	// the rt0 code before Kmain runs.
	physMapping = mm.DirectMapping{
		VirtualBase: 0xFFFF_8000_0000_0000,
		Size:        uintptr(4 * mm.Gb),
	}

	bootMemoryMap [maxBootMemoryRegions]pmm.MemoryRegion

	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
)

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. This function is invoked by the rt0 assembly code
// after setting up the GDT and a minimal g0 struct that allows Go code to use
// the 4K stack allocated by the assembly code.
//
// The rt0 code passes the address of the multiboot info payload provided by
// the bootloader as well as the physical addresses for the kernel start/end.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	info := BootInfo{
		MemoryMap: pmm.MultibootMemoryMap(bootMemoryMap[:0]),
		Layout: pmm.Layout{
			KernelImage:   mm.PhysRangeFromBounds(mm.PhysAddr(kernelStart), mm.PhysAddr(kernelEnd)),
			MultibootInfo: multibootInfoRange(physMapping, multibootInfoPtr),
			HeapStart:     mm.PhysAddr(kernelEnd),
		},
		CmdLine:      multiboot.GetBootCmdLine(),
		Mapping:      physMapping,
		BootCPU:      cpu.LocalAPICID(),
		UseActivePDT: true,
		ProbeIOAPICs: true,
	}

	if rsdpPtr, size := multiboot.ACPIRSDP(); size != 0 {
		info.ACPIRootPointer = unsafe.Slice((*byte)(unsafe.Pointer(rsdpPtr)), size)
	}

	if _, err := Init(info); err != nil {
		kfmt.Panic(err)
	}

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	kfmt.Panic(errKmainReturned)
}

// multibootInfoRange returns the physical range of the info block at ptr. The
// rt0 code may pass ptr either identity mapped or through dm.
func multibootInfoRange(dm mm.DirectMapping, ptr uintptr) mm.PhysRange {
	addr := mm.PhysAddr(ptr)
	if dm.ContainsVirt(mm.VirtAddr(ptr)) {
		addr = dm.VirtToPhys(mm.VirtAddr(ptr))
	}
	return mm.PhysRange{Start: addr, Size: uintptr(multiboot.InfoSize())}
}
