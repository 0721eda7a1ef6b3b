package main

import (
	"fmt"
	"io"
	"unsafe"

	"learnos/device/acpi/acpigen"
	"learnos/internal/hostmem"
	"learnos/kernel/kmain"
	"learnos/kernel/mm"
	"learnos/kernel/mm/pmm"
	"learnos/multiboot"
)

// machine is a booted simulated machine.
type machine struct {
	arena *hostmem.Arena
	kctx  *kmain.Context
}

// boot lays out RAM and firmware as described by cfg, hands the kernel a
// multiboot info block and runs the kernel bring-up. The boot log is written
// to log.
func boot(cfg *Config, log io.Writer) (*machine, error) {
	entries, err := normalizeMemoryMap(cfg.Memory, cfg.MemoryMap)
	if err != nil {
		return nil, err
	}

	arena, err := hostmem.New(uintptr(cfg.Memory))
	if err != nil {
		return nil, fmt.Errorf("allocate memory: %w", err)
	}

	m := &machine{arena: arena}
	if err = m.start(cfg, entries, log); err != nil {
		_ = arena.Close()
		return nil, err
	}
	return m, nil
}

func (m *machine) start(cfg *Config, entries []multiboot.MemoryMapEntry, log io.Writer) error {
	b := new(multiboot.Builder).CmdLine(cfg.CmdLine).MemoryMap(entries...)

	if !cfg.ACPI.Disabled {
		img, err := acpigen.Build(cfg.firmware())
		if err != nil {
			return fmt.Errorf("build ACPI tables: %w", err)
		}
		if err = img.Install(m.arena); err != nil {
			return fmt.Errorf("install ACPI tables: %w", err)
		}
		if cfg.ACPI.BootLoaderCopy {
			b.RSDP(img.RSDP, cfg.ACPI.Revision >= 2)
		}
	}

	// Like a boot loader, place the info block right above the kernel.
	block := b.Build()
	infoRange := mm.PhysRange{Start: mm.PhysAddr(cfg.HeapStart), Size: uintptr(len(block)) * 8}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&block[0])), infoRange.Size)
	if _, err := m.arena.WriteAt(raw, int64(infoRange.Start)); err != nil {
		return fmt.Errorf("install boot info at 0x%x: %w", uint64(infoRange.Start), err)
	}
	multiboot.SetInfoPtr(uintptr(m.arena.Mapping().PhysToVirt(infoRange.Start)))

	info := kmain.BootInfo{
		MemoryMap: pmm.MultibootMemoryMap(make([]pmm.MemoryRegion, 0, len(entries))),
		Layout: pmm.Layout{
			KernelImage:   mm.PhysRangeFromBounds(mm.PhysAddr(cfg.Kernel.Start), mm.PhysAddr(cfg.Kernel.End)),
			MultibootInfo: infoRange,
			HeapStart:     mm.PhysAddr(cfg.HeapStart),
		},
		CmdLine: multiboot.GetBootCmdLine(),
		Mapping: m.arena.Mapping(),
		BootCPU: cfg.BootCPU,
		Log:     log,
	}
	if ptr, size := multiboot.ACPIRSDP(); size != 0 {
		info.ACPIRootPointer = unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size)
	}

	kctx, kerr := kmain.Init(info)
	if kerr != nil {
		return fmt.Errorf("kernel init: %w", kerr)
	}
	m.kctx = kctx
	return nil
}

// Close releases the simulated RAM.
func (m *machine) Close() error {
	return m.arena.Close()
}
