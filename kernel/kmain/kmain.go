package kmain

import (
	"bytes"
	"io"
	"sort"

	"learnos/device"
	"learnos/device/acpi"
	"learnos/kernel"
	"learnos/kernel/apic"
	"learnos/kernel/irq"
	"learnos/kernel/kfmt"
	"learnos/kernel/mm"
	"learnos/kernel/mm/pmm"
	"learnos/kernel/mm/vmm"
	"learnos/kernel/smp"
)

// DefaultMMIOBase is the start of the virtual window where the local APIC
// and I/O APIC register pages are mapped. It lies in PML4 slot 508, below
// the recursive slot.
const DefaultMMIOBase = mm.VirtAddr(0xFFFF_FE00_0000_0000)

var (
	// readIOAPICFn is used by tests to override the register reads that
	// identify an I/O APIC. It returns the version and the index of the
	// last redirection entry.
	readIOAPICFn = readIOAPIC

	// redirectionTableFn is used by tests to intercept the redirection
	// entries programmed into an I/O APIC.
	redirectionTableFn = func(io apic.IOAPIC) irq.RedirectionTable { return io }

	errNoBootCPU = &kernel.Error{Module: "kmain", Message: "topology does not list the boot CPU"}
)

// BootInfo collects everything the boot loader and the early boot code tell
// the kernel about the machine.
type BootInfo struct {
	// MemoryMap is the physical memory map reported by the boot loader.
	MemoryMap []pmm.MemoryRegion

	// Layout describes where the kernel image and early boot data live.
	Layout pmm.Layout

	// CmdLine holds the parsed kernel command line.
	CmdLine map[string]string

	// ACPIRootPointer is the copy of the RSDP provided by the boot loader
	// or nil.
	ACPIRootPointer []byte

	// Mapping is the direct mapping of physical memory that the kernel
	// uses to access page tables, the page frame table and firmware
	// tables.
	Mapping mm.DirectMapping

	// BootCPU is the local APIC id of the processor running Init.
	BootCPU uint8

	// MMIOBase overrides DefaultMMIOBase when non-zero.
	MMIOBase mm.VirtAddr

	// UseActivePDT selects the address space loaded in CR3, accessed
	// through its recursive slot, instead of a fresh one built through
	// Mapping.
	UseActivePDT bool

	// ProbeIOAPICs enables reading the I/O APIC version registers and
	// programming the ISA redirection entries once the registers are
	// mapped. It must only be set when the mappings are live.
	ProbeIOAPICs bool

	// Log receives the boot log. If nil, output goes to the kfmt sink.
	Log io.Writer
}

// Context holds the state built by Init. It replaces the global allocator,
// page table and topology singletons with an explicit value that callers
// pass around.
type Context struct {
	Mapping      mm.DirectMapping
	Table        *pmm.FrameTable
	Frames       *pmm.LockedAllocator
	AddressSpace *vmm.AddressSpace
	Topology     *smp.Topology

	// LocalAPIC and IOAPICs access the register pages mapped in the MMIO
	// window. IOAPICs follows the order of Topology.IOAPICs.
	LocalAPIC apic.LocalAPIC
	IOAPICs   []apic.IOAPIC

	// IRQs routes the ISA interrupts to the boot CPU.
	IRQs *irq.Router

	// Drivers lists the device drivers that initialized successfully.
	Drivers []device.Driver

	// mmioNext is the next free page of the MMIO window.
	mmioNext mm.VirtAddr
}

// Init brings up the memory core. It starts with a boot allocator behind a
// lock, sets up the kernel address space, builds the page frame table and
// hands allocation over to a first-fit allocator over the table. It then
// discovers the processor and interrupt controller topology and finally maps
// the interrupt controller registers uncached before setting up the ISA
// interrupt routing.
func Init(info BootInfo) (*Context, *kernel.Error) {
	log := kfmt.Logger{Module: "kmain", Sink: info.Log}

	pmm.PrintMemoryMap(kfmt.Logger{Module: "pmm", Sink: info.Log}, info.MemoryMap)

	boot, err := pmm.NewBootAllocator(info.Layout, info.MemoryMap)
	if err != nil {
		return nil, err
	}

	ctx := &Context{
		Mapping:  info.Mapping,
		Frames:   pmm.NewLockedAllocator(boot),
		mmioNext: info.MMIOBase,
	}
	if ctx.mmioNext == 0 {
		ctx.mmioNext = DefaultMMIOBase
	}

	if info.UseActivePDT {
		ctx.AddressSpace = vmm.ActiveAddressSpace(vmm.DefaultRecursiveSlot, ctx.Frames)
	} else if ctx.AddressSpace, err = vmm.CreateAddressSpace(info.Mapping, ctx.Frames, true); err != nil {
		return nil, err
	}

	// Frames handed out while the table is being built would be lost.
	ctx.Frames.Swap(pmm.PanickingAllocator{})
	if ctx.Table, err = boot.InitFrameTable(info.Mapping); err != nil {
		return nil, err
	}
	ctx.Frames.Swap(pmm.NewSlowAllocator(ctx.Table))

	stats := ctx.Table.Stats()
	log.Printf("boot allocator handed out %d frame(s)\n", boot.AllocCount())
	log.Printf("frames: %d total, %d reserved, %d allocated, %d free\n",
		stats.Total, stats.Reserved, stats.Allocated, stats.Free(),
	)

	detectHardware(ctx, &device.ProbeContext{
		Mapping:         info.Mapping,
		CmdLine:         info.CmdLine,
		ACPIRootPointer: info.ACPIRootPointer,
		BootCPU:         info.BootCPU,
	}, info.Log)

	if ctx.Topology == nil {
		log.Printf("no ACPI topology; assuming a single CPU\n")
		ctx.Topology = fallbackTopology(info.BootCPU)
	}
	if ctx.Topology.CPUs.BSP() == nil {
		return nil, errNoBootCPU
	}

	if err = ctx.mapInterruptControllers(info.ProbeIOAPICs); err != nil {
		return nil, err
	}

	tables := make([]irq.RedirectionTable, len(ctx.IOAPICs))
	for i, ioapic := range ctx.IOAPICs {
		tables[i] = redirectionTableFn(ioapic)
	}
	if ctx.IRQs, err = irq.NewRouter(ctx.Topology, tables); err != nil {
		return nil, err
	}

	ctx.Topology.Print(log.Writer())

	if info.ProbeIOAPICs {
		log.Printf("routed %d ISA IRQ(s) to vector 0x%x and up, masked\n", ctx.IRQs.RouteISA(), irq.ISABaseVector)
	}
	return ctx, nil
}

// detectHardware runs the probe function of every registered driver in
// detection order and initializes the drivers that claim their hardware.
func detectHardware(ctx *Context, probe *device.ProbeContext, sink io.Writer) {
	drivers := device.DriverList()
	sort.Sort(drivers)

	var (
		strBuf bytes.Buffer
		w      = kfmt.Logger{Sink: sink}.Writer()
	)

	for _, info := range drivers {
		drv := info.Probe(probe)
		if drv == nil {
			continue
		}

		strBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&strBuf, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		w.Prefix = strBuf.Bytes()

		if err := drv.DriverInit(w); err != nil {
			kfmt.Fprintf(w, "init failed: %s\n", err.Message)
			continue
		}

		kfmt.Fprintf(w, "initialized\n")
		onDriverInit(ctx, drv)
		ctx.Drivers = append(ctx.Drivers, drv)
	}
}

// onDriverInit collects the state exported by an initialized driver.
func onDriverInit(ctx *Context, drv device.Driver) {
	switch drvImpl := drv.(type) {
	case *acpi.Driver:
		if ctx.Topology == nil {
			ctx.Topology = drvImpl.Topology()
		}
	}
}

// fallbackTopology describes a uniprocessor machine with a single I/O APIC
// at its architectural default address.
func fallbackTopology(bootCPU uint8) *smp.Topology {
	topo := smp.NewTopology()
	topo.CPUs.Insert(smp.CPUInfo{APICID: bootCPU, IsBSP: true})
	topo.IOAPICs.Insert(smp.IOAPICInfo{
		Addr:          apic.DefaultIOAPICBase,
		MaxRedirCount: acpi.DefaultRedirectionEntries,
	})
	return topo
}

// mapInterruptControllers maps the local APIC page followed by one page per
// I/O APIC into the MMIO window. When probe is set, the I/O APIC entries of
// the topology are refined with the values read from their registers.
func (ctx *Context) mapInterruptControllers(probe bool) *kernel.Error {
	base, err := ctx.MapMMIO(ctx.Topology.LocalAPICAddr)
	if err != nil {
		return err
	}
	ctx.LocalAPIC = apic.NewLocalAPIC(base)

	ctx.IOAPICs = make([]apic.IOAPIC, 0, ctx.Topology.IOAPICs.Len())
	for i := 0; i < ctx.Topology.IOAPICs.Len(); i++ {
		entry := ctx.Topology.IOAPICs.At(i)

		if base, err = ctx.MapMMIO(entry.Addr); err != nil {
			return err
		}
		ioapic := apic.NewIOAPIC(base)
		ctx.IOAPICs = append(ctx.IOAPICs, ioapic)

		if probe {
			version, maxEntry := readIOAPICFn(ioapic)
			entry.Version = uint32(version)
			entry.MaxRedirCount = uint32(maxEntry) + 1
		}
	}

	return nil
}

// MapMMIO maps the page containing the device registers at addr into the
// next free page of the MMIO window with caching disabled. It returns the
// virtual address of addr.
func (ctx *Context) MapMMIO(addr mm.PhysAddr) (mm.VirtAddr, *kernel.Error) {
	page := ctx.mmioNext
	if err := ctx.AddressSpace.MapWithFlags(page, addr.AlignDown(mm.PageSize), vmm.PT, vmm.FlagNoCache|vmm.FlagWriteThrough); err != nil {
		return 0, err
	}

	ctx.mmioNext = page.Add(mm.PageSize)
	return page.Add(uintptr(addr) & (mm.PageSize - 1)), nil
}

func readIOAPIC(io apic.IOAPIC) (uint8, uint8) {
	return io.Version(), io.MaxRedirectionEntry()
}
