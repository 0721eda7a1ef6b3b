// Package smp keeps track of the processors, I/O APICs and ISA interrupt
// routing discovered in the firmware tables.
package smp

import (
	"io"

	"learnos/kernel"
	"learnos/kernel/apic"
	"learnos/kernel/kfmt"
	"learnos/kernel/mm"
)

// Architectural limits.
const (
	MaxCPUCount    = 256
	MaxIOAPICCount = 256
	MaxISAIRQCount = 32
)

var (
	errTableFull  = &kernel.Error{Module: "smp", Message: "too many table entries"}
	errOutOfRange = &kernel.Error{Module: "smp", Message: "table index out of range"}
)

// CPUInfo describes a processor.
type CPUInfo struct {
	ACPIID uint8
	APICID uint8
	IsBSP  bool
}

// IOAPICInfo describes an I/O APIC.
type IOAPICInfo struct {
	ID uint8

	// Addr is the physical address of the register window.
	Addr mm.PhysAddr

	// IRQBase is the first global system interrupt routed to this
	// I/O APIC.
	IRQBase uint32

	// MaxRedirCount is the number of interrupt inputs.
	MaxRedirCount uint32

	Version uint32
}

// HandlesGSI returns true if gsi is one of the inputs of the I/O APIC.
func (info *IOAPICInfo) HandlesGSI(gsi uint32) bool {
	return gsi >= info.IRQBase && gsi-info.IRQBase < info.MaxRedirCount
}

// IRQInfo describes how an ISA IRQ is wired to the I/O APICs.
type IRQInfo struct {
	GSI         uint32
	Polarity    apic.Polarity
	TriggerMode apic.TriggerMode
}

// infoTable is a fixed-capacity append-only table.
type infoTable[T any] struct {
	entries []T
	count   int
}

func (t *infoTable[T]) init(capacity int) {
	if t.entries == nil {
		t.entries = make([]T, capacity)
	}
}

// Insert appends entry and returns its index. It panics when the table is
// full.
func (t *infoTable[T]) Insert(entry T) int {
	if t.count == len(t.entries) {
		panic(errTableFull)
	}
	t.entries[t.count] = entry
	t.count++
	return t.count - 1
}

// Len returns the number of entries.
func (t *infoTable[T]) Len() int { return t.count }

// At returns a pointer to entry i. It panics if i is out of range.
func (t *infoTable[T]) At(i int) *T {
	if i < 0 || i >= t.count {
		panic(errOutOfRange)
	}
	return &t.entries[i]
}

// Visit calls visitor for each entry until it returns false.
func (t *infoTable[T]) Visit(visitor func(*T) bool) {
	for i := 0; i < t.count; i++ {
		if !visitor(&t.entries[i]) {
			return
		}
	}
}

func (t *infoTable[T]) find(match func(*T) bool) *T {
	var found *T
	t.Visit(func(e *T) bool {
		if match(e) {
			found = e
			return false
		}
		return true
	})
	return found
}

// CPUTable holds up to MaxCPUCount processors.
type CPUTable struct {
	infoTable[CPUInfo]
}

// NewCPUTable returns an empty CPU table.
func NewCPUTable() *CPUTable {
	t := &CPUTable{}
	t.init(MaxCPUCount)
	return t
}

// ByAPICID returns the CPU with the given local APIC id or nil.
func (t *CPUTable) ByAPICID(id uint8) *CPUInfo {
	return t.find(func(c *CPUInfo) bool { return c.APICID == id })
}

// ByACPIID returns the CPU with the given ACPI processor id or nil.
func (t *CPUTable) ByACPIID(id uint8) *CPUInfo {
	return t.find(func(c *CPUInfo) bool { return c.ACPIID == id })
}

// BSP returns the bootstrap processor or nil if it has not been recorded.
func (t *CPUTable) BSP() *CPUInfo {
	return t.find(func(c *CPUInfo) bool { return c.IsBSP })
}

// VisitAPs calls visitor for each application processor until it returns
// false.
func (t *CPUTable) VisitAPs(visitor func(*CPUInfo) bool) {
	t.Visit(func(c *CPUInfo) bool {
		if c.IsBSP {
			return true
		}
		return visitor(c)
	})
}

// IOAPICTable holds up to MaxIOAPICCount I/O APICs.
type IOAPICTable struct {
	infoTable[IOAPICInfo]
}

// NewIOAPICTable returns an empty I/O APIC table.
func NewIOAPICTable() *IOAPICTable {
	t := &IOAPICTable{}
	t.init(MaxIOAPICCount)
	return t
}

// ByID returns the I/O APIC with the given id or nil.
func (t *IOAPICTable) ByID(id uint8) *IOAPICInfo {
	return t.find(func(io *IOAPICInfo) bool { return io.ID == id })
}

// ByGSI returns the I/O APIC receiving gsi or nil.
func (t *IOAPICTable) ByGSI(gsi uint32) *IOAPICInfo {
	return t.find(func(io *IOAPICInfo) bool { return io.HandlesGSI(gsi) })
}

// ISAIRQTable maps the legacy ISA IRQs to global system interrupts.
type ISAIRQTable [MaxISAIRQCount]IRQInfo

// NewISAIRQTable returns a table where each IRQ is identity mapped,
// active-high and edge-triggered as on the ISA bus.
func NewISAIRQTable() *ISAIRQTable {
	t := &ISAIRQTable{}
	for irq := range t {
		t[irq] = IRQInfo{GSI: uint32(irq), Polarity: apic.ActiveHigh, TriggerMode: apic.EdgeTriggered}
	}
	return t
}

// At returns the routing of irq. It panics if irq is not an ISA IRQ.
func (t *ISAIRQTable) At(irq uint8) *IRQInfo {
	if int(irq) >= len(t) {
		panic(errOutOfRange)
	}
	return &t[irq]
}

// Set replaces the routing of irq.
func (t *ISAIRQTable) Set(irq uint8, info IRQInfo) {
	*t.At(irq) = info
}

// Topology bundles the interrupt topology of the machine.
type Topology struct {
	CPUs    *CPUTable
	IOAPICs *IOAPICTable
	ISAIRQs *ISAIRQTable

	// LocalAPICAddr is the physical address of the local APIC registers
	// shared by all processors.
	LocalAPICAddr mm.PhysAddr
}

// NewTopology returns an empty topology with default ISA routing.
func NewTopology() *Topology {
	return &Topology{
		CPUs:          NewCPUTable(),
		IOAPICs:       NewIOAPICTable(),
		ISAIRQs:       NewISAIRQTable(),
		LocalAPICAddr: apic.DefaultLocalAPICBase,
	}
}

// Print writes a summary of the topology to w.
func (t *Topology) Print(w io.Writer) {
	kfmt.Fprintf(w, "local APIC at 0x%x, %d CPU(s), %d I/O APIC(s)\n", uintptr(t.LocalAPICAddr), t.CPUs.Len(), t.IOAPICs.Len())

	t.CPUs.Visit(func(c *CPUInfo) bool {
		role := "AP"
		if c.IsBSP {
			role = "BSP"
		}
		kfmt.Fprintf(w, "  cpu: acpi id %3d, apic id %3d (%s)\n", c.ACPIID, c.APICID, role)
		return true
	})

	t.IOAPICs.Visit(func(io *IOAPICInfo) bool {
		kfmt.Fprintf(w, "  ioapic: id %3d at 0x%x, gsi %d-%d\n", io.ID, uintptr(io.Addr), io.IRQBase, io.IRQBase+io.MaxRedirCount-1)
		return true
	})

	for irq, info := range t.ISAIRQs {
		if info.GSI == uint32(irq) && info.Polarity == apic.ActiveHigh && info.TriggerMode == apic.EdgeTriggered {
			continue
		}
		kfmt.Fprintf(w, "  irq %d -> gsi %d, %s, %s\n", irq, info.GSI, info.Polarity.String(), info.TriggerMode.String())
	}
}
