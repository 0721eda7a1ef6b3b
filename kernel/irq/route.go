// Package irq routes the legacy ISA interrupts through the I/O APICs
// discovered at boot.
package irq

import (
	"learnos/kernel"
	"learnos/kernel/apic"
	"learnos/kernel/smp"
)

// ISABaseVector is the CPU vector that ISA IRQ 0 is delivered on. Vectors
// below it are reserved for exceptions.
const ISABaseVector = 0x20

var (
	errNoIOAPIC       = &kernel.Error{Module: "irq", Message: "no I/O APIC receives the interrupt"}
	errIRQOutOfRange  = &kernel.Error{Module: "irq", Message: "not an ISA IRQ"}
	errTableMismatch  = &kernel.Error{Module: "irq", Message: "redirection table count does not match the topology"}
	errNoBootCPUEntry = &kernel.Error{Module: "irq", Message: "topology does not list the boot CPU"}
)

// RedirectionTable is implemented by the I/O APIC register accessors.
type RedirectionTable interface {
	RedirectionEntry(i uint8) apic.RedirectionEntry
	SetRedirectionEntry(i uint8, e apic.RedirectionEntry)
}

// Router programs the redirection entries of the ISA IRQs. All interrupts
// are delivered to the boot CPU in physical destination mode.
type Router struct {
	topo   *smp.Topology
	tables []RedirectionTable
	dest   uint8
}

// NewRouter returns a router for topo. tables holds one redirection table
// per topology I/O APIC, in the same order.
func NewRouter(topo *smp.Topology, tables []RedirectionTable) (*Router, *kernel.Error) {
	if len(tables) != topo.IOAPICs.Len() {
		return nil, errTableMismatch
	}

	bsp := topo.CPUs.BSP()
	if bsp == nil {
		return nil, errNoBootCPUEntry
	}

	return &Router{topo: topo, tables: tables, dest: bsp.APICID}, nil
}

// Vector returns the CPU vector assigned to irq.
func Vector(irq uint8) uint8 {
	return ISABaseVector + irq
}

// lookup returns the redirection table and pin that receive irq.
func (r *Router) lookup(irq uint8) (RedirectionTable, uint8, *smp.IRQInfo, *kernel.Error) {
	if int(irq) >= smp.MaxISAIRQCount {
		return nil, 0, nil, errIRQOutOfRange
	}

	info := r.topo.ISAIRQs.At(irq)
	for i := 0; i < r.topo.IOAPICs.Len(); i++ {
		ioapic := r.topo.IOAPICs.At(i)
		if ioapic.HandlesGSI(info.GSI) {
			return r.tables[i], uint8(info.GSI - ioapic.IRQBase), info, nil
		}
	}

	return nil, 0, nil, errNoIOAPIC
}

// Entry returns the redirection entry that delivers irq to the boot CPU.
func (r *Router) Entry(irq uint8, masked bool) (apic.RedirectionEntry, *kernel.Error) {
	_, _, info, err := r.lookup(irq)
	if err != nil {
		return 0, err
	}
	return r.entry(irq, info, masked), nil
}

func (r *Router) entry(irq uint8, info *smp.IRQInfo, masked bool) apic.RedirectionEntry {
	return apic.RedirectionEntry(0).
		WithVector(Vector(irq)).
		WithDeliveryMode(apic.DeliveryFixed).
		WithDestinationMode(apic.PhysicalDestination).
		WithPolarity(info.Polarity).
		WithTriggerMode(info.TriggerMode).
		WithMasked(masked).
		WithDestination(r.dest)
}

// Route programs the redirection entry of irq. The entry starts out masked
// when masked is set.
func (r *Router) Route(irq uint8, masked bool) *kernel.Error {
	table, pin, info, err := r.lookup(irq)
	if err != nil {
		return err
	}

	table.SetRedirectionEntry(pin, r.entry(irq, info, masked))
	return nil
}

// RouteISA programs a masked entry for every ISA IRQ that reaches an I/O
// APIC and returns the number of entries written. IRQs whose GSI is not
// wired to any I/O APIC are skipped, as are identity mapped IRQs whose GSI
// has been claimed by an overridden IRQ.
func (r *Router) RouteISA() int {
	var routed int
	for irq := 0; irq < smp.MaxISAIRQCount; irq++ {
		if r.claimed(uint8(irq)) {
			continue
		}
		if r.Route(uint8(irq), true) == nil {
			routed++
		}
	}
	return routed
}

// claimed returns true if irq is identity mapped and another IRQ has been
// redirected to the same GSI.
func (r *Router) claimed(irq uint8) bool {
	gsi := r.topo.ISAIRQs.At(irq).GSI
	if gsi != uint32(irq) {
		return false
	}

	for other, info := range r.topo.ISAIRQs {
		if uint8(other) != irq && info.GSI == gsi {
			return true
		}
	}
	return false
}

// Mask disables delivery of irq.
func (r *Router) Mask(irq uint8) *kernel.Error {
	return r.setMasked(irq, true)
}

// Unmask enables delivery of irq.
func (r *Router) Unmask(irq uint8) *kernel.Error {
	return r.setMasked(irq, false)
}

func (r *Router) setMasked(irq uint8, masked bool) *kernel.Error {
	table, pin, _, err := r.lookup(irq)
	if err != nil {
		return err
	}

	table.SetRedirectionEntry(pin, table.RedirectionEntry(pin).WithMasked(masked))
	return nil
}
