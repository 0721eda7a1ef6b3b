package acpi

import (
	"learnos/device/acpi/table"
	"learnos/kernel/apic"
	"learnos/kernel/mm"
	"learnos/kernel/smp"
)

// DefaultRedirectionEntries is the number of interrupt inputs assumed for an
// I/O APIC until its version register has been read.
const DefaultRedirectionEntries = 24

// ParseTopology builds the interrupt topology described by madt. Only
// enabled processors are recorded; the one whose local APIC id equals
// bootAPICID is marked as the bootstrap processor. Interrupt source
// overrides for the ISA bus replace the default identity routing.
func ParseTopology(madt *table.MADT, bootAPICID uint8) *smp.Topology {
	topo := smp.NewTopology()
	topo.LocalAPICAddr = mm.PhysAddr(madt.LocalAPICAddr())

	for it := madt.Entries(); ; {
		entry, ok := it.Next()
		if !ok {
			break
		}

		switch entry.Type {
		case table.MADTEntryTypeLocalAPIC:
			lapic, _ := entry.LocalAPIC()
			if !lapic.Enabled() {
				continue
			}

			topo.CPUs.Insert(smp.CPUInfo{
				ACPIID: lapic.ProcessorID,
				APICID: lapic.APICID,
				IsBSP:  lapic.APICID == bootAPICID,
			})
		case table.MADTEntryTypeIOAPIC:
			io, _ := entry.IOAPIC()
			topo.IOAPICs.Insert(smp.IOAPICInfo{
				ID:            io.APICID,
				Addr:          mm.PhysAddr(io.Address),
				IRQBase:       io.SysInterruptBase,
				MaxRedirCount: DefaultRedirectionEntries,
			})
		case table.MADTEntryTypeIntSrcOverride:
			ovr, _ := entry.InterruptOverride()
			if ovr.BusSrc != 0 || int(ovr.IRQSrc) >= smp.MaxISAIRQCount {
				continue
			}

			info := topo.ISAIRQs.At(ovr.IRQSrc)
			info.GSI = ovr.GlobalInterrupt
			info.Polarity = overridePolarity(ovr.Flags, info.Polarity)
			info.TriggerMode = overrideTrigger(ovr.Flags, info.TriggerMode)
		}
	}

	return topo
}

// overridePolarity maps the INTI polarity field; the bus default keeps
// the current value.
func overridePolarity(flags table.INTIFlags, current apic.Polarity) apic.Polarity {
	switch flags.Polarity() {
	case table.PolarityActiveHigh:
		return apic.ActiveHigh
	case table.PolarityActiveLow:
		return apic.ActiveLow
	default:
		return current
	}
}

// overrideTrigger maps the INTI trigger mode field; the bus default keeps
// the current value.
func overrideTrigger(flags table.INTIFlags, current apic.TriggerMode) apic.TriggerMode {
	switch flags.TriggerMode() {
	case table.TriggerEdge:
		return apic.EdgeTriggered
	case table.TriggerLevel:
		return apic.LevelTriggered
	default:
		return current
	}
}
