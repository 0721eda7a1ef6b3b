package acpigen

import (
	"fmt"
	"io"

	"learnos/device/acpi/table"
)

// CPU describes a processor entry of the MADT.
type CPU struct {
	ACPIID  uint8
	APICID  uint8
	Enabled bool
}

// IOAPICConfig describes an I/O APIC entry of the MADT.
type IOAPICConfig struct {
	ID      uint8
	Address uint32
	GSIBase uint32
}

// Override describes a MADT interrupt source override.
type Override struct {
	Bus   uint8
	IRQ   uint8
	GSI   uint32
	Flags table.INTIFlags
}

// Config controls how the tables are laid out in physical memory. All
// addresses are physical.
type Config struct {
	// TablesBase is where the system description tables are written.
	TablesBase uint64

	// RSDPBase is where the RSDP is written. It must be 16-byte aligned.
	RSDPBase uint64

	// Revision selects an ACPI 1.0 layout (RSDT only) when below 2 and an
	// ACPI 2.0 layout (XSDT and RSDT) otherwise.
	Revision uint8

	LAPICBase uint32

	// LAPICOverride emits a 64-bit local APIC address override when
	// non-zero.
	LAPICOverride uint64

	CPUs      []CPU
	IOAPICs   []IOAPICConfig
	Overrides []Override

	// PCAT sets the MADT flag reporting legacy 8259 PICs.
	PCAT bool

	OEM OEMInfo
}

func (c *Config) normalize() {
	if c.TablesBase == 0 {
		c.TablesBase = 0x000E_1000
	}
	if c.RSDPBase == 0 {
		c.RSDPBase = 0x000E_0000
	}
	if c.LAPICBase == 0 {
		c.LAPICBase = 0xFEE0_0000
	}
	if len(c.CPUs) == 0 {
		c.CPUs = []CPU{{ACPIID: 0, APICID: 0, Enabled: true}}
	}
	if len(c.IOAPICs) == 0 {
		c.IOAPICs = []IOAPICConfig{{ID: 0, Address: 0xFEC0_0000}}
	}
	if c.OEM == (OEMInfo{}) {
		c.OEM = DefaultOEMInfo()
	}
}

// Image holds the synthesized firmware tables.
type Image struct {
	Config Config

	// Tables holds the system description tables, to be placed at
	// Config.TablesBase.
	Tables []byte

	// RSDP holds the root pointer, to be placed at Config.RSDPBase.
	RSDP []byte

	// MADTAddr is the physical address of the MADT.
	MADTAddr uint64
}

// Build synthesizes a DSDT, a MADT, a FADT and the root tables described by
// cfg.
func Build(cfg Config) (*Image, error) {
	cfg.normalize()

	if cfg.RSDPBase%16 != 0 {
		return nil, fmt.Errorf("acpigen: RSDP base 0x%x is not 16-byte aligned", cfg.RSDPBase)
	}

	w := NewWriter(cfg.TablesBase, cfg.OEM)

	// An empty definition block is enough for consumers that only record
	// the DSDT.
	dsdtAddr := w.Append(table.DSDTSignature, 2, nil)

	var records [][]byte
	for _, cpu := range cfg.CPUs {
		records = append(records, LocalAPIC(cpu.ACPIID, cpu.APICID, cpu.Enabled))
	}
	for _, io := range cfg.IOAPICs {
		records = append(records, IOAPIC(io.ID, io.Address, io.GSIBase))
	}
	for _, ovr := range cfg.Overrides {
		records = append(records, InterruptOverride(ovr.Bus, ovr.IRQ, ovr.GSI, ovr.Flags))
	}
	records = append(records, NMI(table.AllProcessors, INTI(table.PolarityActiveHigh, table.TriggerEdge), 1))
	if cfg.LAPICOverride != 0 {
		records = append(records, LocalAPICOverride(cfg.LAPICOverride))
	}

	var flags uint32
	if cfg.PCAT {
		flags = 1
	}
	madtAddr := w.Append(table.MADTSignature, 3, MADTBody(cfg.LAPICBase, flags, records...))
	fadtAddr := w.Append(table.FADTSignature, 4, FADTBody(dsdtAddr, 9))

	if fadtAddr>>32 != 0 || madtAddr>>32 != 0 {
		return nil, fmt.Errorf("acpigen: tables at 0x%x do not fit 32-bit pointers", cfg.TablesBase)
	}

	rsdtAddr := w.Append(table.RSDTSignature, 1, RSDTBody(uint32(fadtAddr), uint32(madtAddr)))

	var xsdtAddr uint64
	if cfg.Revision >= 2 {
		xsdtAddr = w.Append(table.XSDTSignature, 1, XSDTBody(fadtAddr, madtAddr))
	}

	return &Image{
		Config:   cfg,
		Tables:   w.Bytes(),
		RSDP:     RSDP(cfg.Revision, uint32(rsdtAddr), xsdtAddr, cfg.OEM),
		MADTAddr: madtAddr,
	}, nil
}

// Install writes the image to physical memory exposed through mem, where
// offsets are physical addresses.
func (img *Image) Install(mem io.WriterAt) error {
	if _, err := mem.WriteAt(img.Tables, int64(img.Config.TablesBase)); err != nil {
		return fmt.Errorf("acpigen: write tables: %w", err)
	}
	if _, err := mem.WriteAt(img.RSDP, int64(img.Config.RSDPBase)); err != nil {
		return fmt.Errorf("acpigen: write RSDP: %w", err)
	}
	return nil
}
