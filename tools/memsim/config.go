package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"learnos/device/acpi/acpigen"
	"learnos/device/acpi/table"
	"learnos/multiboot"
)

// Size is a byte count that can be written in YAML either as an integer or
// as a string with a KiB, MiB or GiB suffix.
type Size uint64

// UnmarshalYAML implements yaml.Unmarshaler for Size.
func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := parseSize(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*s = parsed
	return nil
}

func parseSize(raw string) (Size, error) {
	raw = strings.TrimSpace(raw)

	mult := uint64(1)
	for _, unit := range []struct {
		suffix string
		mult   uint64
	}{
		{"KiB", 1 << 10},
		{"MiB", 1 << 20},
		{"GiB", 1 << 30},
	} {
		if strings.HasSuffix(raw, unit.suffix) {
			raw = strings.TrimSpace(strings.TrimSuffix(raw, unit.suffix))
			mult = unit.mult
			break
		}
	}

	v, err := strconv.ParseUint(raw, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", raw)
	}
	return Size(v * mult), nil
}

// RegionType is the YAML name of a multiboot memory type.
type RegionType string

func (t RegionType) entryType() (multiboot.MemoryEntryType, error) {
	switch t {
	case "available":
		return multiboot.MemAvailable, nil
	case "reserved", "":
		return multiboot.MemReserved, nil
	case "acpi":
		return multiboot.MemAcpiReclaimable, nil
	case "nvs":
		return multiboot.MemNvs, nil
	default:
		return 0, fmt.Errorf("unknown memory type %q", string(t))
	}
}

// Region is a memory map entry.
type Region struct {
	Start  Size       `yaml:"start"`
	Length Size       `yaml:"length"`
	Type   RegionType `yaml:"type"`
}

// KernelImage is the physical range occupied by the simulated kernel.
type KernelImage struct {
	Start Size `yaml:"start"`
	End   Size `yaml:"end"`
}

// CPU is a MADT processor entry.
type CPU struct {
	ACPIID  uint8 `yaml:"acpi_id"`
	APICID  uint8 `yaml:"apic_id"`
	Enabled bool  `yaml:"enabled"`
}

// IOAPIC is a MADT I/O APIC entry.
type IOAPIC struct {
	ID      uint8  `yaml:"id"`
	Address Size   `yaml:"address"`
	GSIBase uint32 `yaml:"gsi_base"`
}

// Override is a MADT interrupt source override.
type Override struct {
	Bus      uint8  `yaml:"bus"`
	IRQ      uint8  `yaml:"irq"`
	GSI      uint32 `yaml:"gsi"`
	Polarity string `yaml:"polarity"`
	Trigger  string `yaml:"trigger"`
}

func (o Override) flags() (table.INTIFlags, error) {
	var polarity, trigger uint8

	switch o.Polarity {
	case "", "bus":
		polarity = table.PolarityBusDefault
	case "active-high":
		polarity = table.PolarityActiveHigh
	case "active-low":
		polarity = table.PolarityActiveLow
	default:
		return 0, fmt.Errorf("irq %d: unknown polarity %q", o.IRQ, o.Polarity)
	}

	switch o.Trigger {
	case "", "bus":
		trigger = table.TriggerBusDefault
	case "edge":
		trigger = table.TriggerEdge
	case "level":
		trigger = table.TriggerLevel
	default:
		return 0, fmt.Errorf("irq %d: unknown trigger mode %q", o.IRQ, o.Trigger)
	}

	return acpigen.INTI(polarity, trigger), nil
}

// ACPI describes the firmware tables written into the BIOS area.
type ACPI struct {
	Disabled bool `yaml:"disabled"`

	// Revision selects the RSDP revision. Values below 2 produce ACPI 1.0
	// tables (RSDT only); 0 defaults to 2.
	Revision uint8 `yaml:"revision"`

	// BootLoaderCopy also passes the RSDP in the multiboot info block.
	BootLoaderCopy bool `yaml:"boot_loader_copy"`

	LocalAPIC         Size       `yaml:"local_apic"`
	LocalAPICOverride Size       `yaml:"local_apic_override"`
	PCAT              bool       `yaml:"pcat"`
	CPUs              []CPU      `yaml:"cpus"`
	IOAPICs           []IOAPIC   `yaml:"ioapics"`
	Overrides         []Override `yaml:"overrides"`
}

// Workload controls the allocation exercise run after boot.
type Workload struct {
	// Frames is the number of frames allocated across all workers.
	Frames uint64 `yaml:"frames"`

	// Workers is the number of concurrent allocators. It defaults to the
	// number of enabled CPUs.
	Workers int `yaml:"workers"`

	// Mappings is the number of allocated frames that are also mapped
	// into the kernel address space and resolved back.
	Mappings uint64 `yaml:"mappings"`
}

// Config is a machine description.
type Config struct {
	Memory    Size        `yaml:"memory"`
	MemoryMap []Region    `yaml:"memory_map"`
	Kernel    KernelImage `yaml:"kernel"`
	HeapStart Size        `yaml:"heap_start"`
	BootCPU   uint8       `yaml:"boot_cpu"`
	CmdLine   string      `yaml:"cmdline"`
	ACPI      ACPI        `yaml:"acpi"`
	Workload  Workload    `yaml:"workload"`
}

// LoadConfig reads a machine description from path.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	return DecodeConfig(f)
}

// DecodeConfig parses a machine description. Unknown fields are rejected.
func DecodeConfig(r io.Reader) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	if c.Memory == 0 {
		c.Memory = 64 << 20
	}
	if c.Kernel == (KernelImage{}) {
		c.Kernel = KernelImage{Start: 0x100000, End: 0x180000}
	}
	if c.HeapStart == 0 {
		c.HeapStart = (c.Kernel.End + 0xFFFFF) &^ 0xFFFFF
	}
	if len(c.MemoryMap) == 0 {
		c.MemoryMap = []Region{
			{Start: 0, Length: 0x9FC00, Type: "available"},
			{Start: 0x9FC00, Length: 0x60400, Type: "reserved"},
			{Start: 0x100000, Length: c.Memory - 0x100000, Type: "available"},
		}
	}
	if c.ACPI.Revision == 0 {
		c.ACPI.Revision = 2
	}
	if len(c.ACPI.CPUs) == 0 {
		c.ACPI.CPUs = []CPU{{ACPIID: 0, APICID: c.BootCPU, Enabled: true}}
	}
	if c.Workload == (Workload{}) {
		c.Workload = Workload{Frames: 1024, Mappings: 64}
	}
	if c.Workload.Workers == 0 {
		for _, cpu := range c.ACPI.CPUs {
			if cpu.Enabled {
				c.Workload.Workers++
			}
		}
	}
}

func (c *Config) validate() error {
	switch {
	case c.Memory < 1<<20:
		return fmt.Errorf("memory: at least 1MiB is required; got %d bytes", c.Memory)
	case c.Kernel.End <= c.Kernel.Start:
		return fmt.Errorf("kernel: end 0x%x is not above start 0x%x", c.Kernel.End, c.Kernel.Start)
	case c.HeapStart < c.Kernel.End:
		return fmt.Errorf("heap_start 0x%x is below the kernel end 0x%x", c.HeapStart, c.Kernel.End)
	case c.HeapStart > c.Memory:
		return fmt.Errorf("heap_start 0x%x is beyond the end of memory", c.HeapStart)
	case c.Workload.Workers < 1:
		return fmt.Errorf("workload: at least one worker is required")
	case c.Workload.Mappings > c.Workload.Frames:
		return fmt.Errorf("workload: cannot map %d of %d frames", c.Workload.Mappings, c.Workload.Frames)
	}

	for _, o := range c.ACPI.Overrides {
		if _, err := o.flags(); err != nil {
			return fmt.Errorf("acpi: %w", err)
		}
	}
	return nil
}

// firmware converts the ACPI section into a table builder configuration.
func (c *Config) firmware() acpigen.Config {
	fw := acpigen.Config{
		Revision:      c.ACPI.Revision,
		LAPICBase:     uint32(c.ACPI.LocalAPIC),
		LAPICOverride: uint64(c.ACPI.LocalAPICOverride),
		PCAT:          c.ACPI.PCAT,
	}

	for _, cpu := range c.ACPI.CPUs {
		fw.CPUs = append(fw.CPUs, acpigen.CPU{ACPIID: cpu.ACPIID, APICID: cpu.APICID, Enabled: cpu.Enabled})
	}
	for _, ioapic := range c.ACPI.IOAPICs {
		fw.IOAPICs = append(fw.IOAPICs, acpigen.IOAPICConfig{ID: ioapic.ID, Address: uint32(ioapic.Address), GSIBase: ioapic.GSIBase})
	}
	for _, o := range c.ACPI.Overrides {
		flags, _ := o.flags()
		fw.Overrides = append(fw.Overrides, acpigen.Override{Bus: o.Bus, IRQ: o.IRQ, GSI: o.GSI, Flags: flags})
	}

	return fw
}
