package acpi

import (
	"io"

	"learnos/device"
	"learnos/kernel"
	"learnos/kernel/smp"
)

// Driver discovers the ACPI tables and the interrupt topology they
// describe.
type Driver struct {
	probe *device.ProbeContext
	root  *RootPointer

	tables   *Tables
	topology *smp.Topology
}

// DriverName returns the name of this driver.
func (*Driver) DriverName() string {
	return "ACPI"
}

// DriverVersion returns the version of this driver.
func (*Driver) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit enumerates the tables and parses the MADT.
func (drv *Driver) DriverInit(w io.Writer) *kernel.Error {
	tables, err := Enumerate(drv.probe.Mapping, drv.root, w)
	if err != nil {
		return err
	}
	tables.Print(w)

	madt, err := tables.MADT()
	if err != nil {
		return err
	}

	drv.tables = tables
	drv.topology = ParseTopology(madt, drv.probe.BootCPU)
	drv.topology.Print(w)
	return nil
}

// Tables returns the validated tables. It is nil until DriverInit succeeds.
func (drv *Driver) Tables() *Tables { return drv.tables }

// Topology returns the parsed topology. It is nil until DriverInit
// succeeds.
func (drv *Driver) Topology() *smp.Topology { return drv.topology }

// probeForACPI prefers the RSDP copy handed over by the boot loader and
// falls back to scanning the BIOS area. ACPI is skipped entirely when the
// command line contains acpi=off.
func probeForACPI(ctx *device.ProbeContext) device.Driver {
	if ctx.CmdLine["acpi"] == "off" {
		return nil
	}

	if ctx.ACPIRootPointer != nil {
		if rp, err := ParseRootPointer(ctx.ACPIRootPointer); err == nil {
			return &Driver{probe: ctx, root: rp}
		}
	}

	if rp, err := LocateRSDP(ctx.Mapping); err == nil {
		return &Driver{probe: ctx, root: rp}
	}

	return nil
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderACPI,
		Probe: probeForACPI,
	})
}
