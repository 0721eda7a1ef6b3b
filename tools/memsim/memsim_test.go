package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unsafe"

	"learnos/kernel/apic"
	"learnos/kernel/mm"
	"learnos/kernel/mm/pmm"
	"learnos/multiboot"
)

const testMachine = `
memory: 16MiB
memory_map:
  - {start: 0x100000, length: 15MiB, type: available}
  - {start: 0, length: 0x9fc00, type: available}
  - {start: 0x9fc00, length: 0x400, type: reserved}
  - {start: 0xa0000, length: 0x60000, type: reserved}
  - {start: 0xfec00000, length: 4KiB, type: reserved}
kernel: {start: 0x100000, end: 0x180000}
heap_start: 0x200000
boot_cpu: 1
cmdline: "console=ttyS0"
acpi:
  revision: 2
  cpus:
    - {acpi_id: 0, apic_id: 0, enabled: true}
    - {acpi_id: 1, apic_id: 1, enabled: true}
    - {acpi_id: 2, apic_id: 2, enabled: false}
  ioapics:
    - {id: 4, address: 0xfec00000, gsi_base: 0}
  overrides:
    - {irq: 0, gsi: 2}
    - {irq: 9, gsi: 9, polarity: active-low, trigger: level}
workload:
  frames: 1000
  workers: 4
  mappings: 100
`

func TestParseSize(t *testing.T) {
	specs := []struct {
		input  string
		exp    Size
		expErr bool
	}{
		{"4096", 4096, false},
		{"0x9fc00", 0x9fc00, false},
		{"4KiB", 4096, false},
		{"15 MiB", 15 << 20, false},
		{"2GiB", 2 << 30, false},
		{"0x10MiB", 16 << 20, false},
		{"", 0, true},
		{"12MB", 0, true},
		{"-1", 0, true},
	}

	for specIndex, spec := range specs {
		got, err := parseSize(spec.input)
		if spec.expErr {
			if err == nil {
				t.Errorf("[spec %d] expected an error for %q; got %d", specIndex, spec.input, got)
			}
			continue
		}
		if err != nil || got != spec.exp {
			t.Errorf("[spec %d] expected %q to parse as %d; got %d, %v", specIndex, spec.input, spec.exp, got, err)
		}
	}
}

func TestDecodeConfig(t *testing.T) {
	cfg, err := DecodeConfig(strings.NewReader(testMachine))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Memory != 16<<20 || cfg.HeapStart != 0x200000 || cfg.BootCPU != 1 {
		t.Errorf("unexpected machine parameters: %+v", cfg)
	}
	if len(cfg.MemoryMap) != 5 || cfg.MemoryMap[0].Length != 15<<20 {
		t.Errorf("unexpected memory map: %+v", cfg.MemoryMap)
	}
	if len(cfg.ACPI.CPUs) != 3 || len(cfg.ACPI.IOAPICs) != 1 || cfg.ACPI.IOAPICs[0].Address != 0xfec00000 {
		t.Errorf("unexpected ACPI section: %+v", cfg.ACPI)
	}
	if cfg.Workload != (Workload{Frames: 1000, Workers: 4, Mappings: 100}) {
		t.Errorf("unexpected workload: %+v", cfg.Workload)
	}

	fw := cfg.firmware()
	if len(fw.Overrides) != 2 || fw.Overrides[1].Flags.Polarity() != 0b11 || fw.Overrides[1].Flags.TriggerMode() != 0b11 {
		t.Errorf("unexpected interrupt overrides: %+v", fw.Overrides)
	}
}

func TestDecodeConfigDefaults(t *testing.T) {
	cfg, err := DecodeConfig(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Memory != 64<<20 {
		t.Errorf("expected 64MiB of memory; got %d", cfg.Memory)
	}
	if len(cfg.MemoryMap) != 3 || cfg.MemoryMap[2].Length != 63<<20 {
		t.Errorf("expected the default PC memory map; got %+v", cfg.MemoryMap)
	}
	if cfg.HeapStart != 0x200000 {
		t.Errorf("expected the heap to start at the next MiB after the kernel; got 0x%x", uint64(cfg.HeapStart))
	}
	if cfg.ACPI.Revision != 2 || len(cfg.ACPI.CPUs) != 1 {
		t.Errorf("expected ACPI 2.0 tables with a single CPU; got %+v", cfg.ACPI)
	}
	if cfg.Workload != (Workload{Frames: 1024, Workers: 1, Mappings: 64}) {
		t.Errorf("unexpected default workload: %+v", cfg.Workload)
	}
}

func TestDecodeConfigErrors(t *testing.T) {
	specs := []struct {
		input  string
		expErr string
	}{
		{"memroy: 16MiB\n", "field memroy not found"},
		{"memory: lots\n", "invalid size"},
		{"memory: 512KiB\n", "at least 1MiB"},
		{"kernel: {start: 0x200000, end: 0x100000}\n", "not above start"},
		{"heap_start: 0x100000\n", "below the kernel end"},
		{"memory: 16MiB\nheap_start: 32MiB\n", "beyond the end of memory"},
		{"workload: {frames: 10, mappings: 20}\n", "cannot map"},
		{"acpi: {overrides: [{irq: 1, polarity: sideways}]}\n", "unknown polarity"},
		{"acpi: {overrides: [{irq: 1, trigger: pulse}]}\n", "unknown trigger mode"},
		{"acpi: {cpus: [{apic_id: 0, enabled: false}]}\n", "at least one worker"},
	}

	for specIndex, spec := range specs {
		_, err := DecodeConfig(strings.NewReader(spec.input))
		if err == nil || !strings.Contains(err.Error(), spec.expErr) {
			t.Errorf("[spec %d] expected error containing %q; got %v", specIndex, spec.expErr, err)
		}
	}
}

func TestNormalizeMemoryMap(t *testing.T) {
	entries, err := normalizeMemoryMap(8<<20, []Region{
		{Start: 0x200000, Length: 0x600000, Type: "available"},
		{Start: 0x100000, Length: 0x100000, Type: "available"},
		{Start: 0, Length: 0x9fc00, Type: "available"},
		{Start: 0x9fc00, Length: 0x400, Type: "reserved"},
		{Start: 0xa0000, Length: 0x60000},
		{Start: 0xfee00000, Length: 0x1000, Type: "nvs"},
		{Start: 0x900000, Length: 0},
	})
	if err != nil {
		t.Fatal(err)
	}

	exp := []multiboot.MemoryMapEntry{
		{PhysAddress: 0, Length: 0x9fc00, Type: multiboot.MemAvailable},
		{PhysAddress: 0x9fc00, Length: 0x60400, Type: multiboot.MemReserved},
		{PhysAddress: 0x100000, Length: 0x700000, Type: multiboot.MemAvailable},
		{PhysAddress: 0xfee00000, Length: 0x1000, Type: multiboot.MemNvs},
	}
	if len(entries) != len(exp) {
		t.Fatalf("expected %d entries; got %+v", len(exp), entries)
	}
	for i := range exp {
		if entries[i] != exp[i] {
			t.Errorf("[entry %d] expected %+v; got %+v", i, exp[i], entries[i])
		}
	}
}

func TestNormalizeMemoryMapErrors(t *testing.T) {
	specs := []struct {
		regions []Region
		expErr  string
	}{
		{
			[]Region{{Start: 0, Length: 0x2000, Type: "available"}, {Start: 0x1000, Length: 0x1000, Type: "reserved"}},
			"overlaps",
		},
		{
			[]Region{{Start: 0x1000, Length: 0x1000, Type: "reserved"}, {Start: 0, Length: 0x1001, Type: "available"}},
			"overlaps",
		},
		{
			[]Region{{Start: 0x1000, Length: 0x1000}, {Start: 0x1000, Length: 0x10}},
			"overlaps",
		},
		{
			[]Region{{Start: 0, Length: 2 << 20, Type: "available"}},
			"beyond the",
		},
		{
			[]Region{{Start: 0xFFFF_FFFF_FFFF_F000, Length: 0x2000}},
			"wraps around",
		},
		{
			[]Region{{Start: 0, Length: 0x1000, Type: "rom"}},
			"unknown memory type",
		},
	}

	for specIndex, spec := range specs {
		_, err := normalizeMemoryMap(1<<20, spec.regions)
		if err == nil || !strings.Contains(err.Error(), spec.expErr) {
			t.Errorf("[spec %d] expected error containing %q; got %v", specIndex, spec.expErr, err)
		}
	}
}

func TestBoot(t *testing.T) {
	cfg, err := DecodeConfig(strings.NewReader(testMachine))
	if err != nil {
		t.Fatal(err)
	}

	var log bytes.Buffer
	m, err := boot(cfg, &log)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = m.Close() }()

	topo := m.kctx.Topology
	if topo.CPUs.Len() != 2 {
		t.Errorf("expected 2 enabled CPUs; got %d", topo.CPUs.Len())
	}
	if bsp := topo.CPUs.BSP(); bsp == nil || bsp.APICID != 1 {
		t.Errorf("expected APIC id 1 to be the BSP; got %+v", bsp)
	}
	if io := topo.IOAPICs.ByGSI(9); io == nil || io.ID != 4 {
		t.Errorf("expected I/O APIC 4 to handle gsi 9; got %+v", io)
	}
	if irq := topo.ISAIRQs.At(9); irq.Polarity != apic.ActiveLow || irq.TriggerMode != apic.LevelTriggered {
		t.Errorf("expected irq 9 to be active-low and level-triggered; got %+v", *irq)
	}

	for _, exp := range []string{
		"[pmm] system memory map:\n",
		"[hal] ACPI(0.1.0): initialized\n",
		"[kmain] local APIC at 0xfee00000, 2 CPU(s), 1 I/O APIC(s)\n",
	} {
		if !strings.Contains(log.String(), exp) {
			t.Errorf("expected boot log to contain %q; got:\n%s", exp, log.String())
		}
	}
}

func TestBootWithBootLoaderRSDP(t *testing.T) {
	cfg, err := DecodeConfig(strings.NewReader("memory: 8MiB\nacpi: {revision: 1, boot_loader_copy: true}\n"))
	if err != nil {
		t.Fatal(err)
	}

	m, err := boot(cfg, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = m.Close() }()

	if len(m.kctx.Drivers) != 1 {
		t.Fatalf("expected the ACPI driver to be active; got %v", m.kctx.Drivers)
	}

	// The info block sits at the heap start and must survive the frame
	// table setup.
	infoFrame := mm.FrameFromAddress(mm.PhysAddr(cfg.HeapStart))
	if got := m.kctx.Table.State(infoFrame); got != pmm.Allocated {
		t.Errorf("expected the info block frame to be allocated; got %s", got)
	}
	ptr, size := multiboot.ACPIRSDP()
	if size == 0 || string(unsafe.Slice((*byte)(unsafe.Pointer(ptr)), 8)) != "RSD PTR " {
		t.Errorf("expected the RSDP copy to be intact")
	}
}

func TestBootWithoutACPI(t *testing.T) {
	cfg, err := DecodeConfig(strings.NewReader("memory: 8MiB\nboot_cpu: 2\nacpi: {disabled: true}\n"))
	if err != nil {
		t.Fatal(err)
	}

	var log bytes.Buffer
	m, err := boot(cfg, &log)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = m.Close() }()

	if len(m.kctx.Drivers) != 0 {
		t.Errorf("expected no active drivers; got %v", m.kctx.Drivers)
	}
	if bsp := m.kctx.Topology.CPUs.BSP(); bsp == nil || bsp.APICID != 2 {
		t.Errorf("expected the boot CPU to be the BSP; got %+v", bsp)
	}
	if !strings.Contains(log.String(), "no ACPI topology") {
		t.Errorf("expected the fallback topology to be reported; got:\n%s", log.String())
	}
}

func TestBootErrors(t *testing.T) {
	specs := []struct {
		input  string
		expErr string
	}{
		{"memory: 4MiB\nmemory_map: [{start: 0, length: 3MiB, type: available}, {start: 2MiB, length: 1MiB}]\n", "overlaps"},
		{"memory: 4MiB\nmemory_map: [{start: 0, length: 0x100000, type: available}]\n", "kernel init"},
		{"memory: 4MiB\nboot_cpu: 3\nacpi: {cpus: [{apic_id: 0, enabled: true}]}\n", "boot CPU"},
	}

	for specIndex, spec := range specs {
		cfg, err := DecodeConfig(strings.NewReader(spec.input))
		if err != nil {
			t.Fatalf("[spec %d] %v", specIndex, err)
		}

		m, err := boot(cfg, io.Discard)
		if err == nil {
			_ = m.Close()
		}
		if err == nil || !strings.Contains(err.Error(), spec.expErr) {
			t.Errorf("[spec %d] expected error containing %q; got %v", specIndex, spec.expErr, err)
		}
	}
}

func TestRunWorkload(t *testing.T) {
	cfg, err := DecodeConfig(strings.NewReader(testMachine))
	if err != nil {
		t.Fatal(err)
	}

	m, err := boot(cfg, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = m.Close() }()

	rep, err := m.runWorkload(cfg.Workload, newProgressBar(io.Discard, int64(cfg.Workload.Frames), false))
	if err != nil {
		t.Fatal(err)
	}

	if rep.Allocated != 1000 || rep.Mapped != 100 {
		t.Errorf("expected 1000 frames allocated and 100 mapped; got %+v", rep)
	}
	// A PDPT, a PD and a PT cover the workload window.
	if rep.PageTables != 3 {
		t.Errorf("expected 3 page tables; got %d", rep.PageTables)
	}
	if rep.FreeAfter != rep.FreeBefore-rep.PageTables {
		t.Errorf("expected every workload frame to be released; got %+v", rep)
	}
}

func TestRunWorkloadOutOfMemory(t *testing.T) {
	cfg, err := DecodeConfig(strings.NewReader("memory: 4MiB\nworkload: {frames: 4096, workers: 2}\n"))
	if err != nil {
		t.Fatal(err)
	}

	m, err := boot(cfg, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = m.Close() }()

	before, _ := m.kctx.Frames.Stats()
	if _, err = m.runWorkload(cfg.Workload, newProgressBar(io.Discard, 4096, false)); err == nil || !strings.Contains(err.Error(), "out of memory") {
		t.Fatalf("expected an out of memory error; got %v", err)
	}

	if after, _ := m.kctx.Frames.Stats(); after != before {
		t.Fatalf("expected all frames to be released after a failed workload; got %+v, want %+v", after, before)
	}
}

func TestRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machine.yaml")
	if err := os.WriteFile(path, []byte(testMachine), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if err := run([]string{"-config", path, "-workers", "3", "-quiet"}, &stdout, &stderr); err != nil {
		t.Fatalf("%v\n%s", err, stderr.String())
	}

	exp := "[memsim] workload: 3 workers allocated 1000 frames, 100 mapped and resolved, 3 page tables\n"
	if !strings.Contains(stdout.String(), exp) {
		t.Errorf("expected output to contain %q; got:\n%s", exp, stdout.String())
	}
	if strings.Contains(stdout.String(), "[hal]") {
		t.Errorf("expected the boot log to be suppressed; got:\n%s", stdout.String())
	}

	if err := run([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}, &stdout, &stderr); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
