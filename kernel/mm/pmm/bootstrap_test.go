package pmm

import (
	"testing"

	"learnos/internal/hostmem"
	"learnos/kernel/mm"
)

func testMemoryMap() []MemoryRegion {
	return []MemoryRegion{
		// Listed out of order to exercise sorting.
		{Range: mm.PhysRange{Start: 0x100000, Size: 0x100000}, Available: true},
		{Range: mm.PhysRange{Start: 0, Size: 0x9fc00}, Available: true},
		{Range: mm.PhysRange{Start: 0x9fc00, Size: 0x400}},
		{Range: mm.PhysRange{Start: 0xf0000, Size: 0x10000}},
	}
}

func TestInitFrameTable(t *testing.T) {
	arena, err := hostmem.New(2 * uintptr(mm.Mb))
	if err != nil {
		t.Fatal(err)
	}
	defer arena.Close()

	layout := Layout{
		KernelImage: mm.PhysRange{Start: 0x100000, Size: 0x20000},
		HeapStart:   0x120800,
	}

	table, kerr := InitFrameTable(layout, testMemoryMap(), arena.Mapping())
	if kerr != nil {
		t.Fatal(kerr)
	}

	if got := table.Len(); got != 512 {
		t.Fatalf("expected table to track 512 frames; got %d", got)
	}

	specs := []struct {
		region mm.FrameRegion
		exp    FrameState
	}{
		// available, below the heap start
		{mm.FrameRegion{Start: 0, End: 159}, Allocated},
		// memory map hole and reserved entries
		{mm.FrameRegion{Start: 159, End: 256}, Reserved},
		// kernel image and early heap
		{mm.FrameRegion{Start: 256, End: 289}, Allocated},
		// the frame table itself
		{mm.FrameRegion{Start: 289, End: 290}, Allocated},
		{mm.FrameRegion{Start: 290, End: 512}, Free},
	}

	for specIndex, spec := range specs {
		for f := spec.region.Start; f < spec.region.End; f++ {
			if got := table.State(f); got != spec.exp {
				t.Fatalf("[spec %d] expected frame %d to be %s; got %s", specIndex, f, spec.exp, got)
			}
		}
	}

	stats := table.Stats()
	if stats.Total != 512 || stats.Reserved != 97 || stats.Allocated != 193 || stats.Free() != 222 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	// The table lives in simulated physical memory at frame 289.
	raw := arena.Phys(mm.FrameRegion{Start: 289, End: 290}.PhysRange())
	if FrameState(raw[200]) != Reserved || FrameState(raw[300]) != Free {
		t.Fatalf("expected the frame table to be stored at frame 289")
	}

	// A slow allocator over the table hands out the first free frame.
	if frame, _ := NewSlowAllocator(table).AllocFrame(); frame != 290 {
		t.Fatalf("expected first free frame to be 290; got %d", frame)
	}
}

func TestInitFrameTableOverlappingReserved(t *testing.T) {
	arena, err := hostmem.New(2 * uintptr(mm.Mb))
	if err != nil {
		t.Fatal(err)
	}
	defer arena.Close()

	memMap := []MemoryRegion{
		{Range: mm.PhysRange{Start: 0x100000, Size: 0x100000}, Available: true},
		// firmware data at the top of available memory
		{Range: mm.PhysRange{Start: 0x1f0000, Size: 0x10000}},
		// an unaligned entry touching two frames
		{Range: mm.PhysRange{Start: 0x140800, Size: 0x1000}},
	}
	layout := Layout{
		KernelImage: mm.PhysRange{Start: 0x100000, Size: 0x10000},
		HeapStart:   0x110000,
	}

	table, kerr := InitFrameTable(layout, memMap, arena.Mapping())
	if kerr != nil {
		t.Fatal(kerr)
	}

	specs := []struct {
		region mm.FrameRegion
		exp    FrameState
	}{
		{mm.FrameRegion{Start: 0, End: 256}, Reserved},
		// kernel image followed by the frame table
		{mm.FrameRegion{Start: 256, End: 273}, Allocated},
		{mm.FrameRegion{Start: 273, End: 320}, Free},
		{mm.FrameRegion{Start: 320, End: 322}, Reserved},
		{mm.FrameRegion{Start: 322, End: 496}, Free},
		{mm.FrameRegion{Start: 496, End: 512}, Reserved},
	}

	for specIndex, spec := range specs {
		for f := spec.region.Start; f < spec.region.End; f++ {
			if got := table.State(f); got != spec.exp {
				t.Fatalf("[spec %d] expected frame %d to be %s; got %s", specIndex, f, spec.exp, got)
			}
		}
	}

	stats := table.Stats()
	if stats.Total != 512 || stats.Reserved != 274 || stats.Allocated != 17 || stats.Free() != 221 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	// The first run of 48 free frames starts after the unaligned entry.
	alloc := NewSlowAllocator(table)
	if region, _ := alloc.AllocRegion(48); region.Start != 322 {
		t.Fatalf("expected region to start at frame 322; got %d", region.Start)
	}

	for {
		frame, err := alloc.AllocFrame()
		if err != nil {
			break
		}
		if frame == 320 || frame == 321 || frame >= 496 {
			t.Fatalf("reserved frame %d handed out", frame)
		}
	}
}

func TestBootAllocator(t *testing.T) {
	arena, err := hostmem.New(2 * uintptr(mm.Mb))
	if err != nil {
		t.Fatal(err)
	}
	defer arena.Close()

	layout := Layout{
		KernelImage:   mm.PhysRange{Start: 0x100000, Size: 0x20000},
		MultibootInfo: mm.PhysRange{Start: 0x120000, Size: 0x1800},
		BootMemory:    mm.PhysRange{Start: 0x123000, Size: 0x1000},
		HeapStart:     0x120000,
	}

	info := arena.Phys(layout.MultibootInfo)
	copy(info, "RSD PTR ")
	info[len(info)-1] = 0xaa

	boot, kerr := NewBootAllocator(layout, testMemoryMap())
	if kerr != nil {
		t.Fatal(kerr)
	}

	// Boot loader data and the boot memory are skipped.
	for specIndex, exp := range []mm.Frame{290, 292} {
		if frame, _ := boot.AllocFrame(); frame != exp {
			t.Errorf("[spec %d] expected frame %d; got %d", specIndex, exp, frame)
		}
	}
	if region, _ := boot.AllocRegion(2); region.Start != 293 {
		t.Fatalf("expected region to start at frame 293; got %d", region.Start)
	}

	table, kerr := boot.InitFrameTable(arena.Mapping())
	if kerr != nil {
		t.Fatal(kerr)
	}

	if got := boot.AllocCount(); got != 5 {
		t.Fatalf("expected 5 frames to be handed out; got %d", got)
	}
	if _, err := boot.AllocFrame(); err != ErrOutOfMemory {
		t.Fatalf("expected the boot allocator to be exhausted after the handover; got %v", err)
	}

	specs := []struct {
		region mm.FrameRegion
		exp    FrameState
	}{
		{mm.FrameRegion{Start: 0, End: 159}, Allocated},
		{mm.FrameRegion{Start: 159, End: 256}, Reserved},
		// kernel image, boot loader data, boot allocations and the table
		{mm.FrameRegion{Start: 256, End: 296}, Allocated},
		{mm.FrameRegion{Start: 296, End: 512}, Free},
	}

	for specIndex, spec := range specs {
		for f := spec.region.Start; f < spec.region.End; f++ {
			if got := table.State(f); got != spec.exp {
				t.Fatalf("[spec %d] expected frame %d to be %s; got %s", specIndex, f, spec.exp, got)
			}
		}
	}

	stats := table.Stats()
	if stats.Reserved != 97 || stats.Allocated != 199 || stats.Free() != 216 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if string(info[:8]) != "RSD PTR " || info[len(info)-1] != 0xaa {
		t.Fatal("expected the boot loader data to be left untouched")
	}
}

func TestInitFrameTableErrors(t *testing.T) {
	t.Run("no space for table", func(t *testing.T) {
		memMap := []MemoryRegion{{Range: mm.PhysRange{Start: 0, Size: 0x9fc00}, Available: true}}
		layout := Layout{HeapStart: 0x9f000}

		if _, err := InitFrameTable(layout, memMap, mm.DirectMapping{}); err != ErrNoSpaceForFrameTable {
			t.Fatalf("expected ErrNoSpaceForFrameTable; got %v", err)
		}
	})

	t.Run("too many regions", func(t *testing.T) {
		memMap := make([]MemoryRegion, maxMemoryRegions+1)
		for i := range memMap {
			memMap[i] = MemoryRegion{
				Range:     mm.PhysRange{Start: mm.PhysAddr(uintptr(2*i) * mm.PageSize), Size: mm.PageSize},
				Available: true,
			}
		}

		if _, err := InitFrameTable(Layout{}, memMap, mm.DirectMapping{}); err != ErrTooManyRegions {
			t.Fatalf("expected ErrTooManyRegions; got %v", err)
		}
	})

	t.Run("kernel above heap start", func(t *testing.T) {
		layout := Layout{
			KernelImage: mm.PhysRange{Start: 0x100000, Size: 0x20001},
			HeapStart:   0x120000,
		}

		expectPanic(t, errKernelAboveHeap, func() {
			InitFrameTable(layout, testMemoryMap(), mm.DirectMapping{})
		})
	})
}

func TestMergeRegions(t *testing.T) {
	var regions []mm.FrameRegion
	for _, r := range []mm.FrameRegion{{Start: 10, End: 12}, {Start: 0, End: 4}, {Start: 3, End: 6}, {Start: 6, End: 8}, {Start: 11, End: 11 + 1}} {
		regions = insertSorted(regions, r)
	}

	got := mergeRegions(regions)
	exp := []mm.FrameRegion{{Start: 0, End: 8}, {Start: 10, End: 12}}
	if len(got) != len(exp) {
		t.Fatalf("expected %v; got %v", exp, got)
	}
	for i := range exp {
		if got[i] != exp[i] {
			t.Errorf("[region %d] expected %v; got %v", i, exp[i], got[i])
		}
	}
}

func TestSubtractRegions(t *testing.T) {
	specs := []struct {
		from, remove, exp []mm.FrameRegion
	}{
		{
			[]mm.FrameRegion{{Start: 0, End: 10}},
			nil,
			[]mm.FrameRegion{{Start: 0, End: 10}},
		},
		{
			[]mm.FrameRegion{{Start: 0, End: 10}},
			[]mm.FrameRegion{{Start: 2, End: 4}, {Start: 6, End: 7}},
			[]mm.FrameRegion{{Start: 0, End: 2}, {Start: 4, End: 6}, {Start: 7, End: 10}},
		},
		{
			[]mm.FrameRegion{{Start: 0, End: 4}, {Start: 8, End: 12}},
			[]mm.FrameRegion{{Start: 2, End: 10}},
			[]mm.FrameRegion{{Start: 0, End: 2}, {Start: 10, End: 12}},
		},
		{
			[]mm.FrameRegion{{Start: 4, End: 8}},
			[]mm.FrameRegion{{Start: 0, End: 4}, {Start: 8, End: 9}},
			[]mm.FrameRegion{{Start: 4, End: 8}},
		},
		{
			[]mm.FrameRegion{{Start: 4, End: 8}},
			[]mm.FrameRegion{{Start: 0, End: 16}},
			nil,
		},
	}

	for specIndex, spec := range specs {
		got := subtractRegions(nil, spec.from, spec.remove)
		if len(got) != len(spec.exp) {
			t.Errorf("[spec %d] expected %v; got %v", specIndex, spec.exp, got)
			continue
		}
		for i := range got {
			if got[i] != spec.exp[i] {
				t.Errorf("[spec %d] expected %v; got %v", specIndex, spec.exp, got)
				break
			}
		}
	}
}
