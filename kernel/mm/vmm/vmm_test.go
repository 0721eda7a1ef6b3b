package vmm

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"learnos/internal/hostmem"
	"learnos/kernel"
	"learnos/kernel/mm"
	"learnos/kernel/mm/pmm"
)

// testEnv is a simulated machine: an arena of physical memory, a frame
// allocator over it and a stubbed TLB.
type testEnv struct {
	arena   *hostmem.Arena
	frames  *pmm.SlowAllocator
	flushes []uintptr
}

func newTestEnv(t *testing.T, frameCount uint64) *testEnv {
	t.Helper()

	arena, err := hostmem.New(uintptr(frameCount) * mm.PageSize)
	if err != nil {
		t.Fatal(err)
	}

	tableMem := make([]pmm.FrameInfo, frameCount)
	table := pmm.NewFrameTable(mm.VirtAddr(uintptr(unsafe.Pointer(&tableMem[0]))), frameCount)
	table.MarkReserved(mm.FrameRegion{Start: 0, End: 1})

	env := &testEnv{arena: arena, frames: pmm.NewSlowAllocator(table)}

	origFlush, origSwitch := flushTLBEntryFn, switchPDTFn
	flushTLBEntryFn = func(addr uintptr) { env.flushes = append(env.flushes, addr) }
	switchPDTFn = func(uintptr) {}

	t.Cleanup(func() {
		flushTLBEntryFn = origFlush
		switchPDTFn = origSwitch
		_ = arena.Close()
		// Keep the frame table memory alive for the whole test.
		_ = tableMem[0]
	})

	return env
}

func (env *testEnv) newSpace(t *testing.T) *AddressSpace {
	t.Helper()

	as, err := CreateAddressSpace(env.arena.Mapping(), env.frames, true)
	if err != nil {
		t.Fatal(err)
	}
	as.Activate()
	return as
}

// readEntry reads the entry at index of the table stored in frame.
func (env *testEnv) readEntry(frame mm.Frame, index uintptr) PageTableEntry {
	raw := env.arena.Phys(mm.PhysRange{Start: frame.Address().Add(index * 8), Size: 8})
	return PageTableEntry(binary.LittleEndian.Uint64(raw))
}

// translate walks the page tables in the arena the way the MMU would.
func (env *testEnv) translate(root mm.Frame, v mm.VirtAddr) (mm.PhysAddr, bool) {
	table := root
	for level := PML4; ; level-- {
		pte := env.readEntry(table, level.Index(v))
		if !pte.Present() {
			return 0, false
		}
		if level == PT || (level < PML4 && pte.IsHuge()) {
			return pte.Address().Add(uintptr(v) & level.OffsetMask()), true
		}
		table = pte.Frame()
	}
}

// softRecursiveAccess resolves recursive page table addresses through a
// software walk of the simulated page tables.
type softRecursiveAccess struct {
	env  *testEnv
	rec  RecursiveAccess
	root mm.Frame
}

func (a softRecursiveAccess) TableAddr(v mm.VirtAddr, level Level, table mm.Frame) mm.VirtAddr {
	phys, ok := a.env.translate(a.root, a.rec.TableAddr(v, level, table))
	if !ok {
		panic("recursive table address is not mapped")
	}
	return a.env.arena.Mapping().PhysToVirt(phys)
}

// limitedAllocator fails once it has handed out its quota of frames.
type limitedAllocator struct {
	mm.FrameAllocator
	remaining int
}

func (a *limitedAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	if a.remaining == 0 {
		return mm.InvalidFrame, pmm.ErrOutOfMemory
	}
	a.remaining--
	return a.FrameAllocator.AllocFrame()
}

func expectPanic(t *testing.T, expErr *kernel.Error, fn func()) {
	t.Helper()

	defer func() {
		t.Helper()
		if err := recover(); err != expErr {
			t.Fatalf("expected panic with error %v; got %v", expErr, err)
		}
	}()

	fn()
}
