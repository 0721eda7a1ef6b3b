package pmm

import (
	"testing"

	"learnos/kernel/mm"
)

func TestFrameTableTransitions(t *testing.T) {
	table := newTestTable(16)

	if got := table.Len(); got != 16 {
		t.Fatalf("expected table length 16; got %d", got)
	}

	for f := mm.Frame(0); f < 16; f++ {
		if got := table.State(f); got != Free {
			t.Fatalf("expected frame %d to be free; got %s", f, got)
		}
	}

	table.MarkAllocated(mm.FrameRegion{Start: 2, End: 5})
	table.MarkReserved(mm.FrameRegion{Start: 10, End: 16})

	// Empty and inverted regions are no-ops.
	table.MarkReserved(mm.FrameRegion{Start: 7, End: 7})
	table.MarkReserved(mm.FrameRegion{Start: 9, End: 8})

	specs := []struct {
		region mm.FrameRegion
		exp    FrameState
	}{
		{mm.FrameRegion{Start: 0, End: 2}, Free},
		{mm.FrameRegion{Start: 2, End: 5}, Allocated},
		{mm.FrameRegion{Start: 5, End: 10}, Free},
		{mm.FrameRegion{Start: 10, End: 16}, Reserved},
	}

	for specIndex, spec := range specs {
		for f := spec.region.Start; f < spec.region.End; f++ {
			if got := table.State(f); got != spec.exp {
				t.Errorf("[spec %d] expected frame %d to be %s; got %s", specIndex, f, spec.exp, got)
			}
		}
	}

	stats := table.Stats()
	if stats.Total != 16 || stats.Allocated != 3 || stats.Reserved != 6 || stats.Free() != 7 {
		t.Fatalf("unexpected stats: %+v (free %d)", stats, stats.Free())
	}
}

func TestFrameTableRejectsNonFreeTransitions(t *testing.T) {
	table := newTestTable(8)
	table.MarkAllocated(mm.FrameRegion{Start: 3, End: 4})

	specs := []func(){
		func() { table.MarkAllocated(mm.FrameRegion{Start: 2, End: 5}) },
		func() { table.MarkReserved(mm.FrameRegion{Start: 3, End: 4}) },
	}

	for specIndex, spec := range specs {
		t.Run("", func(t *testing.T) {
			expectPanic(t, errRegionNotFree, spec)
		})

		// The failed transition must leave the table untouched.
		for f, exp := range []FrameState{Free, Free, Free, Allocated, Free, Free, Free, Free} {
			if got := table.State(mm.Frame(f)); got != exp {
				t.Errorf("[spec %d] expected frame %d to be %s; got %s", specIndex, f, exp, got)
			}
		}
	}
}

func TestFrameTableOutOfRange(t *testing.T) {
	table := newTestTable(4)

	expectPanic(t, errRegionOutOfRange, func() { table.State(4) })
	expectPanic(t, errRegionOutOfRange, func() { table.MarkReserved(mm.FrameRegion{Start: 2, End: 5}) })
}

func TestRequiredSizeBytes(t *testing.T) {
	if got := RequiredSizeBytes(32768); got != 32768 {
		t.Fatalf("expected one byte per frame; got %d bytes for 32768 frames", got)
	}
}

func TestFrameStateString(t *testing.T) {
	specs := []struct {
		state FrameState
		exp   string
	}{
		{Free, "free"},
		{Allocated, "allocated"},
		{Reserved, "reserved"},
		{FrameState(42), "unknown"},
	}

	for specIndex, spec := range specs {
		if got := spec.state.String(); got != spec.exp {
			t.Errorf("[spec %d] expected %q; got %q", specIndex, spec.exp, got)
		}
	}
}
