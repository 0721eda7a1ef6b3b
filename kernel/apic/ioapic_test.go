package apic

import (
	"testing"

	"learnos/kernel/mm"
)

// fakeIOAPIC emulates the index/data register pair of an I/O APIC.
type fakeIOAPIC struct {
	base     mm.VirtAddr
	selected uint32
	regs     map[uint32]uint32
	writes   []uint32
}

func installFakeIOAPIC(t *testing.T, base mm.VirtAddr) *fakeIOAPIC {
	t.Helper()

	dev := &fakeIOAPIC{base: base, regs: make(map[uint32]uint32)}

	origLoad, origStore := loadRegFn, storeRegFn
	t.Cleanup(func() { loadRegFn, storeRegFn = origLoad, origStore })

	loadRegFn = func(addr mm.VirtAddr) uint32 {
		if addr != dev.base+ioWindow {
			t.Fatalf("unexpected read from 0x%x", uintptr(addr))
		}
		return dev.regs[dev.selected]
	}
	storeRegFn = func(addr mm.VirtAddr, v uint32) {
		switch addr {
		case dev.base + ioRegSelect:
			dev.selected = v
		case dev.base + ioWindow:
			dev.writes = append(dev.writes, dev.selected)
			dev.regs[dev.selected] = v
		default:
			t.Fatalf("unexpected write to 0x%x", uintptr(addr))
		}
	}

	return dev
}

func TestIOAPICIdentification(t *testing.T) {
	dev := installFakeIOAPIC(t, 0xFEC0_0000)
	dev.regs[ioRegID] = 0x0200_0000
	dev.regs[ioRegVersion] = 0x0017_0011
	dev.regs[ioRegArbitration] = 0x0F00_0000

	io := NewIOAPIC(dev.base)

	if got := io.ID(); got != 2 {
		t.Errorf("expected id 2; got %d", got)
	}
	if got := io.Version(); got != 0x11 {
		t.Errorf("expected version 0x11; got 0x%x", got)
	}
	if got := io.MaxRedirectionEntry(); got != 23 {
		t.Errorf("expected max redirection entry 23; got %d", got)
	}
	if got := io.Arbitration(); got != 0xF {
		t.Errorf("expected arbitration id 0xf; got 0x%x", got)
	}
}

func TestIOAPICRedirectionEntries(t *testing.T) {
	dev := installFakeIOAPIC(t, 0xFEC0_0000)
	io := NewIOAPIC(dev.base)

	entry := RedirectionEntry(0).
		WithVector(0x31).
		WithPolarity(ActiveLow).
		WithTriggerMode(LevelTriggered).
		WithDestination(3)

	io.SetRedirectionEntry(9, entry)

	lo, hi := uint32(ioRegRedirBase+18), uint32(ioRegRedirBase+19)
	if dev.regs[lo] != uint32(entry) {
		t.Errorf("expected low dword 0x%x; got 0x%x", uint32(entry), dev.regs[lo])
	}
	if dev.regs[hi] != 0x0300_0000 {
		t.Errorf("expected high dword 0x03000000; got 0x%x", dev.regs[hi])
	}

	// The entry is masked first, then the destination is written and
	// finally the low dword is unmasked.
	expWrites := []uint32{lo, hi, lo}
	if len(dev.writes) != len(expWrites) {
		t.Fatalf("expected writes to %v; got %v", expWrites, dev.writes)
	}
	for i, reg := range expWrites {
		if dev.writes[i] != reg {
			t.Errorf("expected write %d to select register 0x%x; got 0x%x", i, reg, dev.writes[i])
		}
	}

	if got := io.RedirectionEntry(9); got != entry {
		t.Errorf("expected to read back 0x%x; got 0x%x", uint64(entry), uint64(got))
	}
	if got := io.RedirectionEntry(8); got != 0 {
		t.Errorf("expected neighbouring entry to be untouched; got 0x%x", uint64(got))
	}
}

func TestRedirectionEntryLayout(t *testing.T) {
	specs := []struct {
		entry RedirectionEntry
		exp   uint64
	}{
		{RedirectionEntry(0).WithVector(0xFE), 0xFE},
		{RedirectionEntry(0).WithDeliveryMode(DeliveryExtINT), 0b111 << 8},
		{RedirectionEntry(0).WithDeliveryMode(DeliveryNMI), 0b100 << 8},
		{RedirectionEntry(0).WithDestinationMode(LogicalDestination), 1 << 11},
		{RedirectionEntry(0).WithPolarity(ActiveLow), 1 << 13},
		{RedirectionEntry(0).WithTriggerMode(LevelTriggered), 1 << 15},
		{RedirectionEntry(0).WithMasked(true), 1 << 16},
		{RedirectionEntry(0).WithDestination(0xFF), 0xFF << 56},
	}

	for specIndex, spec := range specs {
		if uint64(spec.entry) != spec.exp {
			t.Errorf("[spec %d] expected 0x%x; got 0x%x", specIndex, spec.exp, uint64(spec.entry))
		}
	}

	e := RedirectionEntry(1<<12 | 1<<14 | 0b001<<8 | 1<<11 | 1<<13 | 1<<15 | 1<<16 | 0x42 | 9<<56)
	if !e.SendPending() || !e.RemoteIRR() {
		t.Error("expected delivery status and remote IRR to be reported")
	}
	if e.Vector() != 0x42 || e.DeliveryMode() != DeliveryLowestPriority || e.DestinationMode() != LogicalDestination ||
		e.Polarity() != ActiveLow || e.TriggerMode() != LevelTriggered || !e.Masked() || e.Destination() != 9 {
		t.Errorf("unexpected field decoding of 0x%x", uint64(e))
	}

	if got := RedirectionEntry(0).WithPolarity(ActiveLow).WithPolarity(ActiveHigh); got != 0 {
		t.Errorf("expected polarity reset to clear bit 13; got 0x%x", uint64(got))
	}
}
