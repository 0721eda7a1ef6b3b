package vmm

import (
	"testing"

	"learnos/kernel/mm"
)

func TestPageTableEntryFields(t *testing.T) {
	var pte PageTableEntry

	pte.SetUserData(0x3A75)
	pte.SetFlags(FlagPresent | FlagHugePage | FlagUser)
	pte.SetAddress(0x0008_0F7A_BA02_1000)
	pte.SetNoExecute(true)

	if got := pte.UserData(); got != 0x3A75 {
		t.Errorf("expected user data 0x3A75; got %x", got)
	}
	if got := pte.Flags(); got != FlagPresent|FlagHugePage|FlagUser {
		t.Errorf("expected flags %x; got %x", FlagPresent|FlagHugePage|FlagUser, got)
	}
	if got := pte.Address(); got != 0x0008_0F7A_BA02_1000 {
		t.Errorf("expected address 0x0008_0F7A_BA02_1000; got %x", got)
	}
	if !pte.NoExecute() {
		t.Error("expected no-execute bit to be set")
	}

	// Updating one field leaves the others untouched.
	pte.SetUserData(0)
	pte.ClearFlags(FlagUser)
	pte.SetNoExecute(false)
	if pte.Address() != 0x0008_0F7A_BA02_1000 || pte.Flags() != FlagPresent|FlagHugePage || pte.UserData() != 0 || pte.NoExecute() {
		t.Errorf("unexpected entry after updates: %x", uint64(pte))
	}

	if !pte.Present() || !pte.IsHuge() || !pte.HasAnyFlag(FlagRW|FlagPresent) || pte.HasFlags(FlagRW|FlagPresent) {
		t.Errorf("unexpected flag queries for entry %x", uint64(pte))
	}

	if got := pte.Frame(); got != mm.Frame(0x0008_0F7A_BA02_1000>>mm.PageShift) {
		t.Errorf("unexpected frame %x", got)
	}
}

func TestPageTableEntryUserDataLayout(t *testing.T) {
	specs := []struct {
		data uint16
		exp  uint64
	}{
		{0x0001, 0x0000_0000_0000_0200},
		{0x0007, 0x0000_0000_0000_0E00},
		{0x0008, 0x0010_0000_0000_0000},
		{0x3FFF, 0x7FF0_0000_0000_0E00},
	}

	for specIndex, spec := range specs {
		var pte PageTableEntry
		pte.SetUserData(spec.data)
		if uint64(pte) != spec.exp {
			t.Errorf("[spec %d] expected entry %x; got %x", specIndex, spec.exp, uint64(pte))
		}
		if got := pte.UserData(); got != spec.data {
			t.Errorf("[spec %d] expected user data %x; got %x", specIndex, spec.data, got)
		}
	}

	var pte PageTableEntry
	expectPanic(t, errUserDataTooWide, func() { pte.SetUserData(0x4000) })
}

func TestLevel(t *testing.T) {
	specs := []struct {
		level    Level
		pageSize uintptr
		name     string
	}{
		{PT, 4096, "PT"},
		{PD, 2 << 20, "PD"},
		{PDP, 1 << 30, "PDP"},
		{PML4, 512 << 30, "PML4"},
	}

	for specIndex, spec := range specs {
		if got := spec.level.PageSize(); got != spec.pageSize {
			t.Errorf("[spec %d] expected page size %x; got %x", specIndex, spec.pageSize, got)
		}
		if got := spec.level.OffsetMask(); got != spec.pageSize-1 {
			t.Errorf("[spec %d] expected offset mask %x; got %x", specIndex, spec.pageSize-1, got)
		}
		if got := spec.level.String(); got != spec.name {
			t.Errorf("[spec %d] expected name %q; got %q", specIndex, spec.name, got)
		}
	}

	// indices 1, 2, 3, 4 for PML4, PDP, PD and PT
	v := mm.VirtAddr(1<<39 | 2<<30 | 3<<21 | 4<<12 | 0x123)
	for level, exp := range []uintptr{4, 3, 2, 1} {
		if got := Level(level).Index(v); got != exp {
			t.Errorf("expected %s index %d; got %d", Level(level), exp, got)
		}
	}
}
