package main

import (
	"fmt"

	"github.com/google/btree"

	"learnos/multiboot"
)

// memoryMap is an ordered set of non-overlapping memory map entries.
type memoryMap struct {
	tree *btree.BTreeG[multiboot.MemoryMapEntry]
}

func newMemoryMap() *memoryMap {
	return &memoryMap{
		tree: btree.NewG[multiboot.MemoryMapEntry](8, func(a, b multiboot.MemoryMapEntry) bool {
			return a.PhysAddress < b.PhysAddress
		}),
	}
}

func entryEnd(e multiboot.MemoryMapEntry) uint64 { return e.PhysAddress + e.Length }

// insert adds e to the map. Empty entries are ignored and entries that
// overlap an existing one are rejected. An entry that directly follows or
// precedes an entry of the same type is merged with it.
func (m *memoryMap) insert(e multiboot.MemoryMapEntry) error {
	if e.Length == 0 {
		return nil
	}
	if entryEnd(e) < e.PhysAddress {
		return fmt.Errorf("region at 0x%x wraps around the address space", e.PhysAddress)
	}

	var (
		prev, next       multiboot.MemoryMapEntry
		hasPrev, hasNext bool
	)
	m.tree.DescendLessOrEqual(e, func(item multiboot.MemoryMapEntry) bool {
		prev, hasPrev = item, true
		return false
	})
	m.tree.AscendGreaterOrEqual(e, func(item multiboot.MemoryMapEntry) bool {
		next, hasNext = item, true
		return false
	})

	if hasPrev && entryEnd(prev) > e.PhysAddress {
		return fmt.Errorf("region [0x%x, 0x%x) overlaps [0x%x, 0x%x)", e.PhysAddress, entryEnd(e), prev.PhysAddress, entryEnd(prev))
	}
	if hasNext && next.PhysAddress < entryEnd(e) {
		return fmt.Errorf("region [0x%x, 0x%x) overlaps [0x%x, 0x%x)", e.PhysAddress, entryEnd(e), next.PhysAddress, entryEnd(next))
	}

	if hasPrev && prev.Type == e.Type && entryEnd(prev) == e.PhysAddress {
		m.tree.Delete(prev)
		e = multiboot.MemoryMapEntry{PhysAddress: prev.PhysAddress, Length: prev.Length + e.Length, Type: e.Type}
	}
	if hasNext && next.Type == e.Type && entryEnd(e) == next.PhysAddress {
		m.tree.Delete(next)
		e.Length += next.Length
	}

	m.tree.ReplaceOrInsert(e)
	return nil
}

// entries returns the entries in address order.
func (m *memoryMap) entries() []multiboot.MemoryMapEntry {
	out := make([]multiboot.MemoryMapEntry, 0, m.tree.Len())
	m.tree.Ascend(func(item multiboot.MemoryMapEntry) bool {
		out = append(out, item)
		return true
	})
	return out
}

// normalizeMemoryMap validates the configured regions against the memory
// size and returns them as sorted, merged multiboot entries.
func normalizeMemoryMap(memory Size, regions []Region) ([]multiboot.MemoryMapEntry, error) {
	m := newMemoryMap()

	for i, r := range regions {
		entryType, err := r.Type.entryType()
		if err != nil {
			return nil, fmt.Errorf("memory_map[%d]: %w", i, err)
		}

		e := multiboot.MemoryMapEntry{PhysAddress: uint64(r.Start), Length: uint64(r.Length), Type: entryType}
		if entryType == multiboot.MemAvailable && entryEnd(e) > uint64(memory) {
			return nil, fmt.Errorf("memory_map[%d]: available region ends at 0x%x beyond the 0x%x bytes of memory", i, entryEnd(e), uint64(memory))
		}

		if err = m.insert(e); err != nil {
			return nil, fmt.Errorf("memory_map[%d]: %w", i, err)
		}
	}

	return m.entries(), nil
}
