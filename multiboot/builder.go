package multiboot

import (
	"encoding/binary"
	"unsafe"
)

// Builder assembles a multiboot2 information block in host memory. Hosted
// tools and tests use it to hand the kernel the same data a boot loader
// would.
type Builder struct {
	tags []byte
}

// CmdLine appends a boot command line tag.
func (b *Builder) CmdLine(cmdLine string) *Builder {
	payload := append([]byte(cmdLine), 0)
	return b.tag(tagBootCmdLine, payload)
}

// MemoryMap appends a memory map tag listing entries.
func (b *Builder) MemoryMap(entries ...MemoryMapEntry) *Builder {
	const entrySize = 24

	payload := make([]byte, 8, 8+entrySize*len(entries))
	binary.LittleEndian.PutUint32(payload[0:], entrySize)
	for _, e := range entries {
		var raw [entrySize]byte
		binary.LittleEndian.PutUint64(raw[0:], e.PhysAddress)
		binary.LittleEndian.PutUint64(raw[8:], e.Length)
		binary.LittleEndian.PutUint32(raw[16:], uint32(e.Type))
		payload = append(payload, raw[:]...)
	}
	return b.tag(tagMemoryMap, payload)
}

// RSDP appends a copy of an ACPI RSDP. Extended (revision 2+) descriptors
// are stored in the new RSDP tag.
func (b *Builder) RSDP(rsdp []byte, extended bool) *Builder {
	if extended {
		return b.tag(tagAcpiNewRSDP, rsdp)
	}
	return b.tag(tagAcpiOldRSDP, rsdp)
}

func (b *Builder) tag(t tagType, payload []byte) *Builder {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(t))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(8+len(payload)))
	b.tags = append(b.tags, hdr[:]...)
	b.tags = append(b.tags, payload...)
	for len(b.tags)%8 != 0 {
		b.tags = append(b.tags, 0)
	}
	return b
}

// Build returns the information block terminated by an end tag. The block is
// backed by a []uint64 so that it satisfies the 8-byte alignment multiboot
// requires; pass Addr(block) to SetInfoPtr.
func (b *Builder) Build() []uint64 {
	size := 8 + len(b.tags) + 8
	block := make([]uint64, size/8)
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&block[0])), size)

	binary.LittleEndian.PutUint32(raw[0:], uint32(size))
	copy(raw[8:], b.tags)
	binary.LittleEndian.PutUint32(raw[size-4:], 8)
	return block
}

// Addr returns the address of a block produced by Build.
func Addr(block []uint64) uintptr {
	return uintptr(unsafe.Pointer(&block[0]))
}
