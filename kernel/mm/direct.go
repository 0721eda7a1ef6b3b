package mm

import "learnos/kernel"

var (
	errPhysOutOfBounds = &kernel.Error{Module: "mm", Message: "physical address outside of direct mapping"}
	errVirtOutOfBounds = &kernel.Error{Module: "mm", Message: "virtual address outside of direct mapping"}
)

// DirectMapping describes a linear mapping of Size bytes of physical memory
// starting at PhysicalBase to the virtual addresses starting at VirtualBase.
// It lets the kernel reach any physical structure (firmware tables, page
// table frames) without walking the page tables.
type DirectMapping struct {
	VirtualBase  VirtAddr
	PhysicalBase PhysAddr
	Size         uintptr
}

// ContainsPhys returns true if addr is covered by the mapping.
func (m DirectMapping) ContainsPhys(addr PhysAddr) bool {
	return addr >= m.PhysicalBase && uintptr(addr-m.PhysicalBase) < m.Size
}

// ContainsVirt returns true if addr is covered by the mapping.
func (m DirectMapping) ContainsVirt(addr VirtAddr) bool {
	return addr >= m.VirtualBase && uintptr(addr-m.VirtualBase) < m.Size
}

// PhysToVirt translates a physical address. It panics if addr lies outside
// the mapping.
func (m DirectMapping) PhysToVirt(addr PhysAddr) VirtAddr {
	if !m.ContainsPhys(addr) {
		panic(errPhysOutOfBounds)
	}
	return m.VirtualBase + VirtAddr(addr-m.PhysicalBase)
}

// VirtToPhys translates a virtual address. It panics if addr lies outside
// the mapping.
func (m DirectMapping) VirtToPhys(addr VirtAddr) PhysAddr {
	if !m.ContainsVirt(addr) {
		panic(errVirtOutOfBounds)
	}
	return m.PhysicalBase + PhysAddr(addr-m.VirtualBase)
}
