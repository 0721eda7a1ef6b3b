package mm

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual address where this page begins.
func (p Page) Address() VirtAddr {
	return VirtAddr(p << PageShift)
}

// PageFromAddress returns the Page that contains the given virtual address.
// Addresses that are not page-aligned are rounded down.
func PageFromAddress(virtAddr VirtAddr) Page {
	return Page(virtAddr >> VirtAddr(PageShift))
}
