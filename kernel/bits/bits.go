// Package bits provides helpers for reading and updating bit fields packed
// inside unsigned integers such as page table entries and APIC registers.
package bits

import (
	"unsafe"

	"golang.org/x/exp/constraints"
)

// openEnd marks a Range whose end is the width of the value it is applied to.
const openEnd = ^uint(0)

// Range describes the half-open bit interval [Start, End).
type Range struct {
	Start, End uint
}

// Inclusive returns the range covering bits lo through hi (both included).
func Inclusive(lo, hi uint) Range { return Range{Start: lo, End: hi + 1} }

// From returns the range starting at bit lo and extending to the most
// significant bit of the value it is applied to.
func From(lo uint) Range { return Range{Start: lo, End: openEnd} }

// Until returns the range covering bits 0 up to (but not including) hi.
func Until(hi uint) Range { return Range{Start: 0, End: hi} }

// Width returns the number of bits in T.
func Width[T constraints.Unsigned]() uint {
	var v T
	return uint(unsafe.Sizeof(v)) * 8
}

// resolve returns the concrete [start, end) bounds for a value of the given
// width. Inverted ranges or ranges extending past width are programming
// errors.
func (r Range) resolve(width uint) (uint, uint) {
	end := r.End
	if end == openEnd {
		end = width
	}

	if r.Start > end || end > width {
		panic("bits: range out of bounds")
	}

	return r.Start, end
}

// mask returns a right-aligned mask with count bits set.
func mask[T constraints.Unsigned](count uint) T {
	if count >= Width[T]() {
		return ^T(0)
	}
	return (T(1) << count) - 1
}

// GetBit returns true if bit idx of v is set.
func GetBit[T constraints.Unsigned](v T, idx uint) bool {
	if idx >= Width[T]() {
		panic("bits: bit index out of bounds")
	}
	return (v>>idx)&1 == 1
}

// SetBit returns v with bit idx set to on.
func SetBit[T constraints.Unsigned](v T, idx uint, on bool) T {
	if idx >= Width[T]() {
		panic("bits: bit index out of bounds")
	}

	if on {
		return v | T(1)<<idx
	}
	return v &^ (T(1) << idx)
}

// ToggleBit returns v with bit idx inverted.
func ToggleBit[T constraints.Unsigned](v T, idx uint) T {
	return SetBit(v, idx, !GetBit(v, idx))
}

// GetBits extracts the field described by r from v. The result is shifted so
// that the field occupies the low bits.
func GetBits[T constraints.Unsigned](v T, r Range) T {
	start, end := r.resolve(Width[T]())
	return (v >> start) & mask[T](end-start)
}

// SetBits returns v with the field described by r replaced by field. All bits
// outside r are preserved. Passing a field value that does not fit in r causes
// a panic.
func SetBits[T constraints.Unsigned](v T, r Range, field T) T {
	start, end := r.resolve(Width[T]())
	m := mask[T](end - start)
	if field&^m != 0 {
		panic("bits: value does not fit in range")
	}

	return (v &^ (m << start)) | (field << start)
}
