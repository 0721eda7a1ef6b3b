// Package table describes the binary layout of the ACPI firmware tables used
// during boot and decodes typed views of them from raw memory.
//
// All views are obtained through FromRaw which validates the signature,
// length and checksum of the raw bytes before decoding anything. Code outside
// this package never reinterprets firmware memory on its own.
package table

import (
	"encoding/binary"

	"learnos/kernel"
)

// Fixed sizes of the ACPI structures handled by this package.
const (
	SDTHeaderSize  = 36
	RSDPSize       = 20
	ExtRSDPSize    = 36
	MADTHeaderSize = SDTHeaderSize + 8
)

var (
	// ErrInvalidTable is returned when a memory blob fails validation:
	// the signature does not match, the self-reported length does not fit
	// or the checksum is not zero.
	ErrInvalidTable = &kernel.Error{Module: "acpi", Message: "invalid ACPI table"}

	// ErrMADTCorrupted is the panic value raised when the MADT records do
	// not add up to the table length.
	ErrMADTCorrupted = &kernel.Error{Module: "acpi", Message: "MADT entry lengths do not add up to the table length"}
)

// Resolver is an interface implemented by objects that can lookup an ACPI
// table by its signature.
//
// LookupTable returns the validated bytes of the table or nil if no such
// table was found.
type Resolver interface {
	LookupTable(signature string) []byte
}

// Table is implemented by pointers to the typed views that FromRaw can
// produce.
type Table interface {
	// signature returns the required signature or an empty string if any
	// signature is acceptable.
	signature() string

	// length returns the number of bytes, starting at mem[0], covered by
	// the checksum. It returns false if mem cannot hold such a table.
	length(mem []byte) (int, bool)

	// decode populates the view from validated bytes.
	decode(mem []byte)
}

// FromRaw validates mem as a table of type T and returns a decoded view of
// it. Validation checks, in order, that the self-reported length fits inside
// mem, that the signature matches and that the checksum over exactly that
// many bytes is zero. Nothing is decoded unless all checks pass.
func FromRaw[T any, P interface {
	*T
	Table
}](mem []byte) (*T, *kernel.Error) {
	var view T
	p := P(&view)

	n, ok := p.length(mem)
	if !ok || n > len(mem) {
		return nil, ErrInvalidTable
	}

	if sig := p.signature(); sig != "" && (n < len(sig) || string(mem[:len(sig)]) != sig) {
		return nil, ErrInvalidTable
	}

	if !Valid(mem[:n]) {
		return nil, ErrInvalidTable
	}

	p.decode(mem[:n])
	return &view, nil
}

// Checksum returns the byte that must be added to b so that its bytes sum up
// to zero (mod 256).
func Checksum(b []byte) uint8 {
	var sum uint8
	for _, v := range b {
		sum += v
	}
	return -sum
}

// Valid returns true if the bytes of b sum up to zero (mod 256).
func Valid(b []byte) bool {
	return Checksum(b) == 0
}

// decodeFixed decodes the fixed-size structure v from the start of mem. The
// callers have already checked that mem is large enough.
func decodeFixed(mem []byte, v any) {
	if _, err := binary.Decode(mem, binary.LittleEndian, v); err != nil {
		panic(ErrInvalidTable)
	}
}

// sdtLength returns the length field of the SDT header at the start of mem.
func sdtLength(mem []byte, min int) (int, bool) {
	if len(mem) < SDTHeaderSize {
		return 0, false
	}

	n := int(binary.LittleEndian.Uint32(mem[4:8]))
	return n, n >= min
}
