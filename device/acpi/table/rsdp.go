package table

// RSDPSignature is the signature of the root system description pointer.
const RSDPSignature = "RSD PTR "

// RSDP defines the root system descriptor pointer for ACPI 1.0. This is used
// as the entry-point for parsing ACPI data.
type RSDP struct {
	// The signature must contain "RSD PTR " (last byte is a space).
	Signature [8]byte

	// A value that when added to the sum of all other bytes contained in
	// this descriptor should result in the value 0.
	Checksum uint8

	OEMID [6]byte

	// ACPI revision number. It is 0 for ACPI1.0 and 2 for versions 2.0+.
	Revision uint8

	// Physical address of 32-bit root system descriptor table.
	RSDTAddr uint32
}

func (*RSDP) signature() string { return RSDPSignature }

func (*RSDP) length(mem []byte) (int, bool) { return RSDPSize, len(mem) >= RSDPSize }

func (r *RSDP) decode(mem []byte) { decodeFixed(mem, r) }

// ExtRSDP extends RSDP with additional fields. It is used when
// RSDP.Revision >= 2.
type ExtRSDP struct {
	RSDP

	// The size of the whole structure.
	Length uint32

	// Physical address of 64-bit root system descriptor table.
	XSDTAddr uint64

	// A value that when added to the sum of all bytes of the extended
	// structure should result in the value 0.
	ExtendedChecksum uint8

	_ [3]byte
}

func (*ExtRSDP) signature() string { return RSDPSignature }

// length also requires the legacy 20-byte checksum to hold so a valid
// ExtRSDP is always a valid RSDP.
func (*ExtRSDP) length(mem []byte) (int, bool) {
	if len(mem) < ExtRSDPSize {
		return 0, false
	}
	return ExtRSDPSize, Valid(mem[:RSDPSize])
}

func (r *ExtRSDP) decode(mem []byte) { decodeFixed(mem, r) }
