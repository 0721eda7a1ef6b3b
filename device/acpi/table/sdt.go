package table

import "encoding/binary"

// Well-known table signatures.
const (
	RSDTSignature = "RSDT"
	XSDTSignature = "XSDT"
	MADTSignature = "APIC"
	FADTSignature = "FACP"
	DSDTSignature = "DSDT"
)

// SDTHeader defines the common header for all ACPI-related tables.
type SDTHeader struct {
	// The signature defines the table type.
	Signature [4]byte

	// The length of the table including the header.
	Length uint32

	Revision uint8

	// A value that when added to the sum of all other bytes in the table
	// should result in the value 0.
	Checksum uint8

	// OEM specific information
	OEMID       [6]byte
	OEMTableID  [8]byte
	OEMRevision uint32

	// Information about the ASL compiler that generated this table
	CreatorID       uint32
	CreatorRevision uint32
}

// SignatureString returns the table signature as a string.
func (h *SDTHeader) SignatureString() string { return string(h.Signature[:]) }

// SDT is a view of any system description table that exposes only the
// common header.
type SDT struct {
	SDTHeader
}

func (*SDT) signature() string { return "" }

func (*SDT) length(mem []byte) (int, bool) { return sdtLength(mem, SDTHeaderSize) }

func (t *SDT) decode(mem []byte) { decodeFixed(mem, &t.SDTHeader) }

// RSDT is the root system description table. It holds 32-bit physical
// pointers to all other tables.
type RSDT struct {
	SDTHeader
	Entries []uint32
}

func (*RSDT) signature() string { return RSDTSignature }

func (*RSDT) length(mem []byte) (int, bool) { return pointerTableLength(mem, 4) }

func (t *RSDT) decode(mem []byte) {
	decodeFixed(mem, &t.SDTHeader)

	payload := mem[SDTHeaderSize:]
	t.Entries = make([]uint32, len(payload)/4)
	for i := range t.Entries {
		t.Entries[i] = binary.LittleEndian.Uint32(payload[i*4:])
	}
}

// XSDT is the extended system description table. It holds 64-bit physical
// pointers to all other tables.
type XSDT struct {
	SDTHeader
	Entries []uint64
}

func (*XSDT) signature() string { return XSDTSignature }

func (*XSDT) length(mem []byte) (int, bool) { return pointerTableLength(mem, 8) }

func (t *XSDT) decode(mem []byte) {
	decodeFixed(mem, &t.SDTHeader)

	payload := mem[SDTHeaderSize:]
	t.Entries = make([]uint64, len(payload)/8)
	for i := range t.Entries {
		t.Entries[i] = binary.LittleEndian.Uint64(payload[i*8:])
	}
}

// pointerTableLength rejects root tables whose payload is not a whole
// number of pointers.
func pointerTableLength(mem []byte, ptrSize int) (int, bool) {
	n, ok := sdtLength(mem, SDTHeaderSize)
	if !ok || (n-SDTHeaderSize)%ptrSize != 0 {
		return 0, false
	}
	return n, true
}

// PowerProfileType describes a power profile referenced by the FADT table.
type PowerProfileType uint8

// The list of supported power profile types
const (
	PowerProfileUnspecified PowerProfileType = iota
	PowerProfileDesktop
	PowerProfileMobile
	PowerProfileWorkstation
	PowerProfileEnterpriseServer
	PowerProfileSOHOServer
	PowerProfileAppliancePC
	PowerProfilePerformanceServer
)

// fadtXDSDTOffset is the offset of the 64-bit DSDT pointer introduced by
// ACPI 2.0.
const fadtXDSDTOffset = 140

// FADT (Fixed ACPI Description Table) contains information about fixed
// register blocks used for power management. Only the fields needed to
// locate the DSDT and the SCI are decoded.
type FADT struct {
	SDTHeader

	FirmwareCtrl uint32
	DSDT         uint32

	PreferredPowerManagementProfile PowerProfileType
	SCIInterrupt                    uint16

	// XDSDT is the 64-bit DSDT pointer or 0 if the table predates
	// ACPI 2.0.
	XDSDT uint64
}

// fadtMinLength covers FirmwareCtrl through SCIInterrupt.
const fadtMinLength = SDTHeaderSize + 12

func (*FADT) signature() string { return FADTSignature }

func (*FADT) length(mem []byte) (int, bool) { return sdtLength(mem, fadtMinLength) }

func (t *FADT) decode(mem []byte) {
	decodeFixed(mem, &t.SDTHeader)

	body := mem[SDTHeaderSize:]
	t.FirmwareCtrl = binary.LittleEndian.Uint32(body[0:])
	t.DSDT = binary.LittleEndian.Uint32(body[4:])
	t.PreferredPowerManagementProfile = PowerProfileType(body[9])
	t.SCIInterrupt = binary.LittleEndian.Uint16(body[10:])

	if len(mem) >= fadtXDSDTOffset+8 {
		t.XDSDT = binary.LittleEndian.Uint64(mem[fadtXDSDTOffset:])
	}
}

// DSDTAddr returns the physical address of the DSDT, preferring the 64-bit
// pointer when present.
func (t *FADT) DSDTAddr() uint64 {
	if t.XDSDT != 0 {
		return t.XDSDT
	}
	return uint64(t.DSDT)
}
