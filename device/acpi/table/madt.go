package table

import "encoding/binary"

// MADT (Multiple APIC Description Table) is an ACPI table containing
// information about the interrupt controllers and the number of installed
// CPUs. Following the table header are a series of variable sized records
// which are visited with Entries.
type MADT struct {
	SDTHeader

	LocalControllerAddress uint32
	Flags                  uint32

	records []byte
}

// madtFlagPCAT is set when the system also has dual 8259 PICs that must be
// disabled before the APICs are used.
const madtFlagPCAT = 1 << 0

func (*MADT) signature() string { return MADTSignature }

func (*MADT) length(mem []byte) (int, bool) { return sdtLength(mem, MADTHeaderSize) }

func (t *MADT) decode(mem []byte) {
	decodeFixed(mem, &t.SDTHeader)
	t.LocalControllerAddress = binary.LittleEndian.Uint32(mem[SDTHeaderSize:])
	t.Flags = binary.LittleEndian.Uint32(mem[SDTHeaderSize+4:])
	t.records = mem[MADTHeaderSize:]
}

// PCATCompatible returns true if the system has legacy 8259 PICs.
func (t *MADT) PCATCompatible() bool { return t.Flags&madtFlagPCAT != 0 }

// Entries returns an iterator over the MADT records.
func (t *MADT) Entries() *MADTIterator {
	return &MADTIterator{records: t.records}
}

// LocalAPICAddr returns the physical address of the local APIC registers. A
// local APIC address override record takes precedence over the 32-bit
// address in the table header.
func (t *MADT) LocalAPICAddr() uint64 {
	addr := uint64(t.LocalControllerAddress)
	for it := t.Entries(); ; {
		entry, ok := it.Next()
		if !ok {
			return addr
		}
		if ovr, ok := entry.LocalAPICOverride(); ok {
			return ovr.Address
		}
	}
}

// MADTEntryType describes the type of a MADT record.
type MADTEntryType uint8

// The list of supported MADT entry types.
const (
	MADTEntryTypeLocalAPIC         MADTEntryType = 0
	MADTEntryTypeIOAPIC            MADTEntryType = 1
	MADTEntryTypeIntSrcOverride    MADTEntryType = 2
	MADTEntryTypeNMI               MADTEntryType = 4
	MADTEntryTypeLocalAPICOverride MADTEntryType = 5
)

// madtEntryHeaderSize is the size of the type and length prefix of every
// record.
const madtEntryHeaderSize = 2

// MADTEntry is a single MADT record. Data holds the record bytes following
// the type and length prefix. Records of unknown type are only ever exposed
// as raw bytes.
type MADTEntry struct {
	Type   MADTEntryType
	Length uint8
	Data   []byte
}

// MADTIterator walks the variable-length MADT records. Once Next returns
// false, all further calls return false.
type MADTIterator struct {
	records []byte
	offset  int
	done    bool
}

// Next returns the next record. It panics with ErrMADTCorrupted if a record
// is shorter than its prefix or extends past the end of the table.
func (it *MADTIterator) Next() (MADTEntry, bool) {
	if it.done {
		return MADTEntry{}, false
	}

	remaining := len(it.records) - it.offset
	if remaining == 0 {
		it.done = true
		return MADTEntry{}, false
	}

	if remaining < madtEntryHeaderSize {
		it.done = true
		panic(ErrMADTCorrupted)
	}

	entryType, entryLen := it.records[it.offset], it.records[it.offset+1]
	if int(entryLen) < madtEntryHeaderSize || int(entryLen) > remaining {
		it.done = true
		panic(ErrMADTCorrupted)
	}

	entry := MADTEntry{
		Type:   MADTEntryType(entryType),
		Length: entryLen,
		Data:   it.records[it.offset+madtEntryHeaderSize : it.offset+int(entryLen)],
	}
	it.offset += int(entryLen)
	return entry, true
}

// payload returns the record data when e has the expected type. A record of
// the right type that is too short to hold the payload is corrupted.
func (e MADTEntry) payload(entryType MADTEntryType, size int) ([]byte, bool) {
	if e.Type != entryType {
		return nil, false
	}
	if len(e.Data) < size {
		panic(ErrMADTCorrupted)
	}
	return e.Data, true
}

// MADTLocalAPIC describes a single physical processor and its local
// interrupt controller.
type MADTLocalAPIC struct {
	ProcessorID uint8
	APICID      uint8
	Flags       uint32
}

// Enabled returns true if the processor can be used.
func (e MADTLocalAPIC) Enabled() bool { return e.Flags&1 != 0 }

// LocalAPIC decodes a processor local APIC record.
func (e MADTEntry) LocalAPIC() (MADTLocalAPIC, bool) {
	var v MADTLocalAPIC
	data, ok := e.payload(MADTEntryTypeLocalAPIC, 6)
	if ok {
		decodeFixed(data, &v)
	}
	return v, ok
}

// MADTIOAPIC describes an I/O Advanced Programmable Interrupt Controller.
type MADTIOAPIC struct {
	APICID uint8
	_      uint8

	// Address contains the physical address of the controller.
	Address uint32

	// SysInterruptBase defines the first interrupt number that this
	// controller handles.
	SysInterruptBase uint32
}

// IOAPIC decodes an I/O APIC record.
func (e MADTEntry) IOAPIC() (MADTIOAPIC, bool) {
	var v MADTIOAPIC
	data, ok := e.payload(MADTEntryTypeIOAPIC, 10)
	if ok {
		decodeFixed(data, &v)
	}
	return v, ok
}

// MADTInterruptSrcOverride contains the data for an Interrupt Source
// Override. This mechanism is used to map IRQ sources to global system
// interrupts.
type MADTInterruptSrcOverride struct {
	BusSrc          uint8
	IRQSrc          uint8
	GlobalInterrupt uint32
	Flags           INTIFlags
}

// InterruptOverride decodes an interrupt source override record.
func (e MADTEntry) InterruptOverride() (MADTInterruptSrcOverride, bool) {
	var v MADTInterruptSrcOverride
	data, ok := e.payload(MADTEntryTypeIntSrcOverride, 8)
	if ok {
		decodeFixed(data, &v)
	}
	return v, ok
}

// MADTNMI describes a non-maskable interrupt that we need to set up for a
// single processor or all processors.
type MADTNMI struct {
	// Processor specifies the ACPI processor id whose local APIC we need
	// to configure for this NMI. If set to 0xff all processors are
	// affected.
	Processor uint8

	Flags INTIFlags

	// This value will be either 0 or 1 and specifies which entry in the
	// local vector table of the processor's local APIC we need to setup.
	LINT uint8
}

// AllProcessors is the MADTNMI.Processor value that targets every CPU.
const AllProcessors = 0xFF

// NMI decodes a local APIC NMI record.
func (e MADTEntry) NMI() (MADTNMI, bool) {
	var v MADTNMI
	data, ok := e.payload(MADTEntryTypeNMI, 4)
	if ok {
		decodeFixed(data, &v)
	}
	return v, ok
}

// MADTLocalAPICOverride provides the 64-bit address of the local APIC.
type MADTLocalAPICOverride struct {
	_       uint16
	Address uint64
}

// LocalAPICOverride decodes a local APIC address override record.
func (e MADTEntry) LocalAPICOverride() (MADTLocalAPICOverride, bool) {
	var v MADTLocalAPICOverride
	data, ok := e.payload(MADTEntryTypeLocalAPICOverride, 10)
	if ok {
		decodeFixed(data, &v)
	}
	return v, ok
}

// INTIFlags holds the MPS INTI flags of interrupt override and NMI records.
type INTIFlags uint16

// Polarity values of INTIFlags.
const (
	PolarityBusDefault = 0b00
	PolarityActiveHigh = 0b01
	PolarityActiveLow  = 0b11
)

// Trigger mode values of INTIFlags.
const (
	TriggerBusDefault = 0b00
	TriggerEdge       = 0b01
	TriggerLevel      = 0b11
)

// Polarity returns the polarity field (bits 0-1).
func (f INTIFlags) Polarity() uint8 { return uint8(f & 0b11) }

// TriggerMode returns the trigger mode field (bits 2-3).
func (f INTIFlags) TriggerMode() uint8 { return uint8(f>>2) & 0b11 }
