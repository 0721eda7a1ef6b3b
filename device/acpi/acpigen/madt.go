package acpigen

import (
	"bytes"
	"encoding/binary"

	"learnos/device/acpi/table"
)

// MADTBody returns the payload of a MADT: the local APIC address, the flags
// word and the given records.
func MADTBody(lapicAddr uint32, flags uint32, records ...[]byte) []byte {
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, lapicAddr)
	_ = binary.Write(buf, binary.LittleEndian, flags)
	for _, r := range records {
		buf.Write(r)
	}
	return buf.Bytes()
}

func record(entryType table.MADTEntryType, payload ...any) []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte(byte(entryType))
	buf.WriteByte(0)
	for _, v := range payload {
		_ = binary.Write(buf, binary.LittleEndian, v)
	}

	out := buf.Bytes()
	out[1] = uint8(len(out))
	return out
}

// LocalAPIC returns a processor local APIC record.
func LocalAPIC(acpiID, apicID uint8, enabled bool) []byte {
	var flags uint32
	if enabled {
		flags = 1
	}
	return record(table.MADTEntryTypeLocalAPIC, acpiID, apicID, flags)
}

// IOAPIC returns an I/O APIC record.
func IOAPIC(id uint8, addr uint32, gsiBase uint32) []byte {
	return record(table.MADTEntryTypeIOAPIC, id, uint8(0), addr, gsiBase)
}

// InterruptOverride returns an interrupt source override record.
func InterruptOverride(bus, irq uint8, gsi uint32, flags table.INTIFlags) []byte {
	return record(table.MADTEntryTypeIntSrcOverride, bus, irq, gsi, uint16(flags))
}

// NMI returns a local APIC NMI record.
func NMI(processor uint8, flags table.INTIFlags, lint uint8) []byte {
	return record(table.MADTEntryTypeNMI, processor, uint16(flags), lint)
}

// LocalAPICOverride returns a local APIC address override record.
func LocalAPICOverride(addr uint64) []byte {
	return record(table.MADTEntryTypeLocalAPICOverride, uint16(0), addr)
}

// RawRecord returns a record of an arbitrary type carrying payload.
func RawRecord(entryType uint8, payload []byte) []byte {
	return record(table.MADTEntryType(entryType), payload)
}

// INTI builds interrupt override flags from polarity and trigger mode
// codes.
func INTI(polarity, trigger uint8) table.INTIFlags {
	return table.INTIFlags(polarity&0b11) | table.INTIFlags(trigger&0b11)<<2
}
