// Package acpigen synthesizes ACPI firmware tables. It is used to boot the
// memory core against simulated firmware.
package acpigen

import (
	"bytes"
	"encoding/binary"

	"learnos/device/acpi/table"
)

// OEMInfo mirrors the ACPI table header OEM fields.
type OEMInfo struct {
	OEMID           [6]byte
	OEMTableID      [8]byte
	OEMRevision     uint32
	CreatorID       [4]byte
	CreatorRevision uint32
}

// DefaultOEMInfo returns the table header metadata used when none is
// configured.
func DefaultOEMInfo() OEMInfo {
	return OEMInfo{
		OEMID:           [6]byte{'L', 'E', 'A', 'R', 'N', ' '},
		OEMTableID:      [8]byte{'L', 'E', 'A', 'R', 'N', 'O', 'S', ' '},
		OEMRevision:     1,
		CreatorID:       [4]byte{'L', 'N', 'O', 'S'},
		CreatorRevision: 1,
	}
}

// Writer lays out system description tables back to back in a buffer that
// will be placed at physical address base.
type Writer struct {
	buf  bytes.Buffer
	base uint64
	oem  OEMInfo
}

// NewWriter returns a Writer for tables starting at physical address base.
func NewWriter(base uint64, oem OEMInfo) *Writer {
	return &Writer{base: base, oem: oem}
}

// Append writes a table with the given signature and body, fills in its
// length and checksum and returns its physical address. Tables are padded
// to 8 bytes.
func (w *Writer) Append(signature string, revision uint8, body []byte) uint64 {
	start := w.buf.Len()
	w.buf.Write(SDT(signature, revision, w.oem, body))

	if pad := w.buf.Len() % 8; pad != 0 {
		w.buf.Write(make([]byte, 8-pad))
	}

	return w.base + uint64(start)
}

// Bytes returns the tables written so far.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// SDT returns a complete system description table.
func SDT(signature string, revision uint8, oem OEMInfo, body []byte) []byte {
	out := make([]byte, table.SDTHeaderSize+len(body))
	copy(out[:4], signature)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)))
	out[8] = revision
	copy(out[10:16], oem.OEMID[:])
	copy(out[16:24], oem.OEMTableID[:])
	binary.LittleEndian.PutUint32(out[24:28], oem.OEMRevision)
	copy(out[28:32], oem.CreatorID[:])
	binary.LittleEndian.PutUint32(out[32:36], oem.CreatorRevision)
	copy(out[table.SDTHeaderSize:], body)

	out[9] = table.Checksum(out)
	return out
}

// RSDP returns a root system description pointer. For revision 2 and later
// the 36-byte extended structure is returned.
func RSDP(revision uint8, rsdtAddr uint32, xsdtAddr uint64, oem OEMInfo) []byte {
	size := table.RSDPSize
	if revision >= 2 {
		size = table.ExtRSDPSize
	}

	out := make([]byte, size)
	copy(out[0:8], table.RSDPSignature)
	copy(out[9:15], oem.OEMID[:])
	out[15] = revision
	binary.LittleEndian.PutUint32(out[16:20], rsdtAddr)
	out[8] = table.Checksum(out[:table.RSDPSize])

	if revision >= 2 {
		binary.LittleEndian.PutUint32(out[20:24], uint32(size))
		binary.LittleEndian.PutUint64(out[24:32], xsdtAddr)
		out[32] = table.Checksum(out)
	}

	return out
}

// RSDTBody returns the payload of an RSDT listing ptrs.
func RSDTBody(ptrs ...uint32) []byte {
	out := make([]byte, 4*len(ptrs))
	for i, p := range ptrs {
		binary.LittleEndian.PutUint32(out[4*i:], p)
	}
	return out
}

// XSDTBody returns the payload of an XSDT listing ptrs.
func XSDTBody(ptrs ...uint64) []byte {
	out := make([]byte, 8*len(ptrs))
	for i, p := range ptrs {
		binary.LittleEndian.PutUint64(out[8*i:], p)
	}
	return out
}

// FADTBody returns an ACPI 2.0 FADT payload that only points to the DSDT.
func FADTBody(dsdtAddr uint64, sci uint16) []byte {
	// 244-byte table minus the header.
	out := make([]byte, 244-table.SDTHeaderSize)
	binary.LittleEndian.PutUint32(out[4:8], uint32(dsdtAddr))
	out[9] = 1 // desktop
	binary.LittleEndian.PutUint16(out[10:12], sci)
	binary.LittleEndian.PutUint64(out[140-table.SDTHeaderSize:], dsdtAddr)
	return out
}
