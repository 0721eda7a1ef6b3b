package apic

import "learnos/kernel/bits"

// DeliveryMode selects how an interrupt message is delivered.
type DeliveryMode uint8

const (
	DeliveryFixed          DeliveryMode = 0b000
	DeliveryLowestPriority DeliveryMode = 0b001
	DeliverySMI            DeliveryMode = 0b010
	DeliveryNMI            DeliveryMode = 0b100
	DeliveryINIT           DeliveryMode = 0b101
	DeliveryExtINT         DeliveryMode = 0b111
)

// Polarity is the active level of an interrupt input.
type Polarity uint8

const (
	ActiveHigh Polarity = iota
	ActiveLow
)

func (p Polarity) String() string {
	if p == ActiveLow {
		return "active-low"
	}
	return "active-high"
}

// TriggerMode selects edge or level sensitivity of an interrupt input.
type TriggerMode uint8

const (
	EdgeTriggered TriggerMode = iota
	LevelTriggered
)

func (m TriggerMode) String() string {
	if m == LevelTriggered {
		return "level"
	}
	return "edge"
}

// DestinationMode selects how the destination field is interpreted.
type DestinationMode uint8

const (
	PhysicalDestination DestinationMode = iota
	LogicalDestination
)

var (
	redirVectorField       = bits.Until(8)
	redirDeliveryModeField = bits.Inclusive(8, 10)
	redirDestinationField  = bits.Inclusive(56, 63)
)

const (
	redirDestModeBit       = 11
	redirDeliveryStatusBit = 12
	redirPolarityBit       = 13
	redirRemoteIRRBit      = 14
	redirTriggerModeBit    = 15
	redirMaskBit           = 16
)

// RedirectionEntry is a 64-bit I/O APIC redirection table entry.
type RedirectionEntry uint64

// Vector returns the interrupt vector.
func (e RedirectionEntry) Vector() uint8 {
	return uint8(bits.GetBits(uint64(e), redirVectorField))
}

// WithVector returns a copy of e delivering vector.
func (e RedirectionEntry) WithVector(vector uint8) RedirectionEntry {
	return RedirectionEntry(bits.SetBits(uint64(e), redirVectorField, uint64(vector)))
}

// DeliveryMode returns the delivery mode.
func (e RedirectionEntry) DeliveryMode() DeliveryMode {
	return DeliveryMode(bits.GetBits(uint64(e), redirDeliveryModeField))
}

// WithDeliveryMode returns a copy of e using mode.
func (e RedirectionEntry) WithDeliveryMode(mode DeliveryMode) RedirectionEntry {
	return RedirectionEntry(bits.SetBits(uint64(e), redirDeliveryModeField, uint64(mode)))
}

// DestinationMode returns the destination mode.
func (e RedirectionEntry) DestinationMode() DestinationMode {
	if bits.GetBit(uint64(e), redirDestModeBit) {
		return LogicalDestination
	}
	return PhysicalDestination
}

// WithDestinationMode returns a copy of e using mode.
func (e RedirectionEntry) WithDestinationMode(mode DestinationMode) RedirectionEntry {
	return RedirectionEntry(bits.SetBit(uint64(e), redirDestModeBit, mode == LogicalDestination))
}

// SendPending returns true if the interrupt is waiting to be delivered.
// The bit is read-only.
func (e RedirectionEntry) SendPending() bool {
	return bits.GetBit(uint64(e), redirDeliveryStatusBit)
}

// RemoteIRR returns true while a level-triggered interrupt is being
// serviced. The bit is read-only.
func (e RedirectionEntry) RemoteIRR() bool {
	return bits.GetBit(uint64(e), redirRemoteIRRBit)
}

// Polarity returns the input polarity.
func (e RedirectionEntry) Polarity() Polarity {
	if bits.GetBit(uint64(e), redirPolarityBit) {
		return ActiveLow
	}
	return ActiveHigh
}

// WithPolarity returns a copy of e using polarity p.
func (e RedirectionEntry) WithPolarity(p Polarity) RedirectionEntry {
	return RedirectionEntry(bits.SetBit(uint64(e), redirPolarityBit, p == ActiveLow))
}

// TriggerMode returns the trigger mode.
func (e RedirectionEntry) TriggerMode() TriggerMode {
	if bits.GetBit(uint64(e), redirTriggerModeBit) {
		return LevelTriggered
	}
	return EdgeTriggered
}

// WithTriggerMode returns a copy of e using mode.
func (e RedirectionEntry) WithTriggerMode(mode TriggerMode) RedirectionEntry {
	return RedirectionEntry(bits.SetBit(uint64(e), redirTriggerModeBit, mode == LevelTriggered))
}

// Masked returns true if the interrupt input is masked.
func (e RedirectionEntry) Masked() bool {
	return bits.GetBit(uint64(e), redirMaskBit)
}

// WithMasked returns a copy of e with the mask bit set to masked.
func (e RedirectionEntry) WithMasked(masked bool) RedirectionEntry {
	return RedirectionEntry(bits.SetBit(uint64(e), redirMaskBit, masked))
}

// Destination returns the destination APIC id (physical mode) or set of
// processors (logical mode).
func (e RedirectionEntry) Destination() uint8 {
	return uint8(bits.GetBits(uint64(e), redirDestinationField))
}

// WithDestination returns a copy of e targeting dest.
func (e RedirectionEntry) WithDestination(dest uint8) RedirectionEntry {
	return RedirectionEntry(bits.SetBits(uint64(e), redirDestinationField, uint64(dest)))
}
