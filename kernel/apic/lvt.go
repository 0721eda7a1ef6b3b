package apic

import "learnos/kernel/bits"

// TimerMode selects how the local APIC timer counts.
type TimerMode uint8

const (
	// OneShot counts down once and stops.
	OneShot TimerMode = iota

	// Periodic reloads the initial count every time the counter reaches 0.
	Periodic

	// TSCDeadline fires when the time stamp counter reaches the value in
	// the deadline MSR.
	TSCDeadline
)

func (m TimerMode) String() string {
	switch m {
	case OneShot:
		return "one-shot"
	case Periodic:
		return "periodic"
	case TSCDeadline:
		return "tsc-deadline"
	default:
		return "reserved"
	}
}

var (
	lvtVectorField = bits.Until(8)
	lvtModeField   = bits.Inclusive(17, 18)
)

const lvtMaskBit = 16

// LvtTimer is the timer entry of the local vector table.
type LvtTimer uint32

// DisabledTimer returns a masked timer entry.
func DisabledTimer() LvtTimer {
	return LvtTimer(0).WithMasked(true)
}

// PeriodicTimer returns an unmasked periodic timer entry delivering vector.
func PeriodicTimer(vector uint8) LvtTimer {
	return LvtTimer(0).WithVector(vector).WithMode(Periodic)
}

// OneShotTimer returns an unmasked one-shot timer entry delivering vector.
func OneShotTimer(vector uint8) LvtTimer {
	return LvtTimer(0).WithVector(vector).WithMode(OneShot)
}

// Vector returns the interrupt vector delivered when the timer fires.
func (t LvtTimer) Vector() uint8 { return uint8(bits.GetBits(uint32(t), lvtVectorField)) }

// WithVector returns a copy of t delivering vector.
func (t LvtTimer) WithVector(vector uint8) LvtTimer {
	return LvtTimer(bits.SetBits(uint32(t), lvtVectorField, uint32(vector)))
}

// Masked returns true if the timer interrupt is masked.
func (t LvtTimer) Masked() bool { return bits.GetBit(uint32(t), lvtMaskBit) }

// WithMasked returns a copy of t with the mask bit set to masked.
func (t LvtTimer) WithMasked(masked bool) LvtTimer {
	return LvtTimer(bits.SetBit(uint32(t), lvtMaskBit, masked))
}

// Mode returns the timer mode.
func (t LvtTimer) Mode() TimerMode { return TimerMode(bits.GetBits(uint32(t), lvtModeField)) }

// WithMode returns a copy of t using mode.
func (t LvtTimer) WithMode(mode TimerMode) LvtTimer {
	return LvtTimer(bits.SetBits(uint32(t), lvtModeField, uint32(mode)))
}

// TimerDivisor is the divide value applied to the timer's input clock. The
// constant values are the 3-bit divide codes.
type TimerDivisor uint8

const (
	Divisor2   TimerDivisor = 0b000
	Divisor4   TimerDivisor = 0b001
	Divisor8   TimerDivisor = 0b010
	Divisor16  TimerDivisor = 0b011
	Divisor32  TimerDivisor = 0b100
	Divisor64  TimerDivisor = 0b101
	Divisor128 TimerDivisor = 0b110
	Divisor1   TimerDivisor = 0b111
)

// divisorFieldMask covers the divide configuration bits 0, 1 and 3; bit 2
// is reserved.
const divisorFieldMask = 0b1011

// encode spreads the 3-bit divide code over bits 0, 1 and 3.
func (d TimerDivisor) encode() uint32 {
	v := uint32(d)
	return (v & 0b011) | (v&0b100)<<1
}

func decodeDivisor(reg uint32) TimerDivisor {
	return TimerDivisor((reg&0b1000)>>1 | reg&0b011)
}

// Value returns the number the input clock is divided by.
func (d TimerDivisor) Value() uint32 {
	if d == Divisor1 {
		return 1
	}
	return 2 << uint32(d&0b111)
}
