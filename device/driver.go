// Package device defines the interface between the kernel and the device
// drivers it probes during boot.
package device

import (
	"io"

	"learnos/kernel"
	"learnos/kernel/mm"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprintf.
	DriverInit(io.Writer) *kernel.Error
}

// ProbeContext describes what the kernel knows about the machine when the
// drivers are probed.
type ProbeContext struct {
	// Mapping provides access to physical memory.
	Mapping mm.DirectMapping

	// CmdLine holds the boot command line key/value pairs.
	CmdLine map[string]string

	// ACPIRootPointer is a copy of the ACPI RSDP handed over by the boot
	// loader or nil if none was provided.
	ACPIRootPointer []byte

	// BootCPU is the local APIC id of the CPU running the probe.
	BootCPU uint8
}

// ProbeFn is a function that scans for the presence of a particular
// piece of hardware and returns a driver for it.
type ProbeFn func(*ProbeContext) Driver

// DetectOrder specifies when each driver's probe function will be invoked
// by the kernel.
type DetectOrder int8

const (
	// DetectOrderEarly specifies that the driver's probe function should
	// be executed at the beginning of the probe phase.
	DetectOrderEarly DetectOrder = -128

	// DetectOrderBeforeACPI specifies that the driver's probe function
	// should be executed before attempting any ACPI-based hardware
	// detection but after any drivers with DetectOrderEarly.
	DetectOrderBeforeACPI DetectOrder = -127

	// DetectOrderACPI specifies that the driver's probe function should
	// be executed after parsing the ACPI tables.
	DetectOrderACPI DetectOrder = 0

	// DetectOrderLast specifies that the driver's probe function should
	// be executed at the end of the probe phase.
	DetectOrderLast DetectOrder = 127
)

// DriverInfo is a driver-defined struct that is passed to calls to
// RegisterDriver.
type DriverInfo struct {
	// Order specifies at which stage of the probe phase the driver's probe
	// function will be invoked.
	Order DetectOrder

	// Probe is the function that checks for the presence of the device.
	Probe ProbeFn
}

// DriverInfoList is a list of registered drivers that implements
// sort.Interface.
type DriverInfoList []*DriverInfo

// Len returns the length of the driver info list.
func (l DriverInfoList) Len() int { return len(l) }

// Swap exchanges 2 elements in the driver info list.
func (l DriverInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

// Less compares 2 elements of the driver info list.
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }

var registeredDrivers DriverInfoList

// RegisterDriver adds the supplied driver info to the list of registered
// drivers. Drivers call it from their init functions.
func RegisterDriver(info *DriverInfo) {
	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns a copy of the registered driver list.
func DriverList() DriverInfoList {
	return append(DriverInfoList(nil), registeredDrivers...)
}
