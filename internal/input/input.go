package input

import (
	"github.com/openkbd/kbscand/internal/mux"
)

type DeviceID string

// Device is one attached input device as reported by the platform.
type Device interface {
	ID() DeviceID
	Name() string
	Virtual() bool
	FullKeyboard() bool
	Vendor() uint16
	Product() uint16
	Descriptor() string
}

// Provider enumerates the input devices currently known to the platform.
// A device disappearing between DeviceIDs and DeviceByID is not an error.
type Provider interface {
	DeviceIDs() []DeviceID
	DeviceByID(DeviceID) (Device, bool)
}

type Event interface {
	eventSealed()
}

type DeviceAdded struct {
	ID DeviceID
}

func (DeviceAdded) eventSealed() {}

type DeviceRemoved struct {
	ID DeviceID
}

func (DeviceRemoved) eventSealed() {}

type DeviceChanged struct {
	ID DeviceID
}

func (DeviceChanged) eventSealed() {}

// Hotplug delivers add/remove/change events for input devices.
type Hotplug interface {
	mux.Source[Event]
	Close()
}

func IsVirtual(dev Device) bool {
	return dev.Virtual()
}

func IsFullKeyboard(dev Device) bool {
	return dev.FullKeyboard()
}

// IsHardKeyboard matches the devices a snapshot is built from.
var IsHardKeyboard = mux.And(mux.Not[Device](IsVirtual), IsFullKeyboard)
