package printer

import (
	"context"
	"time"
)

// Platform is the host Bluetooth stack the Manager drives
type Platform interface {
	// RadioAvailable reports whether the Bluetooth adapter is present and
	// powered. Platforms that cannot tell return ErrNotSupported.
	RadioAvailable(ctx context.Context) (bool, error)

	// OpenSettings opens the system Bluetooth settings for the user
	OpenSettings() error

	// RequestDevice lets the user pick a device. Any device may be chosen;
	// serviceUUID is only a hint for which ones look like printers.
	// Returns ErrPairingCancelled if the user backs out.
	RequestDevice(ctx context.Context, serviceUUID string) (Device, error)

	// KnownDevice returns a previously granted device without prompting.
	// Returns ErrNotSupported if the platform cannot remember devices and
	// ErrDeviceNotFound if id is unknown.
	KnownDevice(ctx context.Context, id string) (Device, error)
}

// Device is a BLE peripheral handle
type Device interface {
	ID() string
	Name() string

	// Connect opens the GATT link
	Connect(ctx context.Context) (Link, error)
}

// Link is a live GATT connection
type Link interface {
	Connected() bool

	// Characteristics lists the characteristics of the given primary service
	Characteristics(ctx context.Context, serviceUUID string) ([]Characteristic, error)

	// Dropped is closed when the link is lost without Disconnect being called
	Dropped() <-chan struct{}

	Disconnect() error
}

// Properties are the write capabilities of a characteristic
type Properties struct {
	Write                bool
	WriteWithoutResponse bool
}

// Characteristic is a GATT characteristic that accepts printer bytes
type Characteristic interface {
	UUID() string
	Properties() Properties
	WriteValue(ctx context.Context, data []byte, withoutResponse bool) error
}

// Identity is the remembered printer
type Identity struct {
	DeviceID string    `json:"device_id"`
	Name     string    `json:"name,omitempty"`
	PairedAt time.Time `json:"paired_at"`
}

// IdentityStore persists the single remembered printer across restarts
type IdentityStore interface {
	// Load returns the stored identity and false if none is stored
	Load() (Identity, bool, error)
	Save(Identity) error
	Clear() error
}
