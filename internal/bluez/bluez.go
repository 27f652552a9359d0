// Package bluez implements printer.Platform on top of the Linux BlueZ
// D-Bus API
package bluez

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/thereceipt/bleprint/internal/printer"
)

const (
	busName            = "org.bluez"
	adapterIface       = "org.bluez.Adapter1"
	deviceIface        = "org.bluez.Device1"
	serviceIface       = "org.bluez.GattService1"
	charIface          = "org.bluez.GattCharacteristic1"
	propertiesIface    = "org.freedesktop.DBus.Properties"
	objectManagerIface = "org.freedesktop.DBus.ObjectManager"
)

// Chooser lets the user pick one of the discovered devices
type Chooser interface {
	Choose(ctx context.Context, candidates []Candidate) (Candidate, error)
}

// Config configures a Platform
type Config struct {
	Adapter         string
	ScanDuration    time.Duration
	ConnectTimeout  time.Duration
	SettingsCommand []string
	Chooser         Chooser
	Logger          *log.Logger
}

// Platform drives one BlueZ adapter over the system bus
type Platform struct {
	conn           *dbus.Conn
	adapter        dbus.ObjectPath
	scan           time.Duration
	connectTimeout time.Duration
	settings       []string
	chooser        Chooser
	logger         *log.Logger
}

// Open connects to the system bus
func Open(cfg Config) (*Platform, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("%w: system bus: %w", printer.ErrNoTransport, err)
	}
	return New(conn, cfg), nil
}

// New wraps an existing bus connection
func New(conn *dbus.Conn, cfg Config) *Platform {
	if cfg.Adapter == "" {
		cfg.Adapter = "hci0"
	}
	if cfg.ScanDuration <= 0 {
		cfg.ScanDuration = 8 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	return &Platform{
		conn:           conn,
		adapter:        dbus.ObjectPath("/org/bluez/" + cfg.Adapter),
		scan:           cfg.ScanDuration,
		connectTimeout: cfg.ConnectTimeout,
		settings:       cfg.SettingsCommand,
		chooser:        cfg.Chooser,
		logger:         cfg.Logger,
	}
}

// Close closes the bus connection
func (p *Platform) Close() error {
	return p.conn.Close()
}

// RadioAvailable reports whether the adapter exists and is powered
func (p *Platform) RadioAvailable(ctx context.Context) (bool, error) {
	var powered dbus.Variant
	err := p.conn.Object(busName, p.adapter).
		CallWithContext(ctx, propertiesIface+".Get", 0, adapterIface, "Powered").
		Store(&powered)
	if err != nil {
		switch errorName(err) {
		case "org.freedesktop.DBus.Error.UnknownObject", "org.freedesktop.DBus.Error.UnknownMethod",
			"org.freedesktop.DBus.Error.ServiceUnknown", "org.freedesktop.DBus.Error.NameHasNoOwner":
			// no adapter, or bluetoothd is not running
			return false, nil
		}
		return false, err
	}

	on, _ := powered.Value().(bool)
	return on, nil
}

// OpenSettings launches the configured Bluetooth settings program
func (p *Platform) OpenSettings() error {
	if len(p.settings) == 0 {
		return printer.ErrNotSupported
	}

	cmd := exec.Command(p.settings[0], p.settings[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", p.settings[0], err)
	}
	go cmd.Wait()
	return nil
}

// RequestDevice scans for nearby devices and lets the chooser pick one
func (p *Platform) RequestDevice(ctx context.Context, serviceUUID string) (printer.Device, error) {
	if p.chooser == nil {
		return nil, printer.ErrNotSupported
	}

	if err := p.discover(ctx); err != nil {
		return nil, err
	}

	objects, err := p.managedObjects(ctx)
	if err != nil {
		return nil, err
	}

	found := candidates(objects, p.adapter, serviceUUID)
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: no bluetooth devices nearby", printer.ErrDeviceNotFound)
	}

	choice, err := p.chooser.Choose(ctx, found)
	if err != nil {
		return nil, err
	}

	p.logger.Printf("Selected printer %s (%s)", choice.Label(), choice.Address)
	return &device{platform: p, path: choice.Path, address: choice.Address, name: choice.Name}, nil
}

// KnownDevice looks up a device by address, scanning once if BlueZ has
// already dropped it from its cache
func (p *Platform) KnownDevice(ctx context.Context, address string) (printer.Device, error) {
	objects, err := p.managedObjects(ctx)
	if err != nil {
		return nil, err
	}

	path, name, ok := findDevice(objects, p.adapter, address)
	if !ok {
		if err := p.discover(ctx); err != nil {
			return nil, err
		}
		if objects, err = p.managedObjects(ctx); err != nil {
			return nil, err
		}
		if path, name, ok = findDevice(objects, p.adapter, address); !ok {
			return nil, fmt.Errorf("%w: %s", printer.ErrDeviceNotFound, address)
		}
	}

	return &device{platform: p, path: path, address: strings.ToUpper(address), name: name}, nil
}

// discover runs LE discovery for the configured scan duration
func (p *Platform) discover(ctx context.Context) error {
	adapter := p.conn.Object(busName, p.adapter)

	filter := map[string]dbus.Variant{"Transport": dbus.MakeVariant("le")}
	if err := adapter.CallWithContext(ctx, adapterIface+".SetDiscoveryFilter", 0, filter).Err; err != nil {
		p.logger.Printf("Warning: discovery filter rejected: %v", err)
	}

	if err := adapter.CallWithContext(ctx, adapterIface+".StartDiscovery", 0).Err; err != nil {
		if errorName(err) != "org.bluez.Error.InProgress" {
			return mapError(fmt.Errorf("start discovery: %w", err))
		}
	}
	defer func() {
		if err := adapter.Call(adapterIface+".StopDiscovery", 0).Err; err != nil {
			p.logger.Printf("Warning: stop discovery: %v", err)
		}
	}()

	p.logger.Printf("🔍 Scanning for Bluetooth printers (%s)...", p.scan)
	timer := time.NewTimer(p.scan)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Platform) managedObjects(ctx context.Context) (managedObjects, error) {
	var objects managedObjects
	err := p.conn.Object(busName, "/").
		CallWithContext(ctx, objectManagerIface+".GetManagedObjects", 0).
		Store(&objects)
	if err != nil {
		return nil, mapError(fmt.Errorf("list bluetooth objects: %w", err))
	}
	return objects, nil
}

// errorName returns the D-Bus error name carried by err, if any
func errorName(err error) string {
	var e dbus.Error
	if errors.As(err, &e) {
		return e.Name
	}
	var pe *dbus.Error
	if errors.As(err, &pe) {
		return pe.Name
	}
	return ""
}

// mapError tags BlueZ errors with the printer failure they stand for
func mapError(err error) error {
	if err == nil {
		return nil
	}

	name := errorName(err)
	switch name {
	case "org.bluez.Error.DoesNotExist", "org.freedesktop.DBus.Error.UnknownObject":
		return fmt.Errorf("%w: %w", printer.ErrDeviceNotFound, err)
	case "org.bluez.Error.NotReady", "org.freedesktop.DBus.Error.ServiceUnknown":
		return fmt.Errorf("%w: %w", printer.ErrNoTransport, err)
	case "org.bluez.Error.NotConnected":
		return fmt.Errorf("%w: %w", printer.ErrLinkDropped, err)
	case "org.freedesktop.DBus.Error.NoReply", "org.freedesktop.DBus.Error.Timeout":
		return fmt.Errorf("%w: %w", printer.ErrNetwork, err)
	case "org.bluez.Error.Failed", "org.bluez.Error.ConnectionAttemptFailed":
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "host is down") || strings.Contains(msg, "page timeout") ||
			strings.Contains(msg, "timed out") {
			return fmt.Errorf("%w: %w", printer.ErrNetwork, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", printer.ErrNetwork, err)
	}
	return err
}
