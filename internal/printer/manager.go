// Package printer drives a BLE receipt printer: it encodes receipts to ESC/POS,
// owns the connection state machine and streams jobs to the printer.
package printer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// DefaultServiceUUID is the generic ESC/POS BLE print service
const DefaultServiceUUID = "000018f0-0000-1000-8000-00805f9b34fb"

// State is the connection state of the Manager
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	return []string{"disconnected", "connecting", "connected", "disconnecting"}[s]
}

// Status is a snapshot of the Manager
type Status struct {
	State      State  `json:"-"`
	StateName  string `json:"state"`
	Connected  bool   `json:"connected"`
	DeviceID   string `json:"device_id,omitempty"`
	DeviceName string `json:"device_name,omitempty"`
}

// ManagerConfig configures a Manager
type ManagerConfig struct {
	ServiceUUID string
	Logger      *log.Logger
}

// Manager owns discovery, connection, the remembered printer identity and
// reconnection. There is one per process; only the Manager sets the
// characteristic used for printing.
type Manager struct {
	platform    Platform
	identities  IdentityStore
	serviceUUID string
	logger      *log.Logger

	// ops serializes connect, reconnect and disconnect
	ops sync.Mutex

	mu        sync.RWMutex
	state     State
	device    Device
	link      Link
	char      Characteristic
	noAck     bool
	epoch     uint64
	watchStop chan struct{}

	drops     chan uint64
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	onStateChange func(Status)
}

// NewManager creates a Manager and starts its link-drop event loop
func NewManager(platform Platform, identities IdentityStore, cfg ManagerConfig) *Manager {
	if cfg.ServiceUUID == "" {
		cfg.ServiceUUID = DefaultServiceUUID
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	m := &Manager{
		platform:    platform,
		identities:  identities,
		serviceUUID: cfg.ServiceUUID,
		logger:      cfg.Logger,
		drops:       make(chan uint64),
		done:        make(chan struct{}),
	}

	m.wg.Add(1)
	go m.run()

	return m
}

// OnStateChange sets a callback invoked after every state transition
func (m *Manager) OnStateChange(callback func(Status)) {
	m.mu.Lock()
	m.onStateChange = callback
	m.mu.Unlock()
}

// Connect connects to the remembered printer, or asks the user to pick one
// and remembers it. Any failure is returned as an error; nothing panics.
func (m *Manager) Connect(ctx context.Context) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	if m.IsConnected() {
		return nil
	}

	if err := m.checkRadio(ctx); err != nil {
		return err
	}

	if _, ok := m.loadIdentity(); ok {
		err := m.reconnectLocked(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNoTransport) {
			return err
		}
		m.logger.Printf("Remembered printer unavailable, asking for a printer: %v", err)
	}

	device, err := m.platform.RequestDevice(ctx, m.serviceUUID)
	if err != nil {
		if errors.Is(err, ErrPairingCancelled) {
			m.logger.Printf("Printer selection cancelled")
			return err
		}
		if errors.Is(err, ErrNotPaired) {
			m.logger.Printf("Printer selection unavailable: %v", err)
			return err
		}
		return m.afterFailure(ctx, fmt.Errorf("%w: device discovery: %w", ErrLinkFailure, err))
	}

	identity := Identity{DeviceID: device.ID(), Name: device.Name(), PairedAt: time.Now()}
	if err := m.identities.Save(identity); err != nil {
		// the session still works, it just won't be remembered
		m.logger.Printf("Warning: failed to remember printer %s: %v", identity.DeviceID, err)
	}

	if err := m.connectDevice(ctx, device); err != nil {
		return m.afterFailure(ctx, err)
	}
	return nil
}

// Reconnect reuses the current or remembered device without prompting the
// user. It returns ErrNotPaired when there is nothing to reuse and
// ErrReconnectUnsupported when the platform cannot look devices up.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	return m.reconnectLocked(ctx)
}

func (m *Manager) reconnectLocked(ctx context.Context) error {
	if m.IsConnected() {
		return nil
	}

	m.mu.RLock()
	device := m.device
	m.mu.RUnlock()

	var identity Identity
	if device == nil {
		var ok bool
		if identity, ok = m.loadIdentity(); !ok {
			return ErrNotPaired
		}

		known, err := m.platform.KnownDevice(ctx, identity.DeviceID)
		if err != nil {
			if errors.Is(err, ErrNotSupported) {
				return fmt.Errorf("%w: %w", ErrReconnectUnsupported, err)
			}
			err = fmt.Errorf("%w: %s: %w", ErrLinkFailure, identity.DeviceID, err)
			m.invalidate(identity, err)
			return err
		}
		device = known
	} else {
		identity = Identity{DeviceID: device.ID(), Name: device.Name()}
	}

	if err := m.checkRadio(ctx); err != nil {
		return err
	}

	m.logger.Printf("Reconnecting to printer %s", describe(device))
	if err := m.connectDevice(ctx, device); err != nil {
		m.invalidate(identity, err)
		return m.afterFailure(ctx, err)
	}
	return nil
}

// connectDevice opens the link and resolves the characteristic to print on.
// On failure no device, link or characteristic is retained.
func (m *Manager) connectDevice(ctx context.Context, device Device) error {
	var stale Link
	m.transition(func() {
		stale = m.link
		m.clearLocked()
		m.state = StateConnecting
	})
	if stale != nil {
		m.teardown(stale)
	}

	link, err := device.Connect(ctx)
	if err != nil {
		m.fail()
		return fmt.Errorf("%w: %s: %w", ErrLinkFailure, describe(device), err)
	}

	chars, err := link.Characteristics(ctx, m.serviceUUID)
	if err != nil {
		m.teardown(link)
		m.fail()
		return fmt.Errorf("%w: service %s: %w", ErrProtocolFailure, m.serviceUUID, err)
	}

	char, noAck := selectWritable(chars)
	if char == nil {
		m.teardown(link)
		m.fail()
		return fmt.Errorf("%w: no writable characteristic on %s", ErrProtocolFailure, describe(device))
	}

	var (
		epoch uint64
		stop  = make(chan struct{})
	)
	m.transition(func() {
		m.epoch++
		epoch = m.epoch
		m.device, m.link, m.char, m.noAck = device, link, char, noAck
		m.watchStop = stop
		m.state = StateConnected
	})

	m.wg.Add(1)
	go m.watch(epoch, link, stop)

	m.logger.Printf("Printer ready: %s (characteristic %s, without response: %v)", describe(device), char.UUID(), noAck)
	return nil
}

// selectWritable prefers a characteristic that takes writes without acknowledgement
func selectWritable(chars []Characteristic) (Characteristic, bool) {
	for _, c := range chars {
		if c.Properties().WriteWithoutResponse {
			return c, true
		}
	}
	for _, c := range chars {
		if c.Properties().Write {
			return c, false
		}
	}
	return nil, false
}

// IsConnected reports whether there is a device, its link is up and a
// writable characteristic is resolved
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	device, link, char := m.device, m.link, m.char
	m.mu.RUnlock()

	return device != nil && link != nil && char != nil && link.Connected()
}

// Characteristic returns the resolved characteristic and whether it takes
// writes without response
func (m *Manager) Characteristic() (Characteristic, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.char, m.noAck
}

// Disconnect tears the link down. The Manager ends up disconnected even if
// the platform reports an error.
func (m *Manager) Disconnect() {
	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.RLock()
	idle := m.link == nil && m.state == StateDisconnected
	m.mu.RUnlock()
	if idle {
		return
	}

	var link Link
	var name string
	m.transition(func() {
		link = m.link
		if m.device != nil {
			name = describe(m.device)
		}
		m.clearLocked()
		m.state = StateDisconnecting
	})

	m.teardown(link)

	m.transition(func() {
		m.state = StateDisconnected
	})

	if name != "" {
		m.logger.Printf("Printer %s disconnected", name)
	}
}

// Forget disconnects and drops the remembered printer
func (m *Manager) Forget() error {
	m.Disconnect()

	if err := m.identities.Clear(); err != nil {
		return fmt.Errorf("failed to forget printer: %w", err)
	}
	m.logger.Printf("Remembered printer cleared")
	return nil
}

// Identity returns the remembered printer, if any
func (m *Manager) Identity() (Identity, bool) {
	return m.loadIdentity()
}

// State returns the current connection state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state
}

// Status returns a snapshot of the connection
func (m *Manager) Status() Status {
	m.mu.RLock()
	s := m.statusLocked()
	m.mu.RUnlock()

	s.Connected = m.IsConnected()
	return s
}

func (m *Manager) statusLocked() Status {
	s := Status{State: m.state, StateName: m.state.String()}
	if m.device != nil {
		s.DeviceID = m.device.ID()
		s.DeviceName = m.device.Name()
	}
	s.Connected = m.state == StateConnected
	return s
}

// Close stops the event loop. It does not disconnect.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}

func (m *Manager) run() {
	defer m.wg.Done()

	for {
		select {
		case <-m.done:
			return
		case epoch := <-m.drops:
			m.handleDrop(epoch)
		}
	}
}

// watch forwards an out-of-band drop of link to the event loop
func (m *Manager) watch(epoch uint64, link Link, stop <-chan struct{}) {
	defer m.wg.Done()

	select {
	case <-link.Dropped():
	case <-stop:
		return
	case <-m.done:
		return
	}

	select {
	case m.drops <- epoch:
	case <-stop:
	case <-m.done:
	}
}

// handleDrop clears all connection state at once. Drops from links that were
// already replaced or torn down are ignored.
func (m *Manager) handleDrop(epoch uint64) {
	var name string
	dropped := false

	m.transition(func() {
		if epoch != m.epoch || m.link == nil {
			return
		}
		name = describe(m.device)
		m.clearLocked()
		m.state = StateDisconnected
		dropped = true
	})

	if dropped {
		m.logger.Printf("Printer %s link dropped", name)
	}
}

// transition applies fn under the state lock and reports the new state
func (m *Manager) transition(fn func()) {
	m.mu.Lock()
	before := m.state
	fn()
	status := m.statusLocked()
	callback := m.onStateChange
	m.mu.Unlock()

	if callback != nil && status.State != before {
		callback(status)
	}
}

func (m *Manager) fail() {
	m.transition(func() {
		m.clearLocked()
		m.state = StateDisconnected
	})
}

func (m *Manager) clearLocked() {
	if m.watchStop != nil {
		close(m.watchStop)
		m.watchStop = nil
	}
	m.device = nil
	m.link = nil
	m.char = nil
	m.noAck = false
}

func (m *Manager) teardown(link Link) {
	if link == nil {
		return
	}
	if err := link.Disconnect(); err != nil {
		m.logger.Printf("Warning: printer disconnect failed: %v", err)
	}
}

// checkRadio fails fast when the Bluetooth adapter is off
func (m *Manager) checkRadio(ctx context.Context) error {
	on, err := m.platform.RadioAvailable(ctx)
	if err != nil {
		if errors.Is(err, ErrNotSupported) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrNoTransport, err)
	}
	if on {
		return nil
	}

	m.logger.Printf("Bluetooth is off, opening Bluetooth settings")
	if err := m.platform.OpenSettings(); err != nil && !errors.Is(err, ErrNotSupported) {
		m.logger.Printf("Warning: could not open Bluetooth settings: %v", err)
	}
	return fmt.Errorf("%w: bluetooth radio is off", ErrNoTransport)
}

// afterFailure reports a failed attempt as ErrNoTransport if the radio went
// away while it was running
func (m *Manager) afterFailure(ctx context.Context, err error) error {
	if errors.Is(err, ErrNoTransport) {
		return err
	}
	if on, rerr := m.platform.RadioAvailable(ctx); rerr == nil && !on {
		return fmt.Errorf("%w: %w", ErrNoTransport, err)
	}
	m.logger.Printf("Printer connection failed: %v", err)
	return err
}

// invalidate forgets the remembered printer when it is gone for good
func (m *Manager) invalidate(identity Identity, err error) {
	if !errors.Is(err, ErrDeviceNotFound) && !errors.Is(err, ErrNetwork) {
		return
	}

	stored, ok := m.loadIdentity()
	if !ok || stored.DeviceID != identity.DeviceID {
		return
	}

	if cerr := m.identities.Clear(); cerr != nil {
		m.logger.Printf("Warning: failed to forget printer %s: %v", identity.DeviceID, cerr)
		return
	}
	m.logger.Printf("Forgot printer %s: %v", identity.DeviceID, err)
}

func (m *Manager) loadIdentity() (Identity, bool) {
	identity, ok, err := m.identities.Load()
	if err != nil {
		m.logger.Printf("Warning: failed to load remembered printer: %v", err)
		return Identity{}, false
	}
	if !ok || identity.DeviceID == "" {
		return Identity{}, false
	}
	return identity, true
}

func describe(d Device) string {
	if d == nil {
		return ""
	}
	if name := d.Name(); name != "" {
		return fmt.Sprintf("%s (%s)", name, d.ID())
	}
	return d.ID()
}
