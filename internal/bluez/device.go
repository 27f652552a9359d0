package bluez

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/thereceipt/bleprint/internal/printer"
)

const resolvePoll = 100 * time.Millisecond

type device struct {
	platform *Platform
	path     dbus.ObjectPath
	address  string
	name     string
}

func (d *device) ID() string   { return d.address }
func (d *device) Name() string { return d.name }

// Connect connects the device and waits until its GATT services are resolved
func (d *device) Connect(ctx context.Context) (printer.Link, error) {
	p := d.platform
	ctx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()

	l := &link{
		platform: p,
		device:   d,
		signals:  make(chan *dbus.Signal, 16),
		dropped:  make(chan struct{}),
		stop:     make(chan struct{}),
	}
	// subscribe first so a drop during service resolution is not missed
	if err := l.subscribe(); err != nil {
		return nil, err
	}

	obj := p.conn.Object(busName, d.path)
	if err := obj.CallWithContext(ctx, deviceIface+".Connect", 0).Err; err != nil {
		l.unsubscribe()
		return nil, mapError(err)
	}

	if err := d.waitResolved(ctx); err != nil {
		l.unsubscribe()
		obj.Call(deviceIface+".Disconnect", 0)
		return nil, mapError(err)
	}

	go l.watch()
	return l, nil
}

func (d *device) waitResolved(ctx context.Context) error {
	ticker := time.NewTicker(resolvePoll)
	defer ticker.Stop()

	for {
		resolved, err := d.property(ctx, "ServicesResolved")
		if err != nil {
			return err
		}
		if ok, _ := resolved.Value().(bool); ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for services: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (d *device) property(ctx context.Context, name string) (dbus.Variant, error) {
	var v dbus.Variant
	err := d.platform.conn.Object(busName, d.path).
		CallWithContext(ctx, propertiesIface+".Get", 0, deviceIface, name).
		Store(&v)
	return v, err
}

// link is a connected device. dropped is closed when BlueZ reports the
// device disconnected without Disconnect being called.
type link struct {
	platform *Platform
	device   *device
	signals  chan *dbus.Signal
	dropped  chan struct{}
	stop     chan struct{}

	mu      sync.Mutex
	closing bool
	once    sync.Once
}

func (l *link) matchOptions() []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchObjectPath(l.device.path),
		dbus.WithMatchInterface(propertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
	}
}

func (l *link) subscribe() error {
	if err := l.platform.conn.AddMatchSignal(l.matchOptions()...); err != nil {
		return fmt.Errorf("subscribe to %s: %w", l.device.path, err)
	}
	l.platform.conn.Signal(l.signals)
	return nil
}

func (l *link) unsubscribe() {
	l.once.Do(func() {
		l.platform.conn.RemoveSignal(l.signals)
		l.platform.conn.RemoveMatchSignal(l.matchOptions()...)
		close(l.stop)
	})
}

func (l *link) watch() {
	for {
		select {
		case <-l.stop:
			return
		case sig := <-l.signals:
			if sig == nil || sig.Path != l.device.path || !disconnectedSignal(sig) {
				continue
			}

			l.mu.Lock()
			closing := l.closing
			l.mu.Unlock()
			if !closing {
				l.platform.logger.Printf("🔴 Printer %s disconnected", l.device.address)
				close(l.dropped)
			}
			l.unsubscribe()
			return
		}
	}
}

// disconnectedSignal reports whether sig is a Device1 Connected=false change
func disconnectedSignal(sig *dbus.Signal) bool {
	if sig.Name != propertiesIface+".PropertiesChanged" || len(sig.Body) < 2 {
		return false
	}
	if iface, _ := sig.Body[0].(string); iface != deviceIface {
		return false
	}
	changed, _ := sig.Body[1].(map[string]dbus.Variant)
	connected, ok := variant[bool](changed, "Connected")
	return ok && !connected
}

func (l *link) Connected() bool {
	v, err := l.device.property(context.Background(), "Connected")
	if err != nil {
		return false
	}
	on, _ := v.Value().(bool)
	return on
}

func (l *link) Characteristics(ctx context.Context, serviceUUID string) ([]printer.Characteristic, error) {
	objects, err := l.platform.managedObjects(ctx)
	if err != nil {
		return nil, err
	}

	infos, ok := characteristics(objects, l.device.path, serviceUUID)
	if !ok {
		return nil, fmt.Errorf("service %s not found on %s", serviceUUID, l.device.address)
	}

	out := make([]printer.Characteristic, len(infos))
	for i, info := range infos {
		out[i] = &characteristic{conn: l.platform.conn, info: info}
	}
	return out, nil
}

func (l *link) Dropped() <-chan struct{} { return l.dropped }

func (l *link) Disconnect() error {
	l.mu.Lock()
	l.closing = true
	l.mu.Unlock()
	l.unsubscribe()

	err := l.platform.conn.Object(busName, l.device.path).Call(deviceIface+".Disconnect", 0).Err
	return mapError(err)
}

type characteristic struct {
	conn *dbus.Conn
	info charInfo
}

func (c *characteristic) UUID() string                   { return c.info.uuid }
func (c *characteristic) Properties() printer.Properties { return c.info.props }

func (c *characteristic) WriteValue(ctx context.Context, data []byte, withoutResponse bool) error {
	mode := "request"
	if withoutResponse {
		mode = "command"
	}
	opts := map[string]dbus.Variant{"type": dbus.MakeVariant(mode)}

	err := c.conn.Object(busName, c.info.path).CallWithContext(ctx, charIface+".WriteValue", 0, data, opts).Err
	return mapError(err)
}
