package printer

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
)

var errFake = errors.New("fake failure")

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type fakeStore struct {
	mu       sync.Mutex
	identity *Identity
	saveErr  error
}

func (s *fakeStore) Load() (Identity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return Identity{}, false, nil
	}
	return *s.identity, true, nil
}

func (s *fakeStore) Save(identity Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.identity = &identity
	return nil
}

func (s *fakeStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = nil
	return nil
}

type fakePlatform struct {
	mu sync.Mutex

	radio      func() (bool, error)
	settings   int
	picked     *fakeDevice
	requestErr error
	requests   int
	known      map[string]*fakeDevice
	knownErr   error
	lookups    int
}

func newFakePlatform(devices ...*fakeDevice) *fakePlatform {
	p := &fakePlatform{known: map[string]*fakeDevice{}}
	for _, d := range devices {
		p.known[d.id] = d
	}
	if len(devices) > 0 {
		p.picked = devices[0]
	}
	return p
}

func (p *fakePlatform) RadioAvailable(context.Context) (bool, error) {
	p.mu.Lock()
	radio := p.radio
	p.mu.Unlock()
	if radio == nil {
		return true, nil
	}
	return radio()
}

func (p *fakePlatform) OpenSettings() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings++
	return nil
}

func (p *fakePlatform) RequestDevice(context.Context, string) (Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	if p.requestErr != nil {
		return nil, p.requestErr
	}
	if p.picked == nil {
		return nil, ErrPairingCancelled
	}
	return p.picked, nil
}

func (p *fakePlatform) KnownDevice(_ context.Context, id string) (Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookups++
	if p.knownErr != nil {
		return nil, p.knownErr
	}
	d, ok := p.known[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d, nil
}

type fakeDevice struct {
	id, name   string
	chars      []*fakeChar
	charsErr   error
	connectErr error

	mu       sync.Mutex
	connects int
	links    []*fakeLink
}

func newFakeDevice(id string, chars ...*fakeChar) *fakeDevice {
	return &fakeDevice{id: id, name: "Printer " + id, chars: chars}
}

func (d *fakeDevice) ID() string   { return d.id }
func (d *fakeDevice) Name() string { return d.name }

func (d *fakeDevice) Connect(context.Context) (Link, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connects++
	if d.connectErr != nil {
		return nil, d.connectErr
	}
	link := &fakeLink{connected: true, dropped: make(chan struct{}), chars: d.chars, charsErr: d.charsErr}
	d.links = append(d.links, link)
	return link, nil
}

func (d *fakeDevice) lastLink() *fakeLink {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.links) == 0 {
		return nil
	}
	return d.links[len(d.links)-1]
}

type fakeLink struct {
	mu            sync.Mutex
	connected     bool
	dropped       chan struct{}
	chars         []*fakeChar
	charsErr      error
	disconnects   int
	disconnectErr error
}

func (l *fakeLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *fakeLink) Characteristics(context.Context, string) ([]Characteristic, error) {
	if l.charsErr != nil {
		return nil, l.charsErr
	}
	out := make([]Characteristic, len(l.chars))
	for i, c := range l.chars {
		out[i] = c
	}
	return out, nil
}

func (l *fakeLink) Dropped() <-chan struct{} { return l.dropped }

func (l *fakeLink) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnects++
	l.connected = false
	return l.disconnectErr
}

// drop simulates the printer going away on its own
func (l *fakeLink) drop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = false
	close(l.dropped)
}

type fakeChar struct {
	uuid  string
	props Properties

	mu      sync.Mutex
	writes  [][]byte
	noAck   []bool
	failAt  int
	block   chan struct{}
	started chan struct{}
}

func newFakeChar(uuid string, props Properties) *fakeChar {
	return &fakeChar{uuid: uuid, props: props, failAt: -1}
}

func (c *fakeChar) UUID() string           { return c.uuid }
func (c *fakeChar) Properties() Properties { return c.props }

func (c *fakeChar) WriteValue(_ context.Context, data []byte, withoutResponse bool) error {
	if c.started != nil {
		select {
		case c.started <- struct{}{}:
		default:
		}
	}
	if c.block != nil {
		<-c.block
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAt == len(c.writes) {
		return errFake
	}
	c.writes = append(c.writes, append([]byte(nil), data...))
	c.noAck = append(c.noAck, withoutResponse)
	return nil
}

func (c *fakeChar) written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []byte
	for _, w := range c.writes {
		out = append(out, w...)
	}
	return out
}

var (
	propsNoAck = Properties{WriteWithoutResponse: true}
	propsWrite = Properties{Write: true}
)
