package printer

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConnector struct {
	mu           sync.Mutex
	connected    bool
	char         Characteristic
	noAck        bool
	reconnectErr error
	connectErr   error
	calls        []string
}

func (c *fakeConnector) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeConnector) Reconnect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "reconnect")
	if c.reconnectErr != nil {
		return c.reconnectErr
	}
	c.connected = true
	return nil
}

func (c *fakeConnector) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "connect")
	if c.connectErr != nil {
		return c.connectErr
	}
	c.connected = true
	return nil
}

func (c *fakeConnector) Characteristic() (Characteristic, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, false
	}
	return c.char, c.noAck
}

type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
}

func newTestTransmitter(conn Connector, sleeps *sleepRecorder) *Transmitter {
	return NewTransmitter(conn, TransmitterConfig{
		ChunkSize:  DefaultChunkSize,
		ChunkDelay: DefaultChunkDelay,
		Sleep:      sleeps.sleep,
		Logger:     quietLogger(),
	})
}

func TestTransmitter_ChunksAndPaces(t *testing.T) {
	char := newFakeChar("c", propsNoAck)
	conn := &fakeConnector{connected: true, char: char, noAck: true}
	sleeps := &sleepRecorder{}
	tx := newTestTransmitter(conn, sleeps)
	data := bytes.Repeat([]byte{0x41}, 300)

	id, err := tx.Print(context.Background(), data)

	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, char.writes, 3)
	assert.Len(t, char.writes[0], 128)
	assert.Len(t, char.writes[1], 128)
	assert.Len(t, char.writes[2], 44)
	assert.Equal(t, data, char.written())
	assert.Equal(t, []bool{true, true, true}, char.noAck)
	assert.Equal(t, []time.Duration{DefaultChunkDelay, DefaultChunkDelay, DefaultChunkDelay}, sleeps.slept)
	assert.Empty(t, conn.calls)
}

func TestTransmitter_ExactChunkMultiple(t *testing.T) {
	char := newFakeChar("c", propsWrite)
	conn := &fakeConnector{connected: true, char: char}
	tx := newTestTransmitter(conn, &sleepRecorder{})

	_, err := tx.Print(context.Background(), make([]byte, 256))

	require.NoError(t, err)
	assert.Len(t, char.writes, 2)
	assert.Equal(t, []bool{false, false}, char.noAck)
}

func TestTransmitter_EmptyPayload(t *testing.T) {
	conn := &fakeConnector{connected: true, char: newFakeChar("c", propsNoAck)}
	tx := newTestTransmitter(conn, &sleepRecorder{})

	_, err := tx.Print(context.Background(), nil)

	assert.ErrorIs(t, err, ErrEmptyPayload)
	assert.Equal(t, KindEmpty, Kind(err))
}

func TestTransmitter_ReconnectsBeforeSending(t *testing.T) {
	char := newFakeChar("c", propsNoAck)
	conn := &fakeConnector{char: char}
	tx := newTestTransmitter(conn, &sleepRecorder{})

	_, err := tx.Print(context.Background(), []byte("hello"))

	require.NoError(t, err)
	assert.Equal(t, []string{"reconnect"}, conn.calls)
	assert.Equal(t, []byte("hello"), char.written())
}

func TestTransmitter_FallsBackToConnect(t *testing.T) {
	char := newFakeChar("c", propsNoAck)
	conn := &fakeConnector{char: char, reconnectErr: ErrNotPaired}
	tx := newTestTransmitter(conn, &sleepRecorder{})

	_, err := tx.Print(context.Background(), []byte("hello"))

	require.NoError(t, err)
	assert.Equal(t, []string{"reconnect", "connect"}, conn.calls)
}

func TestTransmitter_ReportsLastConnectError(t *testing.T) {
	char := newFakeChar("c", propsNoAck)
	conn := &fakeConnector{char: char, reconnectErr: ErrNotPaired, connectErr: ErrPairingCancelled}
	tx := newTestTransmitter(conn, &sleepRecorder{})

	_, err := tx.Print(context.Background(), []byte("hello"))

	assert.ErrorIs(t, err, ErrPairingCancelled)
	assert.Empty(t, char.writes)

	_, busy := tx.InFlight()
	assert.False(t, busy)
}

func TestTransmitter_WriteFailure(t *testing.T) {
	char := newFakeChar("c", propsNoAck)
	char.failAt = 1
	conn := &fakeConnector{connected: true, char: char, noAck: true}
	tx := newTestTransmitter(conn, &sleepRecorder{})

	_, err := tx.Print(context.Background(), make([]byte, 300))

	assert.ErrorIs(t, err, ErrTransmission)
	assert.Equal(t, KindTransmission, Kind(err))
	assert.Len(t, char.writes, 1)

	char.failAt = -1
	_, err = tx.Print(context.Background(), []byte("again"))
	assert.NoError(t, err, "the slot is released after a failure")
}

func TestTransmitter_RejectsConcurrentJob(t *testing.T) {
	char := newFakeChar("c", propsNoAck)
	char.block = make(chan struct{})
	char.started = make(chan struct{}, 1)
	conn := &fakeConnector{connected: true, char: char, noAck: true}
	tx := newTestTransmitter(conn, &sleepRecorder{})

	done := make(chan error, 1)
	go func() {
		_, err := tx.Print(context.Background(), []byte("first"))
		done <- err
	}()
	<-char.started

	job, busy := tx.InFlight()
	require.True(t, busy)
	assert.Equal(t, 5, job.Bytes)

	_, err := tx.Print(context.Background(), []byte("second"))
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, KindBusy, Kind(err))

	close(char.block)
	require.NoError(t, <-done)
	assert.Equal(t, []byte("first"), char.written())
}

func TestTransmitter_CompletesAfterCallerGivesUp(t *testing.T) {
	char := newFakeChar("c", propsNoAck)
	conn := &fakeConnector{connected: true, char: char, noAck: true}
	tx := newTestTransmitter(conn, &sleepRecorder{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tx.Print(ctx, make([]byte, 200))

	require.NoError(t, err)
	assert.Len(t, char.writes, 2)
}

func TestTransmitter_WithManager(t *testing.T) {
	char := newFakeChar("c", propsNoAck)
	device := newFakeDevice("AA:BB", char)
	m := newTestManager(t, newFakePlatform(device), &fakeStore{})
	tx := newTestTransmitter(m, &sleepRecorder{})

	_, err := tx.Print(context.Background(), []byte("receipt"))

	require.NoError(t, err)
	assert.True(t, m.IsConnected())
	assert.Equal(t, []byte("receipt"), char.written())
}
