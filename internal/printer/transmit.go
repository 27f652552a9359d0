package printer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultChunkSize fits the ATT payload of common BLE receipt printers
	DefaultChunkSize = 128
	// DefaultChunkDelay paces writes so the printer buffer keeps up
	DefaultChunkDelay = 30 * time.Millisecond
)

// Connector is the part of the Manager the Transmitter relies on
type Connector interface {
	IsConnected() bool
	Connect(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Characteristic() (Characteristic, bool)
}

// TransmissionJob is the byte stream currently being sent
type TransmissionJob struct {
	ID        string    `json:"id"`
	Bytes     int       `json:"bytes"`
	Chunks    int       `json:"chunks"`
	CreatedAt time.Time `json:"created_at"`
}

// TransmitterConfig configures a Transmitter
type TransmitterConfig struct {
	ChunkSize  int
	ChunkDelay time.Duration
	Sleep      func(time.Duration)
	Logger     *log.Logger
}

// Transmitter sends one job at a time to the connected printer. A job
// requested while another is in flight is rejected with ErrBusy.
type Transmitter struct {
	conn      Connector
	chunkSize int
	delay     time.Duration
	sleep     func(time.Duration)
	logger    *log.Logger

	mu      sync.Mutex
	current *TransmissionJob
}

// NewTransmitter creates a Transmitter on top of conn
func NewTransmitter(conn Connector, cfg TransmitterConfig) *Transmitter {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkDelay <= 0 {
		cfg.ChunkDelay = DefaultChunkDelay
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	return &Transmitter{
		conn:      conn,
		chunkSize: cfg.ChunkSize,
		delay:     cfg.ChunkDelay,
		sleep:     cfg.Sleep,
		logger:    cfg.Logger,
	}
}

// Print sends data to the printer, connecting first if needed. It returns
// the job ID once every chunk has been written. Once accepted, the job runs
// to completion even if ctx is cancelled.
func (t *Transmitter) Print(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyPayload
	}

	job := &TransmissionJob{
		ID:        uuid.NewString(),
		Bytes:     len(data),
		Chunks:    (len(data) + t.chunkSize - 1) / t.chunkSize,
		CreatedAt: time.Now(),
	}
	if !t.acquire(job) {
		return "", ErrBusy
	}
	defer t.release()

	ctx = context.WithoutCancel(ctx)

	if !t.conn.IsConnected() {
		t.logger.Printf("Printer not connected, connecting for job %s", job.ID)
		attempts, err := FirstSuccess(ctx,
			Strategy{Name: "reconnect", Run: t.conn.Reconnect},
			Strategy{Name: "connect", Run: t.conn.Connect},
		)
		for _, a := range attempts {
			if a.Err != nil {
				t.logger.Printf("Job %s: %s failed: %v", job.ID, a.Strategy, a.Err)
			}
		}
		if err != nil {
			return job.ID, err
		}
	}

	char, noAck := t.conn.Characteristic()
	if char == nil {
		return job.ID, fmt.Errorf("%w: %w", ErrTransmission, ErrLinkDropped)
	}

	if err := t.stream(ctx, job, char, noAck, data); err != nil {
		t.logger.Printf("❌ Print job %s failed: %v", job.ID, err)
		return job.ID, err
	}

	t.logger.Printf("✅ Print job %s completed (%d bytes, %d chunks)", job.ID, job.Bytes, job.Chunks)
	return job.ID, nil
}

// stream writes data in chunks and pauses after each one, the last included
func (t *Transmitter) stream(ctx context.Context, job *TransmissionJob, char Characteristic, noAck bool, data []byte) error {
	for i := 0; i < job.Chunks; i++ {
		start := i * t.chunkSize
		end := min(start+t.chunkSize, len(data))

		if err := char.WriteValue(ctx, data[start:end], noAck); err != nil {
			return fmt.Errorf("%w: chunk %d/%d: %w", ErrTransmission, i+1, job.Chunks, err)
		}
		t.sleep(t.delay)
	}
	return nil
}

// InFlight returns the job being sent, if any
func (t *Transmitter) InFlight() (TransmissionJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return TransmissionJob{}, false
	}
	return *t.current, true
}

func (t *Transmitter) acquire(job *TransmissionJob) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		return false
	}
	t.current = job
	return true
}

func (t *Transmitter) release() {
	t.mu.Lock()
	t.current = nil
	t.mu.Unlock()
}
