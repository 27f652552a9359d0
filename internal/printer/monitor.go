package printer

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Monitor periodically brings a remembered printer back after it drops,
// without ever prompting the user
type Monitor struct {
	manager  *Manager
	tx       *Transmitter
	interval time.Duration
	logger   *log.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	startOnce sync.Once
	started   atomic.Bool
}

// NewMonitor creates a new printer monitor
func NewMonitor(manager *Manager, tx *Transmitter, interval time.Duration, logger *log.Logger) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = log.Default()
	}

	return &Monitor{
		manager:  manager,
		tx:       tx,
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start begins monitoring. Calling it again has no effect.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		m.started.Store(true)
		go m.loop()
	})
}

func (m *Monitor) loop() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.check(m.ctx)
		}
	}
}

// Stop stops the monitor and waits for an in-progress check. A monitor
// that was never started stops at once.
func (m *Monitor) Stop() {
	m.cancel()
	if m.started.Load() {
		<-m.done
	}
}

func (m *Monitor) check(ctx context.Context) {
	if m.manager.IsConnected() {
		return
	}
	if _, busy := m.tx.InFlight(); busy {
		return
	}
	if _, ok := m.manager.Identity(); !ok {
		return
	}
	if on, err := m.manager.platform.RadioAvailable(ctx); err == nil && !on {
		return
	}

	err := m.manager.Reconnect(ctx)
	switch {
	case err == nil:
		m.logger.Printf("🟢 Printer reconnected")
	case errors.Is(err, ErrReconnectUnsupported), errors.Is(err, ErrNotPaired):
	default:
		m.logger.Printf("Warning: printer reconnect failed: %v", err)
	}
}
