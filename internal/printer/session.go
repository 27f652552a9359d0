package printer

import (
	"context"
	"log"

	"github.com/thereceipt/bleprint/internal/receipt"
	"github.com/thereceipt/bleprint/pkg/receiptorder"
)

// PrintResult describes a finished print
type PrintResult struct {
	JobID string `json:"job_id"`
	Bytes int    `json:"bytes"`
}

// Session ties layout, encoding, the connection Manager and the Transmitter
// together. It is what the server and the CLI print through.
type Session struct {
	manager *Manager
	tx      *Transmitter
	layout  receipt.Layout
	logger  *log.Logger
}

// NewSession creates a Session
func NewSession(manager *Manager, tx *Transmitter, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	return &Session{manager: manager, tx: tx, logger: logger}
}

// EncodeOrder lays out and encodes order into the bytes sent to the printer
func (s *Session) EncodeOrder(order *receiptorder.Order) []byte {
	return Encode(s.layout.Render(order))
}

// PrintOrder prints one order
func (s *Session) PrintOrder(ctx context.Context, order *receiptorder.Order) (PrintResult, error) {
	return s.PrintBytes(ctx, s.EncodeOrder(order))
}

// PrintBytes sends already encoded ESC/POS bytes
func (s *Session) PrintBytes(ctx context.Context, data []byte) (PrintResult, error) {
	id, err := s.tx.Print(ctx, data)
	return PrintResult{JobID: id, Bytes: len(data)}, err
}

// Connect connects to the remembered printer or asks for one
func (s *Session) Connect(ctx context.Context) error {
	return s.manager.Connect(ctx)
}

// Reconnect reconnects without prompting
func (s *Session) Reconnect(ctx context.Context) error {
	return s.manager.Reconnect(ctx)
}

// Disconnect drops the link
func (s *Session) Disconnect() {
	s.manager.Disconnect()
}

// Forget disconnects and clears the remembered printer
func (s *Session) Forget() error {
	return s.manager.Forget()
}

// SessionStatus is the printer state reported to clients
type SessionStatus struct {
	Status
	Paired   *Identity        `json:"paired,omitempty"`
	InFlight *TransmissionJob `json:"in_flight,omitempty"`
}

// Status reports connection, pairing and job state
func (s *Session) Status() SessionStatus {
	status := SessionStatus{Status: s.manager.Status()}
	if identity, ok := s.manager.Identity(); ok {
		status.Paired = &identity
	}
	if job, ok := s.tx.InFlight(); ok {
		status.InFlight = &job
	}
	return status
}

// OnStateChange forwards connection state changes
func (s *Session) OnStateChange(callback func(Status)) {
	s.manager.OnStateChange(callback)
}
