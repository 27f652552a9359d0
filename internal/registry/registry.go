// Package registry persists the remembered printer across restarts
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/thereceipt/bleprint/internal/printer"
)

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Open returns the identity store for driver. path is used by the file
// driver and dsn by the sqlite driver.
func Open(driver, path, dsn string) (printer.IdentityStore, error) {
	switch driver {
	case "", DriverFile:
		return NewFileStore(path)
	case DriverSQLite:
		return OpenGormStore(dsn)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// FileStore keeps the remembered printer in a JSON file
type FileStore struct {
	filePath string
	entry    *printer.Identity
	mu       sync.RWMutex
}

// NewFileStore creates a FileStore backed by filePath
func NewFileStore(filePath string) (*FileStore, error) {
	s := &FileStore{filePath: filePath}

	if err := s.load(); err != nil {
		// If file doesn't exist, that's okay - we'll create it on first save
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load registry: %w", err)
		}
	}

	return s, nil
}

// Load returns the remembered printer
func (s *FileStore) Load() (printer.Identity, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.entry == nil {
		return printer.Identity{}, false, nil
	}
	return *s.entry, true, nil
}

// Save replaces the remembered printer
func (s *FileStore) Save(identity printer.Identity) error {
	if identity.DeviceID == "" {
		return fmt.Errorf("cannot remember a printer without a device id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.entry
	s.entry = &identity
	if err := s.save(); err != nil {
		s.entry = previous
		return fmt.Errorf("failed to save registry: %w", err)
	}
	return nil
}

// Clear forgets the remembered printer
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entry = nil
	if err := os.Remove(s.filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear registry: %w", err)
	}
	return nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var entry printer.Identity
	if err := json.Unmarshal(data, &entry); err != nil {
		return err
	}
	if entry.DeviceID != "" {
		s.entry = &entry
	}
	return nil
}

func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.entry, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.filePath)
}

// MemoryStore remembers the printer for the lifetime of the process only
type MemoryStore struct {
	mu    sync.Mutex
	entry *printer.Identity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (printer.Identity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry == nil {
		return printer.Identity{}, false, nil
	}
	return *s.entry, true, nil
}

func (s *MemoryStore) Save(identity printer.Identity) error {
	s.mu.Lock()
	s.entry = &identity
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	s.entry = nil
	s.mu.Unlock()
	return nil
}
