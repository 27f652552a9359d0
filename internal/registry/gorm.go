package registry

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/thereceipt/bleprint/internal/printer"
)

// pairedSlot is the primary key of the only row
const pairedSlot = 1

// PairedPrinter is the single remembered printer row
type PairedPrinter struct {
	Slot      int    `gorm:"primaryKey;autoIncrement:false"`
	DeviceID  string `gorm:"not null"`
	Name      string
	PairedAt  time.Time `gorm:"not null"`
	UpdatedAt time.Time
}

// GormStore keeps the remembered printer in a SQL database
type GormStore struct {
	db *gorm.DB
}

// OpenGormStore opens a SQLite database at dsn and migrates it
func OpenGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewGormStore(db)
}

// NewGormStore wraps an open database
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&PairedPrinter{}); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Load() (printer.Identity, bool, error) {
	var row PairedPrinter
	err := s.db.First(&row, pairedSlot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return printer.Identity{}, false, nil
	}
	if err != nil {
		return printer.Identity{}, false, fmt.Errorf("failed to load paired printer: %w", err)
	}

	return printer.Identity{
		DeviceID: row.DeviceID,
		Name:     row.Name,
		PairedAt: row.PairedAt,
	}, true, nil
}

func (s *GormStore) Save(identity printer.Identity) error {
	if identity.DeviceID == "" {
		return fmt.Errorf("cannot remember a printer without a device id")
	}

	row := PairedPrinter{
		Slot:     pairedSlot,
		DeviceID: identity.DeviceID,
		Name:     identity.Name,
		PairedAt: identity.PairedAt,
	}
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot"}},
		DoUpdates: clause.AssignmentColumns([]string{"device_id", "name", "paired_at", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save paired printer: %w", err)
	}
	return nil
}

func (s *GormStore) Clear() error {
	if err := s.db.Delete(&PairedPrinter{}, pairedSlot).Error; err != nil {
		return fmt.Errorf("failed to clear paired printer: %w", err)
	}
	return nil
}
