package config

import (
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPath        = "./config.yaml"
	DefaultPort        = 12212
	DefaultServiceUUID = "000018f0-0000-1000-8000-00805f9b34fb"

	PickerTUI  = "tui"
	PickerAuto = "auto"

	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// Config represents the overall application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Printer PrinterConfig `yaml:"printer"`
	Storage StorageConfig `yaml:"storage"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port              int           `yaml:"port"`
	RateLimitPerSec   float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst    int           `yaml:"rate_limit_burst"`
	ReprintTTLSeconds int           `yaml:"reprint_ttl_seconds"`
	ReprintTTL        time.Duration `yaml:"-"`
}

// PrinterConfig holds the Bluetooth printer configuration.
type PrinterConfig struct {
	ServiceUUID           string   `yaml:"service_uuid"`
	Adapter               string   `yaml:"adapter"`
	ChunkSize             int      `yaml:"chunk_size"`
	ChunkDelayMs          int      `yaml:"chunk_delay_ms"`
	ScanSeconds           int      `yaml:"scan_seconds"`
	ConnectTimeoutSeconds int      `yaml:"connect_timeout_seconds"`
	AutoReconnectSeconds  int      `yaml:"auto_reconnect_seconds"`
	SettingsCommand       []string `yaml:"settings_command"`
	Picker                string   `yaml:"picker"`
	Match                 string   `yaml:"match"`

	ChunkDelay     time.Duration `yaml:"-"`
	ScanDuration   time.Duration `yaml:"-"`
	ConnectTimeout time.Duration `yaml:"-"`
	AutoReconnect  time.Duration `yaml:"-"`
}

// StorageConfig selects where the paired printer is remembered.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the configuration from the given path. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("No config at %s, using defaults", path)
			return Default(), nil
		}
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Path returns the config file named by CONFIG_PATH, or the default.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// ApplyEnv applies environment overrides.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			log.Printf("Ignoring invalid SERVER_PORT %q", v)
			return
		}
		c.Server.Port = port
	}
}

func (c *Config) applyDefaults() {
	s := &c.Server
	if s.Port <= 0 || s.Port > 65535 {
		s.Port = DefaultPort
	}
	if s.RateLimitPerSec <= 0 {
		s.RateLimitPerSec = 2
	}
	if s.RateLimitBurst <= 0 {
		s.RateLimitBurst = 4
	}
	if s.ReprintTTLSeconds <= 0 {
		s.ReprintTTLSeconds = 900
	}
	s.ReprintTTL = time.Duration(s.ReprintTTLSeconds) * time.Second

	p := &c.Printer
	if p.ServiceUUID == "" {
		p.ServiceUUID = DefaultServiceUUID
	}
	if p.Adapter == "" {
		p.Adapter = "hci0"
	}
	if p.ChunkSize <= 0 {
		p.ChunkSize = 128
	}
	if p.ChunkDelayMs <= 0 {
		p.ChunkDelayMs = 30
	}
	if p.ScanSeconds <= 0 {
		p.ScanSeconds = 8
	}
	if p.ConnectTimeoutSeconds <= 0 {
		p.ConnectTimeoutSeconds = 15
	}
	if p.AutoReconnectSeconds < 0 {
		p.AutoReconnectSeconds = 0
	}
	if p.SettingsCommand == nil {
		p.SettingsCommand = []string{"blueman-manager"}
	}
	switch p.Picker {
	case PickerTUI, PickerAuto:
	case "":
		p.Picker = PickerTUI
	default:
		log.Printf("printer.picker %q is not tui or auto; defaulting to tui", p.Picker)
		p.Picker = PickerTUI
	}
	p.ChunkDelay = time.Duration(p.ChunkDelayMs) * time.Millisecond
	p.ScanDuration = time.Duration(p.ScanSeconds) * time.Second
	p.ConnectTimeout = time.Duration(p.ConnectTimeoutSeconds) * time.Second
	p.AutoReconnect = time.Duration(p.AutoReconnectSeconds) * time.Second

	st := &c.Storage
	switch st.Driver {
	case StorageFile, StorageSQLite:
	case "":
		st.Driver = StorageFile
	default:
		log.Printf("storage.driver %q is not file or sqlite; defaulting to file", st.Driver)
		st.Driver = StorageFile
	}
	if st.Path == "" {
		st.Path = defaultStatePath("printer.json")
	}
	if st.DSN == "" {
		st.DSN = defaultStatePath("printer.db")
	}
}

// defaultStatePath puts state files next to the executable
func defaultStatePath(name string) string {
	exe, err := os.Executable()
	if err != nil {
		return name
	}
	return filepath.Join(filepath.Dir(exe), name)
}
