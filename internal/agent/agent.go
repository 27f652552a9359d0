// Package agent wires the Bluetooth platform, the connection Manager and the
// Transmitter into a printer Session from configuration
package agent

import (
	"log"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/thereceipt/bleprint/config"
	"github.com/thereceipt/bleprint/internal/bluez"
	"github.com/thereceipt/bleprint/internal/printer"
	"github.com/thereceipt/bleprint/internal/registry"
	"github.com/thereceipt/bleprint/internal/tui"
)

// Agent owns everything needed to print to one Bluetooth printer
type Agent struct {
	Platform    *bluez.Platform
	Manager     *printer.Manager
	Transmitter *printer.Transmitter
	Session     *printer.Session

	monitor *printer.Monitor
	logger  *log.Logger
}

// interactive reports whether a picker can take over the terminal
var interactive = func() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

// Chooser returns the device chooser selected by printer.picker. The tui
// picker needs a terminal; without one the first printer matching
// printer.match is chosen instead.
func Chooser(cfg config.PrinterConfig) bluez.Chooser {
	if cfg.Picker == config.PickerAuto || !interactive() {
		return tui.AutoChooser{Match: cfg.Match}
	}
	return tui.NewPicker()
}

// New opens the system bus and builds a Session on it
func New(cfg *config.Config, chooser bluez.Chooser, logger *log.Logger) (*Agent, error) {
	if logger == nil {
		logger = log.Default()
	}

	store, err := registry.Open(cfg.Storage.Driver, cfg.Storage.Path, cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}

	platform, err := bluez.Open(bluez.Config{
		Adapter:         cfg.Printer.Adapter,
		ScanDuration:    cfg.Printer.ScanDuration,
		ConnectTimeout:  cfg.Printer.ConnectTimeout,
		SettingsCommand: cfg.Printer.SettingsCommand,
		Chooser:         chooser,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	return assemble(cfg, platform, store, logger), nil
}

func assemble(cfg *config.Config, platform *bluez.Platform, store printer.IdentityStore, logger *log.Logger) *Agent {
	manager := printer.NewManager(platform, store, printer.ManagerConfig{
		ServiceUUID: cfg.Printer.ServiceUUID,
		Logger:      logger,
	})

	tx := printer.NewTransmitter(manager, printer.TransmitterConfig{
		ChunkSize:  cfg.Printer.ChunkSize,
		ChunkDelay: cfg.Printer.ChunkDelay,
		Logger:     logger,
	})

	a := &Agent{
		Platform:    platform,
		Manager:     manager,
		Transmitter: tx,
		Session:     printer.NewSession(manager, tx, logger),
		logger:      logger,
	}

	if cfg.Printer.AutoReconnect > 0 {
		a.monitor = printer.NewMonitor(manager, tx, cfg.Printer.AutoReconnect, logger)
	}

	return a
}

// Start begins background reconnection when it is configured
func (a *Agent) Start() {
	if a.monitor != nil {
		a.monitor.Start()
	}
}

// Close drops the link and releases the bus
func (a *Agent) Close() {
	if a.monitor != nil {
		a.monitor.Stop()
	}
	a.Manager.Disconnect()
	a.Manager.Close()
	if err := a.Platform.Close(); err != nil {
		a.logger.Printf("Failed to close system bus: %v", err)
	}
}
