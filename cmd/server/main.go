package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thereceipt/bleprint/config"
	"github.com/thereceipt/bleprint/internal/agent"
	"github.com/thereceipt/bleprint/internal/api"
	"github.com/thereceipt/bleprint/internal/printer"
)

// Version is set during build via ldflags
var Version = "dev"

func main() {
	var (
		configPath string
		port       int
	)
	flag.StringVar(&configPath, "config", config.Path(), "Config file")
	flag.IntVar(&port, "port", 0, "API port (overrides config and SERVER_PORT)")
	flag.Parse()

	logger := log.New(os.Stdout, "bleprint ", log.LstdFlags)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	cfg.ApplyEnv()
	if port > 0 {
		cfg.Server.Port = port
	}

	a, err := agent.New(cfg, agent.Chooser(cfg.Printer), logger)
	if err != nil {
		logger.Fatalf("Failed to start Bluetooth agent: %v", err)
	}

	server := api.NewServer(a.Session, api.Config{
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		ReprintTTL:      cfg.Server.ReprintTTL,
		Logger:          logger,
	})

	a.Session.OnStateChange(func(status printer.Status) {
		switch status.State {
		case printer.StateConnected:
			logger.Printf("🟢 Printer connected: %s", status.DeviceName)
		case printer.StateDisconnected:
			logger.Println("🔴 Printer disconnected")
		}
		server.BroadcastPrinterState(status)
	})
	a.Start()

	// Bring the remembered printer back without prompting
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Printer.ScanDuration+cfg.Printer.ConnectTimeout)
		defer cancel()
		if err := a.Session.Reconnect(ctx); err != nil && !errors.Is(err, printer.ErrNotPaired) {
			logger.Printf("Startup reconnect failed: %v", err)
		}
	}()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port),
		Handler: server.Handler(),
	}

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Printf("🚀 bleprint %s listening on %s", Version, httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrChan:
		a.Close()
		logger.Fatalf("Server error: %v", err)
	case <-sigChan:
		logger.Println("🛑 Shutting down...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Printf("HTTP shutdown: %v", err)
	}
	server.Close()
	a.Close()
}
