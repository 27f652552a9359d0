package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/thereceipt/bleprint/config"
	"github.com/thereceipt/bleprint/internal/agent"
	"github.com/thereceipt/bleprint/internal/command"
	"github.com/thereceipt/bleprint/internal/receipt"
	"github.com/thereceipt/bleprint/internal/renderer"
	"github.com/thereceipt/bleprint/internal/tui"
)

const (
	defaultServerURL = "http://localhost:12212"
)

var httpClient = &http.Client{Timeout: 2 * time.Minute}

func main() {
	var (
		serverURL  string
		local      bool
		configPath string
		pngPath    string
		paper      string
		verbose    bool
	)
	flag.StringVar(&serverURL, "server", defaultServerURL, "Server URL")
	flag.StringVar(&serverURL, "s", defaultServerURL, "Server URL (short)")
	flag.BoolVar(&local, "local", false, "Drive the printer from this process instead of the server")
	flag.StringVar(&configPath, "config", config.Path(), "Config file for -local")
	flag.StringVar(&pngPath, "png", "", "Also write the preview as a PNG image")
	flag.StringVar(&paper, "paper", "58mm", "Paper width for -png (58mm or 80mm)")
	flag.BoolVar(&verbose, "v", false, "Log Bluetooth activity to stderr")
	flag.Parse()

	if flag.NArg() == 0 {
		printUsage()
		os.Exit(1)
	}

	args := flag.Args()

	// Previews never need a printer
	if args[0] == "preview" {
		if err := preview(args[1:], pngPath, paper); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cmd := strings.Join(quoteArgs(args), " ")
	progress := tui.NewProgress(os.Stdin, os.Stderr)

	var result *command.Result
	if local {
		result = executeLocal(configPath, cmd, progress, verbose)
	} else {
		result = withSpinner(progress, title(args), func() *command.Result {
			return executeCommand(serverURL, cmd)
		})
	}

	if result.Success {
		printSuccess(result)
		os.Exit(0)
	}
	printError(result)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `bleprint CLI

Usage:
  bleprint-cli [flags] <command>

Flags:
  -s, -server <url>    Server URL (default: %s)
  -local               Drive the printer from this process
  -config <path>       Config file for -local
  -png <path>          Write the preview as a PNG image
  -paper <width>       Paper width for -png: 58mm or 80mm
  -v                   Log Bluetooth activity

Commands:
  print <order.json|url>
    Print an order receipt

  preview <order.json|url>
    Show the receipt in the terminal

  printer status | connect | reconnect | disconnect | forget
    Manage the Bluetooth printer

  help
    Show help message

Examples:
  bleprint-cli print ./order.json
  bleprint-cli -png receipt.png preview ./order.json
  bleprint-cli -local printer connect
  bleprint-cli -s http://kiosk.local:12212 printer status

`, defaultServerURL)
}

// quoteArgs keeps arguments with spaces intact through the server's command parser
func quoteArgs(args []string) []string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		if strings.ContainsAny(arg, " \t") {
			arg = `"` + arg + `"`
		}
		quoted[i] = arg
	}
	return quoted
}

func title(args []string) string {
	switch {
	case args[0] == "print":
		return "Printing receipt"
	case args[0] == "printer" && len(args) > 1 && (args[1] == "connect" || args[1] == "reconnect"):
		return "Connecting to printer"
	default:
		return "Working"
	}
}

// withSpinner shows a spinner while fn runs when stderr is a terminal
func withSpinner(progress *tui.Progress, title string, fn func() *command.Result) *command.Result {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return fn()
	}

	var result *command.Result
	err := progress.Run(title, func() error {
		result = fn()
		return nil
	})
	if err != nil {
		return &command.Result{Success: false, Error: err.Error()}
	}
	return result
}

func executeLocal(configPath, cmd string, progress *tui.Progress, verbose bool) *command.Result {
	cfg, err := config.Load(configPath)
	if err != nil {
		return &command.Result{Success: false, Error: fmt.Sprintf("failed to load config: %v", err)}
	}

	logger := log.New(io.Discard, "", 0)
	if verbose {
		logger = log.New(os.Stderr, "bleprint ", log.LstdFlags)
	}

	// The picker needs the terminal the spinner is drawing on
	chooser := tui.SuspendingChooser{Chooser: agent.Chooser(cfg.Printer), Progress: progress}

	a, err := agent.New(cfg, chooser, logger)
	if err != nil {
		return &command.Result{Success: false, Error: err.Error()}
	}
	defer a.Close()

	executor := command.NewExecutor(a.Session)
	return withSpinner(progress, title(strings.Fields(cmd)), func() *command.Result {
		return executor.Execute(context.Background(), cmd)
	})
}

func executeCommand(serverURL, cmd string) *command.Result {
	url := strings.TrimSuffix(serverURL, "/") + "/command"

	jsonData, err := json.Marshal(map[string]string{"command": cmd})
	if err != nil {
		return &command.Result{
			Success: false,
			Error:   fmt.Sprintf("failed to marshal request: %v", err),
		}
	}

	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return &command.Result{
			Success: false,
			Error:   fmt.Sprintf("failed to connect to server: %v", err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &command.Result{
			Success: false,
			Error:   fmt.Sprintf("failed to read response: %v", err),
		}
	}

	var result command.Result
	if err := json.Unmarshal(body, &result); err != nil {
		return &command.Result{
			Success: false,
			Error:   fmt.Sprintf("failed to parse response: %v", err),
		}
	}

	return &result
}

func preview(args []string, pngPath, paper string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: preview <order.json|url>")
	}

	order, err := command.LoadOrder(context.Background(), args[0])
	if err != nil {
		return err
	}

	lines := receipt.Render(order)
	fmt.Println(tui.RenderReceipt(lines))

	if pngPath == "" {
		return nil
	}

	f, err := os.Create(pngPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := renderer.EncodePNG(f, renderer.Render(lines, paper)); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s Wrote %s\n", tui.SuccessStyle.Render("✓"), pngPath)
	return nil
}

func printSuccess(result *command.Result) {
	if result.Message != "" {
		fmt.Println(result.Message)
	}

	if result.Data == nil {
		return
	}

	if jobID, ok := result.Data["job_id"].(string); ok && jobID != "" {
		fmt.Printf("Job ID: %s\n", jobID)
	}
}

func printError(result *command.Result) {
	if result.Error != "" {
		fmt.Fprintf(os.Stderr, "%s %s\n", tui.ErrorStyle.Render("✗"), result.Error)
	} else if result.Message != "" {
		fmt.Fprintf(os.Stderr, "%s\n", result.Message)
	}
	if cause, ok := result.Data["cause"].(string); ok && cause != "" {
		fmt.Fprintf(os.Stderr, "  %s\n", tui.HelpStyle.Render(cause))
	}
}
