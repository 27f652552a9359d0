package command

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/thereceipt/bleprint/internal/receipt"
	"github.com/thereceipt/bleprint/pkg/receiptorder"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

// handlePrint handles print commands
// Usage: print <order.json|url>
func (e *Executor) handlePrint(ctx context.Context, args []string) *Result {
	if len(args) < 1 {
		return &Result{
			Success: false,
			Error:   "usage: print <order.json|url>",
		}
	}

	order, err := LoadOrder(ctx, args[0])
	if err != nil {
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("failed to load order: %v", err),
		}
	}

	result, err := e.PrintOrder(ctx, order)
	if err != nil {
		return failure(err)
	}

	return &Result{
		Success: true,
		Message: fmt.Sprintf("Printed order %s (token %s)", order.ID, order.Token),
		Data: map[string]interface{}{
			"job_id":   result.JobID,
			"bytes":    result.Bytes,
			"order_id": order.ID,
		},
	}
}

// handlePreview lays an order out without printing it
// Usage: preview <order.json|url>
func (e *Executor) handlePreview(args []string) *Result {
	if len(args) < 1 {
		return &Result{
			Success: false,
			Error:   "usage: preview <order.json|url>",
		}
	}

	order, err := LoadOrder(context.Background(), args[0])
	if err != nil {
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("failed to load order: %v", err),
		}
	}

	lines := receipt.Render(order)
	text := make([]string, len(lines))
	for i, line := range lines {
		text[i] = line.Text()
	}

	return &Result{
		Success: true,
		Message: strings.Join(text, "\n"),
		Data: map[string]interface{}{
			"lines": text,
		},
	}
}

// handlePrinter handles printer commands
// Usage: printer status | connect | reconnect | disconnect | forget
func (e *Executor) handlePrinter(ctx context.Context, args []string) *Result {
	if len(args) == 0 {
		return &Result{
			Success: false,
			Error:   "usage: printer <status|connect|reconnect|disconnect|forget>",
		}
	}

	subcommand := args[0]

	switch subcommand {
	case "status":
		status := e.printer.Status()
		message := "Printer " + status.StateName
		if status.Paired != nil {
			name := status.Paired.Name
			if name == "" {
				name = status.Paired.DeviceID
			}
			message += fmt.Sprintf(" (paired with %s)", name)
		} else {
			message += " (not paired)"
		}
		return &Result{
			Success: true,
			Message: message,
			Data: map[string]interface{}{
				"printer": status,
			},
		}

	case "connect":
		if err := e.printer.Connect(ctx); err != nil {
			return failure(err)
		}
		return e.connected("Printer connected")

	case "reconnect":
		if err := e.printer.Reconnect(ctx); err != nil {
			return failure(err)
		}
		return e.connected("Printer reconnected")

	case "disconnect":
		e.printer.Disconnect()
		return &Result{
			Success: true,
			Message: "Printer disconnected",
		}

	case "forget":
		if err := e.printer.Forget(); err != nil {
			return &Result{
				Success: false,
				Error:   err.Error(),
			}
		}
		return &Result{
			Success: true,
			Message: "Printer forgotten. The next print will ask for a printer.",
		}

	default:
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("unknown printer subcommand: %s. Use: status, connect, reconnect, disconnect, forget", subcommand),
		}
	}
}

func (e *Executor) connected(message string) *Result {
	status := e.printer.Status()
	if status.DeviceName != "" {
		message += ": " + status.DeviceName
	}
	return &Result{
		Success: true,
		Message: message,
		Data: map[string]interface{}{
			"printer": status,
		},
	}
}

// handleHelp handles help command
func (e *Executor) handleHelp(args []string) *Result {
	helpText := `Available Commands:

  print <order.json|url>
    Print an order receipt. The url may be a receipt link
    carrying the order in its data= parameter.

  preview <order.json|url>
    Show the receipt layout without printing

  printer status
    Show connection state and the remembered printer

  printer connect
    Connect to the remembered printer, or pick one

  printer reconnect
    Reconnect without asking for a printer

  printer disconnect
    Drop the Bluetooth link

  printer forget
    Forget the remembered printer

  help
    Show this help message

Examples:
  print ./order.json
  print "http://localhost:12212/receipt?data=%7B%22id%22%3A1042%7D"
  preview ./order.json
  printer status
`

	return &Result{
		Success: true,
		Message: helpText,
	}
}

// LoadOrder loads an order from a file path, a URL serving order JSON, or a
// receipt link with the order in its data= parameter
func LoadOrder(ctx context.Context, pathOrURL string) (*receiptorder.Order, error) {
	if !strings.HasPrefix(pathOrURL, "http://") && !strings.HasPrefix(pathOrURL, "https://") {
		return receiptorder.ParseFile(pathOrURL)
	}

	u, err := url.Parse(pathOrURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Query().Has(receiptorder.QueryParam) {
		return receiptorder.ParseQuery(u.Query())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pathOrURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order from URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch order: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read order from URL: %w", err)
	}

	return receiptorder.Parse(data)
}
