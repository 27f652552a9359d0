// Package command provides the textual command set shared by the agent's
// /command endpoint and the CLI
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/thereceipt/bleprint/internal/printer"
	"github.com/thereceipt/bleprint/pkg/receiptorder"
)

// Printer is the printer session commands act on
type Printer interface {
	EncodeOrder(order *receiptorder.Order) []byte
	PrintBytes(ctx context.Context, data []byte) (printer.PrintResult, error)
	Connect(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Disconnect()
	Forget() error
	Status() printer.SessionStatus
}

// PrintHook observes every print attempt made through the Executor
type PrintHook func(order *receiptorder.Order, data []byte, result printer.PrintResult, err error)

// Executor executes commands
type Executor struct {
	printer Printer
	onPrint PrintHook
}

// NewExecutor creates a new command executor
func NewExecutor(p Printer) *Executor {
	return &Executor{printer: p}
}

// OnPrint sets a hook called after every print
func (e *Executor) OnPrint(hook PrintHook) {
	e.onPrint = hook
}

// Result represents the result of executing a command
type Result struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Kind    printer.FailureKind    `json:"kind,omitempty"`
}

func failure(err error) *Result {
	return &Result{
		Success: false,
		Error:   printer.UserMessage(err),
		Kind:    printer.Kind(err),
		Data:    map[string]interface{}{"cause": err.Error()},
	}
}

// Execute executes a command string and returns a result
func (e *Executor) Execute(ctx context.Context, cmdStr string) *Result {
	// Parse command
	parts := parseCommand(cmdStr)
	if len(parts) == 0 {
		return &Result{
			Success: false,
			Error:   "empty command",
		}
	}

	command := parts[0]
	args := parts[1:]

	// Route to appropriate handler
	switch command {
	case "print":
		return e.handlePrint(ctx, args)
	case "preview":
		return e.handlePreview(args)
	case "printer":
		return e.handlePrinter(ctx, args)
	case "help":
		return e.handleHelp(args)
	default:
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("unknown command: %s. Type 'help' for available commands", command),
		}
	}
}

// PrintOrder encodes and prints order, reporting to the print hook
func (e *Executor) PrintOrder(ctx context.Context, order *receiptorder.Order) (printer.PrintResult, error) {
	data := e.printer.EncodeOrder(order)
	result, err := e.printer.PrintBytes(ctx, data)
	if e.onPrint != nil {
		e.onPrint(order, data, result, err)
	}
	return result, err
}

// parseCommand parses a command string into parts, handling quoted strings
func parseCommand(cmdStr string) []string {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		return []string{}
	}

	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := byte(0)

	for i := 0; i < len(cmdStr); i++ {
		char := cmdStr[i]

		if char == '"' || char == '\'' {
			if !inQuotes {
				inQuotes = true
				quoteChar = char
			} else if char == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else {
				current.WriteByte(char)
			}
		} else if char == ' ' && !inQuotes {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		} else {
			current.WriteByte(char)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
