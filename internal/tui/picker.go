package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/thereceipt/bleprint/internal/bluez"
	"github.com/thereceipt/bleprint/internal/printer"
)

// Picker is a full-screen list for choosing the printer to pair with
type Picker struct {
	screen  tcell.Screen
	started func(*tview.Application)
}

// NewPicker creates a Picker on the terminal
func NewPicker() *Picker {
	return &Picker{}
}

// Choose shows candidates and blocks until the user picks one. Esc or q
// cancels with printer.ErrPairingCancelled.
func (p *Picker) Choose(ctx context.Context, candidates []bluez.Candidate) (bluez.Candidate, error) {
	if len(candidates) == 0 {
		return bluez.Candidate{}, fmt.Errorf("%w: nothing to choose from", printer.ErrDeviceNotFound)
	}

	app := tview.NewApplication()
	if p.screen != nil {
		app.SetScreen(p.screen)
	}

	chosen := -1
	list := tview.NewList()
	list.SetBorder(true)
	list.SetTitle(" Select a printer ")
	list.SetSelectedFunc(func(index int, _, _ string, _ rune) {
		chosen = index
		app.Stop()
	})
	list.SetDoneFunc(func() {
		app.Stop()
	})
	list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyRune && event.Rune() == 'q' {
			app.Stop()
			return nil
		}
		return event
	})

	for i, c := range candidates {
		var shortcut rune
		if i < 9 {
			shortcut = rune('1' + i)
		}
		list.AddItem(candidateTitle(c), candidateDetails(c), shortcut, nil)
	}

	help := tview.NewTextView().
		SetDynamicColors(true).
		SetText("[::b]Enter[::-] pair  [::b]Esc/q[::-] cancel")

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(list, 0, 1, true).
		AddItem(help, 1, 0, false)
	app.SetRoot(layout, true)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			app.Stop()
		case <-stop:
		}
	}()

	if p.started != nil {
		p.started(app)
	}
	if err := app.Run(); err != nil {
		return bluez.Candidate{}, fmt.Errorf("%w: no terminal for printer picker: %w", printer.ErrNotPaired, err)
	}

	if chosen < 0 {
		return bluez.Candidate{}, printer.ErrPairingCancelled
	}
	return candidates[chosen], nil
}

func candidateTitle(c bluez.Candidate) string {
	if c.Printer {
		return "🖨  " + c.Label()
	}
	return "   " + c.Label()
}

func candidateDetails(c bluez.Candidate) string {
	parts := []string{c.Address}
	if c.RSSI != 0 {
		parts = append(parts, fmt.Sprintf("%d dBm", c.RSSI))
	}
	if c.Paired {
		parts = append(parts, "paired")
	}
	return strings.Join(parts, " • ")
}

// AutoChooser picks without asking: the first candidate whose name or
// address contains Match, or the first one advertising the print service
type AutoChooser struct {
	Match string
}

func (a AutoChooser) Choose(_ context.Context, candidates []bluez.Candidate) (bluez.Candidate, error) {
	match := strings.ToLower(a.Match)
	for _, c := range candidates {
		if match == "" && c.Printer {
			return c, nil
		}
		if match != "" && (strings.Contains(strings.ToLower(c.Name), match) ||
			strings.Contains(strings.ToLower(c.Address), match)) {
			return c, nil
		}
	}

	if match != "" {
		return bluez.Candidate{}, fmt.Errorf("%w: no device matching %q", printer.ErrDeviceNotFound, a.Match)
	}
	return bluez.Candidate{}, fmt.Errorf("%w: no device advertises the print service", printer.ErrDeviceNotFound)
}
