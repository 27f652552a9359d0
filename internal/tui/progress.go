package tui

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/thereceipt/bleprint/internal/bluez"
)

var errInterrupted = errors.New("interrupted")

// Messages
type workDoneMsg struct {
	err error
}

type progressModel struct {
	spinner spinner.Model
	title   string
	work    func() error
	err     error
	done    bool
}

func newProgressModel(title string, work func() error) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return progressModel{spinner: s, title: title, work: work}
}

func (m progressModel) Init() tea.Cmd {
	work := m.work
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		return workDoneMsg{err: work()}
	})
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case workDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			m.err = errInterrupted
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}
	return m.spinner.View() + " " + m.title + "\n"
}

// Progress shows a spinner while work runs and can hand the terminal to a
// full-screen picker in the middle of it
type Progress struct {
	output io.Writer
	input  io.Reader

	mu      sync.Mutex
	program *tea.Program
}

// NewProgress creates a Progress on the given terminal streams
func NewProgress(input io.Reader, output io.Writer) *Progress {
	return &Progress{input: input, output: output}
}

// Run shows title with a spinner until work returns
func (p *Progress) Run(title string, work func() error) error {
	program := tea.NewProgram(newProgressModel(title, work),
		tea.WithInput(p.input), tea.WithOutput(p.output))

	p.mu.Lock()
	p.program = program
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.program = nil
		p.mu.Unlock()
	}()

	final, err := program.Run()
	if err != nil {
		return err
	}
	return final.(progressModel).err
}

// Suspend releases the terminal while fn runs
func (p *Progress) Suspend(fn func()) {
	p.mu.Lock()
	program := p.program
	p.mu.Unlock()

	if program == nil {
		fn()
		return
	}

	if err := program.ReleaseTerminal(); err != nil {
		fn()
		return
	}
	defer program.RestoreTerminal()
	fn()
}

// SuspendingChooser runs Chooser with the spinner out of the way
type SuspendingChooser struct {
	Chooser  bluez.Chooser
	Progress *Progress
}

func (s SuspendingChooser) Choose(ctx context.Context, candidates []bluez.Candidate) (bluez.Candidate, error) {
	var (
		choice bluez.Candidate
		err    error
	)
	s.Progress.Suspend(func() {
		choice, err = s.Chooser.Choose(ctx, candidates)
	})
	return choice, err
}
