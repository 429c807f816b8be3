// Package ui renders live terminal feedback for the image pre-pull phase
// the Orchestrator runs before each stage, grounded on
// original_source/src/ui.rs's PreFlightUI (there built on indicatif's
// MultiProgress; here on bubbletea's multi-bar progress.Model).
package ui

import (
	"fmt"
	"sort"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// Reporter is the narrow interface the Orchestrator's pre-pull step
// depends on; PreFlight is its only implementation, but any component
// driving image pulls can substitute a no-op for headless runs.
type Reporter interface {
	Start(image string)
	Succeed(image string)
	Fail(image string, err error)
}

// Noop discards every event; used when the orchestrator runs headless
// (e.g. under test, or when stdout is not a terminal).
type Noop struct{}

func (Noop) Start(string)          {}
func (Noop) Succeed(string)        {}
func (Noop) Fail(string, error)    {}

type barState struct {
	label string
	done  bool
	err   error
	bar   progress.Model
}

// PreFlight drives one bubbletea program rendering one progress bar per
// image being pulled.
type PreFlight struct {
	mu      sync.Mutex
	program *tea.Program
	order   []string
}

// New starts the bubbletea program for the given set of images.
func New(images []string) *PreFlight {
	sorted := append([]string(nil), images...)
	sort.Strings(sorted)

	m := model{bars: make(map[string]*barState, len(sorted)), order: sorted}
	for _, img := range sorted {
		m.bars[img] = &barState{label: img, bar: progress.New(progress.WithDefaultGradient())}
	}

	pf := &PreFlight{order: sorted}
	pf.program = tea.NewProgram(m)
	return pf
}

// Run starts the bubbletea event loop; call it in its own goroutine. It
// returns once every image has reported Succeed or Fail, or after Quit.
func (p *PreFlight) Run() error {
	_, err := p.program.Run()
	return err
}

func (p *PreFlight) Start(image string) {
	p.program.Send(pullMsg{image: image, event: eventStart})
}

func (p *PreFlight) Succeed(image string) {
	p.program.Send(pullMsg{image: image, event: eventSucceed})
}

func (p *PreFlight) Fail(image string, err error) {
	p.program.Send(pullMsg{image: image, event: eventFail, err: err})
}

// Quit stops the bubbletea program once the caller knows no further
// events are coming.
func (p *PreFlight) Quit() {
	p.program.Quit()
}

type pullEvent int

const (
	eventStart pullEvent = iota
	eventSucceed
	eventFail
)

type pullMsg struct {
	image string
	event pullEvent
	err   error
}

type model struct {
	bars  map[string]*barState
	order []string
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pullMsg:
		st, ok := m.bars[msg.image]
		if !ok {
			return m, nil
		}
		switch msg.event {
		case eventSucceed:
			st.done = true
		case eventFail:
			st.done = true
			st.err = msg.err
		}
		if m.allDone() {
			return m, tea.Quit
		}
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) allDone() bool {
	for _, st := range m.bars {
		if !st.done {
			return false
		}
	}
	return true
}

func (m model) View() string {
	var out string
	for _, img := range m.order {
		st := m.bars[img]
		switch {
		case st.err != nil:
			out += lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render(fmt.Sprintf("  FAIL %s: %v\n", st.label, st.err))
		case st.done:
			out += fmt.Sprintf("  %s DONE %s\n", st.bar.ViewAs(1), st.label)
		default:
			out += fmt.Sprintf("  %s PULL %s\n", st.bar.ViewAs(0), st.label)
		}
	}
	return out
}
