// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for the participant UI
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Control carries signals from the TUI back to the participant command
type Control struct {
	Quit chan struct{}
}

// NewControl creates a new control handler
func NewControl() *Control {
	return &Control{
		Quit: make(chan struct{}, 1),
	}
}

// NewModel creates a new TUI model. clock and ctrl may be nil.
func NewModel(name string, clock Clock, ctrl *Control) Model {
	m := Model{
		state: "connecting",
		name:  name,
		clock: clock,
	}
	if ctrl != nil {
		m.quit = ctrl.Quit
	}
	return m
}

// Run creates the TUI program; the caller starts it with Run
func Run(name string, clock Clock, ctrl *Control) *tea.Program {
	return tea.NewProgram(NewModel(name, clock, ctrl), tea.WithAltScreen())
}
