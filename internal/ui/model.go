// ABOUTME: Bubbletea model for the participant TUI
// ABOUTME: Shows connection state, the applied correction and the corrected clock
package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	clocksync "github.com/harperreed/berkeley-go/internal/sync"
)

// Model represents the TUI state
type Model struct {
	// Connection
	state       string
	coordinator string
	name        string

	// Sync
	skew          time.Duration
	lastCorrected time.Time
	syncQuality   clocksync.Quality

	// Clocks, refreshed every tick
	clock     Clock
	local     time.Time
	corrected time.Time

	// Stats
	reports      int64
	corrections  int
	decodeErrors int64

	// Debug
	showDebug bool

	quit chan struct{}

	// Dimensions
	width  int
	height int
}

// Clock gives the model the participant's local and corrected readings
type Clock interface {
	LocalNow() time.Time
	Now() time.Time
}

type tickMsg time.Time

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		m.readClocks()
		return m, tickEvery()
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderClocks()
	s += m.renderStats()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders connection and sync status
func (m Model) renderHeader() string {
	connStatus := "Connecting"
	switch m.state {
	case "active":
		connStatus = fmt.Sprintf("Connected to %s", m.coordinator)
	case "closed":
		connStatus = "Disconnected"
	}

	syncIcon := "✗"
	syncText := "Waiting for coordinator"
	if m.corrections > 0 {
		syncText = "Lost"
		switch m.syncQuality {
		case clocksync.QualityGood:
			syncIcon = "✓"
			syncText = fmt.Sprintf("Synced (skew: %+.3fms)", float64(m.skew.Microseconds())/1000.0)
		case clocksync.QualityDegraded:
			syncIcon = "⚠"
			syncText = "Degraded"
		}
	}

	return fmt.Sprintf(`┌─ Berkeley Participant ───────────────────────────────┐
│ Name:   %-45s │
│ Status: %-45s │
│ Sync:   %s %-42s │
├──────────────────────────────────────────────────────┤
`, truncate(m.name, 45), truncate(connStatus, 45), syncIcon, truncate(syncText, 42))
}

// renderClocks renders the raw and corrected clocks side by side
func (m Model) renderClocks() string {
	last := "never"
	if !m.lastCorrected.IsZero() {
		last = m.lastCorrected.Format("15:04:05.000000")
	}

	return fmt.Sprintf("│ Local clock:     %-35s │\n"+
		"│ Corrected clock: %-35s │\n"+
		"│ Last correction: %-35s │\n",
		formatClock(m.local), formatClock(m.corrected), last)
}

// renderStats renders exchange counters
func (m Model) renderStats() string {
	stats := fmt.Sprintf("Reports: %d  Corrections: %d  Dropped: %d", m.reports, m.corrections, m.decodeErrors)
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ %-52s │
│                                                      │
`, truncate(stats, 52))
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ d:Debug  q:Quit                                      │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Skew: %-44s │
`, fmt.Sprintf("%+dμs", m.skew.Microseconds()))
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.quit != nil {
			select {
			case m.quit <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m *Model) readClocks() {
	if m.clock == nil {
		return
	}
	m.local = m.clock.LocalNow()
	m.corrected = m.clock.Now()
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.Coordinator != "" {
		m.coordinator = msg.Coordinator
	}
	if msg.Corrections != 0 {
		m.corrections = msg.Corrections
		m.skew = msg.Skew
		m.lastCorrected = msg.LastCorrected
		m.syncQuality = msg.SyncQuality
	}
	if msg.Reports != 0 {
		m.reports = msg.Reports
	}
	if msg.DecodeErrors != 0 {
		m.decodeErrors = msg.DecodeErrors
	}
}

// StatusMsg updates TUI state; zero fields are left unchanged
type StatusMsg struct {
	State         string
	Coordinator   string
	Skew          time.Duration
	LastCorrected time.Time
	SyncQuality   clocksync.Quality
	Corrections   int
	Reports       int64
	DecodeErrors  int64
}

// Utility functions
func formatClock(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05.000")
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
