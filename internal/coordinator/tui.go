// ABOUTME: Coordinator TUI for displaying participants and the last cycle
// ABOUTME: Real-time coordinator status display using bubbletea
package coordinator

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// CoordinatorTUI manages the coordinator TUI
type CoordinatorTUI struct {
	program  *tea.Program
	updates  chan CoordinatorStatus
	done     chan struct{}
	stopOnce sync.Once
	quitChan chan struct{} // Signal to stop the coordinator
}

// CoordinatorStatus holds coordinator state for the TUI
type CoordinatorStatus struct {
	Name         string
	Addr         string
	Participants []ParticipantInfo
	LastCycle    *CycleResult
}

// tuiModel is the bubbletea model for the coordinator TUI
type tuiModel struct {
	status    CoordinatorStatus
	startTime time.Time
	quitting  bool
	quitChan  chan struct{}
}

type tickMsg time.Time
type statusMsg CoordinatorStatus

func (m tuiModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = CoordinatorStatus(msg)
		return m, nil
	}

	return m, nil
}

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down coordinator...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))

	listHeaderStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("220"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("Berkeley Coordinator"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Name: "))
	b.WriteString(valueStyle.Render(m.status.Name))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Listening: "))
	b.WriteString(valueStyle.Render(m.status.Addr))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Uptime: "))
	uptime := time.Since(m.startTime).Round(time.Second)
	b.WriteString(valueStyle.Render(uptime.String()))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Last cycle: "))
	b.WriteString(valueStyle.Render(describeCycle(m.status.LastCycle)))
	b.WriteString("\n\n")

	b.WriteString(listHeaderStyle.Render(fmt.Sprintf("Participants (%d)", len(m.status.Participants))))
	b.WriteString("\n\n")

	if len(m.status.Participants) == 0 {
		b.WriteString(valueStyle.Render("  No participants connected"))
		b.WriteString("\n")
	} else {
		for _, p := range m.status.Participants {
			b.WriteString(fmt.Sprintf("  • %s", p.ID))
			b.WriteString(valueStyle.Render(fmt.Sprintf(" (offset %+v, seen %s)", p.Offset, p.LastSeen.Format("15:04:05"))))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

func describeCycle(r *CycleResult) string {
	if r == nil {
		return "waiting for first cycle"
	}
	if r.Skipped {
		return fmt.Sprintf("%s, no participants", r.Started.Format("15:04:05"))
	}
	return fmt.Sprintf("%s, avg %+v, corrected %s, %d delivered, %d failed",
		r.Started.Format("15:04:05"),
		r.AverageOffset,
		r.CorrectedTime.Format("15:04:05.000000"),
		len(r.Delivered),
		len(r.Failed))
}

// NewCoordinatorTUI creates a new coordinator TUI
func NewCoordinatorTUI(name, addr string) *CoordinatorTUI {
	t := &CoordinatorTUI{
		updates:  make(chan CoordinatorStatus, 10),
		done:     make(chan struct{}),
		quitChan: make(chan struct{}, 1),
	}

	m := tuiModel{
		status: CoordinatorStatus{
			Name: name,
			Addr: addr,
		},
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}
	t.program = tea.NewProgram(m, tea.WithAltScreen())

	return t
}

// Start runs the TUI until Stop or the user quits
func (t *CoordinatorTUI) Start() error {
	go func() {
		for {
			select {
			case status := <-t.updates:
				t.program.Send(statusMsg(status))
			case <-t.done:
				return
			}
		}
	}()

	_, err := t.program.Run()
	return err
}

// Update sends a status update to the TUI
func (t *CoordinatorTUI) Update(status CoordinatorStatus) {
	select {
	case <-t.done:
	case t.updates <- status:
	default:
		// Don't block if channel is full
	}
}

// Stop stops the TUI
func (t *CoordinatorTUI) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
		t.program.Quit()
	})
}

// QuitChan returns the channel that signals when the user wants to quit
func (t *CoordinatorTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
