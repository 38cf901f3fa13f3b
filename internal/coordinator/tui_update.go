// ABOUTME: TUI update helpers for the coordinator
// ABOUTME: Sends registry and cycle state to the TUI
package coordinator

// updateTUI sends current coordinator state to the TUI
func (c *Coordinator) updateTUI() {
	if c.tui == nil {
		return
	}

	status := CoordinatorStatus{
		Name:         c.config.Name,
		Addr:         c.Addr(),
		Participants: c.Participants(),
	}
	if last, ok := c.LastCycle(); ok {
		status.LastCycle = &last
	}

	c.tui.Update(status)
}
