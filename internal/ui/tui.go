// ABOUTME: Dashboard program wrapper around the bubbletea model
// ABOUTME: Feeds status updates into the program and signals when the user quits
package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Dashboard runs the terminal dashboard.
type Dashboard struct {
	program  *tea.Program
	updates  chan StatusMsg
	quitChan chan struct{}
	finished chan struct{}
}

// NewDashboard creates a dashboard. Call Start to take over the terminal.
func NewDashboard(model Model) *Dashboard {
	d := &Dashboard{
		updates:  make(chan StatusMsg, 10),
		quitChan: make(chan struct{}, 1),
		finished: make(chan struct{}),
	}
	model.quitChan = d.quitChan
	d.program = tea.NewProgram(model, tea.WithAltScreen())
	return d
}

// Start runs the program until the user quits or Stop is called.
func (d *Dashboard) Start() error {
	defer close(d.finished)
	go func() {
		for status := range d.updates {
			d.program.Send(status)
		}
	}()

	_, err := d.program.Run()
	return err
}

// Update sends a status update to the dashboard without blocking.
func (d *Dashboard) Update(status StatusMsg) {
	select {
	case d.updates <- status:
	default:
	}
}

// Stop quits the program and waits briefly for the terminal to be
// restored. Update must not be called afterwards.
func (d *Dashboard) Stop() {
	d.program.Quit()
	close(d.updates)
	select {
	case <-d.finished:
	case <-time.After(2 * time.Second):
	}
}

// QuitChan signals when the user asked to quit.
func (d *Dashboard) QuitChan() <-chan struct{} {
	return d.quitChan
}
