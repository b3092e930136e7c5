// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and exposes control channels
package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/spindeck/spindeck-go/internal/timeline"
)

// ActionMsg is a user-originated deck action from the TUI.
type ActionMsg struct {
	DeckID string
	Action timeline.Action
}

// ResyncMsg requests a full resync.
type ResyncMsg struct{}

// QuitMsg signals that the user quit the TUI.
type QuitMsg struct{}

// Controls holds channels carrying user intent out of the TUI.
type Controls struct {
	Actions chan ActionMsg
	Resync  chan ResyncMsg
	Quit    chan QuitMsg
}

// NewControls creates a control channel set.
func NewControls() *Controls {
	return &Controls{
		Actions: make(chan ActionMsg, 10),
		Resync:  make(chan ResyncMsg, 1),
		Quit:    make(chan QuitMsg, 1),
	}
}

// NewModel creates a TUI model bound to the given controls.
func NewModel(controls *Controls) Model {
	return Model{controls: controls}
}

// Run starts the TUI.
func Run(controls *Controls) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(controls), tea.WithAltScreen())
	return p, nil
}
