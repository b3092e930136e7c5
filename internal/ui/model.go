// ABOUTME: Bubbletea model for the deck sync status TUI
// ABOUTME: Shows clock offset, per-deck drift, and correction state
package ui

import (
	"fmt"
	"sort"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/spindeck/spindeck-go/internal/clock"
	"github.com/spindeck/spindeck-go/internal/timeline"
)

// Model represents the TUI state.
type Model struct {
	// Connection
	connected  bool
	serverName string

	// Clock
	clockStats clock.Stats

	// Decks
	decks    []timeline.DeckSnapshot
	selected int

	// Control
	controls *Controls

	// Dimensions
	width  int
	height int
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := m.renderHeader()
	s += m.renderDecks()
	s += m.renderHelp()

	return s
}

// renderHeader renders connection and clock sync status.
func (m Model) renderHeader() string {
	connStatus := "Disconnected"
	if m.connected {
		connStatus = fmt.Sprintf("Connected to %s", m.serverName)
	}

	syncIcon := "✗"
	syncText := fmt.Sprintf("acquiring (%d/5 samples)", m.clockStats.SampleCount)
	if m.clockStats.Reliable {
		syncIcon = "✓"
		syncText = fmt.Sprintf("offset %+.1fms, rtt %.1fms",
			m.clockStats.OffsetMs, m.clockStats.RoundTripMs)
	}

	return fmt.Sprintf(`┌─ Spindeck ───────────────────────────────────────────┐
│ Status: %-45s │
│ Clock:  %s %-42s │
├──────────────────────────────────────────────────────┤
`, connStatus, syncIcon, syncText)
}

// renderDecks renders one row per deck.
func (m Model) renderDecks() string {
	if len(m.decks) == 0 {
		return "│ No decks                                             │\n"
	}

	s := "│ Deck   State     Position   Rate    Drift    Corr    │\n"
	for i, d := range m.decks {
		marker := " "
		if i == m.selected {
			marker = ">"
		}
		s += fmt.Sprintf("│%s %-6s %-8s %8.2fs  %.3f  %+6.1fms %.4f │\n",
			marker, truncate(d.DeckID, 6), d.State.PlayState,
			d.State.PositionSec, d.State.PlaybackRate,
			d.LastDriftMs, d.CorrectionFactor)
	}

	return s
}

// renderHelp renders keyboard shortcuts.
func (m Model) renderHelp() string {
	return `├──────────────────────────────────────────────────────┤
│ tab:Deck  space:Play/Pause  s:Stop  ←/→:Seek         │
│ +/-:Tempo  r:Resync  q:Quit                          │
└──────────────────────────────────────────────────────┘
`
}

// handleKey handles keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.controls != nil {
			select {
			case m.controls.Quit <- QuitMsg{}:
			default:
			}
		}
		return m, tea.Quit
	case "tab":
		if len(m.decks) > 0 {
			m.selected = (m.selected + 1) % len(m.decks)
		}
	case " ":
		if d := m.selectedDeck(); d != nil {
			action := timeline.Action{Type: timeline.ActionPlay}
			if d.State.PlayState == timeline.StatePlaying {
				action.Type = timeline.ActionPause
			}
			m.sendAction(d.DeckID, action)
		}
	case "s":
		if d := m.selectedDeck(); d != nil {
			m.sendAction(d.DeckID, timeline.Action{Type: timeline.ActionStop})
		}
	case "left":
		if d := m.selectedDeck(); d != nil {
			pos := d.State.PositionSec - 5
			if pos < 0 {
				pos = 0
			}
			m.sendAction(d.DeckID, timeline.Action{Type: timeline.ActionSeek, PositionSec: pos})
		}
	case "right":
		if d := m.selectedDeck(); d != nil {
			m.sendAction(d.DeckID, timeline.Action{
				Type:        timeline.ActionSeek,
				PositionSec: d.State.PositionSec + 5,
			})
		}
	case "+", "=":
		if d := m.selectedDeck(); d != nil {
			m.sendAction(d.DeckID, timeline.Action{
				Type:         timeline.ActionTempo,
				PlaybackRate: d.State.PlaybackRate + 0.01,
			})
		}
	case "-":
		if d := m.selectedDeck(); d != nil {
			rate := d.State.PlaybackRate - 0.01
			if rate < 0.5 {
				rate = 0.5
			}
			m.sendAction(d.DeckID, timeline.Action{Type: timeline.ActionTempo, PlaybackRate: rate})
		}
	case "r":
		if m.controls != nil {
			select {
			case m.controls.Resync <- ResyncMsg{}:
			default:
			}
		}
	}

	return m, nil
}

func (m Model) selectedDeck() *timeline.DeckSnapshot {
	if m.selected >= len(m.decks) {
		return nil
	}
	return &m.decks[m.selected]
}

func (m Model) sendAction(deckID string, action timeline.Action) {
	if m.controls == nil {
		return
	}
	select {
	case m.controls.Actions <- ActionMsg{DeckID: deckID, Action: action}:
	default:
	}
}

// applyStatus updates model from a status message.
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}
	if msg.Clock != nil {
		m.clockStats = *msg.Clock
	}
	if msg.Decks != nil {
		sort.Slice(msg.Decks, func(i, j int) bool {
			return msg.Decks[i].DeckID < msg.Decks[j].DeckID
		})
		m.decks = msg.Decks
		if m.selected >= len(m.decks) {
			m.selected = 0
		}
	}
}

// StatusMsg updates TUI state.
type StatusMsg struct {
	Connected  *bool
	ServerName string
	Clock      *clock.Stats
	Decks      []timeline.DeckSnapshot
}

// truncate shortens s to length display characters. Counts runes, not
// bytes, so a multi-byte deck ID is never split mid-character.
func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-1]) + "…"
}
