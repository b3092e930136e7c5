// ABOUTME: SyncManager owning the shared clock estimator and per-deck reconcilers
// ABOUTME: Replaces ambient global sync state with one explicit handle per connection
package timeline

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/spindeck/spindeck-go/internal/clock"
	"github.com/spindeck/spindeck-go/internal/drift"
	"github.com/spindeck/spindeck-go/internal/pll"
)

// DeckSnapshot is a read-only view of one deck for stats and UI.
type DeckSnapshot struct {
	DeckID           string
	State            TransportState
	LastDriftMs      float64
	CorrectionFactor float64
	Reason           drift.Reason
}

// Manager owns one clock estimator and the per-deck transport and
// controller state for a connection. Deck states are independent; two
// decks correcting concurrently never share history.
type Manager struct {
	mu        sync.RWMutex
	clk       clockwork.Clock
	log       zerolog.Logger
	mode      pll.Mode
	estimator *clock.Estimator
	decks     map[string]*Reconciler
}

// NewManager creates a manager in the given correction mode.
func NewManager(mode pll.Mode, log zerolog.Logger) *Manager {
	return NewManagerWithClock(mode, log, clockwork.NewRealClock())
}

// NewManagerWithClock creates a manager on the given clock.
func NewManagerWithClock(mode pll.Mode, log zerolog.Logger, clk clockwork.Clock) *Manager {
	return &Manager{
		clk:       clk,
		log:       log.With().Str("component", "syncmgr").Logger(),
		mode:      mode,
		estimator: clock.NewEstimatorWithClock(log, clk),
		decks:     make(map[string]*Reconciler),
	}
}

// Estimator exposes the shared clock offset estimator.
func (m *Manager) Estimator() *clock.Estimator {
	return m.estimator
}

// RegisterDeck creates (or re-attaches) a deck with its playback engine
// adapter and returns its reconciler.
func (m *Manager) RegisterDeck(deckID string, adapter DeckAdapter) *Reconciler {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.decks[deckID]; ok {
		r.SetAdapter(adapter)
		return r
	}

	r := NewReconciler(deckID, m.estimator, m.mode, adapter, m.clk, m.log)
	m.decks[deckID] = r
	m.log.Info().Str("deck", deckID).Str("mode", m.mode.String()).Msg("deck registered")
	return r
}

// RemoveDeck tears down a deck's state when the deck ends.
func (m *Manager) RemoveDeck(deckID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.decks, deckID)
}

// Deck returns the reconciler for deckID, nil if unregistered.
func (m *Manager) Deck(deckID string) *Reconciler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.decks[deckID]
}

// HandlePingResponse feeds a ping response into the estimator.
func (m *Manager) HandlePingResponse(t0, serverTimestamp int64) {
	m.estimator.RecordResponse(t0, serverTimestamp)
}

// HandleBeacon routes a per-deck beacon to its reconciler. Beacons for
// unknown decks are ignored.
func (m *Manager) HandleBeacon(deckID string, b Beacon) {
	m.mu.RLock()
	r := m.decks[deckID]
	m.mu.RUnlock()

	if r == nil {
		m.log.Debug().Str("deck", deckID).Str("reason", "unknown_deck").Msg("dropping beacon")
		return
	}
	r.ApplyBeacon(b)
}

// HandleLocalAction applies a user action to the named deck.
func (m *Manager) HandleLocalAction(deckID string, a Action) {
	m.mu.RLock()
	r := m.decks[deckID]
	m.mu.RUnlock()

	if r == nil {
		m.log.Debug().Str("deck", deckID).Str("reason", "unknown_deck").Msg("dropping local action")
		return
	}
	r.ApplyLocalAction(a)
}

// Resync atomically clears the estimator and every deck's transport and
// controller state. Stale offset or drift history computed against a
// dead server session would poison future corrections, so recovery
// always resets rather than repairs.
func (m *Manager) Resync() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.estimator.Reset()
	for _, r := range m.decks {
		r.Reset()
	}
	m.log.Info().Str("reason", "resync").Int("decks", len(m.decks)).Msg("sync state cleared")
}

// Snapshot returns per-deck views for stats and UI.
func (m *Manager) Snapshot() []DeckSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]DeckSnapshot, 0, len(m.decks))
	for id, r := range m.decks {
		out = append(out, DeckSnapshot{
			DeckID:           id,
			State:            r.State(),
			LastDriftMs:      r.LastDriftMs(),
			CorrectionFactor: r.CorrectionFactor(),
			Reason:           r.LastReason(),
		})
	}
	return out
}
