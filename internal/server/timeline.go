// ABOUTME: Authoritative per-deck timeline owned by the beacon server
// ABOUTME: Positions advance on the server clock; epochs scope continuity
package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/spindeck/spindeck-go/internal/protocol"
	"github.com/spindeck/spindeck-go/internal/timeline"
)

// deckTimeline is one deck's authoritative transport. Position is the
// integral of rate over play time, anchored at basePos/baseAt.
type deckTimeline struct {
	playState timeline.PlayState
	basePos   float64
	baseAt    time.Time
	rate      float64
}

// Timeline is the server's source of truth for every deck. Client
// actions mutate it and bump the epoch sequence so the next beacon
// carries the change; loading a deck starts a new epoch entirely.
type Timeline struct {
	mu       sync.Mutex
	clk      clockwork.Clock
	epochID  string
	epochSeq int64
	decks    map[string]*deckTimeline
}

// NewTimeline creates a timeline with a fresh epoch and the given decks
// stopped at position zero.
func NewTimeline(clk clockwork.Clock, deckIDs []string) *Timeline {
	t := &Timeline{
		clk:     clk,
		epochID: uuid.New().String(),
		decks:   make(map[string]*deckTimeline, len(deckIDs)),
	}
	for _, id := range deckIDs {
		t.decks[id] = &deckTimeline{
			playState: timeline.StateStopped,
			rate:      1.0,
			baseAt:    clk.Now(),
		}
	}
	return t
}

// EpochID returns the active epoch identifier.
func (t *Timeline) EpochID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.epochID
}

func (d *deckTimeline) positionAt(now time.Time) float64 {
	if d.playState != timeline.StatePlaying {
		return d.basePos
	}
	return d.basePos + now.Sub(d.baseAt).Seconds()*d.rate
}

func (d *deckTimeline) rebase(now time.Time) {
	d.basePos = d.positionAt(now)
	d.baseAt = now
}

// Apply folds a client action into the authoritative state. A load
// starts a new epoch; everything else bumps the sequence within the
// current one. Unknown decks and actions are ignored.
func (t *Timeline) Apply(a protocol.ClientAction) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.decks[a.DeckID]
	if !ok {
		return
	}

	now := t.clk.Now()

	switch a.Action {
	case "load":
		// New track, new continuity scope.
		t.epochID = uuid.New().String()
		t.epochSeq = 0
		d.playState = timeline.StateCued
		d.basePos = 0
		d.baseAt = now
		d.rate = 1.0
		return
	case "play":
		d.rebase(now)
		d.playState = timeline.StatePlaying
	case "pause":
		d.rebase(now)
		d.playState = timeline.StatePaused
	case "stop":
		d.playState = timeline.StateStopped
		d.basePos = 0
		d.baseAt = now
	case "cue":
		d.playState = timeline.StateCued
		d.basePos = a.PositionSec
		d.baseAt = now
	case "seek":
		d.rebase(now)
		d.basePos = a.PositionSec
		d.baseAt = now
	case "tempo":
		d.rebase(now)
		d.rate = a.PlaybackRate
	default:
		return
	}

	t.epochSeq++
}

// Beacon snapshots every deck into a broadcast message and advances the
// sequence number.
func (t *Timeline) Beacon() protocol.ServerBeacon {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clk.Now()
	t.epochSeq++

	decks := make(map[string]protocol.DeckBeacon, len(t.decks))
	for id, d := range t.decks {
		decks[id] = protocol.DeckBeacon{
			PlayState:    string(d.playState),
			PositionSec:  d.positionAt(now),
			PlaybackRate: d.rate,
		}
	}

	return protocol.ServerBeacon{
		EpochID:         t.epochID,
		EpochSeq:        t.epochSeq,
		ServerTimestamp: now.UnixMilli(),
		Decks:           decks,
	}
}
