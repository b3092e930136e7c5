// ABOUTME: Epoched per-deck transport reconciler
// ABOUTME: Distinguishes new authoritative timelines (hard reset) from continuations (soft correction)
package timeline

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/spindeck/spindeck-go/internal/drift"
	"github.com/spindeck/spindeck-go/internal/pll"
)

const (
	// SnapCrossfade is the repositioning crossfade used for snap
	// corrections, short enough to be unobtrusive.
	SnapCrossfade = 50 * time.Millisecond

	// SnapCooldown rate-limits snaps per deck so the snap and
	// rate-adjust paths never fight each other.
	SnapCooldown = 500 * time.Millisecond
)

// Reconciler owns one deck's transport state machine and epoch
// bookkeeping. It never returns errors: degraded inputs are logged with
// a reason code and become no-ops.
type Reconciler struct {
	deckID     string
	clk        clockwork.Clock
	log        zerolog.Logger
	estimator  drift.ServerClock
	controller *pll.Controller

	// mu guards adapter and all transport/controller state: beacons,
	// local actions, and snapshot reads may arrive on different
	// goroutines.
	mu          sync.Mutex
	adapter     DeckAdapter
	state       TransportState
	lastSnapAt  time.Time
	lastDriftMs float64
	lastReason  drift.Reason
}

// NewReconciler creates a reconciler for one deck. The adapter may be
// nil until the playback engine initializes; beacons are skipped until
// it is attached.
func NewReconciler(deckID string, estimator drift.ServerClock, mode pll.Mode, adapter DeckAdapter, clk clockwork.Clock, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		deckID:     deckID,
		clk:        clk,
		log:        log.With().Str("component", "reconciler").Str("deck", deckID).Logger(),
		estimator:  estimator,
		controller: pll.NewController(mode),
		adapter:    adapter,
	}
}

// SetAdapter attaches the playback engine once it becomes available.
func (r *Reconciler) SetAdapter(adapter DeckAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapter = adapter
}

// State returns a copy of the current transport state.
func (r *Reconciler) State() TransportState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastDriftMs returns the most recent measured drift.
func (r *Reconciler) LastDriftMs() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastDriftMs
}

// CorrectionFactor returns the controller's current factor.
func (r *Reconciler) CorrectionFactor() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controller.Factor()
}

// LastReason returns the reason code of the most recent measurement
// attempt, empty before the first playing beacon.
func (r *Reconciler) LastReason() drift.Reason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastReason
}

// ApplyBeacon reconciles one authoritative snapshot against local
// playback. Duplicate or out-of-order beacons are dropped without
// mutating anything.
func (r *Reconciler) ApplyBeacon(b Beacon) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.adapter == nil {
		r.log.Debug().Str("reason", "no_adapter").Msg("skipping beacon")
		return
	}
	if !b.PlayState.Valid() {
		r.log.Warn().Str("reason", "unknown_play_state").Str("play_state", string(b.PlayState)).
			Msg("dropping beacon")
		return
	}

	if b.EpochID == r.state.EpochID && b.EpochSeq <= r.state.LastSeenSeq {
		r.log.Debug().Str("reason", "stale_seq").
			Int64("seq", b.EpochSeq).Int64("last_seen", r.state.LastSeenSeq).
			Msg("dropping beacon")
		return
	}

	if b.EpochID != r.state.EpochID {
		r.hardReset(b)
		return
	}

	r.softCorrect(b)
}

// hardReset adopts the beacon verbatim. Across an epoch boundary no
// continuity assumption holds, so nothing is blended or interpolated.
func (r *Reconciler) hardReset(b Beacon) {
	r.log.Info().Str("reason", "epoch_change").
		Str("old_epoch", r.state.EpochID).Str("new_epoch", b.EpochID).
		Msg("hard reset")

	r.state = TransportState{
		PlayState:    b.PlayState,
		PositionSec:  b.PositionSec,
		PlaybackRate: b.PlaybackRate,
		EpochID:      b.EpochID,
		EpochSeq:     b.EpochSeq,
		LastSeenSeq:  b.EpochSeq,
	}
	r.controller.Reset()
	r.commandExact(b.PlayState, b.PositionSec, b.PlaybackRate)
}

// softCorrect handles a strictly newer beacon within the current epoch.
func (r *Reconciler) softCorrect(b Beacon) {
	prev := r.state.PlayState
	r.state.LastSeenSeq = b.EpochSeq
	r.state.EpochSeq = b.EpochSeq

	if b.PlayState != StatePlaying {
		r.state.PlayState = b.PlayState
		r.state.PositionSec = b.PositionSec
		r.state.PlaybackRate = b.PlaybackRate
		if prev != b.PlayState {
			r.commandExact(b.PlayState, b.PositionSec, b.PlaybackRate)
		}
		return
	}

	r.state.PlayState = StatePlaying
	r.state.PlaybackRate = b.PlaybackRate
	r.state.PositionSec = b.PositionSec

	if prev != StatePlaying {
		// Transport started remotely; match it exactly and let the
		// following beacons converge the phase.
		r.commandExact(StatePlaying, b.PositionSec, b.PlaybackRate)
		return
	}

	m := drift.Measure(drift.Input{
		LocalPositionSec:  r.adapter.CurrentPositionSec(),
		BeaconPositionSec: b.PositionSec,
		PlaybackRate:      b.PlaybackRate,
		BeaconServerTsMs:  b.ServerTimestamp,
		Playing:           true,
	}, r.estimator)
	r.lastReason = m.Reason
	if !m.OK {
		r.log.Debug().Str("reason", string(m.Reason)).Msg("correction suppressed")
		return
	}
	r.lastDriftMs = m.DriftMs

	res := r.controller.AddMeasurement(m.DriftMs)

	if res.ShouldSnap {
		if r.clk.Since(r.lastSnapAt) < SnapCooldown && !r.lastSnapAt.IsZero() {
			r.log.Debug().Str("reason", "snap_cooldown").
				Float64("drift_ms", m.DriftMs).Msg("snap suppressed")
			return
		}
		r.log.Info().Str("reason", "snap").
			Float64("drift_ms", m.DriftMs).
			Float64("expected_sec", m.ExpectedPositionSec).
			Msg("repositioning deck")
		r.adapter.SeekWithCrossfade(m.ExpectedPositionSec, SnapCrossfade)
		r.controller.Reset()
		r.lastSnapAt = r.clk.Now()
		return
	}

	// The nudge composes with the beacon's authoritative rate, never a
	// hard-coded baseline, so user tempo changes survive correction.
	effective := b.PlaybackRate * res.CorrectionFactor
	if diff := res.CorrectionFactor - 1; diff > pll.NeutralEpsilon || diff < -pll.NeutralEpsilon {
		r.log.Debug().
			Float64("drift_ms", m.DriftMs).
			Float64("factor", res.CorrectionFactor).
			Float64("effective_rate", effective).
			Msg("rate nudge")
		r.adapter.SetPlaybackRate(effective)
	} else {
		r.adapter.SetPlaybackRate(b.PlaybackRate)
	}
}

// commandExact forces the engine to the given transport with no
// interpolation.
func (r *Reconciler) commandExact(state PlayState, positionSec, rate float64) {
	r.adapter.SeekWithCrossfade(positionSec, 0)
	r.adapter.SetPlaybackRate(rate)
	switch state {
	case StatePlaying:
		r.adapter.Play()
	case StatePaused:
		r.adapter.Pause()
	case StateStopped:
		r.adapter.Stop()
	case StateCued:
		r.adapter.Cue(positionSec)
	}
}

// ApplyLocalAction applies a user action to the engine immediately and
// optimistically; the next beacon reconciles authoritative state.
func (r *Reconciler) ApplyLocalAction(a Action) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.adapter == nil {
		r.log.Debug().Str("reason", "no_adapter").Msg("skipping local action")
		return
	}

	switch a.Type {
	case ActionPlay:
		r.state.PlayState = StatePlaying
		r.adapter.Play()
	case ActionPause:
		r.state.PlayState = StatePaused
		r.adapter.Pause()
	case ActionStop:
		r.state.PlayState = StateStopped
		r.state.PositionSec = 0
		r.adapter.Stop()
	case ActionCue:
		r.state.PlayState = StateCued
		r.state.PositionSec = a.PositionSec
		r.adapter.Cue(a.PositionSec)
	case ActionSeek:
		r.state.PositionSec = a.PositionSec
		r.adapter.SeekWithCrossfade(a.PositionSec, SnapCrossfade)
	case ActionTempo:
		r.state.PlaybackRate = a.PlaybackRate
		r.adapter.SetPlaybackRate(a.PlaybackRate)
	default:
		r.log.Warn().Str("reason", "unknown_action").Str("action", string(a.Type)).
			Msg("ignoring local action")
		return
	}

	r.log.Debug().Str("action", string(a.Type)).Msg("applied local action")
}

// Reset clears transport and controller state, voiding the current
// epoch so the next beacon performs a hard reset.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = TransportState{}
	r.controller.Reset()
	r.lastSnapAt = time.Time{}
	r.lastDriftMs = 0
	r.lastReason = ""
}
