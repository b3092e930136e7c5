// ABOUTME: Transport beacon and per-deck transport state types
// ABOUTME: Epoch identifiers scope all continuity assumptions
package timeline

// PlayState mirrors the playback engine's transport states.
type PlayState string

const (
	StateStopped PlayState = "stopped"
	StatePlaying PlayState = "playing"
	StatePaused  PlayState = "paused"
	StateCued    PlayState = "cued"
)

// Valid reports whether s is one of the known transport states.
func (s PlayState) Valid() bool {
	switch s {
	case StateStopped, StatePlaying, StatePaused, StateCued:
		return true
	}
	return false
}

// Beacon is an immutable authoritative transport snapshot for one deck.
// EpochSeq increases monotonically within an EpochID; a new EpochID
// voids all continuity assumptions.
type Beacon struct {
	EpochID         string
	EpochSeq        int64
	PlayState       PlayState
	PositionSec     float64
	PlaybackRate    float64
	ServerTimestamp int64 // Unix ms, server clock
}

// TransportState is the reconciler's view of one deck's transport.
// LastSeenSeq is monotonically non-decreasing within an epoch; beacons
// at or below it are duplicates and must not mutate state.
type TransportState struct {
	PlayState    PlayState
	PositionSec  float64
	PlaybackRate float64
	EpochID      string
	EpochSeq     int64
	LastSeenSeq  int64
}

// ActionType identifies a user-originated transport action.
type ActionType string

const (
	ActionPlay  ActionType = "play"
	ActionPause ActionType = "pause"
	ActionStop  ActionType = "stop"
	ActionCue   ActionType = "cue"
	ActionSeek  ActionType = "seek"
	ActionTempo ActionType = "tempo"
)

// Action is a local user action applied optimistically, ahead of server
// confirmation. PositionSec is used by cue/seek, PlaybackRate by tempo.
type Action struct {
	Type         ActionType
	PositionSec  float64
	PlaybackRate float64
}
