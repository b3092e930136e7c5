// ABOUTME: Contract the sync core requires from an external playback engine
// ABOUTME: All calls are non-blocking and take effect immediately
package timeline

import "time"

// DeckAdapter is the per-deck playback engine boundary. Implementations
// must not block: rate changes and seeks take effect within a bounded,
// sub-frame time. The engine's position must reflect rate-adjusted
// elapsed time since the last local transport change.
type DeckAdapter interface {
	// CurrentPositionSec reports the engine's playback position.
	CurrentPositionSec() float64

	// SetPlaybackRate applies an effective rate with no internal ramp;
	// the controller already produces a bounded, smooth-enough factor.
	SetPlaybackRate(rate float64)

	// SeekWithCrossfade repositions without an audible click. Snap
	// corrections use a short (~50 ms) crossfade; hard resets use zero.
	SeekWithCrossfade(positionSec float64, crossfade time.Duration)

	Play()
	Pause()
	Stop()
	Cue(positionSec float64)
}
