// ABOUTME: Simulated playback engine implementing the deck adapter contract
// ABOUTME: A rate-scaled position integrator; stands in for the real engine in demos and tests
package deck

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Sim is a deterministic stand-in for a real playback engine. Position
// advances at the commanded rate while playing; every call returns
// immediately. Safe for a single control goroutine plus readers.
type Sim struct {
	mu       sync.Mutex
	clk      clockwork.Clock
	basePos  float64
	baseAt   time.Time
	rate     float64
	playing  bool
	cuePoint float64
	seeks    int64
}

// NewSim creates a stopped deck at position 0, rate 1.0.
func NewSim(clk clockwork.Clock) *Sim {
	return &Sim{clk: clk, rate: 1.0, baseAt: clk.Now()}
}

// CurrentPositionSec reports rate-adjusted elapsed position.
func (s *Sim) CurrentPositionSec() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

func (s *Sim) positionLocked() float64 {
	if !s.playing {
		return s.basePos
	}
	return s.basePos + s.clk.Since(s.baseAt).Seconds()*s.rate
}

// rebase folds elapsed playback into basePos so a rate change only
// affects time after the change.
func (s *Sim) rebase() {
	s.basePos = s.positionLocked()
	s.baseAt = s.clk.Now()
}

// SetPlaybackRate applies a new rate immediately, no ramp.
func (s *Sim) SetPlaybackRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebase()
	s.rate = rate
}

// PlaybackRate returns the current commanded rate.
func (s *Sim) PlaybackRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// SeekWithCrossfade repositions instantly. The sim has no audio to
// crossfade; the duration is tracked only via the seek counter.
func (s *Sim) SeekWithCrossfade(positionSec float64, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.basePos = positionSec
	s.baseAt = s.clk.Now()
	s.seeks++
}

// Seeks returns how many repositions have been issued.
func (s *Sim) Seeks() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeks
}

// Play starts or resumes playback from the current position.
func (s *Sim) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		return
	}
	s.baseAt = s.clk.Now()
	s.playing = true
}

// Pause freezes the position.
func (s *Sim) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebase()
	s.playing = false
}

// Stop halts playback and rewinds to zero.
func (s *Sim) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	s.basePos = 0
	s.baseAt = s.clk.Now()
}

// Cue parks the deck at the cue point, ready to play.
func (s *Sim) Cue(positionSec float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	s.cuePoint = positionSec
	s.basePos = positionSec
	s.baseAt = s.clk.Now()
}

// Playing reports whether the deck is advancing.
func (s *Sim) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}
