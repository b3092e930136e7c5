// ABOUTME: Tests for the median window and drift measurement
// ABOUTME: Covers jitter rejection, latency compensation, and reason codes
package drift

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// stubClock is a controllable drift.ServerClock.
type stubClock struct {
	nowMs    int64
	rttMs    float64
	reliable bool
}

func (s *stubClock) EstimatedServerNowMs() int64  { return s.nowMs }
func (s *stubClock) AverageRoundTripMs() float64  { return s.rttMs }
func (s *stubClock) IsReliable() bool             { return s.reliable }

func TestWindowMedianRejectsSpike(t *testing.T) {
	w := NewWindow()
	for _, v := range []float64{5, 6, 4, 700, 5} {
		w.Push(v)
	}
	assert.Equal(t, 5.0, w.Median())
}

func TestWindowBounded(t *testing.T) {
	w := NewWindow()
	for i := 0; i < 10; i++ {
		w.Push(float64(i))
	}
	assert.Equal(t, WindowSize, w.Len())
	// Oldest values evicted: remaining are 5..9.
	assert.Equal(t, 7.0, w.Median())
}

func TestWindowEmptyAndReset(t *testing.T) {
	w := NewWindow()
	assert.Equal(t, 0.0, w.Median())

	w.Push(42)
	w.Reset()
	assert.Equal(t, 0, w.Len())
	assert.Equal(t, 0.0, w.Median())
}

func TestMeasureAccountsForElapsedAndLatency(t *testing.T) {
	// Beacon stamped at 1000, estimator says it's now 1500, RTT 100ms:
	// expected = 10.0 + (0.5 + 0.05) * 1.0 = 10.55.
	clk := &stubClock{nowMs: 1500, rttMs: 100, reliable: true}

	m := Measure(Input{
		LocalPositionSec:  10.57,
		BeaconPositionSec: 10.0,
		PlaybackRate:      1.0,
		BeaconServerTsMs:  1000,
		Playing:           true,
	}, clk)

	assert.True(t, m.OK)
	assert.Equal(t, ReasonMeasured, m.Reason)
	assert.InDelta(t, 10.55, m.ExpectedPositionSec, 1e-9)
	assert.InDelta(t, 20.0, m.DriftMs, 1e-6)
}

func TestMeasureScalesByPlaybackRate(t *testing.T) {
	clk := &stubClock{nowMs: 2000, rttMs: 0, reliable: true}

	m := Measure(Input{
		LocalPositionSec:  12.0,
		BeaconPositionSec: 10.0,
		PlaybackRate:      2.0,
		BeaconServerTsMs:  1000,
		Playing:           true,
	}, clk)

	// expected = 10.0 + 1.0s * 2.0 = 12.0
	assert.True(t, m.OK)
	assert.InDelta(t, 0.0, m.DriftMs, 1e-6)
}

func TestMeasureNotPlaying(t *testing.T) {
	clk := &stubClock{reliable: true}

	m := Measure(Input{Playing: false}, clk)

	assert.False(t, m.OK)
	assert.Equal(t, ReasonNotPlaying, m.Reason)
}

func TestMeasureUnreliableClock(t *testing.T) {
	clk := &stubClock{reliable: false}

	m := Measure(Input{Playing: true}, clk)

	assert.False(t, m.OK)
	assert.Equal(t, ReasonClockUnreliable, m.Reason)
}
