// ABOUTME: Tests for the clock offset estimator
// ABOUTME: Covers convergence, outlier rejection, staleness, and reliability
package clock

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedSample injects one ping exchange with the given round trip and
// true offset, relative to the fake clock's current time.
func feedSample(e *Estimator, clk clockwork.Clock, rttMs, offsetMs int64) {
	nowMs := clk.Now().UnixMilli()
	t0 := nowMs - rttMs
	serverTs := t0 + rttMs/2 + offsetMs
	e.RecordResponse(t0, serverTs)
}

func newTestEstimator() (*Estimator, *clockwork.FakeClock) {
	clk := clockwork.NewFakeClock()
	return NewEstimatorWithClock(zerolog.Nop(), clk), clk
}

func TestOffsetConvergence(t *testing.T) {
	e, clk := newTestEstimator()

	for i := 0; i < 5; i++ {
		feedSample(e, clk, 40, 25)
		clk.Advance(time.Second)
	}

	assert.InDelta(t, 25.0, e.AverageOffsetMs(), 0.5)
	assert.InDelta(t, 40.0, e.AverageRoundTripMs(), 0.5)
	assert.True(t, e.IsReliable())
}

func TestReliableExactlyAtFifthSample(t *testing.T) {
	e, clk := newTestEstimator()

	for i := 0; i < 4; i++ {
		feedSample(e, clk, 30, 10)
		clk.Advance(time.Second)
		require.False(t, e.IsReliable(), "reliable after %d samples", i+1)
	}

	feedSample(e, clk, 30, 10)
	assert.True(t, e.IsReliable(), "expected reliable at the 5th valid sample")
}

func TestRoundTripOutlierRejected(t *testing.T) {
	e, clk := newTestEstimator()

	for i := 0; i < 5; i++ {
		feedSample(e, clk, 40, 25)
		clk.Advance(time.Second)
	}
	before := e.AverageOffsetMs()

	// A 10x round trip with a wildly asymmetric path. The implied
	// offset is hundreds of ms off; rejection must keep the average
	// near the truth.
	nowMs := clk.Now().UnixMilli()
	t0 := nowMs - 400
	e.RecordResponse(t0, t0+10+25)

	assert.InDelta(t, before, e.AverageOffsetMs(), 1.0)
	assert.True(t, e.IsReliable())
}

func TestStaleSamplesEvicted(t *testing.T) {
	e, clk := newTestEstimator()

	for i := 0; i < 5; i++ {
		feedSample(e, clk, 40, 25)
		clk.Advance(time.Second)
	}
	require.True(t, e.IsReliable())

	// Everything ages out; the next sample stands alone.
	clk.Advance(2 * time.Minute)
	feedSample(e, clk, 40, 80)

	assert.False(t, e.IsReliable(), "one fresh sample must not be reliable")
	assert.InDelta(t, 80.0, e.AverageOffsetMs(), 0.5)
}

func TestRingBufferBounded(t *testing.T) {
	e, clk := newTestEstimator()

	for i := 0; i < 20; i++ {
		feedSample(e, clk, 40, 25)
		clk.Advance(100 * time.Millisecond)
	}

	assert.LessOrEqual(t, e.Stats().SampleCount, 7)
}

func TestEstimatedServerNow(t *testing.T) {
	e, clk := newTestEstimator()

	for i := 0; i < 5; i++ {
		feedSample(e, clk, 20, 500)
		clk.Advance(time.Second)
	}

	want := clk.Now().UnixMilli() + 500
	assert.InDelta(t, float64(want), float64(e.EstimatedServerNowMs()), 1.0)
}

func TestNonMonotonicSampleDiscarded(t *testing.T) {
	e, clk := newTestEstimator()

	nowMs := clk.Now().UnixMilli()
	e.RecordResponse(nowMs+1000, nowMs) // t0 in the future

	assert.Equal(t, 0, e.Stats().SampleCount)
}

func TestSubscriberNotified(t *testing.T) {
	e, clk := newTestEstimator()

	var got []Stats
	e.Subscribe(func(s Stats) { got = append(got, s) })

	feedSample(e, clk, 40, 25)
	feedSample(e, clk, 40, 25)

	require.Len(t, got, 2)
	assert.InDelta(t, 25.0, got[1].OffsetMs, 0.5)
}

func TestReset(t *testing.T) {
	e, clk := newTestEstimator()

	for i := 0; i < 5; i++ {
		feedSample(e, clk, 40, 25)
		clk.Advance(time.Second)
	}
	require.True(t, e.IsReliable())

	e.Reset()

	assert.False(t, e.IsReliable())
	assert.Equal(t, 0.0, e.AverageOffsetMs())
	assert.Equal(t, 0, e.Stats().SampleCount)
}
