// ABOUTME: Signed drift measurement between local playback and the authoritative timeline
// ABOUTME: Accounts for elapsed time since the beacon plus one-way network latency
package drift

// ServerClock is the slice of the clock estimator this package reads.
type ServerClock interface {
	EstimatedServerNowMs() int64
	AverageRoundTripMs() float64
	IsReliable() bool
}

// Reason explains why a measurement is or is not usable. Callers must
// distinguish "measured zero drift" from "cannot measure".
type Reason string

const (
	ReasonMeasured        Reason = "measured"
	ReasonNotPlaying      Reason = "not_playing"
	ReasonClockUnreliable Reason = "clock_unreliable"
)

// Input describes one measurement opportunity: where the deck says it
// is, and what the latest beacon claims.
type Input struct {
	LocalPositionSec  float64
	BeaconPositionSec float64
	PlaybackRate      float64
	BeaconServerTsMs  int64
	Playing           bool
}

// Measurement is the outcome. DriftMs and ExpectedPositionSec are only
// meaningful when OK is true.
type Measurement struct {
	DriftMs             float64
	ExpectedPositionSec float64
	OK                  bool
	Reason              Reason
}

// Measure computes signed drift in milliseconds (local − expected).
// Expected position extrapolates the beacon position by the wall-clock
// time elapsed since the beacon plus one-way latency, scaled by the
// authoritative playback rate.
func Measure(in Input, clk ServerClock) Measurement {
	if !in.Playing {
		return Measurement{Reason: ReasonNotPlaying}
	}
	if !clk.IsReliable() {
		return Measurement{Reason: ReasonClockUnreliable}
	}

	elapsedMs := float64(clk.EstimatedServerNowMs() - in.BeaconServerTsMs)
	oneWaySec := clk.AverageRoundTripMs() / 2 / 1000

	expected := in.BeaconPositionSec + (elapsedMs/1000+oneWaySec)*in.PlaybackRate

	return Measurement{
		DriftMs:             in.LocalPositionSec*1000 - expected*1000,
		ExpectedPositionSec: expected,
		OK:                  true,
		Reason:              ReasonMeasured,
	}
}
