// ABOUTME: Software phase-locked loop nudging playback rate toward the authoritative timeline
// ABOUTME: Proportional-only with a hard clamp; escalates to a snap when drift is too large
package pll

import (
	"math"

	"github.com/spindeck/spindeck-go/internal/drift"
)

const (
	// AlignedThresholdMs treats drift below this as already in phase.
	AlignedThresholdMs = 10.0

	// SnapThresholdMs is the drift beyond which rate adjustment alone
	// would be too slow or audible; the caller must reposition instead.
	SnapThresholdMs = 500.0

	// Gain converts median drift (ms) to a rate correction in percent.
	// 100 ms of drift yields a 0.1% nudge.
	Gain = 0.001

	// MaxCorrectionPct clamps the rate correction to ±2%.
	MaxCorrectionPct = 2.0

	// NeutralEpsilon is the factor distance from 1.0 below which no
	// rate change is worth issuing.
	NeutralEpsilon = 1e-4
)

// Mode selects the correction algorithm. LegacySnap is the deprecated
// fixed-rate catch-up scheme, retained only for comparative testing; it
// fought user tempo changes and is not the default.
type Mode int

const (
	ModeDisabled Mode = iota
	ModeProportionalPLL
	ModeLegacySnap
)

func (m Mode) String() string {
	switch m {
	case ModeDisabled:
		return "disabled"
	case ModeProportionalPLL:
		return "pll"
	case ModeLegacySnap:
		return "legacy-snap"
	}
	return "unknown"
}

// ParseMode maps a flag value to a Mode, defaulting to the PLL.
func ParseMode(s string) Mode {
	switch s {
	case "disabled", "off":
		return ModeDisabled
	case "legacy-snap", "legacy":
		return ModeLegacySnap
	default:
		return ModeProportionalPLL
	}
}

// Result is the controller's decision for one measurement.
type Result struct {
	CorrectionFactor float64
	ShouldSnap       bool
}

// Controller owns a bounded drift window and produces bounded rate
// corrections. One instance per deck; never shared.
type Controller struct {
	mode   Mode
	window *drift.Window
	factor float64
}

// NewController creates a controller in the given mode.
func NewController(mode Mode) *Controller {
	return &Controller{
		mode:   mode,
		window: drift.NewWindow(),
		factor: 1.0,
	}
}

// AddMeasurement feeds one raw drift value and returns the decision.
// Positive drift (local ahead of expected) slows playback; negative
// drift speeds it up. The factor always stays within ±MaxCorrection
// of 1.0 regardless of input.
func (c *Controller) AddMeasurement(driftMs float64) Result {
	c.window.Push(driftMs)

	if c.mode == ModeDisabled {
		c.factor = 1.0
		return Result{CorrectionFactor: 1.0}
	}

	med := c.window.Median()
	abs := math.Abs(med)

	if abs < AlignedThresholdMs {
		c.factor = 1.0
		return Result{CorrectionFactor: 1.0}
	}

	if abs > SnapThresholdMs {
		c.factor = 1.0
		return Result{CorrectionFactor: 1.0, ShouldSnap: true}
	}

	var correctionPct float64
	switch c.mode {
	case ModeLegacySnap:
		// Fixed catch-up rate irrespective of magnitude.
		correctionPct = math.Copysign(MaxCorrectionPct, -med)
	default:
		correctionPct = clamp(-med*Gain, -MaxCorrectionPct, MaxCorrectionPct)
	}

	c.factor = 1 + correctionPct/100
	return Result{CorrectionFactor: c.factor}
}

// Factor returns the last computed correction factor.
func (c *Controller) Factor() float64 {
	return c.factor
}

// Mode returns the controller's correction mode.
func (c *Controller) Mode() Mode {
	return c.mode
}

// Reset clears the drift history and returns the factor to 1.0. Must be
// called after every snap and on every epoch change.
func (c *Controller) Reset() {
	c.window.Reset()
	c.factor = 1.0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
