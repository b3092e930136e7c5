// ABOUTME: NTP-style clock offset estimation from ping round trips
// ABOUTME: Keeps a bounded sample window with outlier rejection and weighted averaging
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	// maxSamples bounds the sample ring buffer.
	maxSamples = 7

	// reliableSampleCount is the minimum number of valid samples before
	// the estimate may be trusted by downstream consumers.
	reliableSampleCount = 5

	// sampleMaxAge is how long a sample stays fresh.
	sampleMaxAge = 60 * time.Second

	// rttOutlierFactor rejects samples whose round trip exceeds this
	// multiple of the median round trip (asymmetric-latency outliers).
	rttOutlierFactor = 2.0
)

// Sample is a single ping round-trip measurement.
type Sample struct {
	RoundTripMs float64
	OffsetMs    float64
	CapturedAt  time.Time
}

// Stats is a read-only snapshot of the estimator state.
type Stats struct {
	OffsetMs     float64
	RoundTripMs  float64
	SampleCount  int
	Reliable     bool
	LastPingSent int64
}

// Estimator tracks the offset between the local clock and the server
// clock. One writer (the ping-response handler), many readers.
type Estimator struct {
	mu           sync.RWMutex
	clk          clockwork.Clock
	log          zerolog.Logger
	samples      []Sample
	offsetMs     float64
	roundTripMs  float64
	validCount   int
	reliable     bool
	lastPingSent int64
	subs         []func(Stats)
}

// NewEstimator creates an estimator on the real clock.
func NewEstimator(log zerolog.Logger) *Estimator {
	return NewEstimatorWithClock(log, clockwork.NewRealClock())
}

// NewEstimatorWithClock creates an estimator on the given clock.
func NewEstimatorWithClock(log zerolog.Logger, clk clockwork.Clock) *Estimator {
	return &Estimator{
		clk: clk,
		log: log.With().Str("component", "clock").Logger(),
	}
}

// Subscribe registers a callback invoked after every accepted sample.
func (e *Estimator) Subscribe(fn func(Stats)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, fn)
}

// RecordRequestSent notes that a ping carrying send time t0 went out.
func (e *Estimator) RecordRequestSent(t0 int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastPingSent = t0
}

// RecordResponse processes a ping response. t0 is the client send time
// and serverTimestamp the server clock at the reply, both Unix ms. The
// server timestamp is assumed captured at the midpoint of the round trip.
func (e *Estimator) RecordResponse(t0, serverTimestamp int64) {
	now := e.clk.Now()
	nowMs := now.UnixMilli()

	rtt := float64(nowMs - t0)
	if rtt < 0 {
		e.log.Warn().Float64("rtt_ms", rtt).Str("reason", "non_monotonic").
			Msg("discarding ping sample")
		return
	}

	offset := float64(serverTimestamp) - (float64(t0) + rtt/2)

	e.mu.Lock()
	recorded := Sample{RoundTripMs: rtt, OffsetMs: offset, CapturedAt: now}
	e.samples = append(e.samples, recorded)
	if len(e.samples) > maxSamples {
		e.samples = e.samples[len(e.samples)-maxSamples:]
	}
	e.recompute(now, recorded)
	stats := e.statsLocked()
	subs := make([]func(Stats), len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()

	for _, fn := range subs {
		fn(stats)
	}
}

// recompute refreshes the aggregate estimate. Caller holds the lock.
func (e *Estimator) recompute(now time.Time, recorded Sample) {
	fresh := e.samples[:0:0]
	for _, s := range e.samples {
		if now.Sub(s.CapturedAt) <= sampleMaxAge {
			fresh = append(fresh, s)
		}
	}
	e.samples = fresh

	medianRTT := medianRoundTrip(fresh)

	valid := make([]Sample, 0, len(fresh))
	for _, s := range fresh {
		if s.RoundTripMs > medianRTT*rttOutlierFactor {
			e.log.Debug().Float64("rtt_ms", s.RoundTripMs).
				Float64("median_rtt_ms", medianRTT).
				Str("reason", "rtt_outlier").Msg("excluding ping sample")
			continue
		}
		valid = append(valid, s)
	}

	// Filtering must never leave us with nothing to average; fall back
	// to the sample we just recorded.
	if len(valid) == 0 {
		valid = []Sample{recorded}
	}

	var weightSum, weightedOffset, rttSum float64
	for _, s := range valid {
		w := 1 / (s.RoundTripMs + 1)
		weightSum += w
		weightedOffset += w * s.OffsetMs
		rttSum += s.RoundTripMs
	}

	e.offsetMs = weightedOffset / weightSum
	e.roundTripMs = rttSum / float64(len(valid))
	e.validCount = len(valid)
	e.reliable = len(valid) >= reliableSampleCount
}

// EstimatedServerNowMs returns the current time in the server's frame.
func (e *Estimator) EstimatedServerNowMs() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.clk.Now().UnixMilli() + int64(e.offsetMs)
}

// AverageOffsetMs returns the weighted average clock offset.
func (e *Estimator) AverageOffsetMs() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.offsetMs
}

// AverageRoundTripMs returns the average round trip among valid samples.
func (e *Estimator) AverageRoundTripMs() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.roundTripMs
}

// IsReliable reports whether enough valid samples exist to trust the
// estimate. While false, consumers must not apply corrections.
func (e *Estimator) IsReliable() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reliable
}

// Stats returns a snapshot of the estimator state.
func (e *Estimator) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.statsLocked()
}

func (e *Estimator) statsLocked() Stats {
	return Stats{
		OffsetMs:     e.offsetMs,
		RoundTripMs:  e.roundTripMs,
		SampleCount:  e.validCount,
		Reliable:     e.reliable,
		LastPingSent: e.lastPingSent,
	}
}

// Reset discards all samples, returning the estimator to the unreliable
// state. Used on reconnect or explicit resync.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.samples = nil
	e.offsetMs = 0
	e.roundTripMs = 0
	e.validCount = 0
	e.reliable = false
	e.lastPingSent = 0
	e.log.Info().Str("reason", "resync").Msg("clock estimator reset")
}

// medianRoundTrip returns the median RTT of the given samples.
func medianRoundTrip(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	rtts := make([]float64, len(samples))
	for i, s := range samples {
		rtts[i] = s.RoundTripMs
	}
	return median(rtts)
}

// median returns the median of values, averaging the middle pair for
// even counts. The input slice is reordered.
func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	// Insertion sort: windows here are tiny (≤7 entries).
	for i := 1; i < n; i++ {
		for j := i; j > 0 && values[j] < values[j-1]; j-- {
			values[j], values[j-1] = values[j-1], values[j]
		}
	}
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}
