// ABOUTME: Bounded median filter over recent drift measurements
// ABOUTME: Rejects single-sample jitter before any correction decision
package drift

// WindowSize is how many raw drift values the filter retains.
const WindowSize = 5

// Window holds the most recent drift measurements and exposes their
// median. A single jittery reading cannot move the median, so it cannot
// trigger a spurious correction on its own.
type Window struct {
	values []float64
}

// NewWindow creates an empty measurement window.
func NewWindow() *Window {
	return &Window{values: make([]float64, 0, WindowSize)}
}

// Push appends a raw drift value, evicting the oldest when full.
func (w *Window) Push(driftMs float64) {
	if len(w.values) >= WindowSize {
		copy(w.values, w.values[1:])
		w.values = w.values[:WindowSize-1]
	}
	w.values = append(w.values, driftMs)
}

// Median returns the median of the retained values, 0 when empty.
func (w *Window) Median() float64 {
	n := len(w.values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, w.values)
	for i := 1; i < n; i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Len returns the number of retained values.
func (w *Window) Len() int {
	return len(w.values)
}

// Reset empties the window. History is only meaningful within one
// continuous correction regime, so snaps and epoch changes clear it.
func (w *Window) Reset() {
	w.values = w.values[:0]
}
