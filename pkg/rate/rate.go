// Package rate estimates the incoming sample rate from per-tick sample counts.
package rate

// DefaultWindow is the number of ticks averaged by an Estimator.
const DefaultWindow = 30

// Estimator keeps the sample counts of the last N ticks in a round-robin
// window. Unfilled slots count as zero, so the estimate ramps up over the
// first N ticks.
//
// An Estimator is not safe for concurrent use.
type Estimator struct {
	slots []int
	next  int
	sum   int
	ticks uint64
}

// NewEstimator creates an Estimator over a window of n ticks.
// A non-positive n selects DefaultWindow.
func NewEstimator(n int) *Estimator {
	if n <= 0 {
		n = DefaultWindow
	}
	return &Estimator{slots: make([]int, n)}
}

// Tick records the number of samples received during the tick that just ended
// and returns the mean over the window, in samples per tick.
func (e *Estimator) Tick(count int) float64 {
	e.sum += count - e.slots[e.next]
	e.slots[e.next] = count
	e.next = (e.next + 1) % len(e.slots)
	e.ticks++
	return e.Rate()
}

// Rate returns the current estimate without advancing the window.
func (e *Estimator) Rate() float64 {
	return float64(e.sum) / float64(len(e.slots))
}

// Ticks returns the number of ticks recorded so far.
func (e *Estimator) Ticks() uint64 {
	return e.ticks
}

// Window returns the window length.
func (e *Estimator) Window() int {
	return len(e.slots)
}
