// Package drift implements the detection core: an adaptive-window change
// detector over scalar signals, a suite of two-sample statistical tests, and
// the analyzer that aggregates both into a single drift report.
package drift

import (
	"math"
)

// AdaptiveWindowConfig configures an AdaptiveWindow detector.
type AdaptiveWindowConfig struct {
	// Delta is the confidence parameter. Smaller values demand stronger
	// evidence before flagging a change.
	Delta float64 `yaml:"delta"`
	// MaxBuckets caps the number of buckets kept per size class before the
	// two oldest are merged.
	MaxBuckets int `yaml:"maxBuckets"`
	// MinSamples is the floor below which the detector never fires.
	MinSamples int `yaml:"minSamples"`
}

func (c *AdaptiveWindowConfig) applyDefaults() {
	if c.Delta <= 0 || c.Delta >= 1 {
		c.Delta = 0.002
	}
	if c.MaxBuckets <= 0 {
		c.MaxBuckets = 5
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 30
	}
}

// minSplitSamples is the per-side floor for a candidate cut point.
const minSplitSamples = 5

// adwinBucket holds the sum and count of an exponentially grouped run of
// values. Counts are powers of two, largest (oldest) first.
type adwinBucket struct {
	sum   float64
	count uint64
}

// AdaptiveWindow is an ADWIN-style streaming change detector. It keeps an
// exponential histogram of (sum,count) buckets so memory stays O(log W)
// while window means are approximated closely enough for the Hoeffding cut
// test. The zero value is not usable; construct with NewAdaptiveWindow.
type AdaptiveWindow struct {
	cfg        AdaptiveWindowConfig
	buckets    []adwinBucket // oldest first
	total      uint64
	sum        float64
	driftCount int
}

// NewAdaptiveWindow creates a detector with the given configuration.
func NewAdaptiveWindow(cfg AdaptiveWindowConfig) *AdaptiveWindow {
	cfg.applyDefaults()
	return &AdaptiveWindow{cfg: cfg}
}

// Update folds one value into the window and reports whether a change was
// detected. On detection the older side of the cut has already been dropped.
func (w *AdaptiveWindow) Update(value float64) bool {
	w.buckets = append(w.buckets, adwinBucket{sum: value, count: 1})
	w.total++
	w.sum += value
	w.compress()

	if w.total < uint64(w.cfg.MinSamples) {
		return false
	}

	changed := false
	for w.detectCut() {
		changed = true
	}
	if changed {
		w.driftCount++
	}
	return changed
}

// compress merges the two oldest buckets of any size class that exceeds
// MaxBuckets, preserving the oldest-first, largest-first ordering.
func (w *AdaptiveWindow) compress() {
	for size := uint64(1); ; size *= 2 {
		first, n := -1, 0
		for i, b := range w.buckets {
			if b.count == size {
				if first == -1 {
					first = i
				}
				n++
			}
		}
		if n == 0 {
			if size > w.total {
				return
			}
			continue
		}
		if n <= w.cfg.MaxBuckets {
			continue
		}
		// Merge the two oldest buckets of this size into one of double size.
		merged := adwinBucket{
			sum:   w.buckets[first].sum + w.buckets[first+1].sum,
			count: size * 2,
		}
		w.buckets[first] = merged
		w.buckets = append(w.buckets[:first+1], w.buckets[first+2:]...)
	}
}

// detectCut scans every bucket boundary for a statistically significant mean
// difference between the older and newer sub-windows. On the first
// significant split it drops the older side and returns true.
func (w *AdaptiveWindow) detectCut() bool {
	if len(w.buckets) < 2 {
		return false
	}

	deltaPrime := w.cfg.Delta / math.Log(float64(w.total))
	if deltaPrime <= 0 {
		deltaPrime = w.cfg.Delta
	}

	var n0 uint64
	var sum0 float64
	for i := 0; i < len(w.buckets)-1; i++ {
		n0 += w.buckets[i].count
		sum0 += w.buckets[i].sum
		n1 := w.total - n0
		if n0 < minSplitSamples || n1 < minSplitSamples {
			continue
		}

		mean0 := sum0 / float64(n0)
		mean1 := (w.sum - sum0) / float64(n1)

		// Hoeffding bound with the harmonic pooling of the two sides.
		m := 1.0 / (1.0/float64(n0) + 1.0/float64(n1))
		epsilon := math.Sqrt((1.0 / (2.0 * m)) * math.Log(4.0/deltaPrime))

		if math.Abs(mean0-mean1) > epsilon {
			w.dropOldest(i + 1)
			return true
		}
	}
	return false
}

// dropOldest removes the first n buckets, keeping totals consistent.
func (w *AdaptiveWindow) dropOldest(n int) {
	for _, b := range w.buckets[:n] {
		w.total -= b.count
		w.sum -= b.sum
	}
	w.buckets = append(w.buckets[:0], w.buckets[n:]...)
}

// Width returns the number of samples currently represented by the window.
func (w *AdaptiveWindow) Width() int { return int(w.total) }

// Mean returns the mean of the current window, or 0 when empty.
func (w *AdaptiveWindow) Mean() float64 {
	if w.total == 0 {
		return 0
	}
	return w.sum / float64(w.total)
}

// DriftCount returns how many changes have been detected since the last
// reset.
func (w *AdaptiveWindow) DriftCount() int { return w.driftCount }

// Reset clears all buckets; the detector is restartable afterwards.
func (w *AdaptiveWindow) Reset() {
	w.buckets = w.buckets[:0]
	w.total = 0
	w.sum = 0
	w.driftCount = 0
}
