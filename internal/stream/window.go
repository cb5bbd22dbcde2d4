package stream

// Window is a bounded FIFO of samples. The live window evicts its oldest
// entry on overflow; a reference window is filled once and then frozen by
// the owner never writing to it again.
type Window struct {
	buf []Sample
	max int
}

// NewWindow creates a window holding at most capacity samples.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{buf: make([]Sample, 0, capacity), max: capacity}
}

// Push appends a sample, evicting the oldest when the window is full.
func (w *Window) Push(s Sample) {
	if len(w.buf) == w.max {
		copy(w.buf, w.buf[1:])
		w.buf = w.buf[:len(w.buf)-1]
	}
	w.buf = append(w.buf, s)
}

// Len returns the number of samples currently held.
func (w *Window) Len() int { return len(w.buf) }

// Cap returns the configured capacity.
func (w *Window) Cap() int { return w.max }

// Snapshot returns a copy of the window contents, oldest first. The copy is
// safe to read without holding the owner's lock.
func (w *Window) Snapshot() []Sample {
	out := make([]Sample, len(w.buf))
	copy(out, w.buf)
	return out
}

// Feature extracts the values of one feature column, oldest first.
func (w *Window) Feature(idx int) []float64 {
	out := make([]float64, 0, len(w.buf))
	for _, s := range w.buf {
		if idx < len(s.Features) {
			out = append(out, s.Features[idx])
		}
	}
	return out
}

// Labeled returns only the samples that carry a label, oldest first.
func (w *Window) Labeled() []Sample {
	out := make([]Sample, 0, len(w.buf))
	for _, s := range w.buf {
		if s.Labeled() {
			out = append(out, s)
		}
	}
	return out
}

// FeatureColumn extracts one feature column from an arbitrary sample slice.
func FeatureColumn(samples []Sample, idx int) []float64 {
	out := make([]float64, 0, len(samples))
	for _, s := range samples {
		if idx < len(s.Features) {
			out = append(out, s.Features[idx])
		}
	}
	return out
}
