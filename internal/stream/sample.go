// Package stream provides the typed sample model that feeds the drift
// pipeline: validated feature vectors, bounded sliding windows, and a
// synthetic stream simulator used by the demo client and tests.
package stream

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInsufficientData indicates that an operation was asked to run before
// enough samples were collected. Callers should keep ingesting and retry.
var ErrInsufficientData = errors.New("insufficient data")

// Sample is one observation from the live stream: a fixed-length feature
// vector, an optional class label, and an ingest timestamp. Samples are
// immutable once constructed.
type Sample struct {
	Features []float64 `json:"features"`
	Label    *int      `json:"label,omitempty"`
	Ts       time.Time `json:"ts"`
}

// NewSample canonicalizes raw feature values into a Sample, rejecting
// malformed input instead of coercing it. dim is the expected feature count.
func NewSample(features []float64, label *int, dim int) (Sample, error) {
	if len(features) != dim {
		return Sample{}, fmt.Errorf("feature count mismatch: got %d, want %d", len(features), dim)
	}
	canonical := make([]float64, dim)
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Sample{}, fmt.Errorf("feature %d is not finite: %v", i, v)
		}
		canonical[i] = v
	}
	return Sample{Features: canonical, Label: label, Ts: time.Now().UTC()}, nil
}

// Labeled reports whether the sample carries a class label.
func (s Sample) Labeled() bool { return s.Label != nil }

// IntLabel returns the label value, or -1 when the sample is unlabeled.
func (s Sample) IntLabel() int {
	if s.Label == nil {
		return -1
	}
	return *s.Label
}

// Label0or1 is a convenience constructor for binary labels in tests and the
// simulator.
func Label0or1(v int) *int {
	l := v
	return &l
}
