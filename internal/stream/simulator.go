package stream

import (
	"math/rand"
	"time"
)

// Simulator produces labeled Gaussian feature vectors with a fixed linear
// decision boundary, optionally shifted and rescaled to inject distribution
// drift. It stands in for the external data-supply collaborator in the demo
// client and in tests.
type Simulator struct {
	dim     int
	weights []float64
	rng     *rand.Rand
	// DriftShift is added to every feature, DriftScale multiplies it.
	// Zero shift with unit scale produces the base N(0,1) stream.
	DriftShift float64
	DriftScale float64
	// LabelNoise flips this fraction of labels at random.
	LabelNoise float64
}

// NewSimulator creates a simulator for dim features. The seed fixes both the
// decision boundary and the sample stream so scenarios are reproducible.
func NewSimulator(dim int, seed int64) *Simulator {
	rng := rand.New(rand.NewSource(seed))
	weights := make([]float64, dim)
	for i := range weights {
		weights[i] = rng.NormFloat64()
	}
	return &Simulator{
		dim:        dim,
		weights:    weights,
		rng:        rng,
		DriftScale: 1.0,
		LabelNoise: 0.05,
	}
}

// Next draws one labeled sample from the current distribution.
func (g *Simulator) Next() Sample {
	features := make([]float64, g.dim)
	var decision float64
	for i := range features {
		v := g.rng.NormFloat64()*g.DriftScale + g.DriftShift
		features[i] = v
		decision += v * g.weights[i]
	}
	label := 0
	if decision > 0 {
		label = 1
	}
	if g.rng.Float64() < g.LabelNoise {
		label = 1 - label
	}
	return Sample{Features: features, Label: Label0or1(label), Ts: time.Now().UTC()}
}

// Batch draws n samples from the current distribution.
func (g *Simulator) Batch(n int) []Sample {
	out := make([]Sample, n)
	for i := range out {
		out[i] = g.Next()
	}
	return out
}

// ShiftSudden applies an abrupt mean shift to all following samples.
func (g *Simulator) ShiftSudden(magnitude float64) {
	g.DriftShift += magnitude
}

// ShiftGradual returns a closure that moves the mean toward target over
// steps calls, one increment per call.
func (g *Simulator) ShiftGradual(target float64, steps int) func() {
	if steps <= 0 {
		steps = 1
	}
	delta := (target - g.DriftShift) / float64(steps)
	return func() { g.DriftShift += delta }
}
