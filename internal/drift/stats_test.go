package drift

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"driftwatch/internal/stream"
)

func gaussian(rng *rand.Rand, n int, mean, std float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()*std + mean
	}
	return out
}

func TestPSIIdenticalDistributions(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	ref := gaussian(rng, 500, 0, 1)
	cur := gaussian(rng, 500, 0, 1)

	psi, err := PSI(ref, cur, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if psi >= PSIStable {
		t.Errorf("PSI = %v for identical distributions, want < %v", psi, PSIStable)
	}
}

func TestPSIShiftedDistributions(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	ref := gaussian(rng, 500, 0, 1)
	cur := gaussian(rng, 500, 5, 1)

	psi, err := PSI(ref, cur, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if psi <= PSISignificant {
		t.Errorf("PSI = %v for N(0,1) vs N(5,1), want > %v", psi, PSISignificant)
	}
}

func TestPSIInsufficientData(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	ref := gaussian(rng, 29, 0, 1)
	cur := gaussian(rng, 500, 0, 1)

	_, err := PSI(ref, cur, 10)
	if !errors.Is(err, stream.ErrInsufficientData) {
		t.Errorf("error = %v, want ErrInsufficientData", err)
	}
	_, err = PSI(cur, ref, 10)
	if !errors.Is(err, stream.ErrInsufficientData) {
		t.Errorf("error = %v, want ErrInsufficientData", err)
	}
}

func TestKSIdenticalDistributions(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	ref := gaussian(rng, 400, 0, 1)
	cur := gaussian(rng, 400, 0, 1)

	_, p, err := KS(ref, cur)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p <= 0.05 {
		t.Errorf("KS p = %v for identical distributions, want > 0.05", p)
	}
}

func TestKSShiftedDistributions(t *testing.T) {
	rng := rand.New(rand.NewSource(14))
	ref := gaussian(rng, 400, 0, 1)
	cur := gaussian(rng, 400, 2, 1)

	stat, p, err := KS(ref, cur)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p >= 0.05 {
		t.Errorf("KS p = %v for shifted distributions, want < 0.05", p)
	}
	if stat <= 0.3 {
		t.Errorf("KS statistic = %v, want > 0.3 for a 2-sigma shift", stat)
	}
}

func TestKSInsufficientData(t *testing.T) {
	_, _, err := KS(make([]float64, 10), make([]float64, 400))
	if !errors.Is(err, stream.ErrInsufficientData) {
		t.Errorf("error = %v, want ErrInsufficientData", err)
	}
}

func TestKLDivergenceAsymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(15))
	ref := gaussian(rng, 500, 0, 1)
	cur := gaussian(rng, 500, 1.5, 2)

	forward, err := KLDivergence(ref, cur, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	backward, err := KLDivergence(cur, ref, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if forward <= 0 {
		t.Errorf("KL = %v for diverged distributions, want > 0", forward)
	}
	if math.Abs(forward-backward) < 1e-9 {
		t.Error("KL divergence should be asymmetric")
	}
}

func TestJSDivergenceSymmetricAndBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(16))
	ref := gaussian(rng, 500, 0, 1)
	cur := gaussian(rng, 500, 4, 1)

	ab, err := JSDivergence(ref, cur, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ba, err := JSDivergence(cur, ref, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if math.Abs(ab-ba) > 1e-9 {
		t.Errorf("JS not symmetric: %v vs %v", ab, ba)
	}
	if ab < 0 || ab > math.Log(2)+1e-9 {
		t.Errorf("JS = %v outside [0, ln2]", ab)
	}
	if ab < 0.1 {
		t.Errorf("JS = %v for well separated distributions, want clearly positive", ab)
	}
}

func TestChiSquareSeparatesDistributions(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	ref := gaussian(rng, 500, 0, 1)
	same := gaussian(rng, 500, 0, 1)
	far := gaussian(rng, 500, 5, 1)

	low, err := ChiSquare(ref, same, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	high, err := ChiSquare(ref, far, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if high <= low {
		t.Errorf("chi-square did not separate: same=%v far=%v", low, high)
	}
}

func TestKSProbabilityRange(t *testing.T) {
	for _, lambda := range []float64{0, 0.2, 0.5, 1, 2, 5} {
		p := ksProbability(lambda)
		if p < 0 || p > 1 {
			t.Errorf("ksProbability(%v) = %v outside [0,1]", lambda, p)
		}
	}
	if ksProbability(0.1) < ksProbability(3.0) {
		t.Error("ksProbability should decrease with lambda")
	}
}
