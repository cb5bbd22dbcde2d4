package drift

import (
	"math"
	"sort"

	"driftwatch/internal/stream"
)

// MinTestSamples is the per-side floor below which the two-sample tests
// refuse to produce a value instead of fabricating one.
const MinTestSamples = 30

const (
	defaultBins = 10
	// smoothing applied to empty bins so log ratios stay finite.
	propEpsilon = 1e-4
)

// PSI thresholds from the standard interpretation ladder.
const (
	PSIStable      = 0.1
	PSISignificant = 0.2
)

func checkSides(reference, current []float64) error {
	if len(reference) < MinTestSamples || len(current) < MinTestSamples {
		return stream.ErrInsufficientData
	}
	return nil
}

// PSI computes the Population Stability Index between a reference and a
// current sample using equal-frequency bins derived from the reference.
// Values below 0.1 indicate stability, 0.1-0.2 moderate change, above 0.2
// significant change.
func PSI(reference, current []float64, bins int) (float64, error) {
	if err := checkSides(reference, current); err != nil {
		return 0, err
	}
	if bins <= 1 {
		bins = defaultBins
	}

	sortedRef := sortedCopy(reference)

	// Bin edges at reference quantiles so every reference bin carries
	// roughly equal mass.
	edges := make([]float64, bins-1)
	for i := 1; i < bins; i++ {
		q := float64(i) / float64(bins)
		edges[i-1] = quantileSorted(sortedRef, q)
	}

	refProp := binProportions(reference, edges, bins)
	curProp := binProportions(current, edges, bins)

	var psi float64
	for i := 0; i < bins; i++ {
		r := math.Max(refProp[i], propEpsilon)
		c := math.Max(curProp[i], propEpsilon)
		psi += (c - r) * math.Log(c/r)
	}
	return psi, nil
}

// KS runs the two-sample Kolmogorov-Smirnov test, returning the maximum CDF
// distance and its asymptotic p-value. A p-value below the caller's alpha
// (conventionally 0.05) indicates drift.
func KS(reference, current []float64) (statistic, pValue float64, err error) {
	if err := checkSides(reference, current); err != nil {
		return 0, 0, err
	}

	a := sortedCopy(reference)
	b := sortedCopy(current)

	na, nb := len(a), len(b)
	var i, j int
	var maxDiff float64
	for i < na && j < nb {
		if a[i] <= b[j] {
			i++
		} else {
			j++
		}
		diff := math.Abs(float64(i)/float64(na) - float64(j)/float64(nb))
		if diff > maxDiff {
			maxDiff = diff
		}
	}

	ne := float64(na) * float64(nb) / float64(na+nb)
	lambda := (math.Sqrt(ne) + 0.12 + 0.11/math.Sqrt(ne)) * maxDiff
	return maxDiff, ksProbability(lambda), nil
}

// ksProbability evaluates the asymptotic Kolmogorov distribution tail
// Q(lambda) = 2 sum_{k>=1} (-1)^{k-1} exp(-2 k^2 lambda^2).
func ksProbability(lambda float64) float64 {
	if lambda <= 0 {
		return 1
	}
	var sum float64
	sign := 1.0
	for k := 1; k <= 100; k++ {
		term := math.Exp(-2 * float64(k*k) * lambda * lambda)
		sum += sign * term
		if term < 1e-10 {
			break
		}
		sign = -sign
	}
	p := 2 * sum
	return math.Min(1, math.Max(0, p))
}

// KLDivergence computes the (asymmetric) Kullback-Leibler divergence of the
// current distribution from the reference over shared equal-width bins.
func KLDivergence(reference, current []float64, bins int) (float64, error) {
	if err := checkSides(reference, current); err != nil {
		return 0, err
	}
	p, q := sharedBinProportions(reference, current, bins)

	var kl float64
	for i := range p {
		pi := math.Max(p[i], propEpsilon)
		qi := math.Max(q[i], propEpsilon)
		kl += pi * math.Log(pi/qi)
	}
	return kl, nil
}

// JSDivergence computes the Jensen-Shannon divergence, the symmetric and
// bounded [0, ln 2] counterpart of KL.
func JSDivergence(reference, current []float64, bins int) (float64, error) {
	if err := checkSides(reference, current); err != nil {
		return 0, err
	}
	p, q := sharedBinProportions(reference, current, bins)

	var js float64
	for i := range p {
		pi := math.Max(p[i], propEpsilon)
		qi := math.Max(q[i], propEpsilon)
		mi := 0.5 * (pi + qi)
		js += 0.5*pi*math.Log(pi/mi) + 0.5*qi*math.Log(qi/mi)
	}
	return js, nil
}

// ChiSquare computes a normalized chi-square statistic between the two
// samples over shared equal-width bins.
func ChiSquare(reference, current []float64, bins int) (float64, error) {
	if err := checkSides(reference, current); err != nil {
		return 0, err
	}
	if bins <= 1 {
		bins = defaultBins
	}
	p, q := sharedBinProportions(reference, current, bins)

	n := float64(len(current))
	var chi float64
	for i := range p {
		expected := p[i] * n
		observed := q[i] * n
		if expected > 0 {
			chi += (observed - expected) * (observed - expected) / expected
		}
	}
	return chi / float64(bins-1), nil
}

func sortedCopy(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	sort.Float64s(out)
	return out
}

// quantileSorted returns the q-quantile of an ascending slice.
func quantileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// binProportions counts the fraction of values in each bin delimited by the
// ascending edge list. len(edges)+1 bins are produced.
func binProportions(values []float64, edges []float64, bins int) []float64 {
	counts := make([]float64, bins)
	for _, v := range values {
		idx := sort.SearchFloat64s(edges, v)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}
	total := float64(len(values))
	for i := range counts {
		counts[i] /= total
	}
	return counts
}

// sharedBinProportions histograms both samples over equal-width bins spanning
// their combined range.
func sharedBinProportions(reference, current []float64, bins int) (p, q []float64) {
	if bins <= 1 {
		bins = defaultBins
	}
	lo, hi := reference[0], reference[0]
	for _, v := range reference {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	for _, v := range current {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if hi == lo {
		hi = lo + 1
	}

	edges := make([]float64, bins-1)
	width := (hi - lo) / float64(bins)
	for i := 1; i < bins; i++ {
		edges[i-1] = lo + width*float64(i)
	}
	return binProportions(reference, edges, bins), binProportions(current, edges, bins)
}
