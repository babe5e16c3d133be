package dsp

import (
	"math"
	"slices"
)

// Percentile returns the q-th percentile (0..100) of an ascending slice,
// interpolating linearly between the two closest ranks.
func Percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return math.NaN()
	case n == 1:
		return sorted[0]
	}
	pos := q / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	if lo >= n-1 {
		return sorted[n-1]
	}
	if lo < 0 {
		return sorted[0]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// Median returns the median of x without modifying it. Even lengths
// average the two middle values.
func Median(x []float64) float64 {
	s := slices.Clone(x)
	slices.Sort(s)
	return Percentile(s, 50)
}

// NanPercentiles returns the requested percentiles of the non-NaN values
// of x. If every value is NaN each result is NaN.
func NanPercentiles(x []float64, qs ...float64) []float64 {
	valid := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	slices.Sort(valid)
	out := make([]float64, len(qs))
	for i, q := range qs {
		out[i] = Percentile(valid, q)
	}
	return out
}

// FirstNonFinite returns the index of the first NaN or infinite value in
// x, or -1 if all values are finite.
func FirstNonFinite(x []float64) int {
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return i
		}
	}
	return -1
}
