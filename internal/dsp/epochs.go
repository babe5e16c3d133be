// Package dsp holds the signal-processing primitives of the staging
// pipeline: band-pass filtering, resampling, Welch spectra and epoching.
package dsp

import "math"

// SamplesPerEpoch returns the number of samples in one epoch.
func SamplesPerEpoch(sf, seconds float64) int {
	return int(math.Round(sf * seconds))
}

// Epochs slices x into contiguous, non-overlapping windows of the given
// duration and returns the start time of each window in seconds. Trailing
// samples that do not fill a whole epoch are dropped. The returned epochs
// share memory with x.
func Epochs(x []float64, sf, seconds float64) (times []float64, epochs [][]float64) {
	spe := SamplesPerEpoch(sf, seconds)
	if spe <= 0 {
		return nil, nil
	}
	n := len(x) / spe
	times = make([]float64, n)
	epochs = make([][]float64, n)
	for i := 0; i < n; i++ {
		times[i] = float64(i*spe) / sf
		epochs[i] = x[i*spe : (i+1)*spe : (i+1)*spe]
	}
	return times, epochs
}
