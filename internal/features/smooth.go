package features

import (
	"fmt"
	"math"

	"github.com/audiolibrelab/sleepstage/internal/dsp"
)

// CenteredEpochs converts a centered window in minutes to an odd number
// of epochs.
func CenteredEpochs(minutes, epochSeconds float64) int {
	return 2*int(math.Round(minutes*60/epochSeconds/2)) + 1
}

// PastEpochs converts a trailing window in minutes to a number of epochs,
// current epoch included.
func PastEpochs(minutes, epochSeconds float64) int {
	return max(1, int(math.Round(minutes*60/epochSeconds)))
}

// TriangularWeights returns the symmetric triangular window of odd length
// m whose peak is 1, e.g. 1/6 … 6/6 … 1/6 for m = 11.
func TriangularWeights(m int) []float64 {
	w := make([]float64, m)
	half := (m + 1) / 2
	for n := 1; n <= half; n++ {
		v := 2 * float64(n) / float64(m+1)
		w[n-1] = v
		w[m-n] = v
	}
	return w
}

// CenteredMean is a NaN-aware weighted rolling mean with the window
// centred on each epoch. Near the edges only the weights that fall inside
// the series are used. A window with no valid value yields NaN.
func CenteredMean(x []float64, weights []float64) []float64 {
	half := len(weights) / 2
	out := make([]float64, len(x))
	for i := range x {
		var sum, wsum float64
		for k, w := range weights {
			j := i + k - half
			if j < 0 || j >= len(x) || math.IsNaN(x[j]) {
				continue
			}
			sum += w * x[j]
			wsum += w
		}
		if wsum == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / wsum
	}
	return out
}

// PastMean is a NaN-aware uniform rolling mean over the current and the
// w-1 preceding epochs.
func PastMean(x []float64, w int) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		var sum float64
		var n int
		for j := max(0, i-w+1); j <= i; j++ {
			if !math.IsNaN(x[j]) {
				sum += x[j]
				n++
			}
		}
		if n == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(n)
	}
	return out
}

// RobustScale centres x on its median and divides by the 5th to 95th
// percentile range, ignoring NaN. A zero range leaves the scale at 1.
func RobustScale(x []float64) []float64 {
	q := dsp.NanPercentiles(x, 50, 5, 95)
	med, scale := q[0], q[2]-q[1]
	if scale == 0 {
		scale = 1
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - med) / scale
	}
	return out
}

// SmoothSuffixes returns the column suffixes for the centered and past
// smoothed variants.
func SmoothSuffixes(opts Options) (centered, past string) {
	return fmt.Sprintf("_c%gmin_norm", opts.CenteredMinutes), fmt.Sprintf("_p%gmin_norm", opts.PastMinutes)
}

// Smooth adds a centered and a past smoothed, robust-scaled copy of every
// column present in f.
func Smooth(f *Frame, opts Options) {
	weights := TriangularWeights(CenteredEpochs(opts.CenteredMinutes, opts.EpochSeconds))
	past := PastEpochs(opts.PastMinutes, opts.EpochSeconds)
	cSuffix, pSuffix := SmoothSuffixes(opts)

	for _, name := range f.Names() {
		x, _ := f.Get(name)
		f.Set(name+cSuffix, RobustScale(CenteredMean(x, weights)))
		f.Set(name+pSuffix, RobustScale(PastMean(x, past)))
	}
}
