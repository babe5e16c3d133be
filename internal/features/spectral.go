package features

import (
	"math"

	"gonum.org/v1/gonum/integrate"
)

// Band is a named frequency range in Hz, inclusive at both ends.
type Band struct {
	Name string
	Low  float64
	High float64
}

// Broadband is the pass band of the preprocessing filter.
var Broadband = Band{Name: "broad", Low: 0.4, High: 30}

// Bands are the relative power bands, in column order.
var Bands = []Band{
	{"sdelta", 0.4, 1},
	{"fdelta", 1, 4},
	{"theta", 4, 8},
	{"alpha", 8, 12},
	{"sigma", 12, 16},
	{"beta", 16, 30},
}

// bandSlice returns the frequencies and PSD values inside b.
func bandSlice(freqs, psd []float64, b Band) ([]float64, []float64) {
	lo, hi := -1, -1
	for i, f := range freqs {
		if f >= b.Low && f <= b.High {
			if lo < 0 {
				lo = i
			}
			hi = i + 1
		}
	}
	if lo < 0 {
		return nil, nil
	}
	return freqs[lo:hi], psd[lo:hi]
}

func simpsons(x, f []float64) float64 {
	switch {
	case len(x) >= 3:
		return integrate.Simpsons(x, f)
	case len(x) == 2:
		return integrate.Trapezoidal(x, f)
	}
	return math.NaN()
}

// RelativeBandPowers integrates the PSD over each band with Simpson's rule
// and divides by the integral over the whole of Bands. A spectrum with no
// power gives NaN for every band.
func RelativeBandPowers(freqs, psd []float64, bands []Band) []float64 {
	out := make([]float64, len(bands))
	if len(bands) == 0 {
		return out
	}
	total := simpsons(bandSlice(freqs, psd, Band{Low: bands[0].Low, High: bands[len(bands)-1].High}))
	for i, b := range bands {
		if total == 0 || math.IsNaN(total) {
			out[i] = math.NaN()
			continue
		}
		out[i] = simpsons(bandSlice(freqs, psd, b)) / total
	}
	return out
}

// AbsolutePower is the trapezoidal integral of the PSD over b.
func AbsolutePower(freqs, psd []float64, b Band) float64 {
	x, f := bandSlice(freqs, psd, b)
	if len(x) < 2 {
		return math.NaN()
	}
	return integrate.Trapezoidal(x, f)
}
