package dsp

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// Welch estimates power spectral densities by median-averaging modified
// periodograms of half-overlapping, Hamming-windowed segments.
//
// A Welch value holds scratch buffers and must not be shared between
// goroutines.
type Welch struct {
	SampleRate float64
	NPerSeg    int

	step  int
	win   []float64
	scale float64
	fft   *fourier.FFT
	freqs []float64

	seg  []float64
	coef []complex128
	bins [][]float64
}

// NewWelch prepares an estimator for segments of nperseg samples.
func NewWelch(sf float64, nperseg int) *Welch {
	// Periodic Hamming: the symmetric window of length n+1 without its last point.
	win := make([]float64, nperseg+1)
	for i := range win {
		win[i] = 1
	}
	win = window.Hamming(win)[:nperseg]

	var sumSq float64
	for _, v := range win {
		sumSq += v * v
	}

	fft := fourier.NewFFT(nperseg)
	nf := nperseg/2 + 1
	freqs := make([]float64, nf)
	for i := range freqs {
		freqs[i] = float64(i) * sf / float64(nperseg)
	}

	return &Welch{
		SampleRate: sf,
		NPerSeg:    nperseg,
		step:       nperseg - nperseg/2,
		win:        win,
		scale:      1 / (sf * sumSq),
		fft:        fft,
		freqs:      freqs,
		seg:        make([]float64, nperseg),
		coef:       make([]complex128, nf),
	}
}

// Freqs returns the frequency of each PSD bin in Hz.
func (w *Welch) Freqs() []float64 {
	return slices.Clone(w.freqs)
}

// PSD returns the one-sided power spectral density of x. x must hold at
// least NPerSeg samples.
func (w *Welch) PSD(x []float64) []float64 {
	nseg := (len(x)-w.NPerSeg)/w.step + 1
	nf := len(w.freqs)
	if nseg < 1 {
		out := make([]float64, nf)
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	if len(w.bins) != nf || len(w.bins[0]) != nseg {
		w.bins = make([][]float64, nf)
		for i := range w.bins {
			w.bins[i] = make([]float64, nseg)
		}
	}

	for s := 0; s < nseg; s++ {
		chunk := x[s*w.step : s*w.step+w.NPerSeg]
		var mean float64
		for _, v := range chunk {
			mean += v
		}
		mean /= float64(len(chunk))
		for i, v := range chunk {
			w.seg[i] = (v - mean) * w.win[i]
		}
		w.fft.Coefficients(w.coef, w.seg)
		for k, c := range w.coef {
			p := (real(c)*real(c) + imag(c)*imag(c)) * w.scale
			if k > 0 && (w.NPerSeg%2 == 1 || k < nf-1) {
				p *= 2
			}
			w.bins[k][s] = p
		}
	}

	bias := medianBias(nseg)
	out := make([]float64, nf)
	for k := range out {
		slices.Sort(w.bins[k])
		out[k] = Percentile(w.bins[k], 50) / bias
	}
	return out
}

// medianBias is the ratio between the median and the mean of a chi-square
// distribution with two degrees of freedom, estimated from n segments.
func medianBias(n int) float64 {
	bias := 1.0
	for k := 1; k <= (n-1)/2; k++ {
		ii := 2 * float64(k)
		bias += 1/(ii+1) - 1/ii
	}
	return bias
}
