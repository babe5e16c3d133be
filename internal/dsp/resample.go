package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// maxPadSearch bounds the search for an FFT-friendly padded length.
const maxPadSearch = 1 << 16

// Resample converts x from rate `from` to rate `to` (Hz) by Fourier
// interpolation. The output has round(len(x)*to/from) samples.
//
// When both rates are integers the signal is padded by odd reflection to a
// length whose transform sizes only have factors 2, 3 and 5, which keeps
// long recordings tractable and limits wrap-around at the edges.
func Resample(x []float64, from, to float64) []float64 {
	if len(x) == 0 {
		return nil
	}
	if from == to {
		out := make([]float64, len(x))
		copy(out, x)
		return out
	}
	outLen := int(math.Round(float64(len(x)) * to / from))
	if outLen <= 0 {
		return nil
	}

	up, down, ok := rationalRates(from, to)
	if !ok || len(x) < 2 {
		return fftResample(x, outLen)
	}

	base := min(len(x)-1, int(math.Ceil(from)))
	left := ceilMultiple(base, down)
	if left >= len(x) {
		left = 0
	}
	total := paddedLength(left+len(x)+base, down, up)
	right := total - left - len(x)

	padded := reflectPad(x, left, right)
	y := fftResample(padded, total/down*up)

	start := left / down * up
	end := min(start+outLen, len(y))
	out := make([]float64, outLen)
	copy(out, y[start:end])
	return out
}

// fftResample is the unpadded Fourier resampler: the spectrum of x is
// truncated or zero-extended to num samples and transformed back.
func fftResample(x []float64, num int) []float64 {
	nx := len(x)
	fin := fourier.NewFFT(nx)
	X := fin.Coefficients(nil, x)

	fout := fourier.NewFFT(num)
	Y := make([]complex128, num/2+1)
	n := min(num, nx)
	nyq := n/2 + 1
	copy(Y[:nyq], X[:nyq])
	if n%2 == 0 {
		switch {
		case num < nx:
			Y[n/2] *= 2
		case num > nx:
			Y[n/2] *= 0.5
		}
	}
	y := fout.Sequence(nil, Y)
	scale := 1 / float64(nx)
	for i := range y {
		y[i] *= scale
	}
	return y
}

// rationalRates reduces to/from to up/down when both rates are integral.
func rationalRates(from, to float64) (up, down int, ok bool) {
	if from != math.Trunc(from) || to != math.Trunc(to) || from <= 0 || to <= 0 {
		return 0, 0, false
	}
	f, t := int(from), int(to)
	g := gcd(f, t)
	return t / g, f / g, true
}

// paddedLength returns the smallest multiple of down that is at least n and
// whose input and output transform sizes are 5-smooth.
func paddedLength(n, down, up int) int {
	m := ceilMultiple(n, down)
	for i := 0; i < maxPadSearch; i++ {
		cand := m + i*down
		if isSmooth(cand) && isSmooth(cand/down*up) {
			return cand
		}
	}
	return m
}

func ceilMultiple(n, k int) int {
	if k <= 0 {
		return n
	}
	return (n + k - 1) / k * k
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
