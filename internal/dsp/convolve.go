package dsp

import "gonum.org/v1/gonum/dsp/fourier"

// minBlock is the smallest FFT size used by the overlap-add convolution.
const minBlock = 1 << 12

// Convolve returns the full linear convolution of x and h, of length
// len(x)+len(h)-1, computed by FFT overlap-add.
func Convolve(x, h []float64) []float64 {
	if len(x) == 0 || len(h) == 0 {
		return nil
	}
	n := len(x) + len(h) - 1

	nfft := nextPow2(4 * len(h))
	if nfft < minBlock {
		nfft = minBlock
	}
	if full := nextPow2(n); full < nfft {
		nfft = full
	}
	step := nfft - len(h) + 1

	fft := fourier.NewFFT(nfft)
	kernel := make([]float64, nfft)
	copy(kernel, h)
	H := fft.Coefficients(nil, kernel)

	out := make([]float64, n)
	seg := make([]float64, nfft)
	X := make([]complex128, nfft/2+1)
	y := make([]float64, nfft)
	norm := 1 / float64(nfft)

	for start := 0; start < len(x); start += step {
		end := min(start+step, len(x))
		clear(seg)
		copy(seg, x[start:end])
		fft.Coefficients(X, seg)
		for i := range X {
			X[i] *= H[i]
		}
		fft.Sequence(y, X)
		lim := min(nfft, n-start)
		for i := 0; i < lim; i++ {
			out[start+i] += y[i] * norm
		}
	}
	return out
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// isSmooth reports whether n has no prime factors above 5.
func isSmooth(n int) bool {
	if n <= 0 {
		return false
	}
	for _, p := range [...]int{2, 3, 5} {
		for n%p == 0 {
			n /= p
		}
	}
	return n == 1
}
