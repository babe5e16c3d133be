package dsp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/window"
)

// Bandpass is a linear-phase FIR band-pass filter applied with zero phase.
type Bandpass struct {
	SampleRate float64
	Low        float64
	High       float64
	LowTrans   float64
	HighTrans  float64
	Taps       []float64
}

// NewBandpass designs a Hamming-windowed sinc band-pass filter for the
// pass band [low, high] Hz. Transition bandwidths and the filter length
// are chosen automatically from the band edges.
func NewBandpass(sf, low, high float64) (*Bandpass, error) {
	nyq := sf / 2
	if low <= 0 || high <= low {
		return nil, fmt.Errorf("invalid pass band [%g, %g] Hz", low, high)
	}
	if high >= nyq {
		return nil, fmt.Errorf("upper band edge %g Hz must be below Nyquist (%g Hz)", high, nyq)
	}

	lt := math.Min(math.Max(0.25*low, 2), low)
	ht := math.Min(math.Max(0.25*high, 2), nyq-high)

	n := int(math.Ceil(3.3 / math.Min(lt, ht) * sf))
	if n%2 == 0 {
		n++
	}

	// Cutoffs sit in the middle of each transition band.
	f1 := (low - lt/2) / sf
	f2 := (high + ht/2) / sf
	mid := float64(n-1) / 2

	taps := make([]float64, n)
	for i := range taps {
		m := float64(i) - mid
		taps[i] = 2*f2*sinc(2*f2*m) - 2*f1*sinc(2*f1*m)
	}
	win := make([]float64, n)
	for i := range win {
		win[i] = 1
	}
	window.Hamming(win)
	for i := range taps {
		taps[i] *= win[i]
	}

	// Unit gain at the centre of the pass band.
	fc := (f1 + f2) / 2
	var gain float64
	for i, t := range taps {
		gain += t * math.Cos(2*math.Pi*fc*(float64(i)-mid))
	}
	for i := range taps {
		taps[i] /= gain
	}

	return &Bandpass{
		SampleRate: sf,
		Low:        low,
		High:       high,
		LowTrans:   lt,
		HighTrans:  ht,
		Taps:       taps,
	}, nil
}

// Apply filters x with zero phase delay and returns a new slice of the
// same length. Edges are padded by odd reflection.
func (b *Bandpass) Apply(x []float64) []float64 {
	if len(x) == 0 {
		return nil
	}
	n := len(b.Taps)
	pad := n - 1
	padded := reflectPad(x, pad, pad)
	full := Convolve(padded, b.Taps)

	offset := pad + (n-1)/2
	out := make([]float64, len(x))
	copy(out, full[offset:offset+len(x)])
	return out
}

// reflectPad extends x on both sides by odd reflection about its end
// points. Padding longer than the signal continues with zeros.
func reflectPad(x []float64, left, right int) []float64 {
	n := len(x)
	out := make([]float64, left+n+right)
	for k := 1; k <= left; k++ {
		if k < n {
			out[left-k] = 2*x[0] - x[k]
		}
	}
	copy(out[left:], x)
	for k := 1; k <= right; k++ {
		if k < n {
			out[left+n-1+k] = 2*x[n-1] - x[n-1-k]
		}
	}
	return out
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}
