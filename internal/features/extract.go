package features

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/audiolibrelab/sleepstage/internal/dsp"
)

// Per-epoch extractors. Each takes one epoch and returns a scalar. A
// constant epoch yields 0 for dispersion measures and NaN for anything
// normalised by the variance.

func isConstant(x []float64) bool {
	for _, v := range x[1:] {
		if v != x[0] {
			return false
		}
	}
	return true
}

// Std is the sample standard deviation (n-1 denominator).
func Std(x []float64) float64 {
	if len(x) < 2 {
		return math.NaN()
	}
	if isConstant(x) {
		return 0
	}
	return stat.StdDev(x, nil)
}

// IQR is the 75th minus the 25th linearly interpolated percentile.
func IQR(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	s := slices.Clone(x)
	slices.Sort(s)
	return dsp.Percentile(s, 75) - dsp.Percentile(s, 25)
}

// Skew is the biased sample skewness m3/m2^1.5.
func Skew(x []float64) float64 {
	if len(x) < 2 || isConstant(x) {
		return math.NaN()
	}
	m2 := stat.Moment(2, x, nil)
	return stat.Moment(3, x, nil) / math.Pow(m2, 1.5)
}

// Kurt is the biased excess kurtosis m4/m2^2 - 3.
func Kurt(x []float64) float64 {
	if len(x) < 2 || isConstant(x) {
		return math.NaN()
	}
	m2 := stat.Moment(2, x, nil)
	return stat.Moment(4, x, nil)/(m2*m2) - 3
}

// ZeroCrossings counts adjacent sample pairs whose product is negative.
func ZeroCrossings(x []float64) float64 {
	var n int
	for i := 1; i < len(x); i++ {
		if x[i-1]*x[i] < 0 {
			n++
		}
	}
	return float64(n)
}

func diff(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	d := make([]float64, len(x)-1)
	for i := range d {
		d[i] = x[i+1] - x[i]
	}
	return d
}

// Mobility is the Hjorth mobility sqrt(var(dx)/var(x)) with population
// variances.
func Mobility(x []float64) float64 {
	if len(x) < 3 || isConstant(x) {
		return math.NaN()
	}
	return math.Sqrt(stat.PopVariance(diff(x), nil) / stat.PopVariance(x, nil))
}

// Complexity is the Hjorth complexity mobility(dx)/mobility(x).
func Complexity(x []float64) float64 {
	m := Mobility(x)
	if math.IsNaN(m) {
		return math.NaN()
	}
	return Mobility(diff(x)) / m
}

// Petrosian is the Petrosian fractal dimension.
func Petrosian(x []float64) float64 {
	n := float64(len(x))
	if n < 3 {
		return math.NaN()
	}
	ln := math.Log10(n)
	nd := ZeroCrossings(diff(x))
	return ln / (ln + math.Log10(n/(n+0.4*nd)))
}

// PermEntropy is the permutation entropy of the given order and delay,
// normalised to [0, 1]. Ties keep their original order.
func PermEntropy(x []float64, order, delay int) float64 {
	span := (order - 1) * delay
	n := len(x) - span
	if order < 2 || delay < 1 || n <= 0 {
		return math.NaN()
	}

	counts := make(map[int]int)
	idx := make([]int, order)
	for i := 0; i < n; i++ {
		for k := range idx {
			idx[k] = k
		}
		slices.SortStableFunc(idx, func(a, b int) int {
			va, vb := x[i+a*delay], x[i+b*delay]
			switch {
			case va < vb:
				return -1
			case va > vb:
				return 1
			}
			return 0
		})
		key, mult := 0, 1
		for _, k := range idx {
			key += k * mult
			mult *= order
		}
		counts[key]++
	}

	var h float64
	for _, c := range counts {
		p := float64(c) / float64(n)
		h -= p * math.Log2(p)
	}
	norm := math.Log2(factorial(order))
	if h == 0 {
		return 0
	}
	return h / norm
}

func factorial(n int) float64 {
	f := 1.0
	for i := 2; i <= n; i++ {
		f *= float64(i)
	}
	return f
}

// Higuchi is the Higuchi fractal dimension with curve lengths computed for
// k = 1..kmax.
func Higuchi(x []float64, kmax int) float64 {
	n := len(x)
	if kmax < 2 || n < 2*kmax+1 || isConstant(x) {
		return math.NaN()
	}

	xs := make([]float64, kmax)
	ys := make([]float64, kmax)
	for k := 1; k <= kmax; k++ {
		var total float64
		for m := 0; m < k; m++ {
			nMax := (n - m - 1) / k
			var l float64
			for j := 1; j < nMax; j++ {
				l += math.Abs(x[m+j*k] - x[m+(j-1)*k])
			}
			l /= float64(k)
			l *= float64(n-1) / float64(k*nMax)
			total += l
		}
		xs[k-1] = math.Log(1 / float64(k))
		ys[k-1] = math.Log(total / float64(k))
	}
	for _, y := range ys {
		if math.IsInf(y, 0) || math.IsNaN(y) {
			return math.NaN()
		}
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return slope
}

// Mean is the arithmetic mean.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}

// RMSSD is the root mean square of successive differences.
func RMSSD(x []float64) float64 {
	d := diff(x)
	if len(d) == 0 {
		return math.NaN()
	}
	var s float64
	for _, v := range d {
		s += v * v
	}
	return math.Sqrt(s / float64(len(d)))
}
