package features

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(n int, v float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = v
	}
	return x
}

func TestExtractors_ConstantEpoch(t *testing.T) {
	x := constant(3000, 12.5)

	assert.Equal(t, 0.0, Std(x))
	assert.Equal(t, 0.0, IQR(x))
	assert.True(t, math.IsNaN(Skew(x)))
	assert.True(t, math.IsNaN(Kurt(x)))
	assert.Equal(t, 0.0, ZeroCrossings(x))
	assert.True(t, math.IsNaN(Mobility(x)))
	assert.True(t, math.IsNaN(Complexity(x)))
	assert.True(t, math.IsNaN(Higuchi(x, 10)))
	assert.Equal(t, 0.0, PermEntropy(x, 3, 1))
	assert.Equal(t, 1.0, Petrosian(x))
}

func TestMoments(t *testing.T) {
	assert.InDelta(t, 0.6745554845457661, Skew([]float64{1, 2, 10}), 1e-12)
	assert.InDelta(t, -1.3, Kurt([]float64{1, 2, 3, 4, 5}), 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), Std([]float64{1, 2, 3, 4, 5}), 1e-12)
	assert.InDelta(t, 2.0, IQR([]float64{5, 1, 4, 2, 3}), 1e-12)
}

func TestZeroCrossings(t *testing.T) {
	assert.Equal(t, 2.0, ZeroCrossings([]float64{1, -1, 1, 0, -1}))
}

func TestHjorth(t *testing.T) {
	assert.InDelta(t, 1.5309310892394863, Mobility([]float64{2, 4, 1, 3, 5}), 1e-12)

	// A linear ramp has a constant first difference.
	assert.True(t, math.IsNaN(Complexity([]float64{1, 2, 3, 4, 5})))
}

func TestPermEntropy(t *testing.T) {
	assert.InDelta(t, 0.5887621559162939, PermEntropy([]float64{4, 7, 9, 10, 6, 11, 3}, 3, 1), 1e-12)

	ramp := make([]float64, 100)
	for i := range ramp {
		ramp[i] = float64(i)
	}
	assert.Equal(t, 0.0, PermEntropy(ramp, 3, 1))

	rng := rand.New(rand.NewSource(1))
	noise := make([]float64, 3000)
	for i := range noise {
		noise[i] = rng.NormFloat64()
	}
	assert.InDelta(t, 1.0, PermEntropy(noise, 3, 1), 0.01)
}

func TestHiguchi(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	noise := make([]float64, 3000)
	for i := range noise {
		noise[i] = rng.NormFloat64()
	}
	assert.InDelta(t, 2.0, Higuchi(noise, 10), 0.1)

	smooth := make([]float64, 3000)
	for i := range smooth {
		smooth[i] = math.Sin(2 * math.Pi * float64(i) / 1000)
	}
	assert.InDelta(t, 1.0, Higuchi(smooth, 10), 0.05)

	assert.True(t, math.IsNaN(Higuchi([]float64{1, 2, 3}, 10)))
}

func TestPetrosian(t *testing.T) {
	x := []float64{1, 3, 2, 4, 3, 5}
	n := float64(len(x))
	// First differences alternate in sign: four sign changes.
	want := math.Log10(n) / (math.Log10(n) + math.Log10(n/(n+0.4*4)))
	assert.InDelta(t, want, Petrosian(x), 1e-12)
}

func TestHeartRateExtras(t *testing.T) {
	x := []float64{60, 62, 61, 65}
	assert.InDelta(t, 62.0, Mean(x), 1e-12)
	assert.InDelta(t, math.Sqrt((4.0+1+16)/3), RMSSD(x), 1e-12)
}

func TestRelativeBandPowers(t *testing.T) {
	freqs := make([]float64, 251)
	psd := make([]float64, 251)
	for i := range freqs {
		freqs[i] = float64(i) / 5
		psd[i] = 1
	}
	rel := RelativeBandPowers(freqs, psd, Bands)
	require.Len(t, rel, len(Bands))

	var sum float64
	for _, p := range rel {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.InDelta(t, 14.0/29.6, rel[5], 1e-9)

	assert.InDelta(t, 29.6, AbsolutePower(freqs, psd, Broadband), 1e-9)

	zero := make([]float64, 251)
	for _, p := range RelativeBandPowers(freqs, zero, Bands) {
		assert.True(t, math.IsNaN(p))
	}
}
