// Package testutil provides deterministic test signals and tolerance helpers
// shared by the solver tests.
package testutil

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Impulse generates a unit impulse at the given position.
func Impulse(length, pos int) []float64 {
	out := make([]float64, length)
	if pos >= 0 && pos < length {
		out[pos] = 1
	}
	return out
}

// Spikes generates a sparse vector with amps[i] at idx[i].
func Spikes(length int, idx []int, amps []float64) []float64 {
	out := make([]float64, length)
	for i, p := range idx {
		if p >= 0 && p < length && i < len(amps) {
			out[p] = amps[i]
		}
	}
	return out
}

// GaussianNoise generates zero-mean Gaussian noise with a fixed seed.
func GaussianNoise(seed int64, sigma float64, length int) []float64 {
	out := make([]float64, length)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = rng.NormFloat64() * sigma
	}
	return out
}

// RandomMatrix returns an r x c matrix of standard normal entries.
func RandomMatrix(seed int64, r, c int) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(r, c, data)
}

// Add returns a + b element-wise over the shorter length.
func Add(a, b []float64) []float64 {
	out := make([]float64, min(len(a), len(b)))
	for i := range out {
		out[i] = a[i] + b[i]
	}
	return out
}
