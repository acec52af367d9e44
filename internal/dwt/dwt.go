// Package dwt computes single-level discrete wavelet detail coefficients used
// for robust noise estimation of fMRI time series.
package dwt

import (
	"errors"

	"gonum.org/v1/gonum/floats"
)

// ErrEmptyInput is returned when the signal has no samples.
var ErrEmptyInput = errors.New("dwt: input is empty")

// DB3High is the Daubechies-3 decomposition high-pass filter.
var DB3High = []float64{
	-0.3326705529509569,
	0.8068915093133388,
	-0.4598775021193313,
	-0.13501102001039084,
	0.08544127388224149,
	0.035226291882100656,
}

// Detail returns the finest-scale db3 detail coefficients of x using
// half-sample symmetric extension. The result has floor((N+5)/2) entries.
func Detail(x []float64) ([]float64, error) {
	return DetailWith(x, DB3High)
}

// DetailWith computes the single-level detail coefficients for an arbitrary
// decomposition high-pass filter.
func DetailWith(x, filter []float64) ([]float64, error) {
	if len(x) == 0 {
		return nil, ErrEmptyInput
	}
	if len(filter) == 0 {
		return nil, errors.New("dwt: filter is empty")
	}

	f := len(filter)
	padded := symmetricExtend(x, f-1)
	full := make([]float64, len(padded)+f-1)
	convolveTo(full, padded, filter)

	outLen := (len(x) + f - 1) / 2
	out := make([]float64, outLen)
	for k := range out {
		out[k] = full[f+2*k]
	}
	return out, nil
}

// convolveTo writes the full linear convolution of a and b into dst, which
// must have length len(a)+len(b)-1.
func convolveTo(dst, a, b []float64) {
	for i := range dst {
		dst[i] = 0
	}
	m := len(b)
	for i, v := range a {
		floats.AddScaled(dst[i:i+m], v, b)
	}
}

// symmetricExtend pads x by p samples on both sides, mirroring with the edge
// sample repeated (x2 x1 | x1 x2 ... xn | xn xn-1).
func symmetricExtend(x []float64, p int) []float64 {
	n := len(x)
	out := make([]float64, n+2*p)
	for i := range out {
		out[i] = x[reflect(i-p, n)]
	}
	return out
}

func reflect(i, n int) int {
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}
