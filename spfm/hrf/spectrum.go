package hrf

import (
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/algo-spfm/spfm/core"
)

// spectralOversample controls the DFT grid density used by SpectralBound.
const spectralOversample = 64

// SpectralBound returns an upper bound on ||H||_2^2 for any truncated
// convolution operator built from kernel. The kernel's DTFT is sampled on a
// dense grid and the grid maximum is corrected by the Bernstein inequality
// for trigonometric polynomials of degree len(kernel)-1.
func SpectralBound(kernel []float64) (float64, error) {
	if len(kernel) == 0 {
		return 0, core.Configf("hrf: empty kernel")
	}

	m := nextPowerOf2(max(spectralOversample*len(kernel), 256))
	freq, err := spectrum(kernel, m)
	if err != nil {
		return 0, err
	}

	re, im := splitComplex(freq)
	pow := make([]float64, m)
	vecmath.Power(pow, re, im)

	corr := 1 - float64(len(kernel)-1)*math.Pi/float64(m)
	return floats.Max(pow) / (corr * corr), nil
}

// Response returns the magnitude response of kernel at nfft/2+1 frequencies
// and the matching frequencies in Hz for sampling interval tr.
func Response(kernel []float64, tr float64, nfft int) (freqs, mag []float64, err error) {
	if len(kernel) == 0 {
		return nil, nil, core.Configf("hrf: empty kernel")
	}
	if tr <= 0 {
		return nil, nil, core.Configf("hrf: tr must be positive, got %v", tr)
	}
	nfft = nextPowerOf2(max(nfft, len(kernel)))

	freq, err := spectrum(kernel, nfft)
	if err != nil {
		return nil, nil, err
	}
	half := nfft/2 + 1
	re, im := splitComplex(freq[:half])
	mag = make([]float64, half)
	vecmath.Magnitude(mag, re, im)

	freqs = make([]float64, half)
	for i := range freqs {
		freqs[i] = float64(i) / (float64(nfft) * tr)
	}
	return freqs, mag, nil
}

func spectrum(kernel []float64, m int) ([]complex128, error) {
	plan, err := algofft.NewPlan64(m)
	if err != nil {
		return nil, fmt.Errorf("hrf: failed to create FFT plan: %w", err)
	}
	in := make([]complex128, m)
	for i, v := range kernel {
		in[i] = complex(v, 0)
	}
	out := make([]complex128, m)
	if err := plan.Forward(out, in); err != nil {
		return nil, fmt.Errorf("hrf: forward FFT: %w", err)
	}
	return out, nil
}

func splitComplex(in []complex128) (re, im []float64) {
	re = make([]float64, len(in))
	im = make([]float64, len(in))
	for i, c := range in {
		re[i] = real(c)
		im[i] = imag(c)
	}
	return re, im
}

// nextPowerOf2 returns the next power of 2 >= n.
func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p *= 2
	}
	return p
}
