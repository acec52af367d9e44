package hrf

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/algo-spfm/spfm/core"
)

// Metrics holds shape descriptors of a sampled HRF.
type Metrics struct {
	Length         int     // samples
	Peak           float64 // maximum value
	TimeToPeak     float64 // seconds
	FWHM           float64 // full width at half maximum, seconds
	Undershoot     float64 // minimum value after the peak (<= 0)
	TimeUndershoot float64 // seconds
	Area           float64 // sum of samples times TR
	PeakFrequency  float64 // Hz, location of the magnitude response maximum
	Bandwidth      float64 // Hz, first frequency above the peak 3 dB down
	Lipschitz      float64 // upper bound on ||H||_2^2
}

// Analyzer computes HRF metrics for a fixed repetition time.
type Analyzer struct {
	TR float64
}

// NewAnalyzer creates an analyzer for sampling interval tr.
func NewAnalyzer(tr float64) *Analyzer {
	return &Analyzer{TR: tr}
}

// Analyze computes all metrics for h.
func (a *Analyzer) Analyze(h []float64) (Metrics, error) {
	if len(h) == 0 {
		return Metrics{}, core.Configf("hrf: empty kernel")
	}
	if a.TR <= 0 {
		return Metrics{}, core.Configf("hrf: tr must be positive, got %v", a.TR)
	}

	peakIdx := floats.MaxIdx(h)
	m := Metrics{
		Length:     len(h),
		Peak:       h[peakIdx],
		TimeToPeak: float64(peakIdx) * a.TR,
		Area:       floats.Sum(h) * a.TR,
		FWHM:       a.fwhm(h, peakIdx),
	}

	tail := h[peakIdx:]
	minIdx := floats.MinIdx(tail)
	if tail[minIdx] < 0 {
		m.Undershoot = tail[minIdx]
		m.TimeUndershoot = float64(peakIdx+minIdx) * a.TR
	}

	freqs, mag, err := Response(h, a.TR, 1024)
	if err != nil {
		return Metrics{}, err
	}
	fi := floats.MaxIdx(mag)
	m.PeakFrequency = freqs[fi]
	cut := mag[fi] / math.Sqrt2
	for i := fi; i < len(mag); i++ {
		if mag[i] < cut {
			m.Bandwidth = freqs[i]
			break
		}
	}

	if m.Lipschitz, err = SpectralBound(h); err != nil {
		return Metrics{}, err
	}
	return m, nil
}

// fwhm measures the width at half the peak height with linear interpolation
// on both flanks.
func (a *Analyzer) fwhm(h []float64, peakIdx int) float64 {
	half := h[peakIdx] / 2
	if half <= 0 {
		return 0
	}

	left := 0.0
	for i := peakIdx; i > 0; i-- {
		if h[i-1] < half {
			left = float64(i-1) + (half-h[i-1])/(h[i]-h[i-1])
			break
		}
	}

	right := float64(len(h) - 1)
	for i := peakIdx; i < len(h)-1; i++ {
		if h[i+1] < half {
			right = float64(i) + (h[i]-half)/(h[i]-h[i+1])
			break
		}
	}

	return (right - left) * a.TR
}
