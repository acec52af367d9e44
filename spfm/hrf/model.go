package hrf

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/cwbudde/algo-spfm/internal/textio"
	"github.com/cwbudde/algo-spfm/spfm/core"
)

// Model names understood by Generate.
const (
	ModelSPM    = "spm"
	ModelGlover = "glover"
)

// GammaParams describes a double-gamma response.
type GammaParams struct {
	// Length is the duration of the sampled response in seconds.
	Length float64

	Delay       float64 // peak gamma shape (seconds)
	Undershoot  float64 // undershoot gamma shape (seconds)
	Dispersion  float64
	UDispersion float64
	Ratio       float64 // undershoot to peak amplitude ratio
}

// SPMParams returns the parameters of SPM's canonical HRF.
func SPMParams() GammaParams {
	return GammaParams{
		Length:      32,
		Delay:       6,
		Undershoot:  16,
		Dispersion:  1,
		UDispersion: 1,
		Ratio:       0.167,
	}
}

// GloverParams returns the parameters of the Glover HRF.
func GloverParams() GammaParams {
	return GammaParams{
		Length:      32,
		Delay:       6,
		Undershoot:  12,
		Dispersion:  0.9,
		UDispersion: 0.9,
		Ratio:       0.35,
	}
}

// ModelOption mutates GammaParams.
type ModelOption func(*GammaParams)

// WithLength sets the sampled duration in seconds.
func WithLength(seconds float64) ModelOption {
	return func(p *GammaParams) {
		if seconds > 0 {
			p.Length = seconds
		}
	}
}

// WithRatio sets the undershoot ratio.
func WithRatio(ratio float64) ModelOption {
	return func(p *GammaParams) {
		if ratio >= 0 {
			p.Ratio = ratio
		}
	}
}

// SPM returns SPM's canonical HRF sampled every tr seconds.
func SPM(tr float64, opts ...ModelOption) ([]float64, error) {
	return DoubleGamma(tr, apply(SPMParams(), opts))
}

// Glover returns the Glover HRF sampled every tr seconds.
func Glover(tr float64, opts ...ModelOption) ([]float64, error) {
	return DoubleGamma(tr, apply(GloverParams(), opts))
}

func apply(p GammaParams, opts []ModelOption) GammaParams {
	for _, opt := range opts {
		if opt != nil {
			opt(&p)
		}
	}
	return p
}

// DoubleGamma samples peak - ratio*undershoot gamma densities at k*tr for
// k in [0, round(Length/tr)) and scales the result to unit peak.
func DoubleGamma(tr float64, p GammaParams) ([]float64, error) {
	if tr <= 0 || math.IsNaN(tr) {
		return nil, core.Configf("hrf: tr must be positive, got %v", tr)
	}
	if p.Dispersion <= 0 || p.UDispersion <= 0 || p.Delay <= 0 || p.Undershoot <= 0 {
		return nil, core.Configf("hrf: gamma parameters must be positive: %+v", p)
	}
	n := int(math.Round(p.Length / tr))
	if n <= 0 {
		return nil, core.Configf("hrf: length %v s shorter than tr %v s", p.Length, tr)
	}

	peak := distuv.Gamma{Alpha: p.Delay / p.Dispersion, Beta: 1 / p.Dispersion}
	under := distuv.Gamma{Alpha: p.Undershoot / p.UDispersion, Beta: 1 / p.UDispersion}

	h := make([]float64, n)
	for k := range h {
		t := float64(k) * tr
		if t <= 0 {
			continue
		}
		h[k] = peak.Prob(t) - p.Ratio*under.Prob(t)
	}

	scale := floats.Max(h)
	if scale <= 0 {
		return nil, core.Numericalf("hrf: response has no positive peak for tr %v", tr)
	}
	floats.Scale(1/scale, h)
	return h, nil
}

// Generate returns the HRF for a model name ("spm", "glover") or loads a
// custom kernel when model names a .1D or .txt file.
func Generate(model string, tr float64, opts ...ModelOption) ([]float64, error) {
	switch strings.ToLower(model) {
	case "", ModelSPM:
		return SPM(tr, opts...)
	case ModelGlover:
		return Glover(tr, opts...)
	}
	if strings.HasSuffix(model, ".1D") || strings.HasSuffix(model, ".txt") {
		return LoadKernel(model)
	}
	return nil, core.Configf("hrf: unknown model %q", model)
}

// LoadKernel reads a custom HRF from a single-column text file.
func LoadKernel(path string) ([]float64, error) {
	k, err := textio.ReadVectorFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}
	if !core.AllFinite(k) {
		return nil, core.Numericalf("hrf: kernel %s has non-finite values", path)
	}
	return k, nil
}
