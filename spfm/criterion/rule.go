package criterion

import (
	"math"
	"math/rand/v2"
	"strings"

	"github.com/cwbudde/algo-spfm/internal/linalg"
	"github.com/cwbudde/algo-spfm/spfm/core"
)

// Rule is a fixed-lambda selection rule.
type Rule int

const (
	// MAD sets lambda to the noise estimate.
	MAD Rule = iota

	// MADUpdate starts at the noise estimate and rescales lambda every
	// iteration so the residual rms tracks the noise level.
	MADUpdate

	// UT is the universal threshold sigma*sqrt(2*log10(n)).
	UT

	// LUT is the lower universal threshold
	// sigma*sqrt(2*log10(n) - log10(1 + 4*log10(n))).
	LUT

	// FixedFactor sets lambda to Factor*sigma. Its name is "factor_lambda";
	// "factor" names the path selector.
	FixedFactor

	// PCG sets lambda to PCG*||H^T y||_inf.
	PCG

	// EigVal sets lambda to ||H^T e||_inf for a seeded Gaussian noise
	// realization e with standard deviation sigma.
	EigVal
)

var ruleNames = map[Rule]string{
	MAD:         "mad",
	MADUpdate:   "mad_update",
	UT:          "ut",
	LUT:         "lut",
	FixedFactor: "factor_lambda",
	PCG:         "pcg",
	EigVal:      "eigval",
}

func (r Rule) String() string {
	if s, ok := ruleNames[r]; ok {
		return s
	}
	return "unknown"
}

// ParseRule maps a rule name to a Rule.
func ParseRule(name string) (Rule, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for r, s := range ruleNames {
		if s == name {
			return r, nil
		}
	}
	return 0, core.Configf("criterion: unknown lambda rule %q", name)
}

// IsRule reports whether name is a fixed-lambda rule.
func IsRule(name string) bool {
	_, err := ParseRule(name)
	return err == nil
}

// RuleParams holds the inputs of the fixed-lambda rules.
type RuleParams struct {
	// Noise is the noise standard deviation, usually from NoiseEstimate.
	Noise float64

	// Factor multiplies Noise for FixedFactor.
	Factor float64

	// PCG is the fraction of lambda_max used by the PCG rule.
	PCG float64

	// Seed drives the noise realization of the EigVal rule.
	Seed uint64
}

// LambdaChoice is the regularization strength chosen by a rule.
type LambdaChoice struct {
	Lambda float64

	// Update reports that the solver should rescale lambda towards Noise.
	Update bool
	Noise  float64
}

// Lambda evaluates rule r for the operator and observed series.
func Lambda(r Rule, op linalg.Operator, y []float64, p RuleParams) (LambdaChoice, error) {
	rows, cols := op.Dims()
	if len(y) != rows {
		return LambdaChoice{}, core.Configf("criterion: series length %d does not match operator rows %d", len(y), rows)
	}
	if p.Noise < 0 || math.IsNaN(p.Noise) {
		return LambdaChoice{}, core.Configf("criterion: noise must be >= 0, got %v", p.Noise)
	}

	sigma := p.Noise
	logN := math.Log10(float64(rows))
	out := LambdaChoice{Noise: sigma}

	switch r {
	case MAD:
		out.Lambda = sigma
	case MADUpdate:
		out.Lambda = sigma
		out.Update = true
	case UT:
		out.Lambda = sigma * math.Sqrt(math.Max(2*logN, 0))
	case LUT:
		out.Lambda = sigma * math.Sqrt(math.Max(2*logN-math.Log10(1+4*logN), 0))
	case FixedFactor:
		if !(p.Factor > 0) {
			return LambdaChoice{}, core.Configf("criterion: factor must be positive, got %v", p.Factor)
		}
		out.Lambda = sigma * p.Factor
	case PCG:
		if !(p.PCG > 0) || p.PCG > 1 {
			return LambdaChoice{}, core.Configf("criterion: pcg must be in (0, 1], got %v", p.PCG)
		}
		hty := make([]float64, cols)
		op.ApplyT(hty, y)
		out.Lambda = p.PCG * linalg.InfNorm(hty)
	case EigVal:
		rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
		e := make([]float64, rows)
		for i := range e {
			e[i] = rng.NormFloat64() * sigma
		}
		hte := make([]float64, cols)
		op.ApplyT(hte, e)
		out.Lambda = linalg.InfNorm(hte)
	default:
		return LambdaChoice{}, core.Configf("criterion: unknown lambda rule %d", int(r))
	}

	if !core.AllFinite([]float64{out.Lambda}) {
		return LambdaChoice{}, core.Numericalf("criterion: rule %s produced lambda %v", r, out.Lambda)
	}
	return out, nil
}
