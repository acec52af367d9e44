package fista

import (
	"math"

	"github.com/cwbudde/algo-spfm/internal/linalg"
	"github.com/cwbudde/algo-spfm/spfm/core"
)

// Options configures the solver.
type Options struct {
	// MaxIter bounds the iterations per lambda.
	MaxIter int

	// MinIter is the number of iterations run before convergence is tested.
	MinIter int

	// Tol is the relative change in x or objective that ends the iteration.
	Tol float64

	// Lipschitz is an upper bound on ||H||_2^2. When zero the operator's own
	// bound is used if it provides one, otherwise it is estimated by power
	// iteration.
	Lipschitz float64

	// Monotone selects MFISTA, which never accepts an objective increase.
	Monotone bool

	// GroupSize is the length of consecutive coefficient groups for the
	// sparse-group penalty. Values <= 1 disable grouping.
	GroupSize int

	// GroupWeight in [0, 1] is the share of the group-norm penalty.
	GroupWeight float64

	// TrackObjective records the objective of every iteration in the
	// diagnostics of Solve.
	TrackObjective bool

	// UpdateLambda rescales lambda every iteration by Noise/rms(residual).
	UpdateLambda bool

	// Noise is the target residual rms of UpdateLambda.
	Noise float64
}

// DefaultOptions returns the default solver options.
func DefaultOptions() Options {
	return Options{
		MaxIter:  400,
		MinIter:  50,
		Tol:      1e-6,
		Monotone: true,
	}
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	if o.MaxIter <= 0 {
		return core.Configf("fista: max iterations must be positive, got %d", o.MaxIter)
	}
	if o.MinIter < 0 {
		return core.Configf("fista: min iterations must be >= 0, got %d", o.MinIter)
	}
	if o.Tol < 0 || math.IsNaN(o.Tol) {
		return core.Configf("fista: tolerance must be >= 0, got %v", o.Tol)
	}
	if o.Lipschitz < 0 || math.IsNaN(o.Lipschitz) {
		return core.Configf("fista: Lipschitz constant must be >= 0, got %v", o.Lipschitz)
	}
	if o.GroupWeight < 0 || o.GroupWeight > 1 || math.IsNaN(o.GroupWeight) {
		return core.Configf("fista: group weight must be in [0, 1], got %v", o.GroupWeight)
	}
	if o.UpdateLambda && !(o.Noise > 0) {
		return core.Configf("fista: lambda update needs a positive noise level, got %v", o.Noise)
	}
	return nil
}

// rho returns the L1 share of the penalty.
func (o Options) rho() float64 {
	if o.GroupSize <= 1 {
		return 1
	}
	return 1 - o.GroupWeight
}

type lipschitzer interface {
	Lipschitz() float64
}

// powerSafety inflates power-iteration estimates, which approach ||H||^2
// from below.
const powerSafety = 1.01

// Lipschitz returns the step-size bound used for op under opts.
func Lipschitz(op linalg.Operator, opts Options) float64 {
	if opts.Lipschitz > 0 {
		return opts.Lipschitz
	}
	if l, ok := op.(lipschitzer); ok {
		if v := l.Lipschitz(); v > 0 {
			return v
		}
	}
	return linalg.PowerIteration(op, 200, 1e-9) * powerSafety
}
