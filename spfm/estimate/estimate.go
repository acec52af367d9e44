// Package estimate composes the solver stages for one voxel: regularization
// strength or path, criterion selection, debiasing and the mapping back to
// activity and fitted signal.
package estimate

import (
	"errors"
	"math"
	"strings"

	"github.com/cwbudde/algo-spfm/internal/linalg"
	"github.com/cwbudde/algo-spfm/spfm/core"
	"github.com/cwbudde/algo-spfm/spfm/criterion"
	"github.com/cwbudde/algo-spfm/spfm/debias"
	"github.com/cwbudde/algo-spfm/spfm/fista"
	"github.com/cwbudde/algo-spfm/spfm/lars"
)

// Model is the convolution operator together with the layout information
// the estimator needs.
type Model interface {
	linalg.Operator

	// Samples is the number of timepoints per echo.
	Samples() int

	// Echoes is the number of stacked echoes.
	Echoes() int

	// Activity maps solver coefficients to the activity-inducing signal.
	Activity(coef []float64) []float64
}

// Config selects the solver and its parameters.
type Config struct {
	// Criterion is a path criterion (factor, knee, bic, aic) or a fixed
	// lambda rule (mad, mad_update, ut, lut, pcg, eigval).
	Criterion string

	// Factor is the residual factor of the factor criterion.
	Factor float64

	// Noise is an external noise level. Zero estimates it from the data.
	Noise float64

	// PCG is the fraction of lambda_max used by the pcg rule.
	PCG float64

	// LambdaEcho is the echo used for the noise estimate; negative values
	// count from the last echo.
	LambdaEcho int

	MaxIterFISTA  int
	MinIterFISTA  int
	MaxIterFactor float64
	Tol           float64

	// Group is the share of the group-norm penalty, GroupSize its group length.
	Group     float64
	GroupSize int

	Debias bool

	// NLambdas and LambdaRatio shape the FISTA path of path criteria.
	NLambdas    int
	LambdaRatio float64

	// Seed drives the noise realization of the eigval rule.
	Seed uint64
}

// DefaultConfig returns the default estimator configuration.
func DefaultConfig() Config {
	return Config{
		Criterion:     "bic",
		Factor:        1,
		PCG:           0.8,
		LambdaEcho:    -1,
		MaxIterFISTA:  400,
		MinIterFISTA:  50,
		MaxIterFactor: 1,
		Tol:           1e-6,
		GroupSize:     1,
		Debias:        true,
		NLambdas:      50,
		LambdaRatio:   1e-3,
	}
}

type mode int

const (
	modeLARS mode = iota
	modePath
	modeRule
)

// Result is the estimate of one voxel.
type Result struct {
	// Coef is the solution in solver space (innovation in the block model).
	Coef []float64

	// Activity is the activity-inducing signal, one value per timepoint.
	Activity []float64

	// Fitted is H*Coef for every stacked echo.
	Fitted []float64

	Lambda      float64
	Noise       float64
	Diagnostics core.Diagnostics
}

// Estimator runs the configured solver on voxels sharing one operator. It is
// safe for concurrent use.
type Estimator struct {
	op       Model
	cfg      Config
	mode     mode
	selector criterion.Selector
	rule     criterion.Rule
	echo     int
}

// New validates cfg against op.
func New(op Model, cfg Config) (*Estimator, error) {
	if op == nil {
		return nil, core.Configf("estimate: nil operator")
	}
	rows, _ := op.Dims()
	if op.Samples()*op.Echoes() != rows {
		return nil, core.Configf("estimate: operator rows %d do not match %d samples x %d echoes",
			rows, op.Samples(), op.Echoes())
	}

	e := &Estimator{op: op, cfg: cfg}
	name := strings.ToLower(strings.TrimSpace(cfg.Criterion))
	switch name {
	case "bic", "aic":
		e.mode = modeLARS
	case "factor", "knee":
		e.mode = modePath
	default:
		r, err := criterion.ParseRule(name)
		if err != nil {
			return nil, err
		}
		e.mode, e.rule = modeRule, r
	}
	if e.mode != modeRule {
		sel, err := criterion.Parse(name, cfg.Factor, cfg.Noise)
		if err != nil {
			return nil, err
		}
		e.selector = sel
	}

	echo := cfg.LambdaEcho
	if echo < 0 {
		echo += op.Echoes()
	}
	if echo < 0 || echo >= op.Echoes() {
		return nil, core.Configf("estimate: lambda echo %d out of range for %d echoes", cfg.LambdaEcho, op.Echoes())
	}
	e.echo = echo

	if cfg.Noise < 0 || math.IsNaN(cfg.Noise) {
		return nil, core.Configf("estimate: noise must be >= 0, got %v", cfg.Noise)
	}
	if e.mode == modeLARS && !(cfg.MaxIterFactor > 0) {
		return nil, core.Configf("estimate: max_iter_factor must be positive, got %v", cfg.MaxIterFactor)
	}
	if e.mode == modePath && (cfg.NLambdas < 2 || !(cfg.LambdaRatio > 0) || cfg.LambdaRatio >= 1) {
		return nil, core.Configf("estimate: path needs n_lambdas >= 2 and lambda ratio in (0, 1)")
	}
	if e.mode != modeLARS {
		if err := e.fistaOptions(0).Validate(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Config returns the estimator configuration.
func (e *Estimator) Config() Config { return e.cfg }

func (e *Estimator) fistaOptions(noise float64) fista.Options {
	opts := fista.DefaultOptions()
	opts.MaxIter = e.cfg.MaxIterFISTA
	opts.MinIter = e.cfg.MinIterFISTA
	opts.Tol = e.cfg.Tol
	opts.GroupSize = e.cfg.GroupSize
	opts.GroupWeight = e.cfg.Group
	opts.Noise = noise
	return opts
}

// Noise returns the noise level used for y: the configured value when
// positive, otherwise the wavelet estimate of the lambda echo.
func (e *Estimator) Noise(y []float64) (float64, error) {
	if e.cfg.Noise > 0 {
		return e.cfg.Noise, nil
	}
	n := e.op.Samples()
	return criterion.NoiseEstimate(y[e.echo*n : (e.echo+1)*n])
}

// Estimate solves for one voxel series (echoes stacked).
func (e *Estimator) Estimate(y []float64) (Result, error) {
	rows, _ := e.op.Dims()
	if len(y) != rows {
		return Result{}, core.Configf("estimate: series length %d does not match operator rows %d", len(y), rows)
	}
	if !core.AllFinite(y) {
		return Result{}, core.Numericalf("estimate: series contains non-finite values")
	}
	noise, err := e.Noise(y)
	if err != nil {
		return Result{}, err
	}

	var (
		entry core.Entry
		diag  core.Diagnostics
	)
	switch e.mode {
	case modeLARS:
		opts := lars.DefaultOptions()
		opts.MaxSteps = lars.MaxStepsFor(e.cfg.MaxIterFactor, e.op.Samples())
		entry, diag, err = lars.Select(e.op, y, e.selector, opts)
	case modePath:
		entry, diag, err = e.solvePath(y)
	default:
		entry, diag, err = e.solveRule(y, noise)
	}
	if err != nil {
		return Result{}, err
	}

	coef := entry.X
	diag.Noise = noise
	if e.cfg.Debias && entry.Support > 0 {
		res, err := debias.Refit(e.op, y, coef)
		switch {
		case err == nil:
			coef = res.X
			diag.Debiased = true
		case res.Fallback && errors.Is(err, core.ErrNumerical):
			diag.DebiasFallback = true
		default:
			return Result{}, err
		}
	}

	fitted := make([]float64, rows)
	e.op.Apply(fitted, coef)
	return Result{
		Coef:        coef,
		Activity:    e.op.Activity(coef),
		Fitted:      fitted,
		Lambda:      entry.Lambda,
		Noise:       noise,
		Diagnostics: diag,
	}, nil
}

func (e *Estimator) solvePath(y []float64) (core.Entry, core.Diagnostics, error) {
	opts := e.fistaOptions(0)
	lambdas := fista.Lambdas(fista.LambdaMax(e.op, y, opts), e.cfg.NLambdas, e.cfg.LambdaRatio)
	path, err := fista.SolvePath(e.op, y, lambdas, opts)
	if err != nil {
		return core.Entry{}, core.Diagnostics{}, err
	}
	rows, _ := e.op.Dims()
	c, err := e.selector.Select(path, rows)
	if err != nil {
		return core.Entry{}, core.Diagnostics{}, err
	}

	iters := 0
	for _, p := range path {
		iters += p.Iterations
	}
	entry := path[c.Index]
	return entry, core.Diagnostics{
		Solver:     "fista",
		Iterations: iters,
		Lambda:     entry.Lambda,
		Support:    entry.Support,
		Converged:  entry.Converged,
		PathLength: len(path),
		Selected:   c.Index,
	}, nil
}

func (e *Estimator) solveRule(y []float64, noise float64) (core.Entry, core.Diagnostics, error) {
	choice, err := criterion.Lambda(e.rule, e.op, y, criterion.RuleParams{
		Noise:  noise,
		Factor: e.cfg.Factor,
		PCG:    e.cfg.PCG,
		Seed:   e.cfg.Seed,
	})
	if err != nil {
		return core.Entry{}, core.Diagnostics{}, err
	}
	opts := e.fistaOptions(choice.Noise)
	opts.UpdateLambda = choice.Update && choice.Noise > 0
	return fista.Solve(e.op, y, choice.Lambda, opts)
}
