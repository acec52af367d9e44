package fista

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/algo-spfm/internal/linalg"
	"github.com/cwbudde/algo-spfm/spfm/core"
)

// tiny guards relative-change denominators.
const tiny = 1e-300

// Solve minimizes the objective at a fixed lambda starting from zero.
func Solve(op linalg.Operator, y []float64, lambda float64, opts Options) (core.Entry, core.Diagnostics, error) {
	s, err := newSolver(op, y, opts)
	if err != nil {
		return core.Entry{}, core.Diagnostics{}, err
	}
	if lambda < 0 || math.IsNaN(lambda) || math.IsInf(lambda, 0) {
		return core.Entry{}, core.Diagnostics{}, core.Configf("fista: lambda must be finite and >= 0, got %v", lambda)
	}

	e := s.run(lambda)
	diag := core.Diagnostics{
		Solver:     "fista",
		Iterations: e.Iterations,
		Lambda:     e.Lambda,
		Support:    e.Support,
		Converged:  e.Converged,
		PathLength: 1,
		Objective:  s.objective,
	}
	return e, diag, nil
}

// SolvePath solves for every lambda in order, warm-starting each solve from
// the previous solution.
func SolvePath(op linalg.Operator, y []float64, lambdas []float64, opts Options) (core.Path, error) {
	if len(lambdas) == 0 {
		return nil, core.Configf("fista: empty lambda sequence")
	}
	for _, l := range lambdas {
		if l < 0 || math.IsNaN(l) || math.IsInf(l, 0) {
			return nil, core.Configf("fista: lambda must be finite and >= 0, got %v", l)
		}
	}
	opts.TrackObjective = false
	s, err := newSolver(op, y, opts)
	if err != nil {
		return nil, err
	}

	path := make(core.Path, len(lambdas))
	for i, l := range lambdas {
		path[i] = s.run(l)
	}
	return path, nil
}

// LambdaMax returns a regularization strength at and above which the
// solution is the zero vector.
func LambdaMax(op linalg.Operator, y []float64, opts Options) float64 {
	_, cols := op.Dims()
	g := make([]float64, cols)
	op.ApplyT(g, y)

	rho := opts.rho()
	if rho > 0 {
		return linalg.InfNorm(g) / rho
	}
	best := 0.0
	for start := 0; start < cols; start += opts.GroupSize {
		end := min(start+opts.GroupSize, cols)
		best = math.Max(best, linalg.L2(g[start:end]))
	}
	return best
}

// Lambdas returns n values decreasing geometrically from lambdaMax to
// lambdaMax*ratio.
func Lambdas(lambdaMax float64, n int, ratio float64) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{lambdaMax}
	}
	out := make([]float64, n)
	step := math.Pow(ratio, 1/float64(n-1))
	v := lambdaMax
	for i := range out {
		out[i] = v
		v *= step
	}
	out[n-1] = lambdaMax * ratio
	return out
}

// solver holds the iterates of one voxel and carries the current solution
// between lambdas of a path.
type solver struct {
	op    linalg.Operator
	y     []float64
	opts  Options
	rows  int
	cols  int
	lip   float64
	rho   float64
	x     []float64
	hx    []float64
	xPrev []float64
	hPrev []float64
	v     []float64
	hv    []float64
	z     []float64
	hz    []float64
	grad  []float64
	res   []float64

	objective []float64
}

func newSolver(op linalg.Operator, y []float64, opts Options) (*solver, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	rows, cols := op.Dims()
	if rows <= 0 || cols <= 0 {
		return nil, core.Configf("fista: operator has empty shape %dx%d", rows, cols)
	}
	if len(y) != rows {
		return nil, core.Configf("fista: series length %d does not match operator rows %d", len(y), rows)
	}
	if !core.AllFinite(y) {
		return nil, core.Numericalf("fista: series contains non-finite values")
	}
	if !linalg.Finite(op) {
		return nil, core.Numericalf("fista: operator contains non-finite values")
	}

	s := &solver{
		op:    op,
		y:     y,
		opts:  opts,
		rows:  rows,
		cols:  cols,
		lip:   Lipschitz(op, opts),
		rho:   opts.rho(),
		x:     make([]float64, cols),
		xPrev: make([]float64, cols),
		v:     make([]float64, cols),
		z:     make([]float64, cols),
		grad:  make([]float64, cols),
		hx:    make([]float64, rows),
		hPrev: make([]float64, rows),
		hv:    make([]float64, rows),
		hz:    make([]float64, rows),
		res:   make([]float64, rows),
	}
	if math.IsNaN(s.lip) || math.IsInf(s.lip, 0) {
		return nil, core.Numericalf("fista: Lipschitz estimate is %v", s.lip)
	}
	return s, nil
}

func (s *solver) penalty(x []float64) float64 {
	return linalg.GroupNorm(x, s.opts.GroupSize, s.rho)
}

// rss returns ||y - h||^2 using the residual scratch buffer.
func (s *solver) rss(h []float64) float64 {
	floats.SubTo(s.res, s.y, h)
	return floats.Dot(s.res, s.res)
}

// run iterates at lambda from the current x and returns the path entry.
func (s *solver) run(lambda float64) core.Entry {
	if s.lip <= 0 {
		// H is identically zero: every x has the same fit, zero is optimal.
		core.Zero(s.x)
		core.Zero(s.hx)
		return s.entry(lambda, 0, true)
	}

	step := 1 / s.lip
	copy(s.z, s.x)
	copy(s.hz, s.hx)
	t := 1.0

	rssX := s.rss(s.hx)
	fx := 0.5*rssX + lambda*s.penalty(s.x)
	if s.opts.TrackObjective {
		s.objective = s.objective[:0]
	}

	converged := false
	iter := 0
	for iter < s.opts.MaxIter {
		iter++

		// Gradient step on z followed by the proximal map.
		floats.SubTo(s.res, s.hz, s.y)
		s.op.ApplyT(s.grad, s.res)
		floats.AddScaledTo(s.v, s.z, -step, s.grad)
		linalg.SparseGroupThreshold(s.v, s.v, s.opts.GroupSize, lambda*step, s.rho)
		s.op.Apply(s.hv, s.v)

		rssV := s.rss(s.hv)
		fv := 0.5*rssV + lambda*s.penalty(s.v)

		copy(s.xPrev, s.x)
		copy(s.hPrev, s.hx)
		accepted := !s.opts.Monotone || fv <= fx
		if accepted {
			copy(s.x, s.v)
			copy(s.hx, s.hv)
		}
		fPrev := fx
		if accepted {
			fx, rssX = fv, rssV
		}

		tNext := (1 + math.Sqrt(1+4*t*t)) / 2
		s.extrapolate(t, tNext)
		t = tNext

		if s.opts.UpdateLambda {
			if rms := math.Sqrt(rssX / float64(s.rows)); rms > 0 {
				lambda *= s.opts.Noise / rms
			}
			fx = 0.5*rssX + lambda*s.penalty(s.x)
		}
		if s.opts.TrackObjective {
			s.objective = append(s.objective, fx)
		}

		if iter >= s.opts.MinIter && accepted && s.stalled(fPrev, fx) {
			converged = true
			break
		}
	}
	return s.entry(lambda, iter, converged)
}

// extrapolate forms the momentum point z (and its image Hz). The monotone
// form also follows the rejected proximal point v.
func (s *solver) extrapolate(t, tNext float64) {
	a := (t - 1) / tNext
	copy(s.z, s.x)
	copy(s.hz, s.hx)
	floats.AddScaled(s.z, a, s.x)
	floats.AddScaled(s.z, -a, s.xPrev)
	floats.AddScaled(s.hz, a, s.hx)
	floats.AddScaled(s.hz, -a, s.hPrev)
	if s.opts.Monotone {
		b := t / tNext
		floats.AddScaled(s.z, b, s.v)
		floats.AddScaled(s.z, -b, s.x)
		floats.AddScaled(s.hz, b, s.hv)
		floats.AddScaled(s.hz, -b, s.hx)
	}
}

// stalled reports whether x or the objective changed by less than Tol.
func (s *solver) stalled(fPrev, f float64) bool {
	num, den := 0.0, 0.0
	for i, v := range s.x {
		d := v - s.xPrev[i]
		num += d * d
		den += v * v
	}
	if math.Sqrt(num) <= s.opts.Tol*math.Max(math.Sqrt(den), tiny) {
		return true
	}
	return math.Abs(f-fPrev) <= s.opts.Tol*math.Max(math.Abs(fPrev), tiny)
}

func (s *solver) entry(lambda float64, iter int, converged bool) core.Entry {
	x := make([]float64, s.cols)
	copy(x, s.x)
	return core.Entry{
		Lambda:     lambda,
		X:          x,
		RSS:        s.rss(s.hx),
		Support:    core.CountSupport(x),
		Iterations: iter,
		Converged:  converged,
	}
}
