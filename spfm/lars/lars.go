package lars

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-spfm/internal/linalg"
	"github.com/cwbudde/algo-spfm/spfm/core"
	"github.com/cwbudde/algo-spfm/spfm/criterion"
)

// maxCond is the largest active-Gram condition number accepted without the
// ridge fallback.
const maxCond = 1e12

// Options configures the path computation.
type Options struct {
	// MaxSteps bounds the number of LARS steps. Zero means the number of
	// operator columns.
	MaxSteps int

	// Eps ends the path once the maximal correlation drops to or below Eps
	// times its initial value.
	Eps float64

	// Ridge is added to the active Gram diagonal, relative to its mean
	// diagonal, when the plain factorization fails.
	Ridge float64

	// Stop, when set, ends the path early once the selected entry has not
	// changed for Patience steps.
	Stop     criterion.Selector
	Patience int
}

// DefaultOptions returns the default path options.
func DefaultOptions() Options {
	return Options{
		Eps:      1e-12,
		Ridge:    1e-6,
		Patience: 5,
	}
}

// MaxStepsFor converts a path length factor into a step bound for n samples.
func MaxStepsFor(factor float64, n int) int {
	return max(1, int(math.Ceil(factor*float64(n))))
}

// Path computes the lasso path of (op, y). The first entry is the empty
// solution at lambda = ||H^T y||_inf.
func Path(op linalg.Operator, y []float64, opts Options) (core.Path, error) {
	p, _, err := trace(op, y, opts)
	return p, err
}

// Select computes the path and returns the entry chosen by sel.
func Select(op linalg.Operator, y []float64, sel criterion.Selector, opts Options) (core.Entry, core.Diagnostics, error) {
	if sel == nil {
		return core.Entry{}, core.Diagnostics{}, core.Configf("lars: nil selector")
	}
	if opts.Stop == nil {
		switch sel.(type) {
		case criterion.BIC, criterion.AIC:
			opts.Stop = sel
		}
	}
	p, done, err := trace(op, y, opts)
	if err != nil {
		return core.Entry{}, core.Diagnostics{}, err
	}
	rows, _ := op.Dims()
	c, err := sel.Select(p, rows)
	if err != nil {
		return core.Entry{}, core.Diagnostics{}, err
	}
	e := p[c.Index]
	return e, core.Diagnostics{
		Solver:     "lars",
		Iterations: len(p) - 1,
		Lambda:     e.Lambda,
		Support:    e.Support,
		Converged:  done,
		PathLength: len(p),
		Selected:   c.Index,
	}, nil
}

type state struct {
	op      linalg.Operator
	y       []float64
	gram    *mat.SymDense
	xty     []float64
	beta    []float64
	corr    []float64
	active  []int
	inSet   []bool
	ridge   float64
	resid   []float64
	rows    int
	cols    int
	dropped int
}

// trace runs LARS and reports whether the path ended on its own (correlation
// exhausted, saturated active set or early stop) rather than at MaxSteps.
func trace(op linalg.Operator, y []float64, opts Options) (core.Path, bool, error) {
	rows, cols := op.Dims()
	if rows <= 0 || cols <= 0 {
		return nil, false, core.Configf("lars: operator has empty shape %dx%d", rows, cols)
	}
	if len(y) != rows {
		return nil, false, core.Configf("lars: series length %d does not match operator rows %d", len(y), rows)
	}
	if opts.MaxSteps < 0 || opts.Eps < 0 || opts.Ridge < 0 || opts.Patience < 0 {
		return nil, false, core.Configf("lars: options must be non-negative")
	}
	if !core.AllFinite(y) {
		return nil, false, core.Numericalf("lars: series contains non-finite values")
	}
	if !linalg.Finite(op) {
		return nil, false, core.Numericalf("lars: operator contains non-finite values")
	}

	maxSteps := opts.MaxSteps
	if maxSteps == 0 {
		maxSteps = cols
	}
	patience := opts.Patience
	if patience == 0 {
		patience = 1
	}

	s := &state{
		op:      op,
		y:       y,
		gram:    linalg.Gram(op),
		xty:     make([]float64, cols),
		beta:    make([]float64, cols),
		corr:    make([]float64, cols),
		inSet:   make([]bool, cols),
		ridge:   opts.Ridge,
		resid:   make([]float64, rows),
		rows:    rows,
		cols:    cols,
		dropped: -1,
	}
	op.ApplyT(s.xty, y)
	copy(s.corr, s.xty)

	bigC := linalg.InfNorm(s.corr)
	path := core.Path{s.entry(bigC, 0)}
	if bigC == 0 {
		return path, true, nil
	}
	floor := opts.Eps * bigC

	next := floats.MaxIdx(absCopy(s.corr))
	for step := 1; step <= maxSteps; step++ {
		if next >= 0 && !s.inSet[next] {
			s.active = append(s.active, next)
			s.inSet[next] = true
		}

		d, aa, err := s.direction()
		if err != nil {
			return path, false, err
		}

		// Step length until an inactive predictor ties the active correlation.
		gamma := bigC / aa
		enter := -1
		if len(s.active) < min(rows, cols) {
			ad := s.gramTimes(d)
			for j := range cols {
				if s.inSet[j] || j == s.dropped {
					continue
				}
				for _, g := range []float64{
					(bigC - s.corr[j]) / (aa - ad[j]),
					(bigC + s.corr[j]) / (aa + ad[j]),
				} {
					if g > 1e-15*gamma && g < gamma {
						gamma, enter = g, j
					}
				}
			}
		}

		// Lasso modification: stop at the first zero crossing.
		drop := -1
		for i, k := range s.active {
			if d[i] == 0 {
				continue
			}
			if g := -s.beta[k] / d[i]; g > 1e-15*gamma && g < gamma {
				gamma, drop, enter = g, i, -1
			}
		}

		for i, k := range s.active {
			s.beta[k] += gamma * d[i]
		}
		s.dropped = -1
		if drop >= 0 {
			k := s.active[drop]
			s.beta[k] = 0
			s.inSet[k] = false
			s.active = append(s.active[:drop], s.active[drop+1:]...)
			s.dropped = k
		}

		s.updateCorrelation()
		bigC = linalg.InfNorm(s.corr)
		path = append(path, s.entry(bigC, step))

		if bigC <= floor || (enter < 0 && drop < 0) {
			return path, true, nil
		}
		if opts.Stop != nil && stopEarly(opts.Stop, path, rows, patience) {
			return path, true, nil
		}
		next = enter
	}
	return path, false, nil
}

// direction returns the equiangular coefficient direction on the active set
// and its normalization A = (s^T G_A^-1 s)^(-1/2).
func (s *state) direction() ([]float64, float64, error) {
	k := len(s.active)
	signs := mat.NewVecDense(k, nil)
	ga := mat.NewSymDense(k, nil)
	for i, a := range s.active {
		signs.SetVec(i, sign(s.corr[a]))
		for j := i; j < k; j++ {
			ga.SetSym(i, j, s.gram.At(a, s.active[j]))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(ga); !ok || chol.Cond() > maxCond {
		if s.ridge <= 0 || !(s.gramMean() > 0) {
			return nil, 0, core.Numericalf("lars: active set of size %d is rank deficient", k)
		}
		mean := s.gramMean()
		for i := range k {
			ga.SetSym(i, i, ga.At(i, i)+s.ridge*mean)
		}
		if ok := chol.Factorize(ga); !ok || chol.Cond() > maxCond {
			return nil, 0, core.Numericalf("lars: active set of size %d is rank deficient after ridge fallback", k)
		}
	}

	var w mat.VecDense
	if err := chol.SolveVecTo(&w, signs); err != nil {
		return nil, 0, core.Numericalf("lars: direction solve: %v", err)
	}
	q := mat.Dot(signs, &w)
	if !(q > 0) {
		return nil, 0, core.Numericalf("lars: degenerate equiangular direction")
	}
	aa := 1 / math.Sqrt(q)
	d := make([]float64, k)
	for i := range d {
		d[i] = aa * w.AtVec(i)
	}
	return d, aa, nil
}

// gramMean returns the mean diagonal of the active Gram matrix.
func (s *state) gramMean() float64 {
	mean := 0.0
	for _, a := range s.active {
		mean += s.gram.At(a, a)
	}
	return mean / float64(len(s.active))
}

// gramTimes returns G[:, A] * d.
func (s *state) gramTimes(d []float64) []float64 {
	out := make([]float64, s.cols)
	for j := range out {
		v := 0.0
		for i, a := range s.active {
			v += s.gram.At(j, a) * d[i]
		}
		out[j] = v
	}
	return out
}

// updateCorrelation recomputes c = H^T y - G beta.
func (s *state) updateCorrelation() {
	copy(s.corr, s.xty)
	for j := range s.corr {
		v := 0.0
		for _, a := range s.active {
			v += s.gram.At(j, a) * s.beta[a]
		}
		s.corr[j] -= v
	}
}

func (s *state) entry(lambda float64, step int) core.Entry {
	x := make([]float64, s.cols)
	copy(x, s.beta)
	return core.Entry{
		Lambda:     lambda,
		X:          x,
		RSS:        linalg.Residual(s.op, s.resid, s.y, x),
		Support:    core.CountSupport(x),
		Iterations: step,
		Converged:  true,
	}
}

// stopEarly reports whether the selected entry lies patience or more steps
// behind the end of the path.
func stopEarly(sel criterion.Selector, path core.Path, n, patience int) bool {
	c, err := sel.Select(path, n)
	if err != nil {
		return false
	}
	return len(path)-1-c.Index >= patience
}

func absCopy(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Abs(v)
	}
	return out
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
