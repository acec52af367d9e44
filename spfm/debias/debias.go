// Package debias removes the L1 shrinkage of a sparse estimate by refitting
// its non-zero amplitudes with ordinary least squares on the same support.
package debias

import (
	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-spfm/internal/linalg"
	"github.com/cwbudde/algo-spfm/spfm/core"
)

// MaxCond is the largest condition number of H_S accepted for the refit.
const MaxCond = 1e12

// Result is a debiased estimate.
type Result struct {
	// X has the refit amplitudes on Support and zeros elsewhere. On fallback
	// it is a copy of the input estimate.
	X []float64

	// Support lists the indices that were refit.
	Support []int

	// Fallback reports that H_S was rank deficient and X is the shrunk input.
	Fallback bool
}

// Refit solves min ||y - H_S b|| over the support S of x. When H_S is rank
// deficient it returns an error wrapping core.ErrNumerical together with a
// fallback Result holding x unchanged.
func Refit(op linalg.Operator, y, x []float64) (Result, error) {
	rows, cols := op.Dims()
	if len(y) != rows {
		return Result{}, core.Configf("debias: series length %d does not match operator rows %d", len(y), rows)
	}
	if len(x) != cols {
		return Result{}, core.Configf("debias: estimate length %d does not match operator columns %d", len(x), cols)
	}

	support := core.Support(x)
	out := make([]float64, cols)
	if len(support) == 0 {
		return Result{X: out}, nil
	}

	fallback := func(reason string, args ...any) (Result, error) {
		copy(out, x)
		return Result{X: out, Support: support, Fallback: true}, core.Numericalf("debias: "+reason, args...)
	}

	if len(support) > rows {
		return fallback("support of %d exceeds %d samples", len(support), rows)
	}

	hs := linalg.Columns(op, support)
	if cond, ok := condition(hs); !ok || cond > MaxCond {
		return fallback("H_S is rank deficient (condition %.3g)", cond)
	}

	var qr mat.QR
	qr.Factorize(hs)
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, mat.NewVecDense(rows, append([]float64(nil), y...))); err != nil {
		return fallback("least squares: %v", err)
	}
	for i, idx := range support {
		out[idx] = beta.AtVec(i)
	}
	if !core.AllFinite(out) {
		return fallback("least squares produced non-finite amplitudes")
	}
	return Result{X: out, Support: support}, nil
}

// condition returns the 2-norm condition number of a.
func condition(a *mat.Dense) (float64, bool) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDNone); !ok {
		return 0, false
	}
	s := svd.Values(nil)
	if len(s) == 0 || s[len(s)-1] == 0 {
		return 0, false
	}
	return s[0] / s[len(s)-1], true
}
