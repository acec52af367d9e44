// Package linalg is the small linear-algebra layer the SPFM solvers are
// written against. Solvers only see the [Operator] interface, so the dense
// Toeplitz matrix and the lazy FFT convolution are interchangeable.
package linalg

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Operator is a linear map from solver space (Cols) to signal space (Rows).
// Implementations must be safe for concurrent use once constructed.
type Operator interface {
	// Dims returns the signal-space and solver-space lengths.
	Dims() (rows, cols int)

	// Apply writes H*x into dst. len(x) == cols, len(dst) == rows.
	Apply(dst, x []float64)

	// ApplyT writes H^T*y into dst. len(y) == rows, len(dst) == cols.
	ApplyT(dst, y []float64)
}

// finiteChecker is implemented by operators that can validate their own entries.
type finiteChecker interface {
	Finite() bool
}

// Finite reports whether op has only finite entries. Operators that cannot
// tell are assumed finite.
func Finite(op Operator) bool {
	if fc, ok := op.(finiteChecker); ok {
		return fc.Finite()
	}
	return true
}

// Dense adapts a gonum matrix to Operator.
type Dense struct {
	m *mat.Dense
}

// NewDense wraps m. The matrix must not be modified afterwards.
func NewDense(m *mat.Dense) *Dense {
	return &Dense{m: m}
}

// Dims implements Operator.
func (d *Dense) Dims() (int, int) {
	return d.m.Dims()
}

// At returns the element at row i, column j.
func (d *Dense) At(i, j int) float64 {
	return d.m.At(i, j)
}

// Apply implements Operator.
func (d *Dense) Apply(dst, x []float64) {
	r, _ := d.m.Dims()
	out := mat.NewVecDense(r, dst)
	out.MulVec(d.m, mat.NewVecDense(len(x), x))
}

// ApplyT implements Operator.
func (d *Dense) ApplyT(dst, y []float64) {
	_, c := d.m.Dims()
	out := mat.NewVecDense(c, dst)
	out.MulVec(d.m.T(), mat.NewVecDense(len(y), y))
}

// Finite reports whether every matrix element is finite.
func (d *Dense) Finite() bool {
	r, c := d.m.Dims()
	for i := range r {
		for j := range c {
			v := d.m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// ToDense materializes op column by column.
func ToDense(op Operator) *mat.Dense {
	if d, ok := op.(*Dense); ok {
		return mat.DenseCopyOf(d.m)
	}
	r, c := op.Dims()
	out := mat.NewDense(r, c, nil)
	e := make([]float64, c)
	col := make([]float64, r)
	for j := range c {
		e[j] = 1
		op.Apply(col, e)
		out.SetCol(j, col)
		e[j] = 0
	}
	return out
}

// Columns returns the sub-matrix of op restricted to the given columns.
func Columns(op Operator, idx []int) *mat.Dense {
	r, c := op.Dims()
	out := mat.NewDense(r, len(idx), nil)
	e := make([]float64, c)
	col := make([]float64, r)
	for k, j := range idx {
		e[j] = 1
		op.Apply(col, e)
		out.SetCol(k, col)
		e[j] = 0
	}
	return out
}

// Gram returns H^T H.
func Gram(op Operator) *mat.SymDense {
	h := ToDense(op)
	_, c := h.Dims()
	var g mat.Dense
	g.Mul(h.T(), h)
	sym := mat.NewSymDense(c, nil)
	for i := range c {
		for j := i; j < c; j++ {
			sym.SetSym(i, j, g.At(i, j))
		}
	}
	return sym
}
