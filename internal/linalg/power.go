package linalg

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// PowerIteration estimates the largest eigenvalue of H^T H, i.e. ||H||_2^2,
// which is the Lipschitz constant of the least-squares gradient.
func PowerIteration(op Operator, maxIter int, tol float64) float64 {
	r, c := op.Dims()
	if r == 0 || c == 0 {
		return 0
	}
	if maxIter <= 0 {
		maxIter = 200
	}
	if tol <= 0 {
		tol = 1e-9
	}

	v := make([]float64, c)
	for i := range v {
		v[i] = 1 + 0.1*float64(i%7)
	}
	floats.Scale(1/floats.Norm(v, 2), v)

	hv := make([]float64, r)
	w := make([]float64, c)
	lambda := 0.0
	for range maxIter {
		op.Apply(hv, v)
		op.ApplyT(w, hv)
		next := floats.Norm(w, 2)
		if next == 0 {
			return 0
		}
		floats.ScaleTo(v, 1/next, w)
		if math.Abs(next-lambda) <= tol*next {
			return next
		}
		lambda = next
	}
	return lambda
}
