package linalg

import (
	"math"

	"github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/floats"
)

// SoftThreshold writes sign(src)*max(|src|-thr, 0) into dst.
func SoftThreshold(dst, src []float64, thr float64) {
	for i, v := range src {
		switch {
		case v > thr:
			dst[i] = v - thr
		case v < -thr:
			dst[i] = v + thr
		default:
			dst[i] = 0
		}
	}
}

// GroupSoftThreshold shrinks consecutive groups of the given size towards
// zero by thr in Euclidean norm. The last group may be shorter.
func GroupSoftThreshold(dst, src []float64, size int, thr float64) {
	if size <= 1 {
		SoftThreshold(dst, src, thr)
		return
	}
	sq := make([]float64, size)
	for start := 0; start < len(src); start += size {
		end := min(start+size, len(src))
		g := src[start:end]
		s := sq[:len(g)]
		vecmath.MulBlock(s, g, g)
		norm := math.Sqrt(floats.Sum(s))
		scale := 0.0
		if norm > thr {
			scale = 1 - thr/norm
		}
		floats.ScaleTo(dst[start:end], scale, g)
	}
}

// SparseGroupThreshold is the proximal operator of
// lambda*(rho*||x||_1 + (1-rho)*sum_g ||x_g||_2).
func SparseGroupThreshold(dst, src []float64, size int, lambda, rho float64) {
	SoftThreshold(dst, src, lambda*rho)
	if rho >= 1 || size <= 1 {
		return
	}
	GroupSoftThreshold(dst, dst, size, lambda*(1-rho))
}

// L1 returns sum |x_i|.
func L1(x []float64) float64 {
	return floats.Norm(x, 1)
}

// L2 returns the Euclidean norm of x.
func L2(x []float64) float64 {
	return floats.Norm(x, 2)
}

// InfNorm returns max |x_i|.
func InfNorm(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Norm(x, math.Inf(1))
}

// GroupNorm returns rho*||x||_1 + (1-rho)*sum_g ||x_g||_2.
func GroupNorm(x []float64, size int, rho float64) float64 {
	if size <= 1 || rho >= 1 {
		return L1(x)
	}
	total := 0.0
	for start := 0; start < len(x); start += size {
		end := min(start+size, len(x))
		total += L2(x[start:end])
	}
	return rho*L1(x) + (1-rho)*total
}

// Residual writes y - H*x into dst and returns ||dst||^2.
func Residual(op Operator, dst, y, x []float64) float64 {
	op.Apply(dst, x)
	floats.SubTo(dst, y, dst)
	return floats.Dot(dst, dst)
}
