package core

import "math"

const defaultEpsilon = 1e-12

// SupportTolerance is the magnitude below which a coefficient counts as zero.
const SupportTolerance = 10 * 2.220446049250313e-16

// NearlyEqual reports whether a and b are equal within eps.
func NearlyEqual(a, b, eps float64) bool {
	if eps <= 0 {
		eps = defaultEpsilon
	}

	diff := math.Abs(a - b)
	if diff <= eps {
		return true
	}

	largest := math.Max(math.Abs(a), math.Abs(b))
	if largest == 0 {
		return diff <= eps
	}

	return diff/largest <= eps
}

// AllFinite reports whether x contains neither NaN nor Inf.
func AllFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Support returns the indices of x whose magnitude exceeds SupportTolerance.
func Support(x []float64) []int {
	var idx []int
	for i, v := range x {
		if math.Abs(v) > SupportTolerance {
			idx = append(idx, i)
		}
	}
	return idx
}

// CountSupport returns len(Support(x)) without allocating.
func CountSupport(x []float64) int {
	n := 0
	for _, v := range x {
		if math.Abs(v) > SupportTolerance {
			n++
		}
	}
	return n
}

// Zero sets all values in buf to 0.
func Zero(buf []float64) {
	for i := range buf {
		buf[i] = 0
	}
}
