package core

import "math"

// Entry is one point of a regularization path.
type Entry struct {
	// Lambda is the regularization strength the entry was computed at.
	Lambda float64

	// X is the sparse estimate in solver (innovation or spike) space.
	X []float64

	// RSS is the residual sum of squares ||y - Hx||^2.
	RSS float64

	// Support is the number of non-zero entries of X.
	Support int

	// Iterations is the solver iteration count spent on this entry.
	Iterations int

	// Converged reports whether the solver met its tolerance.
	Converged bool
}

// RMS returns the root-mean-square residual over n samples.
func (e Entry) RMS(n int) float64 {
	if n <= 0 {
		return 0
	}
	return math.Sqrt(e.RSS / float64(n))
}

// Path is an ordered sequence of entries, by decreasing lambda.
type Path []Entry

// Empty reports whether every entry of the path has an empty support.
func (p Path) Empty() bool {
	for _, e := range p {
		if e.Support > 0 {
			return false
		}
	}
	return true
}

// Choice is the outcome of criterion selection on a path.
type Choice struct {
	Index  int
	Lambda float64
}

// Diagnostics summarizes one voxel's solve for the result writer.
type Diagnostics struct {
	Solver         string    `json:"solver"`
	Iterations     int       `json:"iterations"`
	Lambda         float64   `json:"lambda"`
	Support        int       `json:"support"`
	Converged      bool      `json:"converged"`
	PathLength     int       `json:"path_length"`
	Selected       int       `json:"selected"`
	Noise          float64   `json:"noise"`
	Debiased       bool      `json:"debiased"`
	DebiasFallback bool      `json:"debias_fallback"`
	Objective      []float64 `json:"objective,omitempty"`
}
