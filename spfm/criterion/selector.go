package criterion

import (
	"math"
	"strings"

	"github.com/cwbudde/algo-spfm/spfm/core"
)

// rssFloor keeps log(RSS/n) finite for exact fits.
const rssFloor = 1e-300

// Selector picks one entry of a regularization path for a series of n samples.
type Selector interface {
	Select(path core.Path, n int) (core.Choice, error)
	Name() string
}

// Factor selects the largest lambda whose rms residual lies within
// Value*sigma of the smallest rms residual on the path. Sigma is Noise when
// positive and the smallest rms residual otherwise.
type Factor struct {
	Value float64
	Noise float64
}

// BIC minimizes n*log(RSS/n) + k*log(n).
type BIC struct{}

// AIC minimizes n*log(RSS/n) + 2k.
type AIC struct{}

// Knee picks the entry furthest below the chord of the normalized
// (support, RSS) curve.
type Knee struct{}

// Parse returns the selector registered under name.
func Parse(name string, factor, noise float64) (Selector, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "factor":
		if !(factor > 0) {
			return nil, core.Configf("criterion: factor must be positive, got %v", factor)
		}
		return Factor{Value: factor, Noise: noise}, nil
	case "bic":
		return BIC{}, nil
	case "aic":
		return AIC{}, nil
	case "knee":
		return Knee{}, nil
	default:
		return nil, core.Configf("criterion: unknown path criterion %q", name)
	}
}

func (Factor) Name() string { return "factor" }
func (BIC) Name() string    { return "bic" }
func (AIC) Name() string    { return "aic" }
func (Knee) Name() string   { return "knee" }

func validate(path core.Path, n int) error {
	if len(path) == 0 {
		return core.Selectionf("criterion: empty path")
	}
	if n <= 0 {
		return core.Configf("criterion: series length must be positive, got %d", n)
	}
	if path.Empty() {
		return core.Selectionf("criterion: every path entry has empty support")
	}
	return nil
}

func choice(path core.Path, i int) core.Choice {
	return core.Choice{Index: i, Lambda: path[i].Lambda}
}

// Select implements Selector.
func (f Factor) Select(path core.Path, n int) (core.Choice, error) {
	if err := validate(path, n); err != nil {
		return core.Choice{}, err
	}
	if !(f.Value > 0) {
		return core.Choice{}, core.Configf("criterion: factor must be positive, got %v", f.Value)
	}

	rmin := math.Inf(1)
	for _, e := range path {
		rmin = math.Min(rmin, e.RMS(n))
	}
	sigma := f.Noise
	if !(sigma > 0) {
		sigma = rmin
	}
	bound := f.Value * sigma

	for i, e := range path {
		if e.Support == 0 {
			continue
		}
		if e.RMS(n)-rmin <= bound {
			return choice(path, i), nil
		}
	}

	// Only reached when the minimum sits on an empty entry; fall back to the
	// best non-empty one.
	best := -1
	for i, e := range path {
		if e.Support > 0 && (best < 0 || e.RSS < path[best].RSS) {
			best = i
		}
	}
	return choice(path, best), nil
}

// Select implements Selector.
func (BIC) Select(path core.Path, n int) (core.Choice, error) {
	return selectIC(path, n, math.Log(float64(n)))
}

// Select implements Selector.
func (AIC) Select(path core.Path, n int) (core.Choice, error) {
	return selectIC(path, n, 2)
}

// icTieTolerance is the relative difference below which two criterion
// values count as tied.
const icTieTolerance = 1e-12

// InformationCriterion returns n*log(RSS/n) + penalty*k.
func InformationCriterion(rss float64, k, n int, penalty float64) float64 {
	nf := float64(n)
	rss = math.Max(rss, nf*rssFloor)
	return nf*math.Log(rss/nf) + penalty*float64(k)
}

func selectIC(path core.Path, n int, penalty float64) (core.Choice, error) {
	if err := validate(path, n); err != nil {
		return core.Choice{}, err
	}
	best := -1
	bestScore := math.Inf(1)
	for i, e := range path {
		if e.Support == 0 {
			continue
		}
		score := InformationCriterion(e.RSS, e.Support, n, penalty)
		switch {
		case best < 0:
			best, bestScore = i, score
		case core.NearlyEqual(score, bestScore, icTieTolerance):
			if e.Support < path[best].Support {
				best, bestScore = i, score
			}
		case score < bestScore:
			best, bestScore = i, score
		}
	}
	return choice(path, best), nil
}

// Select implements Selector.
func (Knee) Select(path core.Path, n int) (core.Choice, error) {
	if err := validate(path, n); err != nil {
		return core.Choice{}, err
	}

	var idx []int
	for i, e := range path {
		if e.Support > 0 {
			idx = append(idx, i)
		}
	}
	if len(idx) < 3 {
		return choice(path, idx[0]), nil
	}

	kmin, kmax := math.Inf(1), math.Inf(-1)
	rmin, rmax := math.Inf(1), math.Inf(-1)
	for _, i := range idx {
		k := float64(path[i].Support)
		kmin, kmax = math.Min(kmin, k), math.Max(kmax, k)
		rmin, rmax = math.Min(rmin, path[i].RSS), math.Max(rmax, path[i].RSS)
	}
	norm := func(v, lo, hi float64) float64 {
		if hi-lo <= 0 {
			return 0
		}
		return (v - lo) / (hi - lo)
	}

	first, last := path[idx[0]], path[idx[len(idx)-1]]
	x0, y0 := norm(float64(first.Support), kmin, kmax), norm(first.RSS, rmin, rmax)
	x1, y1 := norm(float64(last.Support), kmin, kmax), norm(last.RSS, rmin, rmax)
	dx, dy := x1-x0, y1-y0
	length := math.Hypot(dx, dy)
	if length == 0 {
		return choice(path, idx[0]), nil
	}

	best, bestDist := idx[0], 0.0
	for _, i := range idx[1 : len(idx)-1] {
		x := norm(float64(path[i].Support), kmin, kmax)
		y := norm(path[i].RSS, rmin, rmax)
		// Positive when the point lies below the chord.
		dist := -(dx*(y-y0) - dy*(x-x0)) / length
		if dx < 0 {
			dist = -dist
		}
		if dist > bestDist {
			best, bestDist = i, dist
		}
	}
	return choice(path, best), nil
}
