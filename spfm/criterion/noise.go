package criterion

import (
	"math"
	"sort"

	"github.com/cwbudde/algo-spfm/internal/dwt"
	"github.com/cwbudde/algo-spfm/spfm/core"
)

// madScale converts the median absolute deviation of Gaussian samples into
// their standard deviation.
const madScale = 0.6745

// NoiseEstimate returns the robust noise standard deviation of y: the median
// absolute finest-scale db3 detail coefficient divided by 0.6745.
func NoiseEstimate(y []float64) (float64, error) {
	if len(y) == 0 {
		return 0, core.Configf("criterion: noise estimate of empty series")
	}
	if !core.AllFinite(y) {
		return 0, core.Numericalf("criterion: series contains non-finite values")
	}
	d, err := dwt.Detail(y)
	if err != nil {
		return 0, core.Configf("criterion: %v", err)
	}
	for i, v := range d {
		d[i] = math.Abs(v)
	}
	return median(d) / madScale, nil
}

// median sorts x in place and averages the two middle values for even lengths.
func median(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sort.Float64s(x)
	mid := len(x) / 2
	if len(x)%2 == 1 {
		return x[mid]
	}
	return 0.5 * (x[mid-1] + x[mid])
}
