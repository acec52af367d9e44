package pipeline

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cwbudde/algo-spfm/spfm/core"
)

// Status labels of the voxel counter.
const (
	StatusOK             = "ok"
	StatusDebiasFallback = "debias_fallback"
	StatusConfiguration  = "configuration_error"
	StatusNumerical      = "numerical_error"
	StatusSelection      = "selection_error"
	StatusFailed         = "failed"
)

// Metrics collects per-voxel solver statistics.
type Metrics struct {
	Voxels     *prometheus.CounterVec
	Iterations prometheus.Histogram
	Duration   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Voxels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spfm",
			Name:      "voxels_total",
			Help:      "Voxels processed, by outcome.",
		}, []string{"status"}),
		Iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spfm",
			Name:      "solver_iterations",
			Help:      "Solver iterations (FISTA) or steps (LARS) per voxel.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spfm",
			Name:      "voxel_duration_seconds",
			Help:      "Wall time of one voxel estimate.",
			Buckets:   prometheus.ExponentialBuckets(1e-4, 4, 12),
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Voxels, m.Iterations, m.Duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(r Record) {
	if m == nil {
		return
	}
	m.Voxels.WithLabelValues(r.Status()).Inc()
	m.Duration.Observe(r.Duration.Seconds())
	if r.Err == nil {
		m.Iterations.Observe(float64(r.Result.Diagnostics.Iterations))
	}
}

func status(err error) string {
	switch {
	case errors.Is(err, core.ErrConfiguration):
		return StatusConfiguration
	case errors.Is(err, core.ErrNumerical):
		return StatusNumerical
	case errors.Is(err, core.ErrSelection):
		return StatusSelection
	default:
		return StatusFailed
	}
}
