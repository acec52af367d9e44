package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cwbudde/algo-spfm/internal/testutil"
	"github.com/cwbudde/algo-spfm/spfm/core"
	"github.com/cwbudde/algo-spfm/spfm/estimate"
	"github.com/cwbudde/algo-spfm/spfm/hrf"
)

// fakeEstimator fails voxels whose first sample is negative.
type fakeEstimator struct {
	calls atomic.Int64
}

func (f *fakeEstimator) Estimate(y []float64) (estimate.Result, error) {
	f.calls.Add(1)
	if y[0] < 0 {
		return estimate.Result{}, core.Numericalf("bad voxel")
	}
	res := estimate.Result{Coef: []float64{y[0]}, Lambda: y[0]}
	res.Diagnostics.Iterations = 3
	res.Diagnostics.DebiasFallback = y[0] == 99
	return res, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunIsolatesFailures(t *testing.T) {
	voxels := [][]float64{{1}, {-1}, {2}, {99}, {-5}, {3}}
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}

	got := make(map[int]Record)
	sum, err := Run(context.Background(), Config{Workers: 3, Logger: quietLogger(), Metrics: m},
		&fakeEstimator{}, voxels, func(r Record) error {
			got[r.Voxel] = r
			return nil
		})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Processed != len(voxels) || sum.Failed != 2 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(got) != len(voxels) {
		t.Fatalf("visited %d voxels, want %d", len(got), len(voxels))
	}
	for v, r := range got {
		failed := voxels[v][0] < 0
		if failed != (r.Err != nil) {
			t.Fatalf("voxel %d: err = %v", v, r.Err)
		}
		if failed && !errors.Is(r.Err, core.ErrNumerical) {
			t.Fatalf("voxel %d: err = %v, want ErrNumerical", v, r.Err)
		}
		if !failed && r.Result.Lambda != voxels[v][0] {
			t.Fatalf("voxel %d: result of another voxel (%v)", v, r.Result.Lambda)
		}
	}

	if v := promtest.ToFloat64(m.Voxels.WithLabelValues(StatusOK)); v != 3 {
		t.Fatalf("ok counter = %v, want 3", v)
	}
	if v := promtest.ToFloat64(m.Voxels.WithLabelValues(StatusNumerical)); v != 2 {
		t.Fatalf("numerical counter = %v, want 2", v)
	}
	if v := promtest.ToFloat64(m.Voxels.WithLabelValues(StatusDebiasFallback)); v != 1 {
		t.Fatalf("fallback counter = %v, want 1", v)
	}
	if n := promtest.CollectAndCount(m.Iterations); n != 1 {
		t.Fatalf("iterations collectors = %d", n)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	voxels := make([][]float64, 100)
	for i := range voxels {
		voxels[i] = []float64{1}
	}
	est := &fakeEstimator{}
	sum, err := Run(ctx, Config{Workers: 2, Logger: quietLogger()}, est, voxels, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if sum.Processed == len(voxels) {
		t.Fatal("cancelled run processed every voxel")
	}
}

func TestRunVisitorErrorStops(t *testing.T) {
	voxels := make([][]float64, 200)
	for i := range voxels {
		voxels[i] = []float64{1}
	}
	stop := errors.New("disk full")
	calls := 0
	_, err := Run(context.Background(), Config{Workers: 2, Logger: quietLogger()}, &fakeEstimator{}, voxels,
		func(Record) error {
			calls++
			return stop
		})
	if !errors.Is(err, stop) {
		t.Fatalf("got %v, want visitor error", err)
	}
	if calls != 1 {
		t.Fatalf("visitor called %d times after failing", calls)
	}
}

func TestRunNilEstimator(t *testing.T) {
	if _, err := Run(context.Background(), Config{}, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil estimator")
	}
}

func TestRunWithEstimator(t *testing.T) {
	kernel, err := hrf.SPM(2)
	if err != nil {
		t.Fatal(err)
	}
	op, err := hrf.Build(kernel, 100)
	if err != nil {
		t.Fatal(err)
	}
	est, err := estimate.New(op, estimate.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	voxels := make([][]float64, 6)
	for v := range voxels {
		y := make([]float64, 100)
		op.Apply(y, testutil.Spikes(100, []int{20 + 10*v}, []float64{4}))
		voxels[v] = testutil.Add(y, testutil.GaussianNoise(int64(v), 0.05, 100))
	}
	peaks := make([]int, len(voxels))
	_, err = Run(context.Background(), Config{Workers: 4, Logger: quietLogger()}, est, voxels, func(r Record) error {
		if r.Err != nil {
			return r.Err
		}
		peaks[r.Voxel] = testutil.ArgMaxAbs(r.Result.Coef)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for v, p := range peaks {
		if want := 20 + 10*v; p < want-1 || p > want+1 {
			t.Fatalf("voxel %d: peak at %d, want %d", v, p, want)
		}
	}
}

func TestNewMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg); err != nil {
		t.Fatal(err)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}
