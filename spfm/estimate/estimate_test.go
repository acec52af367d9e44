package estimate

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-spfm/internal/linalg"
	"github.com/cwbudde/algo-spfm/internal/testutil"
	"github.com/cwbudde/algo-spfm/spfm/core"
	"github.com/cwbudde/algo-spfm/spfm/hrf"
)

func build(t *testing.T, tr float64, n int, opts ...hrf.Option) *hrf.Operator {
	t.Helper()
	kernel, err := hrf.SPM(tr, hrf.WithLength(30))
	if err != nil {
		t.Fatal(err)
	}
	op, err := hrf.Build(kernel, n, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return op
}

func series(op linalg.Operator, x []float64) []float64 {
	rows, _ := op.Dims()
	y := make([]float64, rows)
	op.Apply(y, x)
	return y
}

// Single spike of amplitude 5 at index 50 in a noiseless series of 200
// samples, HRF of 30 samples.
func TestSingleSpikeFactorScenario(t *testing.T) {
	op := build(t, 1, 200)
	y := series(op, testutil.Spikes(200, []int{50}, []float64{5}))

	cfg := DefaultConfig()
	cfg.Criterion = "factor"
	cfg.Factor = 10
	cfg.Debias = true
	est, err := New(op, cfg)
	if err != nil {
		t.Fatal(err)
	}
	res, err := est.Estimate(y)
	if err != nil {
		t.Fatal(err)
	}

	nz := testutil.Significant(res.Coef, 1e-6/5)
	if len(nz) != 1 {
		t.Fatalf("non-zero entries at %v, want exactly one", nz)
	}
	if nz[0] < 49 || nz[0] > 51 {
		t.Fatalf("spike at %d, want 50", nz[0])
	}
	if amp := res.Coef[nz[0]]; math.Abs(amp-5) > 0.05 {
		t.Fatalf("amplitude %v, want 5 within 1%%", amp)
	}
	if !res.Diagnostics.Debiased || res.Diagnostics.Solver != "fista" {
		t.Fatalf("diagnostics = %+v", res.Diagnostics)
	}
	if res.Diagnostics.PathLength != cfg.NLambdas {
		t.Fatalf("PathLength = %d, want %d", res.Diagnostics.PathLength, cfg.NLambdas)
	}
}

// The SPM kernel starts with one zero sample, which the operator drops. A
// series convolved with the full kernel is explained one sample later.
func TestUntrimmedKernelOnsetShift(t *testing.T) {
	const n = 200
	kernel, err := hrf.SPM(1, hrf.WithLength(30))
	if err != nil {
		t.Fatal(err)
	}
	if kernel[0] != 0 {
		t.Fatalf("kernel[0] = %v, want 0", kernel[0])
	}
	y := make([]float64, n)
	for d, v := range kernel {
		if 50+d < n {
			y[50+d] = 5 * v
		}
	}

	op := build(t, 1, n)
	cfg := DefaultConfig()
	cfg.Criterion = "factor"
	cfg.Factor = 10
	est, err := New(op, cfg)
	if err != nil {
		t.Fatal(err)
	}
	res, err := est.Estimate(y)
	if err != nil {
		t.Fatal(err)
	}
	nz := testutil.Significant(res.Coef, 1e-6/5)
	if len(nz) != 1 || nz[0] != 51 {
		t.Fatalf("non-zero entries at %v, want [51]", nz)
	}
	if amp := res.Coef[51]; math.Abs(amp-5) > 0.05 {
		t.Fatalf("amplitude %v, want 5", amp)
	}
}

func TestSingleSpikeLARSAgreesWithFISTA(t *testing.T) {
	op := build(t, 2, 200)
	y := testutil.Add(series(op, testutil.Spikes(200, []int{50}, []float64{5})),
		testutil.GaussianNoise(12, 0.01, 200))

	peaks := map[string]int{}
	for _, name := range []string{"bic", "factor"} {
		cfg := DefaultConfig()
		cfg.Criterion = name
		cfg.Factor = 10
		est, err := New(op, cfg)
		if err != nil {
			t.Fatal(err)
		}
		res, err := est.Estimate(y)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		peaks[name] = testutil.ArgMaxAbs(res.Coef)
	}
	for name, p := range peaks {
		if p < 49 || p > 51 {
			t.Fatalf("%s: peak at %d, want 50", name, p)
		}
	}
}

func TestRoundTripNoiseless(t *testing.T) {
	op := build(t, 2, 200)
	x := testutil.Spikes(200, []int{40, 100, 160}, []float64{3, -2, 4})
	y := series(op, x)

	cfg := DefaultConfig()
	cfg.Criterion = "bic"
	est, err := New(op, cfg)
	if err != nil {
		t.Fatal(err)
	}
	res, err := est.Estimate(y)
	if err != nil {
		t.Fatal(err)
	}
	testutil.RequireSliceNearlyEqual(t, res.Coef, x, 1e-6)
	testutil.RequireSliceNearlyEqual(t, res.Fitted, y, 1e-6)
}

func TestFixedLambdaRules(t *testing.T) {
	op := build(t, 2, 150)
	sigma := 0.3
	y := testutil.Add(series(op, testutil.Spikes(150, []int{30, 90}, []float64{6, -5})),
		testutil.GaussianNoise(21, sigma, 150))

	for _, rule := range []string{"mad", "mad_update", "ut", "lut", "factor_lambda", "pcg", "eigval"} {
		t.Run(rule, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Criterion = rule
			cfg.PCG = 0.5
			cfg.Seed = 7
			est, err := New(op, cfg)
			if err != nil {
				t.Fatal(err)
			}
			res, err := est.Estimate(y)
			if err != nil {
				t.Fatal(err)
			}
			if !(res.Lambda > 0) {
				t.Fatalf("Lambda = %v", res.Lambda)
			}
			if math.Abs(res.Noise-sigma) > 0.5*sigma {
				t.Fatalf("Noise = %v, want ~%v", res.Noise, sigma)
			}
			testutil.RequireFinite(t, res.Coef)
			if len(res.Activity) != 150 || len(res.Fitted) != 150 {
				t.Fatalf("lengths: activity %d fitted %d", len(res.Activity), len(res.Fitted))
			}
		})
	}
}

func TestExternalNoise(t *testing.T) {
	op := build(t, 2, 80)
	cfg := DefaultConfig()
	cfg.Criterion = "mad"
	cfg.Noise = 0.25
	est, err := New(op, cfg)
	if err != nil {
		t.Fatal(err)
	}
	res, err := est.Estimate(testutil.GaussianNoise(1, 1, 80))
	if err != nil {
		t.Fatal(err)
	}
	if res.Noise != 0.25 || res.Diagnostics.Noise != 0.25 {
		t.Fatalf("Noise = %v", res.Noise)
	}
}

func TestFactorLambdaRule(t *testing.T) {
	op := build(t, 2, 80)
	cfg := DefaultConfig()
	cfg.Criterion = "factor_lambda"
	cfg.Factor = 3
	cfg.Noise = 0.25
	est, err := New(op, cfg)
	if err != nil {
		t.Fatal(err)
	}
	res, err := est.Estimate(testutil.GaussianNoise(2, 1, 80))
	if err != nil {
		t.Fatal(err)
	}
	if res.Lambda != 0.75 {
		t.Fatalf("Lambda = %v, want factor*noise = 0.75", res.Lambda)
	}
	if res.Diagnostics.Solver != "fista" {
		t.Fatalf("Solver = %q, want fista", res.Diagnostics.Solver)
	}
}

func TestBlockModelActivity(t *testing.T) {
	op := build(t, 2, 120, hrf.WithBlockLength(1))
	coef := testutil.Spikes(120, []int{40, 80}, []float64{3, -3})
	y := series(op, coef)

	cfg := DefaultConfig()
	cfg.Criterion = "factor"
	cfg.Factor = 10
	est, err := New(op, cfg)
	if err != nil {
		t.Fatal(err)
	}
	res, err := est.Estimate(y)
	if err != nil {
		t.Fatal(err)
	}

	sum := 0.0
	for i, v := range res.Coef {
		sum += v
		if math.Abs(res.Activity[i]-sum) > 1e-9 {
			t.Fatalf("activity[%d] = %v, want cumulative %v", i, res.Activity[i], sum)
		}
	}
	spike, err := op.Spike()
	if err != nil {
		t.Fatal(err)
	}
	testutil.RequireSliceNearlyEqual(t, series(spike, res.Activity), res.Fitted, 1e-9)
}

func TestMultiEcho(t *testing.T) {
	te := []float64{0.015, 0.03, 0.045}
	op := build(t, 2, 100, hrf.WithEchoTimes(te...))
	y := testutil.Add(series(op, testutil.Spikes(100, []int{30}, []float64{-40})),
		testutil.GaussianNoise(4, 0.05, 300))

	cfg := DefaultConfig()
	cfg.Criterion = "bic"
	est, err := New(op, cfg)
	if err != nil {
		t.Fatal(err)
	}
	res, err := est.Estimate(y)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Coef) != 100 || len(res.Fitted) != 300 {
		t.Fatalf("coef %d fitted %d", len(res.Coef), len(res.Fitted))
	}
	if p := testutil.ArgMaxAbs(res.Coef); p < 29 || p > 31 {
		t.Fatalf("peak at %d, want 30", p)
	}

	cfg.LambdaEcho = 3
	if _, err := New(op, cfg); !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("lambda echo out of range: got %v", err)
	}
	cfg.LambdaEcho = -3
	if _, err := New(op, cfg); err != nil {
		t.Fatalf("lambda echo -3: %v", err)
	}
}

// duplicated is a model whose first two columns are identical.
type duplicated struct {
	*linalg.Dense
}

func (d duplicated) Samples() int { r, _ := d.Dims(); return r }
func (d duplicated) Echoes() int  { return 1 }
func (d duplicated) Activity(coef []float64) []float64 {
	return append([]float64(nil), coef...)
}

func TestDebiasFallbackFlagged(t *testing.T) {
	a := testutil.RandomMatrix(5, 12, 3)
	for i := range 12 {
		a.Set(i, 1, a.At(i, 0))
	}
	op := duplicated{linalg.NewDense(a)}
	y := make([]float64, 12)
	op.Apply(y, []float64{3, 0, 0})

	cfg := DefaultConfig()
	cfg.Criterion = "mad"
	cfg.Noise = 0.1
	est, err := New(op, cfg)
	if err != nil {
		t.Fatal(err)
	}
	res, err := est.Estimate(y)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Diagnostics.DebiasFallback || res.Diagnostics.Debiased {
		t.Fatalf("diagnostics = %+v", res.Diagnostics)
	}
}

func TestNewErrors(t *testing.T) {
	op := build(t, 2, 50)
	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"unknown criterion", func(c *Config) { c.Criterion = "ridge" }},
		{"factor", func(c *Config) { c.Criterion = "factor"; c.Factor = 0 }},
		{"negative noise", func(c *Config) { c.Noise = -1 }},
		{"path length", func(c *Config) { c.Criterion = "knee"; c.NLambdas = 1 }},
		{"max iter factor", func(c *Config) { c.MaxIterFactor = 0 }},
		{"fista iterations", func(c *Config) { c.Criterion = "ut"; c.MaxIterFISTA = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mod(&cfg)
			if _, err := New(op, cfg); !errors.Is(err, core.ErrConfiguration) {
				t.Fatalf("got %v, want ErrConfiguration", err)
			}
		})
	}

	if _, err := New(nil, DefaultConfig()); !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("nil op: got %v", err)
	}
}

func TestEstimateErrors(t *testing.T) {
	op := build(t, 2, 50)
	est, err := New(op, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := est.Estimate(make([]float64, 49)); !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("shape: got %v", err)
	}
	y := make([]float64, 50)
	y[0] = math.NaN()
	if _, err := est.Estimate(y); !errors.Is(err, core.ErrNumerical) {
		t.Fatalf("NaN: got %v", err)
	}
	if _, err := est.Estimate(make([]float64, 50)); !errors.Is(err, core.ErrSelection) {
		t.Fatalf("zero series: got %v", err)
	}
}
