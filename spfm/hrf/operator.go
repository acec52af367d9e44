package hrf

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-spfm/internal/linalg"
	"github.com/cwbudde/algo-spfm/spfm/core"
)

// lipschitzSafety inflates power-iteration estimates, which converge from below.
const lipschitzSafety = 1.05

type buildConfig struct {
	echoTimes   []float64
	blockLength int
}

// Option configures Build.
type Option func(*buildConfig)

// WithEchoTimes stacks one operator copy per echo, scaled by -TE (seconds).
// A single echo time leaves the operator unscaled.
func WithEchoTimes(te ...float64) Option {
	return func(c *buildConfig) {
		c.echoTimes = append([]float64(nil), te...)
	}
}

// WithAcquisition takes the echo times of acq. Single-echo acquisitions
// leave the operator unscaled.
func WithAcquisition(acq core.Acquisition) Option {
	return WithEchoTimes(acq.EchoTimes...)
}

// WithBlockLength switches to the block (innovation) model. Solver
// coefficient k is a step starting at sample k*b. Zero keeps the spike model.
func WithBlockLength(b int) Option {
	return func(c *buildConfig) {
		c.blockLength = b
	}
}

// Operator is a dense HRF convolution operator. It embeds linalg.Dense and
// is safe for concurrent use.
type Operator struct {
	*linalg.Dense

	kernel    []float64
	n         int
	echoTimes []float64
	block     int
	lipschitz float64
}

// Build constructs the operator for kernel and series length n.
//
// Exact zeros before the kernel onset are dropped, so coefficient k drives
// the first non-zero kernel sample at sample k. A series generated with an
// untrimmed kernel whose first d samples are zero is therefore explained by
// coefficients shifted d samples later; the SPM and Glover models start with
// one zero sample.
func Build(kernel []float64, n int, opts ...Option) (*Operator, error) {
	cfg := buildConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if len(kernel) == 0 {
		return nil, core.Configf("hrf: kernel length must be positive")
	}
	if n <= 0 {
		return nil, core.Configf("hrf: series length must be positive, got %d", n)
	}
	if cfg.blockLength < 0 {
		return nil, core.Configf("hrf: block length must be >= 0, got %d", cfg.blockLength)
	}
	for _, te := range cfg.echoTimes {
		if te < 0 || math.IsNaN(te) {
			return nil, core.Configf("hrf: echo time must be >= 0, got %v", te)
		}
	}

	k := trimLeadingZeros(kernel)
	if len(k) == 0 {
		return nil, core.Configf("hrf: kernel is all zeros")
	}

	var base *mat.Dense
	if cfg.blockLength > 0 {
		base = blockMatrix(k, n, cfg.blockLength)
	} else {
		base = toeplitz(k, n)
	}

	scales := []float64{1}
	if len(cfg.echoTimes) > 1 {
		scales = make([]float64, len(cfg.echoTimes))
		for i, te := range cfg.echoTimes {
			scales[i] = -te
		}
	}

	_, cols := base.Dims()
	full := mat.NewDense(n*len(scales), cols, nil)
	for e, s := range scales {
		view := full.Slice(e*n, (e+1)*n, 0, cols).(*mat.Dense)
		view.Scale(s, base)
	}

	op := &Operator{
		Dense:     linalg.NewDense(full),
		kernel:    k,
		n:         n,
		echoTimes: cfg.echoTimes,
		block:     cfg.blockLength,
	}
	if cfg.blockLength == 0 {
		bound, err := SpectralBound(k)
		if err != nil {
			return nil, err
		}
		sum := 0.0
		for _, s := range scales {
			sum += s * s
		}
		op.lipschitz = bound * sum
	} else {
		op.lipschitz = linalg.PowerIteration(op.Dense, 500, 1e-10) * lipschitzSafety
	}
	return op, nil
}

// trimLeadingZeros drops exact-zero samples before the response onset so the
// Toeplitz diagonal is non-zero.
func trimLeadingZeros(kernel []float64) []float64 {
	for i, v := range kernel {
		if v != 0 {
			out := make([]float64, len(kernel)-i)
			copy(out, kernel[i:])
			return out
		}
	}
	return nil
}

func toeplitz(k []float64, n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for j := range n {
		for d, v := range k {
			i := j + d
			if i >= n {
				break
			}
			m.Set(i, j, v)
		}
	}
	return m
}

// blockMatrix returns H*T*E: column c is the response to a unit step that
// starts at sample c*b.
func blockMatrix(k []float64, n, b int) *mat.Dense {
	cum := make([]float64, n)
	acc := 0.0
	for i := range n {
		if i < len(k) {
			acc += k[i]
		}
		cum[i] = acc
	}

	cols := (n + b - 1) / b
	m := mat.NewDense(n, cols, nil)
	for c := range cols {
		start := c * b
		for i := start; i < n; i++ {
			m.Set(i, c, cum[i-start])
		}
	}
	return m
}

// Samples returns the number of timepoints per echo.
func (o *Operator) Samples() int { return o.n }

// Echoes returns the number of stacked echo blocks.
func (o *Operator) Echoes() int {
	if len(o.echoTimes) > 1 {
		return len(o.echoTimes)
	}
	return 1
}

// EchoTimes returns a copy of the echo times in seconds.
func (o *Operator) EchoTimes() []float64 {
	return append([]float64(nil), o.echoTimes...)
}

// BlockLength returns the block length, zero for the spike model.
func (o *Operator) BlockLength() int { return o.block }

// Kernel returns a copy of the (onset-trimmed) kernel.
func (o *Operator) Kernel() []float64 {
	return append([]float64(nil), o.kernel...)
}

// Lipschitz returns an upper estimate of ||H||_2^2.
func (o *Operator) Lipschitz() float64 { return o.lipschitz }

// Spike returns the spike-model operator for the same kernel, length and
// echoes. It returns o itself when o already is a spike operator.
func (o *Operator) Spike() (*Operator, error) {
	if o.block == 0 {
		return o, nil
	}
	return Build(o.kernel, o.n, WithEchoTimes(o.echoTimes...))
}

// Activity maps solver coefficients to the activity-inducing signal. In the
// block model this integrates the step amplitudes; otherwise it copies.
func (o *Operator) Activity(coef []float64) []float64 {
	out := make([]float64, o.n)
	if o.block == 0 {
		copy(out, coef)
		return out
	}
	for c, v := range coef {
		if v == 0 {
			continue
		}
		for i := c * o.block; i < o.n; i++ {
			out[i] += v
		}
	}
	return out
}

// Echo returns the samples of echo e from a stacked series.
func (o *Operator) Echo(y []float64, e int) []float64 {
	return y[e*o.n : (e+1)*o.n]
}
