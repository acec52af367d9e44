package hrf

import (
	"fmt"
	"math"
	"sync"

	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/cwbudde/algo-spfm/spfm/core"
)

// Convolution is a lazy single-echo spike-model operator. H*x is the first n
// samples of the linear convolution of x with the kernel, computed by FFT;
// H^T*y is the matching correlation.
type Convolution struct {
	kernel    []float64
	kernelFFT []complex128
	n         int
	fftSize   int
	lipschitz float64

	pool sync.Pool
}

type convWorkspace struct {
	plan *algofft.Plan[complex128]
	buf  []complex128
	freq []complex128
}

// NewConvolution creates a lazy operator for kernel and series length n.
func NewConvolution(kernel []float64, n int) (*Convolution, error) {
	if len(kernel) == 0 {
		return nil, core.Configf("hrf: kernel length must be positive")
	}
	if n <= 0 {
		return nil, core.Configf("hrf: series length must be positive, got %d", n)
	}
	k := trimLeadingZeros(kernel)
	if len(k) == 0 {
		return nil, core.Configf("hrf: kernel is all zeros")
	}

	fftSize := nextPowerOf2(n + len(k) - 1)
	kf, err := spectrum(k, fftSize)
	if err != nil {
		return nil, err
	}
	bound, err := SpectralBound(k)
	if err != nil {
		return nil, err
	}

	c := &Convolution{
		kernel:    k,
		kernelFFT: kf,
		n:         n,
		fftSize:   fftSize,
		lipschitz: bound,
	}
	c.pool.New = func() any {
		plan, err := algofft.NewPlan64(c.fftSize)
		if err != nil {
			panic(fmt.Sprintf("hrf: failed to create FFT plan: %v", err))
		}
		return &convWorkspace{
			plan: plan,
			buf:  make([]complex128, c.fftSize),
			freq: make([]complex128, c.fftSize),
		}
	}
	return c, nil
}

// Dims implements linalg.Operator.
func (c *Convolution) Dims() (int, int) { return c.n, c.n }

// Samples returns the series length.
func (c *Convolution) Samples() int { return c.n }

// Echoes returns 1; the lazy operator is single-echo only.
func (c *Convolution) Echoes() int { return 1 }

// Activity returns a copy of coef; spike coefficients are the activity.
func (c *Convolution) Activity(coef []float64) []float64 {
	out := make([]float64, c.n)
	copy(out, coef)
	return out
}

// Lipschitz returns an upper bound on ||H||_2^2.
func (c *Convolution) Lipschitz() float64 { return c.lipschitz }

// Finite reports whether the kernel is finite.
func (c *Convolution) Finite() bool { return core.AllFinite(c.kernel) }

// Apply implements linalg.Operator.
func (c *Convolution) Apply(dst, x []float64) {
	c.filter(dst, x, false)
}

// ApplyT implements linalg.Operator.
func (c *Convolution) ApplyT(dst, y []float64) {
	c.filter(dst, y, true)
}

func (c *Convolution) filter(dst, src []float64, correlate bool) {
	ws := c.pool.Get().(*convWorkspace)
	defer c.pool.Put(ws)

	for i := range ws.buf {
		ws.buf[i] = 0
	}
	for i := range min(len(src), c.n) {
		ws.buf[i] = complex(src[i], 0)
	}

	mustFFT(ws.plan.Forward(ws.freq, ws.buf))
	for i, k := range c.kernelFFT {
		if correlate {
			k = complex(real(k), -imag(k))
		}
		ws.freq[i] *= k
	}
	mustFFT(ws.plan.Inverse(ws.buf, ws.freq))

	for i := range dst {
		v := real(ws.buf[i])
		if math.Abs(v) < 1e-300 {
			v = 0
		}
		dst[i] = v
	}
}

func mustFFT(err error) {
	if err != nil {
		panic(fmt.Sprintf("hrf: fft: %v", err))
	}
}
