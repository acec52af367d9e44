// Package hrf builds hemodynamic response functions and the convolution
// operators that map a sparse neural signal to a predicted BOLD series.
//
// # Models
//
// [SPM] and [Glover] sample a double-gamma response at the repetition time
// and normalize it to unit peak. [Generate] dispatches on a model name and
// falls back to loading a custom kernel from a .1D or .txt file.
//
// # Operators
//
// [Build] returns a dense lower-triangular Toeplitz operator:
//
//	op, err := hrf.Build(kernel, nScans)                          // spike model
//	op, err := hrf.Build(kernel, nScans, hrf.WithBlockLength(1))  // innovation model
//	op, err := hrf.Build(kernel, nScans, hrf.WithEchoTimes(te...)) // multi-echo
//
// In the block model each solver coefficient is a step that starts at a
// multiple of the block length, so the operator integrates before it
// convolves. Multi-echo operators stack one copy per echo, scaled by -TE.
//
// [NewConvolution] gives the same spike-model map without materializing the
// matrix; products run through FFT convolution and correlation.
//
// All operators are immutable once built and may be shared by concurrent
// solvers.
package hrf
