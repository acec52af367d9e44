package core

// Acquisition describes the sampling of the fMRI time series.
type Acquisition struct {
	// TR is the repetition time in seconds.
	TR float64

	// EchoTimes holds one TE per echo in seconds. A single zero entry
	// denotes single-echo data without TE scaling.
	EchoTimes []float64
}

// AcquisitionOption mutates an Acquisition.
type AcquisitionOption func(*Acquisition)

// DefaultAcquisition returns a single-echo acquisition with TR = 2 s.
func DefaultAcquisition() Acquisition {
	return Acquisition{
		TR:        2,
		EchoTimes: []float64{0},
	}
}

// WithTR sets the repetition time.
func WithTR(tr float64) AcquisitionOption {
	return func(a *Acquisition) {
		if tr > 0 {
			a.TR = tr
		}
	}
}

// WithEchoTimes sets the echo times. Values are interpreted as milliseconds
// and converted to seconds when every value is >= 1.
func WithEchoTimes(te ...float64) AcquisitionOption {
	return func(a *Acquisition) {
		if len(te) > 0 {
			a.EchoTimes = EchoTimesSeconds(te)
		}
	}
}

// ApplyAcquisitionOptions applies zero or more options to the default acquisition.
func ApplyAcquisitionOptions(opts ...AcquisitionOption) Acquisition {
	acq := DefaultAcquisition()
	for _, opt := range opts {
		if opt != nil {
			opt(&acq)
		}
	}
	return acq
}

// Echoes returns the number of echoes.
func (a Acquisition) Echoes() int {
	if len(a.EchoTimes) == 0 {
		return 1
	}
	return len(a.EchoTimes)
}

// MultiEcho reports whether the acquisition has more than one echo.
func (a Acquisition) MultiEcho() bool {
	return len(a.EchoTimes) > 1
}

// EchoTimesSeconds returns a copy of te, converted from ms to s when all
// values are >= 1.
func EchoTimesSeconds(te []float64) []float64 {
	out := make([]float64, len(te))
	copy(out, te)
	if len(out) == 0 {
		return out
	}
	for _, v := range out {
		if v < 1 {
			return out
		}
	}
	for i := range out {
		out[i] /= 1000
	}
	return out
}
