package windowing

import (
	"fmt"
	"strings"

	dspwindow "github.com/mjibson/go-dsp/window"
)

// Kind names a window function
type Kind string

const (
	Hann     Kind = "hann"
	Hamming  Kind = "hamming"
	Blackman Kind = "blackman"
)

// ParseKind maps a window name to a Kind. The empty string selects Hann.
func ParseKind(name string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(name))) {
	case Hann, "":
		return Hann, nil
	case Hamming:
		return Hamming, nil
	case Blackman:
		return Blackman, nil
	default:
		return "", fmt.Errorf("unknown window %q", name)
	}
}

// Window holds precomputed coefficients for one window size
type Window struct {
	kind         Kind
	size         int
	symmetric    bool
	coefficients []float64
}

// New creates a window of the given kind and size.
//
// Periodic windows (symmetric == false) are what spectral analysis wants: the
// coefficients are the first size points of a symmetric window of size+1, so
// overlapping frames at hop size/4 sum to a constant.
func New(kind Kind, size int, symmetric bool) (*Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", size)
	}

	gen, err := generator(kind)
	if err != nil {
		return nil, err
	}

	var coefficients []float64
	switch {
	case size == 1:
		coefficients = []float64{1}
	case symmetric:
		coefficients = gen(size)
	default:
		coefficients = gen(size + 1)[:size]
	}

	return &Window{
		kind:         kind,
		size:         size,
		symmetric:    symmetric,
		coefficients: coefficients,
	}, nil
}

func generator(kind Kind) (func(int) []float64, error) {
	switch kind {
	case Hann:
		return dspwindow.Hann, nil
	case Hamming:
		return dspwindow.Hamming, nil
	case Blackman:
		return dspwindow.Blackman, nil
	default:
		return nil, fmt.Errorf("unknown window %q", kind)
	}
}

// Apply applies the window to a signal (creates new array)
func (w *Window) Apply(signal []float64) []float64 {
	if len(signal) != w.size {
		return nil
	}

	windowed := make([]float64, w.size)
	for i := range w.size {
		windowed[i] = signal[i] * w.coefficients[i]
	}

	return windowed
}

// ApplyInPlace applies the window to a signal in-place
func (w *Window) ApplyInPlace(signal []float64) error {
	if len(signal) != w.size {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), w.size)
	}

	for i := range w.size {
		signal[i] *= w.coefficients[i]
	}

	return nil
}

// GetCoefficients returns a copy of the window coefficients
func (w *Window) GetCoefficients() []float64 {
	coeffs := make([]float64, len(w.coefficients))
	copy(coeffs, w.coefficients)
	return coeffs
}

// GetSize returns the window size
func (w *Window) GetSize() int {
	return w.size
}

// GetType returns the window type
func (w *Window) GetType() string {
	return string(w.kind)
}
