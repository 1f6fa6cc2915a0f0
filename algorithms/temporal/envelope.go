package temporal

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"github.com/RyanBlaney/beep-sonar/algorithms/common"
	"github.com/RyanBlaney/beep-sonar/algorithms/spectral"
)

// EnvelopeType selects how the amplitude envelope is extracted
type EnvelopeType string

const (
	// Rectify takes |x|, the cheap envelope used by default
	Rectify EnvelopeType = "rectify"

	// Hilbert takes the magnitude of the analytic signal
	Hilbert EnvelopeType = "hilbert"
)

// ParseEnvelopeType maps a name to an EnvelopeType. The empty string selects Rectify.
func ParseEnvelopeType(name string) (EnvelopeType, error) {
	switch EnvelopeType(strings.ToLower(strings.TrimSpace(name))) {
	case Rectify, "":
		return Rectify, nil
	case Hilbert:
		return Hilbert, nil
	default:
		return "", fmt.Errorf("unknown envelope type %q", name)
	}
}

// Envelope provides amplitude envelope extraction
type Envelope struct {
	envelopeType EnvelopeType
	fft          *spectral.FFT
}

// NewEnvelope creates a new envelope extractor
func NewEnvelope(envelopeType EnvelopeType) *Envelope {
	if envelopeType == "" {
		envelopeType = Rectify
	}
	return &Envelope{envelopeType: envelopeType, fft: spectral.NewFFT()}
}

// Type returns the extraction method
func (e *Envelope) Type() EnvelopeType {
	return e.envelopeType
}

// Compute returns the envelope of signal, one value per input sample
func (e *Envelope) Compute(signal []float64) []float64 {
	if e.envelopeType == Hilbert {
		return e.ComputeHilbert(signal)
	}
	return e.ComputeRectified(signal)
}

// ComputeRectified returns |x|
func (e *Envelope) ComputeRectified(signal []float64) []float64 {
	envelope := make([]float64, len(signal))
	for i, val := range signal {
		envelope[i] = math.Abs(val)
	}
	return envelope
}

// ComputeHilbert returns the magnitude of the analytic signal, computed in the
// frequency domain: negative frequencies are zeroed and positive ones doubled.
func (e *Envelope) ComputeHilbert(signal []float64) []float64 {
	n := len(signal)
	if n == 0 {
		return []float64{}
	}

	spectrum := e.fft.Compute(signal)

	// DC (and Nyquist for even n) keep weight 1
	half := (n + 1) / 2
	for k := 1; k < half; k++ {
		spectrum[k] *= 2
	}
	for k := n/2 + 1; k < n; k++ {
		spectrum[k] = 0
	}

	analytic := e.fft.ComputeInverse(spectrum)

	envelope := make([]float64, n)
	for i, val := range analytic {
		envelope[i] = cmplx.Abs(val)
	}
	return envelope
}

// SmoothingWindow converts a smoothing duration to a moving-average length in
// samples, never less than one.
func SmoothingWindow(sampleRate int, smoothMs float64) int {
	return max(1, int(float64(sampleRate)*smoothMs/1000))
}

// ComputeSmoothed applies a moving average of windowSize samples. The output
// has the input's length and output[i] averages the window that starts
// (windowSize-1)/2 samples before i; samples outside the input count as zero.
func (e *Envelope) ComputeSmoothed(envelope []float64, windowSize int) []float64 {
	if len(envelope) == 0 || windowSize <= 1 {
		out := make([]float64, len(envelope))
		copy(out, envelope)
		return out
	}

	n := len(envelope)
	sums := common.PrefixSums(envelope)
	offset := (windowSize - 1) / 2
	scale := 1 / float64(windowSize)

	smoothed := make([]float64, n)
	for i := range n {
		hi := min(n, i+offset+1)
		lo := max(0, i+offset+1-windowSize)
		if hi > lo {
			smoothed[i] = (sums[hi] - sums[lo]) * scale
		}
	}

	return smoothed
}
