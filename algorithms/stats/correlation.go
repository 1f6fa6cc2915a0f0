package stats

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/RyanBlaney/beep-sonar/algorithms/common"
	"github.com/RyanBlaney/beep-sonar/algorithms/spectral"
	"gonum.org/v1/gonum/floats"
)

// MinDenominator is the smallest normalization denominator NCC divides by.
// Offsets whose denominator falls below it score 0.
const MinDenominator = 1e-8

// CrossCorrelation slides a template over a signal.
//
// References:
// - Lewis, J.P. (1995). "Fast Template Matching"
// - Oppenheim, A.V., Schafer, R.W. (2010). "Discrete-Time Signal Processing"
//
// Only "valid" offsets are produced: result[i] is the correlation of the
// template with signal[i : i+len(template)], so there are
// len(signal)-len(template)+1 of them.
type CrossCorrelation struct {
	// Below this many multiply-adds the direct sum is used instead of the FFT
	fftThreshold int
	fft          *spectral.FFT
}

// NewCrossCorrelation creates a cross-correlation calculator
func NewCrossCorrelation() *CrossCorrelation {
	return &CrossCorrelation{
		fftThreshold: 1 << 14,
		fft:          spectral.NewFFT(),
	}
}

// Valid returns the valid-mode cross-correlation of signal with template.
// A template longer than the signal yields an empty result.
func (cc *CrossCorrelation) Valid(signal, template []float64) ([]float64, error) {
	n, m := len(signal), len(template)
	if m == 0 {
		return nil, fmt.Errorf("template is empty")
	}
	if n < m {
		return []float64{}, nil
	}

	if (n-m+1)*m <= cc.fftThreshold {
		return cc.computeTimeDomain(signal, template), nil
	}
	return cc.computeFFT(signal, template), nil
}

// computeTimeDomain evaluates every offset directly
func (cc *CrossCorrelation) computeTimeDomain(signal, template []float64) []float64 {
	m := len(template)
	out := make([]float64, len(signal)-m+1)
	for i := range out {
		out[i] = floats.Dot(signal[i:i+m], template)
	}
	return out
}

// computeFFT multiplies the signal spectrum by the conjugate template
// spectrum; the valid offsets are the first n-m+1 lags of the circular result.
func (cc *CrossCorrelation) computeFFT(signal, template []float64) []float64 {
	n, m := len(signal), len(template)
	fftSize := common.NextPowerOfTwo(n + m - 1)

	signalSpectrum := cc.fft.ComputePadded(signal, fftSize)
	templateSpectrum := cc.fft.ComputePadded(template, fftSize)

	crossPower := make([]complex128, fftSize)
	for i := range fftSize {
		crossPower[i] = signalSpectrum[i] * cmplx.Conj(templateSpectrum[i])
	}

	correlation := cc.fft.ComputeInverseReal(crossPower)

	return correlation[:n-m+1]
}

// Normalized returns the normalized cross-correlation of signal with template:
//
//	ncc[i] = corr[i] / sqrt(sum(signal[i:i+m]^2) * sum(template^2))
//
// Offsets where the denominator is below MinDenominator score 0. Both inputs
// are expected non-negative (envelopes), which keeps scores in [0, 1].
func (cc *CrossCorrelation) Normalized(signal, template []float64) ([]float64, error) {
	corr, err := cc.Valid(signal, template)
	if err != nil {
		return nil, err
	}
	if len(corr) == 0 {
		return corr, nil
	}

	m := len(template)
	templateEnergy := floats.Dot(template, template)
	sums := common.PrefixSumsOfSquares(signal)

	for i := range corr {
		// prefix-sum differences can dip just below zero
		localEnergy := math.Max(sums[i+m]-sums[i], 0)
		denom := math.Sqrt(localEnergy * templateEnergy)
		if denom < MinDenominator {
			corr[i] = 0
			continue
		}
		corr[i] /= denom
	}

	return corr, nil
}
