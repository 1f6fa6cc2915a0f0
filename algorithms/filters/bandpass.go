package filters

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
)

// BandpassFilter is a Butterworth band-pass realized as a cascade of
// second-order sections.
//
// The design follows the classic analog route: Butterworth low-pass prototype,
// low-pass to band-pass transform around the pre-warped band edges, bilinear
// transform, and a gain correction so that the response at the band center is
// exactly 1. A prototype of order N yields a band-pass of order 2N built from
// N biquad sections, each with one zero at z = 1 and one at z = -1.
type BandpassFilter struct {
	sampleRate int
	lowFreq    float64 // Lower band edge in Hz
	highFreq   float64 // Upper band edge in Hz
	order      int     // Prototype order

	sections []biquad.Coefficients
}

// MaxOrder bounds the prototype order
const MaxOrder = 12

// NewBandpassFilter designs a Butterworth band-pass for [lowFreq, highFreq].
//
// Parameters:
//   - sampleRate: Sample rate in Hz
//   - order: Prototype order (the band-pass has twice as many poles)
//   - lowFreq, highFreq: Band edges in Hz, 0 < lowFreq < highFreq < sampleRate/2
func NewBandpassFilter(sampleRate, order int, lowFreq, highFreq float64) (*BandpassFilter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive")
	}

	if order < 1 || order > MaxOrder {
		return nil, fmt.Errorf("filter order must be between 1 and %d, got %d", MaxOrder, order)
	}

	nyquist := float64(sampleRate) / 2
	if !(lowFreq > 0 && lowFreq < highFreq && highFreq < nyquist) {
		return nil, fmt.Errorf("band [%g, %g] Hz must satisfy 0 < low < high < %g Hz", lowFreq, highFreq, nyquist)
	}

	bf := &BandpassFilter{
		sampleRate: sampleRate,
		lowFreq:    lowFreq,
		highFreq:   highFreq,
		order:      order,
	}

	if err := bf.design(); err != nil {
		return nil, err
	}

	return bf, nil
}

// design computes the second-order sections
func (bf *BandpassFilter) design() error {
	fs := float64(bf.sampleRate)
	n := bf.order

	// Pre-warp band edges for the bilinear transform
	w1 := 2 * fs * math.Tan(math.Pi*bf.lowFreq/fs)
	w2 := 2 * fs * math.Tan(math.Pi*bf.highFreq/fs)
	bw := w2 - w1
	w0sq := w1 * w2

	var upper []complex128
	var realPoles []float64

	for k := range n {
		theta := math.Pi * float64(2*k+n+1) / float64(2*n)
		p := cmplx.Rect(1, theta)

		half := p * complex(bw/2, 0)
		disc := cmplx.Sqrt(half*half - complex(w0sq, 0))

		for _, s := range []complex128{half + disc, half - disc} {
			z := (complex(2*fs, 0) + s) / (complex(2*fs, 0) - s)

			switch {
			case math.Abs(imag(z)) <= 1e-12*cmplx.Abs(z):
				realPoles = append(realPoles, real(z))
			case imag(z) > 0:
				upper = append(upper, z)
			}
		}
	}

	if len(realPoles)%2 != 0 || len(upper)+len(realPoles)/2 != n {
		return fmt.Errorf("band-pass design produced an unpaired pole set (%d complex, %d real)", len(upper), len(realPoles))
	}

	// Deterministic section order: least damped last
	sort.Slice(upper, func(i, j int) bool { return cmplx.Abs(upper[i]) < cmplx.Abs(upper[j]) })
	sort.Float64s(realPoles)

	sections := make([]biquad.Coefficients, 0, n)
	for i := 0; i+1 < len(realPoles); i += 2 {
		z1, z2 := realPoles[i], realPoles[i+1]
		sections = append(sections, biquad.Coefficients{B0: 1, B1: 0, B2: -1, A1: -(z1 + z2), A2: z1 * z2})
	}
	for _, z := range upper {
		sections = append(sections, biquad.Coefficients{B0: 1, B1: 0, B2: -1, A1: -2 * real(z), A2: real(z)*real(z) + imag(z)*imag(z)})
	}

	// Unity gain at the (digital) band center
	center := fs / math.Pi * math.Atan(math.Sqrt(w0sq)/(2*fs))
	h := biquad.NewChain(sections).Response(center, fs)
	gain := 1 / cmplx.Abs(h)
	if math.IsNaN(gain) || math.IsInf(gain, 0) {
		return fmt.Errorf("band-pass design has degenerate gain")
	}
	sections[0].B0 *= gain
	sections[0].B1 *= gain
	sections[0].B2 *= gain

	bf.sections = sections
	return nil
}

// Filter applies the cascade once, causally, starting from rest.
func (bf *BandpassFilter) Filter(input []float64) []float64 {
	return bf.filterFrom(input, nil)
}

// filterFrom applies the cascade with optional initial section states
func (bf *BandpassFilter) filterFrom(input []float64, initial [][2]float64) []float64 {
	output := make([]float64, len(input))
	copy(output, input)

	chain := biquad.NewChain(bf.sections)
	if initial != nil {
		chain.SetState(initial)
	}
	chain.ProcessBlock(output)

	return output
}

// Sections returns a copy of the second-order sections
func (bf *BandpassFilter) Sections() []biquad.Coefficients {
	out := make([]biquad.Coefficients, len(bf.sections))
	copy(out, bf.sections)
	return out
}

// GetFrequencyResponse computes the magnitude and phase response at given frequency.
// Returns magnitude (linear scale) and phase (radians).
func (bf *BandpassFilter) GetFrequencyResponse(frequency float64) (magnitude, phase float64) {
	h := biquad.NewChain(bf.sections).Response(frequency, float64(bf.sampleRate))
	return cmplx.Abs(h), cmplx.Phase(h)
}

// GetParameters returns the current filter parameters.
func (bf *BandpassFilter) GetParameters() (lowFreq, highFreq float64, order int) {
	return bf.lowFreq, bf.highFreq, bf.order
}
