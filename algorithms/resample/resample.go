// Package resample converts mono float64 signals between sample rates.
package resample

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

const (
	// bumpSeconds is the width of the Hann pulse used to measure the
	// converter's delay.
	bumpSeconds = 0.01

	// guardSeconds of silence surround the pulse so that the filter
	// settles before and drains after it.
	guardSeconds = 0.1
)

// Resampler converts signals from one fixed rate to another. Output is
// aligned to the input timeline: sample i of the output sits at time
// i/outputRate, whatever delay the conversion filter introduces.
type Resampler struct {
	inputRate  int
	outputRate int

	// delay is the converter's group delay in output samples
	delay int
}

// New creates a Resampler from inputRate to outputRate
func New(inputRate, outputRate int) (*Resampler, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("sample rates must be positive, got %d -> %d", inputRate, outputRate)
	}

	r := &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
	}

	if inputRate != outputRate {
		delay, err := r.measureDelay()
		if err != nil {
			return nil, err
		}
		r.delay = delay
	}

	return r, nil
}

// OutputLength is the number of samples Process returns for n input samples
func (r *Resampler) OutputLength(n int) int {
	return int(math.Round(float64(n) * float64(r.outputRate) / float64(r.inputRate)))
}

// Process converts signal and returns a new slice of OutputLength(len(signal))
// samples. Equal rates return a copy.
func (r *Resampler) Process(signal []float64) ([]float64, error) {
	if r.inputRate == r.outputRate || len(signal) == 0 {
		out := make([]float64, len(signal))
		copy(out, signal)
		return out, nil
	}

	converted, err := r.convert(signal)
	if err != nil {
		return nil, err
	}

	out := make([]float64, r.OutputLength(len(signal)))
	for i := range out {
		j := i + r.delay
		if j >= 0 && j < len(converted) {
			out[i] = converted[j]
		}
	}
	return out, nil
}

// convert runs signal through a fresh converter, followed by enough
// silence and a flush to drain the filter. A fresh converter per call
// keeps Process safe for concurrent use.
func (r *Resampler) convert(signal []float64) ([]float64, error) {
	converter, err := resampling.New(&resampling.Config{
		InputRate:  float64(r.inputRate),
		OutputRate: float64(r.outputRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	padded := make([]float64, len(signal)+int(math.Ceil(guardSeconds*float64(r.inputRate))))
	copy(padded, signal)

	converted, err := converter.Process(padded)
	if err != nil {
		return nil, fmt.Errorf("failed to resample %d -> %d Hz: %w", r.inputRate, r.outputRate, err)
	}

	tail, err := converter.Flush()
	if err != nil {
		return nil, fmt.Errorf("failed to flush resampler %d -> %d Hz: %w", r.inputRate, r.outputRate, err)
	}

	return append(converted, tail...), nil
}

// measureDelay converts a symmetric pulse and compares the position of
// its output peak with where the pulse centre falls on the output timeline.
func (r *Resampler) measureDelay() (int, error) {
	guard := int(math.Ceil(guardSeconds * float64(r.inputRate)))
	half := int(math.Ceil(bumpSeconds * float64(r.inputRate) / 2))
	if half < 4 {
		half = 4
	}

	pulse := make([]float64, 2*guard+2*half+1)
	centre := guard + half
	for k := -half; k <= half; k++ {
		pulse[centre+k] = 0.5 * (1 + math.Cos(math.Pi*float64(k)/float64(half+1)))
	}

	converted, err := r.convert(pulse)
	if err != nil {
		return 0, err
	}

	peak, ok := peakPosition(converted)
	if !ok {
		return 0, fmt.Errorf("failed to measure resampler delay %d -> %d Hz", r.inputRate, r.outputRate)
	}

	expected := float64(centre) * float64(r.outputRate) / float64(r.inputRate)
	return int(math.Round(peak - expected)), nil
}

// peakPosition locates the maximum of x with parabolic interpolation
func peakPosition(x []float64) (float64, bool) {
	if len(x) == 0 {
		return 0, false
	}

	best := 0
	for i, v := range x {
		if v > x[best] {
			best = i
		}
	}
	if x[best] <= 0 {
		return 0, false
	}
	if best == 0 || best == len(x)-1 {
		return float64(best), true
	}

	a, b, c := x[best-1], x[best], x[best+1]
	denom := a - 2*b + c
	if denom == 0 {
		return float64(best), true
	}
	return float64(best) + 0.5*(a-c)/denom, true
}

// Convert is a convenience wrapper for one-off conversions
func Convert(signal []float64, inputRate, outputRate int) ([]float64, error) {
	r, err := New(inputRate, outputRate)
	if err != nil {
		return nil, err
	}
	return r.Process(signal)
}
