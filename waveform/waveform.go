// Package waveform holds the decoded mono signal shared by the decoders and
// the detectors.
package waveform

import (
	"fmt"
	"math"
)

// Waveform is a mono sequence of samples, normally in [-1, 1], at SampleRate Hz.
// Consumers treat Samples as read-only.
type Waveform struct {
	Samples    []float64 `json:"-"`
	SampleRate int       `json:"sample_rate"`
}

// New wraps samples at the given rate.
func New(samples []float64, sampleRate int) Waveform {
	return Waveform{Samples: samples, SampleRate: sampleRate}
}

// Len returns the number of samples.
func (w Waveform) Len() int {
	return len(w.Samples)
}

// IsEmpty reports whether the waveform has no samples.
func (w Waveform) IsEmpty() bool {
	return len(w.Samples) == 0
}

// Seconds returns the duration in seconds.
func (w Waveform) Seconds() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// IsSilent reports whether every sample is exactly zero. An empty waveform is
// silent.
func (w Waveform) IsSilent() bool {
	for _, s := range w.Samples {
		if s != 0 {
			return false
		}
	}
	return true
}

// CheckFinite returns an error naming the first NaN or Inf sample.
func (w Waveform) CheckFinite() error {
	for i, s := range w.Samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("sample %d is not finite (%v)", i, s)
		}
	}
	return nil
}

// SampleIndex converts seconds to the nearest lower sample index, clamped to
// [0, Len()].
func (w Waveform) SampleIndex(seconds float64) int {
	idx := int(math.Floor(seconds * float64(w.SampleRate)))
	if idx < 0 {
		return 0
	}
	if idx > len(w.Samples) {
		return len(w.Samples)
	}
	return idx
}

// Clip returns the part of w in [startSeconds, endSeconds) together with the
// index of its first sample in w. A negative endSeconds means "until the end".
// The returned samples alias w's storage.
func (w Waveform) Clip(startSeconds, endSeconds float64) (Waveform, int) {
	start := w.SampleIndex(startSeconds)
	end := len(w.Samples)
	if endSeconds >= 0 {
		end = w.SampleIndex(endSeconds)
	}
	if end < start {
		end = start
	}
	return Waveform{Samples: w.Samples[start:end], SampleRate: w.SampleRate}, start
}
