package common

import (
	"fmt"
	"strings"
)

// NormalizationType defines normalization method
type NormalizationType int

const (
	// Peak scales by the peak absolute value
	Peak NormalizationType = iota
	// RMSNorm removes the mean and scales by the RMS of the remainder
	RMSNorm
)

// peakEpsilon is added to the divisor so that silent input stays silent
const peakEpsilon = 1e-8

func (t NormalizationType) String() string {
	switch t {
	case Peak:
		return "peak"
	case RMSNorm:
		return "rms"
	default:
		return "unknown"
	}
}

// ParseNormalizationType maps "peak" or "rms" to a NormalizationType
func ParseNormalizationType(name string) (NormalizationType, error) {
	switch strings.ToLower(name) {
	case "peak", "":
		return Peak, nil
	case "rms":
		return RMSNorm, nil
	default:
		return Peak, fmt.Errorf("unknown normalization %q", name)
	}
}

// Normalizer scales signals before raw correlation
type Normalizer struct {
	method NormalizationType
}

// NewNormalizer creates a new normalizer
func NewNormalizer(method NormalizationType) *Normalizer {
	return &Normalizer{
		method: method,
	}
}

// Normalize returns a normalized copy of signal; the input is not modified
func (n *Normalizer) Normalize(signal []float64) []float64 {
	switch n.method {
	case RMSNorm:
		return n.rmsNormalize(signal)
	default:
		return n.peakNormalize(signal)
	}
}

// peakNormalize divides by (peak + epsilon)
func (n *Normalizer) peakNormalize(signal []float64) []float64 {
	normalized := make([]float64, len(signal))
	if len(signal) == 0 {
		return normalized
	}

	scale := 1.0 / (MaxAbs(signal) + peakEpsilon)
	for i, val := range signal {
		normalized[i] = val * scale
	}

	return normalized
}

// rmsNormalize removes DC then divides by the RMS when it is non-zero
func (n *Normalizer) rmsNormalize(signal []float64) []float64 {
	normalized := make([]float64, len(signal))
	if len(signal) == 0 {
		return normalized
	}

	mean := Mean(signal)
	for i, val := range signal {
		normalized[i] = val - mean
	}

	rms := RMS(normalized)
	if rms > 0 {
		for i := range normalized {
			normalized[i] /= rms
		}
	}

	return normalized
}
