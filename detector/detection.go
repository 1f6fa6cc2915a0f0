// Package detector finds short narrow-band beeps in decoded audio.
//
// Two independent methods are provided. SpectralDetector integrates STFT
// energy inside a frequency band and reports frames well above the mean.
// TemplateMatcher slides a reference beep over the signal, either on the raw
// waveforms or on band-passed, smoothed envelopes scored by normalized
// cross-correlation. Both are safe for concurrent use once constructed.
package detector

import (
	"github.com/RyanBlaney/beep-sonar/config"
	"github.com/RyanBlaney/beep-sonar/timecode"
)

// Errors returned by the detectors. They are the config package's sentinels
// so that errors.Is works across both packages.
var (
	ErrInvalidParameter    = config.ErrInvalidParameter
	ErrTemplateUnavailable = config.ErrTemplateUnavailable
	ErrEmptyInput          = config.ErrEmptyInput
)

// ProcessingError names the stage of a numeric failure
type ProcessingError = config.ProcessingError

// Detection is one detected beep
type Detection struct {
	Seconds   float64 `json:"seconds"`   // Offset from the start of the input
	Timestamp string  `json:"timestamp"` // Seconds as MM:SS.mmm
	Score     float64 `json:"score"`     // Band energy or correlation score
	Index     int     `json:"index"`     // Frame (spectral) or sample offset (matcher)
}

func newDetection(seconds, score float64, index int) Detection {
	return Detection{
		Seconds:   seconds,
		Timestamp: timecode.Format(seconds),
		Score:     score,
		Index:     index,
	}
}

// Offsets returns the detection times in seconds
func Offsets(detections []Detection) []float64 {
	out := make([]float64, len(detections))
	for i, d := range detections {
		out[i] = d.Seconds
	}
	return out
}

// Timestamps returns the detection times formatted as MM:SS.mmm
func Timestamps(detections []Detection) []string {
	out := make([]string, len(detections))
	for i, d := range detections {
		out[i] = d.Timestamp
	}
	return out
}

func processingError(stage string, err error) error {
	return &config.ProcessingError{Stage: stage, Err: err}
}
