package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameter marks configuration that can never succeed
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrTemplateUnavailable marks a template that is missing, unreadable or silent
	ErrTemplateUnavailable = errors.New("template unavailable")

	// ErrEmptyInput marks an upload or file without audio data
	ErrEmptyInput = errors.New("empty input")
)

// Processing stages named by ProcessingError
const (
	StageInput       = "input"
	StageResample    = "resample"
	StageSTFT        = "stft"
	StageFilter      = "filter"
	StageCorrelation = "correlation"
)

// ProcessingError reports a numeric failure during detection together with
// the stage it happened in.
type ProcessingError struct {
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// invalidf wraps ErrInvalidParameter with a formatted message
func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}
