// Package config holds the detector and service configuration: plain value
// structs with documented defaults, validation, YAML loading and the BEEP_*
// environment overrides.
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/RyanBlaney/beep-sonar/algorithms/common"
	"github.com/RyanBlaney/beep-sonar/algorithms/filters"
	"github.com/RyanBlaney/beep-sonar/algorithms/temporal"
	"github.com/RyanBlaney/beep-sonar/algorithms/windowing"
	"gopkg.in/yaml.v3"
)

// SpectralConfig configures the band-energy detector
type SpectralConfig struct {
	FreqLow              float64 `json:"freq_low" yaml:"freq_low"`                             // Hz
	FreqHigh             float64 `json:"freq_high" yaml:"freq_high"`                           // Hz
	ThresholdMultiplier  float64 `json:"threshold_multiplier" yaml:"threshold_multiplier"`     // x mean band energy
	WindowSize           int     `json:"window_size" yaml:"window_size"`                       // FFT size, power of two
	HopSize              int     `json:"hop_size" yaml:"hop_size"`                             // 0 = WindowSize/4
	MinSeparationSeconds float64 `json:"min_separation_seconds" yaml:"min_separation_seconds"` // 0 = runs only
	Window               string  `json:"window" yaml:"window"`                                 // "hann", "hamming", "blackman"
}

// DefaultSpectralConfig returns the defaults tuned for 1.2 kHz beeps
func DefaultSpectralConfig() SpectralConfig {
	return SpectralConfig{
		FreqLow:              1100,
		FreqHigh:             1300,
		ThresholdMultiplier:  5.0,
		WindowSize:           4096,
		HopSize:              0,
		MinSeparationSeconds: 0,
		Window:               string(windowing.Hann),
	}
}

// EffectiveHop resolves the zero hop to a quarter window
func (c SpectralConfig) EffectiveHop() int {
	if c.HopSize == 0 {
		return c.WindowSize / 4
	}
	return c.HopSize
}

// Validate rejects configuration the detector cannot run with
func (c SpectralConfig) Validate() error {
	if !finite(c.FreqLow) || !finite(c.FreqHigh) || c.FreqLow < 0 {
		return invalidf("frequency band [%g, %g] must be finite and non-negative", c.FreqLow, c.FreqHigh)
	}
	if c.FreqLow >= c.FreqHigh {
		return invalidf("freq_low (%g) must be below freq_high (%g)", c.FreqLow, c.FreqHigh)
	}
	if !finite(c.ThresholdMultiplier) || c.ThresholdMultiplier <= 0 {
		return invalidf("threshold_multiplier must be positive, got %g", c.ThresholdMultiplier)
	}
	if !common.IsPowerOfTwo(c.WindowSize) || c.WindowSize < 4 {
		return invalidf("window_size must be a power of two >= 4, got %d", c.WindowSize)
	}
	if hop := c.EffectiveHop(); hop <= 0 || hop > c.WindowSize {
		return invalidf("hop_size must be in (0, %d], got %d", c.WindowSize, c.HopSize)
	}
	if !finite(c.MinSeparationSeconds) || c.MinSeparationSeconds < 0 {
		return invalidf("min_separation_seconds must be >= 0, got %g", c.MinSeparationSeconds)
	}
	if _, err := windowing.ParseKind(c.Window); err != nil {
		return invalidf("%v", err)
	}
	return nil
}

// MatchConfig configures the template matcher
type MatchConfig struct {
	Threshold            float64  `json:"threshold" yaml:"threshold"`                           // NCC score, or fraction of the peak in raw mode
	MinSeparationSeconds float64  `json:"min_separation_seconds" yaml:"min_separation_seconds"` // between matches
	SampleRate           int      `json:"sample_rate" yaml:"sample_rate"`                       // processing rate in Hz
	BandLow              float64  `json:"band_low" yaml:"band_low"`                             // Hz
	BandHigh             float64  `json:"band_high" yaml:"band_high"`                           // Hz
	SmoothMs             float64  `json:"smooth_ms" yaml:"smooth_ms"`                           // envelope smoothing
	Raw                  bool     `json:"raw" yaml:"raw"`                                       // skip filtering, correlate waveforms
	Start                *float64 `json:"start_seconds,omitempty" yaml:"start_seconds"`         // clip start, nil = 0
	End                  *float64 `json:"end_seconds,omitempty" yaml:"end_seconds"`             // clip end, nil = end of input
	FilterOrder          int      `json:"filter_order" yaml:"filter_order"`                     // Butterworth prototype order
	Envelope             string   `json:"envelope" yaml:"envelope"`                             // "rectify" or "hilbert"
	RawNormalization     string   `json:"raw_normalization" yaml:"raw_normalization"`           // "peak" or "rms"
}

// MaxSampleRate bounds the matcher's processing rate in Hz
const MaxSampleRate = 192000

// DefaultMatchConfig returns the matcher defaults
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		Threshold:            0.6,
		MinSeparationSeconds: 0.5,
		SampleRate:           11025,
		BandLow:              1100,
		BandHigh:             1300,
		SmoothMs:             10,
		Raw:                  false,
		FilterOrder:          4,
		Envelope:             string(temporal.Rectify),
		RawNormalization:     common.Peak.String(),
	}
}

// Validate rejects configuration the matcher cannot run with. The band is
// checked in raw mode too.
func (c MatchConfig) Validate() error {
	if !finite(c.Threshold) || c.Threshold < 0 || c.Threshold > 1 {
		return invalidf("threshold must be in [0, 1], got %g", c.Threshold)
	}
	if !finite(c.MinSeparationSeconds) || c.MinSeparationSeconds <= 0 {
		return invalidf("min_separation_seconds must be positive, got %g", c.MinSeparationSeconds)
	}
	if c.SampleRate <= 0 || c.SampleRate > MaxSampleRate {
		return invalidf("sample_rate must be in (0, %d], got %d", MaxSampleRate, c.SampleRate)
	}

	nyquist := float64(c.SampleRate) / 2
	if !finite(c.BandLow) || !finite(c.BandHigh) || !(c.BandLow > 0 && c.BandLow < c.BandHigh && c.BandHigh < nyquist) {
		return invalidf("band [%g, %g] Hz must satisfy 0 < low < high < %g", c.BandLow, c.BandHigh, nyquist)
	}

	if !finite(c.SmoothMs) || c.SmoothMs <= 0 {
		return invalidf("smooth_ms must be positive, got %g", c.SmoothMs)
	}

	if c.Start != nil && (!finite(*c.Start) || *c.Start < 0) {
		return invalidf("start_seconds must be >= 0, got %g", *c.Start)
	}
	if c.End != nil && (!finite(*c.End) || *c.End <= 0) {
		return invalidf("end_seconds must be positive, got %g", *c.End)
	}
	if c.Start != nil && c.End != nil && *c.End <= *c.Start {
		return invalidf("end_seconds (%g) must be after start_seconds (%g)", *c.End, *c.Start)
	}

	if c.FilterOrder < 1 || c.FilterOrder > filters.MaxOrder {
		return invalidf("filter_order must be between 1 and %d, got %d", filters.MaxOrder, c.FilterOrder)
	}
	if _, err := temporal.ParseEnvelopeType(c.Envelope); err != nil {
		return invalidf("%v", err)
	}
	if _, err := common.ParseNormalizationType(c.RawNormalization); err != nil {
		return invalidf("%v", err)
	}
	return nil
}

// ClipBounds returns the clip range in seconds, with end < 0 meaning "to the
// end of the input".
func (c MatchConfig) ClipBounds() (start, end float64) {
	start, end = 0, -1
	if c.Start != nil {
		start = *c.Start
	}
	if c.End != nil {
		end = *c.End
	}
	return start, end
}

// ServerConfig configures the HTTP service
type ServerConfig struct {
	Addr                string        `json:"addr" yaml:"addr"`
	DefaultTemplatePath string        `json:"default_template_path" yaml:"default_template_path"`
	ReportDir           string        `json:"report_dir" yaml:"report_dir"`
	MaxUploadBytes      int64         `json:"max_upload_bytes" yaml:"max_upload_bytes"`
	ReadTimeout         time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout" yaml:"write_timeout"`
	RequestTimeout      time.Duration `json:"request_timeout" yaml:"request_timeout"`
}

// DefaultServerConfig returns the service defaults
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:                ":8000",
		DefaultTemplatePath: "static/beep_template.wav",
		ReportDir:           os.TempDir(),
		MaxUploadBytes:      100 << 20,
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        2 * time.Minute,
		RequestTimeout:      90 * time.Second,
	}
}

// Validate rejects unusable service settings
func (c ServerConfig) Validate() error {
	if c.Addr == "" {
		return invalidf("server addr must not be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return invalidf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes)
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.RequestTimeout <= 0 {
		return invalidf("server timeouts must be positive")
	}
	if c.ReportDir == "" {
		return invalidf("report_dir must not be empty")
	}
	return nil
}

// Settings is the complete configuration of the CLI and the service
type Settings struct {
	LogLevel string         `json:"log_level" yaml:"log_level"`
	Spectral SpectralConfig `json:"spectral" yaml:"spectral"`
	Match    MatchConfig    `json:"match" yaml:"match"`
	Server   ServerConfig   `json:"server" yaml:"server"`
}

// DefaultSettings returns every section at its defaults
func DefaultSettings() *Settings {
	return &Settings{
		LogLevel: "info",
		Spectral: DefaultSpectralConfig(),
		Match:    DefaultMatchConfig(),
		Server:   DefaultServerConfig(),
	}
}

// Validate checks every section
func (s *Settings) Validate() error {
	if err := s.Spectral.Validate(); err != nil {
		return fmt.Errorf("spectral: %w", err)
	}
	if err := s.Match.Validate(); err != nil {
		return fmt.Errorf("match: %w", err)
	}
	if err := s.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// LoadFile reads a YAML file over the defaults. Keys missing from the file
// keep their default values.
func LoadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults
func Parse(data []byte) (*Settings, error) {
	settings := DefaultSettings()
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidParameter, err)
	}
	return settings, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
