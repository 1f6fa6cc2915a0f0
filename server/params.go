package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/RyanBlaney/beep-sonar/config"
)

// formReader reads optional request parameters from the query string or the
// multipart form. Absent or empty values keep the current setting; values
// that do not parse are reported as ErrInvalidParameter.
type formReader struct {
	r   *http.Request
	err error
}

func (f *formReader) value(name string) (string, bool) {
	if f.err != nil {
		return "", false
	}
	v := strings.TrimSpace(f.r.FormValue(name))
	return v, v != ""
}

func (f *formReader) float(name string, dst *float64) {
	v, ok := f.value(name)
	if !ok {
		return
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		f.err = fmt.Errorf("%w: %s=%q is not a number", config.ErrInvalidParameter, name, v)
		return
	}
	*dst = parsed
}

func (f *formReader) optionalFloat(name string, dst **float64) {
	if _, ok := f.value(name); !ok {
		return
	}
	var parsed float64
	f.float(name, &parsed)
	if f.err == nil {
		*dst = &parsed
	}
}

func (f *formReader) integer(name string, dst *int) {
	v, ok := f.value(name)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		f.err = fmt.Errorf("%w: %s=%q is not an integer", config.ErrInvalidParameter, name, v)
		return
	}
	*dst = parsed
}

func (f *formReader) boolean(name string, dst *bool) {
	v, ok := f.value(name)
	if !ok {
		return
	}
	parsed, err := config.ParseBool(v)
	if err != nil {
		f.err = fmt.Errorf("%w: %s=%q is not a boolean", config.ErrInvalidParameter, name, v)
		return
	}
	*dst = parsed
}

func (f *formReader) text(name string, dst *string) {
	if v, ok := f.value(name); ok {
		*dst = v
	}
}

// matchParams applies the template-matching parameters of r over base
func matchParams(r *http.Request, base config.MatchConfig) (config.MatchConfig, error) {
	cfg := base
	f := &formReader{r: r}

	f.float("threshold", &cfg.Threshold)
	f.float("min_separation_s", &cfg.MinSeparationSeconds)
	f.integer("sr_target", &cfg.SampleRate)
	f.float("band_low", &cfg.BandLow)
	f.float("band_high", &cfg.BandHigh)
	f.float("smooth_ms", &cfg.SmoothMs)
	f.boolean("raw", &cfg.Raw)
	f.optionalFloat("start_s", &cfg.Start)
	f.optionalFloat("end_s", &cfg.End)
	f.integer("filter_order", &cfg.FilterOrder)
	f.text("envelope", &cfg.Envelope)
	f.text("raw_normalization", &cfg.RawNormalization)

	if f.err != nil {
		return cfg, f.err
	}
	return cfg, cfg.Validate()
}

// spectralParams applies the band-energy parameters of r over base
func spectralParams(r *http.Request, base config.SpectralConfig) (config.SpectralConfig, error) {
	cfg := base
	f := &formReader{r: r}

	f.float("freq_low", &cfg.FreqLow)
	f.float("freq_high", &cfg.FreqHigh)
	f.float("multiplier", &cfg.ThresholdMultiplier)
	f.integer("window_size", &cfg.WindowSize)
	f.integer("hop_size", &cfg.HopSize)
	f.float("min_separation_s", &cfg.MinSeparationSeconds)
	f.text("window", &cfg.Window)

	if f.err != nil {
		return cfg, f.err
	}
	return cfg, cfg.Validate()
}
