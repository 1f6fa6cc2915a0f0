package config

import (
	"strconv"
	"strings"
)

// LookupFunc has the signature of os.LookupEnv
type LookupFunc func(key string) (string, bool)

// Environment variables understood by ApplyEnv
const (
	EnvThreshold       = "BEEP_THRESHOLD"
	EnvMinSeparation   = "BEEP_MIN_SEP"
	EnvSampleRate      = "BEEP_SR"
	EnvBandLow         = "BEEP_BAND_LOW"
	EnvBandHigh        = "BEEP_BAND_HIGH"
	EnvSmoothMs        = "BEEP_SMOOTH_MS"
	EnvRaw             = "BEEP_RAW"
	EnvStart           = "BEEP_START_S"
	EnvEnd             = "BEEP_END_S"
	EnvFreqLow         = "BEEP_FREQ_LOW"
	EnvFreqHigh        = "BEEP_FREQ_HIGH"
	EnvMultiplier      = "BEEP_MULTIPLIER"
	EnvWindow          = "BEEP_WINDOW"
	EnvHop             = "BEEP_HOP"
	EnvDefaultTemplate = "DEFAULT_TEMPLATE_PATH"
	EnvAddr            = "BEEP_ADDR"
	EnvLogLevel        = "BEEP_LOG_LEVEL"
)

// ApplyEnv overrides settings from the environment. Variables that are unset
// or empty leave the current value alone; a value that does not parse is an
// ErrInvalidParameter rather than a silent fallback.
func (s *Settings) ApplyEnv(lookup LookupFunc) error {
	env := envReader{lookup: lookup}

	env.setFloat(EnvThreshold, &s.Match.Threshold)
	env.setFloat(EnvMinSeparation, &s.Match.MinSeparationSeconds)
	env.setInt(EnvSampleRate, &s.Match.SampleRate)
	env.setFloat(EnvBandLow, &s.Match.BandLow)
	env.setFloat(EnvBandHigh, &s.Match.BandHigh)
	env.setFloat(EnvSmoothMs, &s.Match.SmoothMs)
	env.setBool(EnvRaw, &s.Match.Raw)
	env.setOptionalFloat(EnvStart, &s.Match.Start)
	env.setOptionalFloat(EnvEnd, &s.Match.End)

	env.setFloat(EnvFreqLow, &s.Spectral.FreqLow)
	env.setFloat(EnvFreqHigh, &s.Spectral.FreqHigh)
	env.setFloat(EnvMultiplier, &s.Spectral.ThresholdMultiplier)
	env.setInt(EnvWindow, &s.Spectral.WindowSize)
	env.setInt(EnvHop, &s.Spectral.HopSize)

	env.setString(EnvDefaultTemplate, &s.Server.DefaultTemplatePath)
	env.setString(EnvAddr, &s.Server.Addr)
	env.setString(EnvLogLevel, &s.LogLevel)

	return env.err
}

// envReader keeps the first parse error so that ApplyEnv reads linearly
type envReader struct {
	lookup LookupFunc
	err    error
}

func (r *envReader) value(key string) (string, bool) {
	if r.err != nil || r.lookup == nil {
		return "", false
	}
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *envReader) setString(key string, dst *string) {
	if v, ok := r.value(key); ok {
		*dst = v
	}
}

func (r *envReader) setFloat(key string, dst *float64) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.err = invalidf("%s=%q is not a number", key, v)
		return
	}
	*dst = f
}

func (r *envReader) setOptionalFloat(key string, dst **float64) {
	var f float64
	if _, ok := r.value(key); !ok {
		return
	}
	r.setFloat(key, &f)
	if r.err == nil {
		*dst = &f
	}
}

func (r *envReader) setInt(key string, dst *int) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.err = invalidf("%s=%q is not an integer", key, v)
		return
	}
	*dst = n
}

func (r *envReader) setBool(key string, dst *bool) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	b, err := ParseBool(v)
	if err != nil {
		r.err = invalidf("%s=%q is not a boolean", key, v)
		return
	}
	*dst = b
}

// ParseBool accepts the spellings the service has always taken for flags:
// 1/0, true/false, yes/no, on/off.
func ParseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, strconv.ErrSyntax
	}
}
