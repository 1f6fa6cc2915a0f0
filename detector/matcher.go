package detector

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/beep-sonar/algorithms/common"
	"github.com/RyanBlaney/beep-sonar/algorithms/filters"
	"github.com/RyanBlaney/beep-sonar/algorithms/peaks"
	"github.com/RyanBlaney/beep-sonar/algorithms/resample"
	"github.com/RyanBlaney/beep-sonar/algorithms/stats"
	"github.com/RyanBlaney/beep-sonar/algorithms/temporal"
	"github.com/RyanBlaney/beep-sonar/config"
	"github.com/RyanBlaney/beep-sonar/logging"
	"github.com/RyanBlaney/beep-sonar/waveform"
	"gonum.org/v1/gonum/floats"
)

// MinTemplateSamples is the shortest template, at the processing rate, the
// matcher accepts.
const MinTemplateSamples = 10

// MatchResult holds the detections of one TemplateMatcher run
type MatchResult struct {
	Detections  []Detection        `json:"detections"`
	Height      float64            `json:"height"`       // Score a peak had to reach
	TraceLength int                `json:"trace_length"` // Number of offsets scored
	ClipOffset  int                `json:"clip_offset"`  // First analyzed sample at SampleRate
	SampleRate  int                `json:"sample_rate"`
	Config      config.MatchConfig `json:"config"`
}

// Method names the scoring used for a configuration
func (r *MatchResult) Method() string {
	if !r.Config.Raw {
		return "ncc"
	}
	if r.Config.RawNormalization == common.RMSNorm.String() {
		return "cross_correlation"
	}
	return "raw"
}

// TemplateMatcher finds occurrences of a reference beep.
//
// In envelope mode (the default) both signals are band-passed with a
// zero-phase Butterworth filter, turned into amplitude envelopes and smoothed;
// the score at each offset is the normalized cross-correlation of the two
// envelopes, in [0, 1]. In raw mode the normalized waveforms are correlated
// directly and a peak must reach Threshold times the highest correlation.
type TemplateMatcher struct {
	config     config.MatchConfig
	filter     *filters.BandpassFilter
	envelope   *temporal.Envelope
	smoothing  int
	normalizer *common.Normalizer
	corr       *stats.CrossCorrelation
	logger     logging.Logger
}

// NewTemplateMatcher validates cfg and designs the band-pass. A nil logger
// uses the global logger.
func NewTemplateMatcher(cfg config.MatchConfig, logger logging.Logger) (*TemplateMatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	envelopeType, err := temporal.ParseEnvelopeType(cfg.Envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	normalization, err := common.ParseNormalizationType(cfg.RawNormalization)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}

	filter, err := filters.NewBandpassFilter(cfg.SampleRate, cfg.FilterOrder, cfg.BandLow, cfg.BandHigh)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}

	cfg.Envelope = string(envelopeType)
	cfg.RawNormalization = normalization.String()

	m := &TemplateMatcher{
		config:     cfg,
		filter:     filter,
		envelope:   temporal.NewEnvelope(envelopeType),
		smoothing:  temporal.SmoothingWindow(cfg.SampleRate, cfg.SmoothMs),
		normalizer: common.NewNormalizer(normalization),
		corr:       stats.NewCrossCorrelation(),
		logger:     logging.OrGlobal(logger),
	}

	low, high, order := filter.GetParameters()
	lowGain, _ := filter.GetFrequencyResponse(low)
	highGain, _ := filter.GetFrequencyResponse(high)
	m.logger.Debug("Band-pass filter designed", logging.Fields{
		"component":    "template_matcher",
		"band_low":     low,
		"band_high":    high,
		"order":        order,
		"sections":     len(filter.Sections()),
		"low_edge_db":  decibels(lowGain),
		"high_edge_db": decibels(highGain),
	})

	return m, nil
}

func decibels(magnitude float64) float64 {
	return math.Round(20*math.Log10(magnitude)*100) / 100
}

// Config returns the effective configuration
func (m *TemplateMatcher) Config() config.MatchConfig {
	return m.config
}

// Match scores tmpl against w and returns the accepted offsets in ascending
// order. Offsets are relative to the start of w, also when a clip range is
// configured.
func (m *TemplateMatcher) Match(w waveform.Waveform, tmpl *waveform.Waveform) (*MatchResult, error) {
	logger := m.logger.WithFields(logging.Fields{
		"component": "template_matcher",
		"function":  "Match",
		"raw":       m.config.Raw,
		"envelope":  m.envelope.Type(),
	})

	if err := checkTemplate(tmpl); err != nil {
		return nil, err
	}

	result := &MatchResult{
		Detections: []Detection{},
		SampleRate: m.config.SampleRate,
		Config:     m.config,
	}

	if w.IsEmpty() {
		return result, nil
	}
	if w.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidParameter, w.SampleRate)
	}
	if err := w.CheckFinite(); err != nil {
		return nil, processingError(config.StageInput, err)
	}

	target, err := m.toProcessingRate(w)
	if err != nil {
		return nil, err
	}
	template, err := m.toProcessingRate(*tmpl)
	if err != nil {
		return nil, err
	}
	if template.Len() < MinTemplateSamples {
		return nil, fmt.Errorf("%w: template has %d samples at %d Hz, need at least %d",
			ErrTemplateUnavailable, template.Len(), m.config.SampleRate, MinTemplateSamples)
	}

	start, end := m.config.ClipBounds()
	clipped, clipOffset := target.Clip(start, end)
	result.ClipOffset = clipOffset

	if clipped.Len() < template.Len() {
		logger.Debug("Input shorter than template", logging.Fields{
			"input_samples":    clipped.Len(),
			"template_samples": template.Len(),
		})
		return result, nil
	}

	var (
		trace  []float64
		height float64
	)
	if m.config.Raw {
		trace, height, err = m.rawTrace(clipped.Samples, template.Samples)
	} else {
		trace, height, err = m.envelopeTrace(clipped.Samples, template.Samples)
	}
	if err != nil {
		return nil, err
	}

	result.TraceLength = len(trace)
	result.Height = height
	if trace == nil {
		return result, nil
	}

	minSep := peaks.SeparationSamples(m.config.MinSeparationSeconds, float64(m.config.SampleRate))
	for _, idx := range peaks.Pick(trace, height, minSep) {
		seconds := float64(idx+clipOffset) / float64(m.config.SampleRate)
		result.Detections = append(result.Detections, newDetection(seconds, trace[idx], idx+clipOffset))
	}

	logger.Debug("Template matching completed", logging.Fields{
		"trace_length": len(trace),
		"height":       height,
		"clip_offset":  clipOffset,
		"detections":   len(result.Detections),
	})

	return result, nil
}

// envelopeTrace scores every offset by the NCC of the smoothed envelopes
func (m *TemplateMatcher) envelopeTrace(signal, template []float64) ([]float64, float64, error) {
	templateEnv := m.preprocess(template)
	if floats.Dot(templateEnv, templateEnv) == 0 {
		return nil, 0, fmt.Errorf("%w: template has no energy in [%g, %g] Hz",
			ErrTemplateUnavailable, m.config.BandLow, m.config.BandHigh)
	}

	signalEnv := m.preprocess(signal)
	if ok, idx := common.AllFinite(signalEnv); !ok {
		return nil, 0, processingError(config.StageFilter, fmt.Errorf("envelope sample %d is not finite", idx))
	}

	ncc, err := m.corr.Normalized(signalEnv, templateEnv)
	if err != nil {
		return nil, 0, processingError(config.StageCorrelation, err)
	}

	return ncc, m.config.Threshold, nil
}

// rawTrace correlates the normalized waveforms; the height is relative to the
// best correlation. A trace that never rises above zero matches nothing.
func (m *TemplateMatcher) rawTrace(signal, template []float64) ([]float64, float64, error) {
	corr, err := m.corr.Valid(m.normalizer.Normalize(signal), m.normalizer.Normalize(template))
	if err != nil {
		return nil, 0, processingError(config.StageCorrelation, err)
	}

	peak, _ := common.Max(corr)
	if !(peak > 0) {
		return nil, 0, nil
	}

	return corr, m.config.Threshold * peak, nil
}

// preprocess band-passes, rectifies and smooths a signal
func (m *TemplateMatcher) preprocess(signal []float64) []float64 {
	filtered := m.filter.FiltFilt(signal)
	env := m.envelope.Compute(filtered)
	return m.envelope.ComputeSmoothed(env, m.smoothing)
}

// toProcessingRate resamples w to the configured rate when needed
func (m *TemplateMatcher) toProcessingRate(w waveform.Waveform) (waveform.Waveform, error) {
	if w.SampleRate == m.config.SampleRate {
		return w, nil
	}

	samples, err := resample.Convert(w.Samples, w.SampleRate, m.config.SampleRate)
	if err != nil {
		return waveform.Waveform{}, processingError(config.StageResample, err)
	}
	if ok, idx := common.AllFinite(samples); !ok {
		return waveform.Waveform{}, processingError(config.StageResample, fmt.Errorf("sample %d is not finite", idx))
	}

	return waveform.New(samples, m.config.SampleRate), nil
}

// checkTemplate rejects templates that cannot be matched
func checkTemplate(tmpl *waveform.Waveform) error {
	switch {
	case tmpl == nil:
		return fmt.Errorf("%w: no template", ErrTemplateUnavailable)
	case tmpl.IsEmpty():
		return fmt.Errorf("%w: template is empty", ErrTemplateUnavailable)
	case tmpl.SampleRate <= 0:
		return fmt.Errorf("%w: template sample rate must be positive, got %d", ErrTemplateUnavailable, tmpl.SampleRate)
	}

	if err := tmpl.CheckFinite(); err != nil {
		return fmt.Errorf("%w: %v", ErrTemplateUnavailable, err)
	}
	if tmpl.IsSilent() {
		return fmt.Errorf("%w: template is silent", ErrTemplateUnavailable)
	}
	return nil
}
