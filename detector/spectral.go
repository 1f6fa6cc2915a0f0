package detector

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/beep-sonar/algorithms/common"
	"github.com/RyanBlaney/beep-sonar/algorithms/peaks"
	"github.com/RyanBlaney/beep-sonar/algorithms/spectral"
	"github.com/RyanBlaney/beep-sonar/algorithms/windowing"
	"github.com/RyanBlaney/beep-sonar/config"
	"github.com/RyanBlaney/beep-sonar/logging"
	"github.com/RyanBlaney/beep-sonar/waveform"
)

// SpectralResult holds the detections of one SpectralDetector run
type SpectralResult struct {
	Detections     []Detection           `json:"detections"`
	ReferenceLevel float64               `json:"reference_level"` // Mean band energy
	Threshold      float64               `json:"threshold"`       // ReferenceLevel x multiplier
	Frames         int                   `json:"frames"`
	SampleRate     int                   `json:"sample_rate"`
	Config         config.SpectralConfig `json:"config"`
}

// SpectralDetector reports beeps as frames whose band energy rises well above
// the mean band energy of the whole input.
type SpectralDetector struct {
	config config.SpectralConfig
	hop    int
	stft   *spectral.STFT
	logger logging.Logger
}

// NewSpectralDetector validates cfg and prepares the STFT. A nil logger uses
// the global logger.
func NewSpectralDetector(cfg config.SpectralConfig, logger logging.Logger) (*SpectralDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	kind, err := windowing.ParseKind(cfg.Window)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}

	window, err := windowing.New(kind, cfg.WindowSize, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}

	hop := cfg.EffectiveHop()
	logger = logging.OrGlobal(logger)

	stft, err := spectral.NewSTFT(cfg.WindowSize, hop, window, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}

	return &SpectralDetector{
		config: cfg,
		hop:    hop,
		stft:   stft,
		logger: logger,
	}, nil
}

// Config returns the effective configuration, with the hop resolved
func (d *SpectralDetector) Config() config.SpectralConfig {
	cfg := d.config
	cfg.HopSize = d.hop
	return cfg
}

// Detect runs the detector over w. Empty and silent input yield an empty
// result without error.
func (d *SpectralDetector) Detect(w waveform.Waveform) (*SpectralResult, error) {
	logger := d.logger.WithFields(logging.Fields{
		"component": "spectral_detector",
		"function":  "Detect",
	})

	result := &SpectralResult{
		Detections: []Detection{},
		SampleRate: w.SampleRate,
		Config:     d.Config(),
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
	if w.IsSilent() {
		return result, nil
	}

	band, err := d.stft.ComputeBandEnergy(w.Samples, w.SampleRate, d.config.FreqLow, d.config.FreqHigh)
	if err != nil {
		return nil, processingError(config.StageSTFT, err)
	}
	result.Frames = band.TimeFrames

	if ok, idx := common.AllFinite(band.Energy); !ok {
		return nil, processingError(config.StageSTFT, fmt.Errorf("band energy of frame %d is not finite", idx))
	}

	reference := common.Mean(band.Energy)
	result.ReferenceLevel = reference
	if reference <= 0 {
		logger.Debug("No energy in band", logging.Fields{
			"bin_low":  band.BinLow,
			"bin_high": band.BinHigh,
		})
		return result, nil
	}

	threshold := reference * d.config.ThresholdMultiplier
	result.Threshold = threshold

	minSepFrames := max(1, int(math.Ceil(d.config.MinSeparationSeconds*float64(w.SampleRate)/float64(d.hop))))

	candidates := peaks.RunMaxima(band.Energy, threshold)
	frames := peaks.Separate(band.Energy, candidates, minSepFrames)

	for _, frame := range frames {
		seconds := d.stft.FrameTime(frame, w.SampleRate)
		result.Detections = append(result.Detections, newDetection(seconds, band.Energy[frame], frame))
	}

	logger.Debug("Spectral detection completed", logging.Fields{
		"frames":     band.TimeFrames,
		"reference":  reference,
		"threshold":  threshold,
		"candidates": len(candidates),
		"detections": len(result.Detections),
	})

	return result, nil
}
