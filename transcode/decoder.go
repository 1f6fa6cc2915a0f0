package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/RyanBlaney/beep-sonar/algorithms/resample"
	"github.com/RyanBlaney/beep-sonar/config"
	"github.com/RyanBlaney/beep-sonar/logging"
	"github.com/RyanBlaney/beep-sonar/waveform"
)

var (
	// ErrUnsupportedFormat is returned for data none of the decoders recognize
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrDecodeFailed wraps errors raised by the format decoders
	ErrDecodeFailed = errors.New("audio decode failed")
)

// AudioData represents decoded audio data
type AudioData struct {
	PCM        []float64     `json:"-"` // Mono samples in [-1, 1]
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"` // Channels in the source before the downmix
	BitDepth   int           `json:"bit_depth,omitempty"`
	Duration   time.Duration `json:"duration"`
	Format     Format        `json:"format"`
}

// Waveform returns the decoded samples as a Waveform sharing PCM
func (a *AudioData) Waveform() waveform.Waveform {
	return waveform.New(a.PCM, a.SampleRate)
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	TargetSampleRate int           `json:"target_sample_rate" yaml:"target_sample_rate"` // 0 keeps the native rate
	MaxDuration      time.Duration `json:"max_duration" yaml:"max_duration"`             // 0 means no limit
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 0,
		MaxDuration:      0,
	}
}

// Decoder turns encoded audio into mono float samples. WAV, AIFF, MP3 and Ogg
// Vorbis are recognized by their leading bytes.
type Decoder struct {
	config *DecoderConfig
	logger logging.Logger
}

// NewDecoder creates a new audio decoder. Nil arguments take the defaults.
func NewDecoder(config *DecoderConfig, logger logging.Logger) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{config: config, logger: logging.OrGlobal(logger)}
}

// DecodeFile decodes an audio file
func (d *Decoder) DecodeFile(filename string) (*AudioData, error) {
	logger := d.logger.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeFile",
		"filename":  filename,
	})

	logger.Debug("Starting audio file decode")

	data, err := os.ReadFile(filename)
	if err != nil {
		logger.Error(err, "Failed to read audio file")
		return nil, err
	}

	return d.DecodeBytes(data)
}

// DecodeReader decodes audio from an io.Reader
func (d *Decoder) DecodeReader(reader io.Reader) (*AudioData, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		d.logger.Error(err, "Failed to read data from reader", logging.Fields{
			"component": "audio_decoder",
			"function":  "DecodeReader",
		})
		return nil, err
	}

	return d.DecodeBytes(data)
}

// DecodeBytes decodes audio from byte slice
func (d *Decoder) DecodeBytes(data []byte) (*AudioData, error) {
	logger := d.logger.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeBytes",
		"data_size": len(data),
	})

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no audio data", config.ErrEmptyInput)
	}

	format := DetectFormat(data)
	logger.Debug("Audio format detected", logging.Fields{"format": format})

	var (
		audioData *AudioData
		err       error
	)
	switch format {
	case FormatWAV:
		audioData, err = decodeWAV(bytes.NewReader(data))
	case FormatAIFF:
		audioData, err = decodeAIFF(bytes.NewReader(data))
	case FormatMP3:
		audioData, err = decodeMP3(bytes.NewReader(data))
	case FormatOgg:
		audioData, err = decodeOgg(bytes.NewReader(data))
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		logger.Error(err, "Failed to decode audio", logging.Fields{"format": format})
		return nil, fmt.Errorf("%w: %s: %v", ErrDecodeFailed, format, err)
	}
	audioData.Format = format

	if len(audioData.PCM) == 0 {
		return nil, fmt.Errorf("%w: no audio samples decoded", config.ErrEmptyInput)
	}

	if err := d.postProcess(audioData); err != nil {
		return nil, err
	}

	logger.Debug("Audio decode completed", logging.Fields{
		"format":      format,
		"sample_rate": audioData.SampleRate,
		"channels":    audioData.Channels,
		"samples":     len(audioData.PCM),
		"duration":    audioData.Duration,
	})

	return audioData, nil
}

// postProcess truncates to MaxDuration and converts to TargetSampleRate
func (d *Decoder) postProcess(audioData *AudioData) error {
	if d.config.MaxDuration > 0 {
		maxSamples := int(d.config.MaxDuration.Seconds() * float64(audioData.SampleRate))
		if maxSamples < len(audioData.PCM) {
			audioData.PCM = audioData.PCM[:maxSamples]
		}
	}

	if target := d.config.TargetSampleRate; target > 0 && target != audioData.SampleRate {
		converted, err := resample.Convert(audioData.PCM, audioData.SampleRate, target)
		if err != nil {
			return &config.ProcessingError{Stage: config.StageResample, Err: err}
		}
		audioData.PCM = converted
		audioData.SampleRate = target
	}

	audioData.Duration = time.Duration(float64(len(audioData.PCM)) / float64(audioData.SampleRate) * float64(time.Second))
	return nil
}

// GetConfig returns decoder configuration information
func (d *Decoder) GetConfig() map[string]any {
	return map[string]any{
		"target_sample_rate": d.config.TargetSampleRate,
		"max_duration":       d.config.MaxDuration,
		"formats":            d.GetSupportedFormats(),
	}
}

// GetSupportedFormats returns a list of formats supported by this decoder
func (d *Decoder) GetSupportedFormats() []string {
	return []string{
		string(FormatWAV), string(FormatAIFF), string(FormatMP3), string(FormatOgg),
	}
}
