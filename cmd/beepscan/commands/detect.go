package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/beep-sonar/config"
	"github.com/RyanBlaney/beep-sonar/detector"
	"github.com/RyanBlaney/beep-sonar/logging"
	"github.com/RyanBlaney/beep-sonar/transcode"
)

var detectCmd = &cobra.Command{
	Use:   "detect <audio>",
	Short: "Find beeps by band energy",
	Long: `Find beeps as peaks of the energy in a frequency band.

The threshold is the mean band energy times --multiplier. Each run of frames
above it yields one beep at its strongest frame.

Examples:
  beepscan detect recording.wav
  beepscan detect --freq-low 900 --freq-high 1100 --multiplier 8 recording.mp3`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

var (
	detectFreqLow    float64
	detectFreqHigh   float64
	detectMultiplier float64
	detectWindowSize int
	detectHopSize    int
	detectMinSep     float64
	detectWindow     string
)

// DetectOutput is the JSON written by the detect command
type DetectOutput struct {
	Filename       string               `json:"filename"`
	Duration       float64              `json:"duration_s"`
	ReferenceLevel float64              `json:"reference_level"`
	Threshold      float64              `json:"threshold"`
	Detections     []detector.Detection `json:"detections"`
}

func init() {
	defaults := config.DefaultSpectralConfig()

	detectCmd.Flags().Float64Var(&detectFreqLow, "freq-low", defaults.FreqLow, "lower band edge in Hz")
	detectCmd.Flags().Float64Var(&detectFreqHigh, "freq-high", defaults.FreqHigh, "upper band edge in Hz")
	detectCmd.Flags().Float64Var(&detectMultiplier, "multiplier", defaults.ThresholdMultiplier, "threshold as a multiple of the mean band energy")
	detectCmd.Flags().IntVar(&detectWindowSize, "window-size", defaults.WindowSize, "STFT window length in samples (power of two)")
	detectCmd.Flags().IntVar(&detectHopSize, "hop-size", defaults.HopSize, "STFT hop in samples (0 = window/4)")
	detectCmd.Flags().Float64Var(&detectMinSep, "min-separation", defaults.MinSeparationSeconds, "minimum seconds between beeps")
	detectCmd.Flags().StringVar(&detectWindow, "window", defaults.Window, "analysis window: hann, hamming, blackman")

	rootCmd.AddCommand(detectCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	cfg := settings.Spectral
	flagOverride(cmd, "freq-low", detectFreqLow, &cfg.FreqLow)
	flagOverride(cmd, "freq-high", detectFreqHigh, &cfg.FreqHigh)
	flagOverride(cmd, "multiplier", detectMultiplier, &cfg.ThresholdMultiplier)
	flagOverride(cmd, "window-size", detectWindowSize, &cfg.WindowSize)
	flagOverride(cmd, "hop-size", detectHopSize, &cfg.HopSize)
	flagOverride(cmd, "min-separation", detectMinSep, &cfg.MinSeparationSeconds)
	flagOverride(cmd, "window", detectWindow, &cfg.Window)

	logger := logging.GetGlobalLogger().WithFields(logging.Fields{"command": "detect"})

	det, err := detector.NewSpectralDetector(cfg, logger)
	if err != nil {
		return err
	}

	audioData, err := transcode.NewDecoder(nil, logger).DecodeFile(args[0])
	if err != nil {
		return err
	}

	result, err := det.Detect(audioData.Waveform())
	if err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), DetectOutput{
		Filename:       filepath.Base(args[0]),
		Duration:       audioData.Duration.Seconds(),
		ReferenceLevel: result.ReferenceLevel,
		Threshold:      result.Threshold,
		Detections:     result.Detections,
	})
}
