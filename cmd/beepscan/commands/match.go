package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/beep-sonar/config"
	"github.com/RyanBlaney/beep-sonar/detector"
	"github.com/RyanBlaney/beep-sonar/logging"
	"github.com/RyanBlaney/beep-sonar/report"
	"github.com/RyanBlaney/beep-sonar/transcode"
)

var matchCmd = &cobra.Command{
	Use:   "match <audio>",
	Short: "Find occurrences of a reference beep",
	Long: `Find occurrences of a reference beep by template correlation.

By default both signals are band-pass filtered, reduced to their envelopes
and compared with normalized cross-correlation, so --threshold is a score
in [0, 1]. With --raw the waveforms are correlated directly and the
threshold is a fraction of the best correlation.

Examples:
  beepscan match --template beep.wav recording.wav
  beepscan match --template beep.wav --raw --threshold 0.5 recording.mp3
  beepscan match --template beep.wav --start 60 --end 120 recording.wav
  beepscan match --template beep.wav --report out/beeps.txt recording.wav`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

var (
	matchTemplate      string
	matchThreshold     float64
	matchMinSep        float64
	matchSampleRate    int
	matchBandLow       float64
	matchBandHigh      float64
	matchSmoothMs      float64
	matchRaw           bool
	matchStart         float64
	matchEnd           float64
	matchFilterOrder   int
	matchEnvelope      string
	matchNormalization string
	matchReport        string
)

// MatchOutput is the JSON written by the match command
type MatchOutput struct {
	Filename   string               `json:"filename"`
	Template   string               `json:"template"`
	Method     string               `json:"method"`
	Height     float64              `json:"height"`
	Detections []detector.Detection `json:"detections"`
	Report     *report.Summary      `json:"report,omitempty"`
}

func init() {
	defaults := config.DefaultMatchConfig()

	matchCmd.Flags().StringVarP(&matchTemplate, "template", "t", "", "reference beep (defaults to DEFAULT_TEMPLATE_PATH)")
	matchCmd.Flags().Float64Var(&matchThreshold, "threshold", defaults.Threshold, "detection threshold in [0, 1]")
	matchCmd.Flags().Float64Var(&matchMinSep, "min-separation", defaults.MinSeparationSeconds, "minimum seconds between matches")
	matchCmd.Flags().IntVar(&matchSampleRate, "sr", defaults.SampleRate, "processing sample rate in Hz")
	matchCmd.Flags().Float64Var(&matchBandLow, "band-low", defaults.BandLow, "band-pass lower edge in Hz")
	matchCmd.Flags().Float64Var(&matchBandHigh, "band-high", defaults.BandHigh, "band-pass upper edge in Hz")
	matchCmd.Flags().Float64Var(&matchSmoothMs, "smooth-ms", defaults.SmoothMs, "envelope smoothing window in ms")
	matchCmd.Flags().BoolVar(&matchRaw, "raw", defaults.Raw, "correlate raw waveforms instead of envelopes")
	matchCmd.Flags().Float64Var(&matchStart, "start", 0, "search from this many seconds")
	matchCmd.Flags().Float64Var(&matchEnd, "end", 0, "search up to this many seconds")
	matchCmd.Flags().IntVar(&matchFilterOrder, "filter-order", defaults.FilterOrder, "Butterworth band-pass order")
	matchCmd.Flags().StringVar(&matchEnvelope, "envelope", defaults.Envelope, "envelope: rectify, hilbert")
	matchCmd.Flags().StringVar(&matchNormalization, "normalization", defaults.RawNormalization, "raw-mode normalization: peak, rms")
	matchCmd.Flags().StringVar(&matchReport, "report", "", "write a text report to this path")

	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	cfg := settings.Match
	flagOverride(cmd, "threshold", matchThreshold, &cfg.Threshold)
	flagOverride(cmd, "min-separation", matchMinSep, &cfg.MinSeparationSeconds)
	flagOverride(cmd, "sr", matchSampleRate, &cfg.SampleRate)
	flagOverride(cmd, "band-low", matchBandLow, &cfg.BandLow)
	flagOverride(cmd, "band-high", matchBandHigh, &cfg.BandHigh)
	flagOverride(cmd, "smooth-ms", matchSmoothMs, &cfg.SmoothMs)
	flagOverride(cmd, "raw", matchRaw, &cfg.Raw)
	flagOverride(cmd, "filter-order", matchFilterOrder, &cfg.FilterOrder)
	flagOverride(cmd, "envelope", matchEnvelope, &cfg.Envelope)
	flagOverride(cmd, "normalization", matchNormalization, &cfg.RawNormalization)
	if cmd.Flags().Changed("start") {
		cfg.Start = &matchStart
	}
	if cmd.Flags().Changed("end") {
		cfg.End = &matchEnd
	}

	templatePath := settings.Server.DefaultTemplatePath
	flagOverride(cmd, "template", matchTemplate, &templatePath)

	logger := logging.GetGlobalLogger().WithFields(logging.Fields{"command": "match"})

	matcher, err := detector.NewTemplateMatcher(cfg, logger)
	if err != nil {
		return err
	}

	decoder := transcode.NewDecoder(nil, logger)
	tmpl, err := transcode.NewTemplateStore(decoder, logger).Load(templatePath)
	if err != nil {
		return err
	}

	audioData, err := decoder.DecodeFile(args[0])
	if err != nil {
		return err
	}

	result, err := matcher.Match(audioData.Waveform(), &tmpl.Waveform)
	if err != nil {
		return err
	}

	out := MatchOutput{
		Filename:   filepath.Base(args[0]),
		Template:   tmpl.Name,
		Method:     result.Method(),
		Height:     result.Height,
		Detections: result.Detections,
	}

	if matchReport != "" {
		rep := &report.Report{
			Filename:   out.Filename,
			Template:   tmpl.Name,
			Config:     result.Config,
			Detections: result.Detections,
		}
		summary, err := rep.WriteFile(filepath.Dir(matchReport), filepath.Base(matchReport))
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		out.Report = summary
	}

	return printJSON(cmd.OutOrStdout(), out)
}
