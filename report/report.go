// Package report writes the plain-text listing of template matches that
// operators hand around after a run.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/RyanBlaney/beep-sonar/config"
	"github.com/RyanBlaney/beep-sonar/detector"
)

// sampleSize is how many timestamps Summary shows from each end
const sampleSize = 5

// Report describes one template-matching run
type Report struct {
	Filename   string
	Template   string
	Config     config.MatchConfig
	Detections []detector.Detection
}

// Summary is the JSON answer returned after writing a report
type Summary struct {
	OutputPath  string         `json:"output_path"`
	Count       int            `json:"count"`
	Params      map[string]any `json:"params"`
	SampleFirst []string       `json:"sample_first_5"`
	SampleLast  []string       `json:"sample_last_5"`
}

// DefaultName returns the file name used when the caller does not pick one
func DefaultName(raw bool) string {
	if raw {
		return "beeps_report_raw.txt"
	}
	return "beeps_report_ncc.txt"
}

// Write renders the report: a header with the file names and parameters,
// then one MM:SS.mmm timestamp per line.
func (r *Report) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "filename=%s\n", r.Filename)
	fmt.Fprintf(bw, "template=%s\n", r.Template)
	fmt.Fprintf(bw, "raw=%t threshold=%g min_separation_s=%g sr=%d band=[%g,%g] smooth_ms=%g\n",
		r.Config.Raw, r.Config.Threshold, r.Config.MinSeparationSeconds, r.Config.SampleRate,
		r.Config.BandLow, r.Config.BandHigh, r.Config.SmoothMs)

	for _, d := range r.Detections {
		fmt.Fprintln(bw, d.Timestamp)
	}

	return bw.Flush()
}

// WriteFile writes the report into dir under name. Only the base of name is
// used so that reports cannot escape dir.
func (r *Report) WriteFile(dir, name string) (*Summary, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = DefaultName(r.Config.Raw)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}

	if err := r.Write(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}

	return r.Summary(path), nil
}

// Summary describes the report without its full listing
func (r *Report) Summary(path string) *Summary {
	stamps := detector.Timestamps(r.Detections)

	first := stamps[:min(sampleSize, len(stamps))]
	last := stamps[max(0, len(stamps)-sampleSize):]

	return &Summary{
		OutputPath: path,
		Count:      len(stamps),
		Params: map[string]any{
			"raw":              r.Config.Raw,
			"threshold":        r.Config.Threshold,
			"min_separation_s": r.Config.MinSeparationSeconds,
			"sr":               r.Config.SampleRate,
			"band_low":         r.Config.BandLow,
			"band_high":        r.Config.BandHigh,
			"smooth_ms":        r.Config.SmoothMs,
		},
		SampleFirst: first,
		SampleLast:  last,
	}
}
