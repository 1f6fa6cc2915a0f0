package detector

import (
	"errors"
	"math"
	"testing"

	"github.com/RyanBlaney/beep-sonar/config"
	"github.com/RyanBlaney/beep-sonar/logging"
	"github.com/RyanBlaney/beep-sonar/waveform"
)

func newSpectral(t *testing.T, mutate func(c *config.SpectralConfig)) *SpectralDetector {
	t.Helper()
	cfg := config.DefaultSpectralConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := NewSpectralDetector(cfg, &logging.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewSpectralDetector failed: %v", err)
	}
	return d
}

func TestSpectralDetectsBeeps(t *testing.T) {
	d := newSpectral(t, nil)

	result, err := d.Detect(recording(30, testRate, 0.001, 10, 20))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(result.Detections) != 2 {
		t.Fatalf("got %d detections (%v), expected 2", len(result.Detections), Timestamps(result.Detections))
	}

	// One hop is about 93 ms at the default window
	for i, expected := range []float64{10, 20} {
		got := result.Detections[i].Seconds
		if math.Abs(got-expected) > 0.1 {
			t.Errorf("detection %d at %.3fs, expected about %.1fs", i, got, expected)
		}
	}

	if result.Threshold != result.ReferenceLevel*5 {
		t.Errorf("threshold %v is not 5x the reference %v", result.Threshold, result.ReferenceLevel)
	}
	if result.Config.HopSize != 1024 {
		t.Errorf("effective hop = %d, expected 1024", result.Config.HopSize)
	}
	if result.Frames != 1+len(recording(30, testRate, 0).Samples)/1024 {
		t.Errorf("frames = %d", result.Frames)
	}
}

func TestSpectralTwoBeepsAt22050(t *testing.T) {
	d := newSpectral(t, nil)

	result, err := d.Detect(recording(30, 22050, 0, 10, 20))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(result.Detections) != 2 {
		t.Fatalf("got %d detections (%v), expected 2", len(result.Detections), Timestamps(result.Detections))
	}
	for i, expected := range []float64{10, 20} {
		if got := result.Detections[i].Seconds; math.Abs(got-expected) > 0.1 {
			t.Errorf("detection %d at %.3fs, expected about %.1fs", i, got, expected)
		}
	}
}

func TestSpectralIgnoresOtherFrequencies(t *testing.T) {
	d := newSpectral(t, nil)

	// A noise floor keeps the reference level above the tone's edge leakage
	w := recording(10, testRate, 0.01)
	for i, v := range tone(3000, 0.05, testRate, 0.5) {
		w.Samples[5*testRate+i] += v
	}

	result, err := d.Detect(w)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(result.Detections) != 0 {
		t.Errorf("out-of-band tone gave detections %v", Timestamps(result.Detections))
	}
}

func TestSpectralEmptyAndSilent(t *testing.T) {
	d := newSpectral(t, nil)

	tests := []struct {
		name string
		w    waveform.Waveform
	}{
		{name: "empty", w: waveform.New(nil, testRate)},
		{name: "silent", w: waveform.New(make([]float64, 5*testRate), testRate)},
		{name: "shorter than a window", w: waveform.New([]float64{0.1, -0.2, 0.3}, testRate)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := d.Detect(tt.w)
			if err != nil {
				t.Fatalf("Detect failed: %v", err)
			}
			if result.Detections == nil || len(result.Detections) > 1 {
				t.Errorf("detections = %v", result.Detections)
			}
		})
	}
}

func TestSpectralSeparation(t *testing.T) {
	w := recording(20, testRate, 0.001, 8, 9)

	apart := newSpectral(t, nil)
	result, err := apart.Detect(w)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(result.Detections) != 2 {
		t.Fatalf("without separation got %d detections, expected 2", len(result.Detections))
	}

	merged := newSpectral(t, func(c *config.SpectralConfig) { c.MinSeparationSeconds = 2 })
	result, err = merged.Detect(w)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(result.Detections) != 1 {
		t.Fatalf("with 2s separation got %d detections, expected 1", len(result.Detections))
	}
}

func TestSpectralDeterministic(t *testing.T) {
	d := newSpectral(t, func(c *config.SpectralConfig) { c.WindowSize = 1024 })
	w := recording(15, testRate, 0.01, 3, 7.5, 12)

	first, err := d.Detect(w)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	for range 3 {
		again, err := d.Detect(w)
		if err != nil {
			t.Fatalf("Detect failed: %v", err)
		}
		if len(again.Detections) != len(first.Detections) {
			t.Fatalf("run gave %d detections, first run %d", len(again.Detections), len(first.Detections))
		}
		for i := range first.Detections {
			if again.Detections[i] != first.Detections[i] {
				t.Fatalf("detection %d differs: %+v vs %+v", i, again.Detections[i], first.Detections[i])
			}
		}
	}
}

func TestSpectralHigherMultiplierFindsSubset(t *testing.T) {
	w := recording(20, testRate, 0.001, 4, 9, 15)

	low, err := newSpectral(t, func(c *config.SpectralConfig) { c.ThresholdMultiplier = 2 }).Detect(w)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	high, err := newSpectral(t, func(c *config.SpectralConfig) { c.ThresholdMultiplier = 20 }).Detect(w)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	lowFrames := make(map[int]bool)
	for _, d := range low.Detections {
		lowFrames[d.Index] = true
	}
	for _, d := range high.Detections {
		if !lowFrames[d.Index] {
			t.Errorf("frame %d detected at the higher multiplier only", d.Index)
		}
	}
}

func TestSpectralErrors(t *testing.T) {
	if _, err := NewSpectralDetector(config.SpectralConfig{FreqLow: 1300, FreqHigh: 1100, ThresholdMultiplier: 5, WindowSize: 4096}, nil); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("inverted band: %v, expected ErrInvalidParameter", err)
	}

	d := newSpectral(t, nil)

	if _, err := d.Detect(waveform.New([]float64{0.1, 0.2}, 0)); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("zero sample rate: %v, expected ErrInvalidParameter", err)
	}

	w := recording(2, testRate, 0.01, 1)
	w.Samples[100] = math.NaN()

	_, err := d.Detect(w)
	var pe *ProcessingError
	if !errors.As(err, &pe) || pe.Stage != config.StageInput {
		t.Errorf("NaN input: %v, expected an input-stage ProcessingError", err)
	}
}
