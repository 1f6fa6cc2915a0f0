package spectral

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/RyanBlaney/beep-sonar/algorithms/windowing"
	"github.com/RyanBlaney/beep-sonar/logging"
)

// STFT computes short-time spectra frame by frame and reduces every frame to a
// scalar as soon as it is transformed, so the spectrogram itself is never held
// in memory.
type STFT struct {
	fft        *FFT
	window     *windowing.Window
	windowSize int
	hopSize    int
	center     bool
	logger     logging.Logger
}

// BandEnergyResult holds the per-frame energy inside a frequency band
type BandEnergyResult struct {
	Energy         []float64 `json:"energy"`          // Sum of |X[k]|^2 over the band, per frame
	TimeFrames     int       `json:"time_frames"`     // Number of time frames
	BinLow         int       `json:"bin_low"`         // First bin inside the band
	BinHigh        int       `json:"bin_high"`        // Last bin inside the band (BinHigh < BinLow: empty band)
	SampleRate     int       `json:"sample_rate"`     // Sample rate
	WindowSize     int       `json:"window_size"`     // FFT window size
	HopSize        int       `json:"hop_size"`        // Hop size between frames
	FreqResolution float64   `json:"freq_resolution"` // Frequency resolution (Hz/bin)
	TimeResolution float64   `json:"time_resolution"` // Time resolution (seconds/frame)
}

// NewSTFT creates an STFT with centered frames: frame i covers the samples
// around i*hopSize, with zeros outside the signal.
func NewSTFT(windowSize, hopSize int, window *windowing.Window, logger logging.Logger) (*STFT, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}

	if hopSize <= 0 || hopSize > windowSize {
		return nil, fmt.Errorf("hop size must be in (0, %d], got %d", windowSize, hopSize)
	}

	if window != nil && window.GetSize() != windowSize {
		return nil, fmt.Errorf("window length (%d) doesn't match window size (%d)", window.GetSize(), windowSize)
	}

	return &STFT{
		fft:        NewFFT(),
		window:     window,
		windowSize: windowSize,
		hopSize:    hopSize,
		center:     true,
		logger:     logging.OrGlobal(logger),
	}, nil
}

// NumFrames returns how many frames a signal of numSamples produces
func (s *STFT) NumFrames(numSamples int) int {
	if numSamples <= 0 {
		return 0
	}

	if s.center {
		return 1 + numSamples/s.hopSize
	}

	if numSamples < s.windowSize {
		return 0
	}
	return (numSamples-s.windowSize)/s.hopSize + 1
}

// FrameTime returns the time in seconds that frame i is anchored to
func (s *STFT) FrameTime(frame, sampleRate int) float64 {
	return float64(frame*s.hopSize) / float64(sampleRate)
}

// BandBins returns the inclusive bin range whose center frequency
// bin*sampleRate/windowSize lies in [lowHz, highHz]. hi < lo when no bin does.
func BandBins(sampleRate, windowSize int, lowHz, highHz float64) (lo, hi int) {
	freq := func(bin int) float64 {
		return float64(bin) * float64(sampleRate) / float64(windowSize)
	}
	nyquistBin := windowSize / 2

	lo = int(math.Ceil(lowHz * float64(windowSize) / float64(sampleRate)))
	if lo > 0 && freq(lo-1) >= lowHz {
		lo--
	}
	lo = max(lo, 0)

	hi = int(math.Floor(highHz * float64(windowSize) / float64(sampleRate)))
	if freq(hi+1) <= highHz {
		hi++
	}
	hi = min(hi, nyquistBin)

	return lo, hi
}

// ComputeBandEnergy runs the STFT over signal and returns, for every frame,
// the energy of the bins inside [lowHz, highHz].
func (s *STFT) ComputeBandEnergy(signal []float64, sampleRate int, lowHz, highHz float64) (*BandEnergyResult, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive")
	}

	numFrames := s.NumFrames(len(signal))
	binLow, binHigh := BandBins(sampleRate, s.windowSize, lowHz, highHz)
	energy := make([]float64, numFrames)

	result := &BandEnergyResult{
		Energy:         energy,
		TimeFrames:     numFrames,
		BinLow:         binLow,
		BinHigh:        binHigh,
		SampleRate:     sampleRate,
		WindowSize:     s.windowSize,
		HopSize:        s.hopSize,
		FreqResolution: float64(sampleRate) / float64(s.windowSize),
		TimeResolution: float64(s.hopSize) / float64(sampleRate),
	}

	if numFrames == 0 || binHigh < binLow {
		return result, nil
	}

	numWorkers := s.getOptimalWorkerCount(numFrames)

	s.logger.Debug("Computing band energy", logging.Fields{
		"component":   "stft",
		"frames":      numFrames,
		"bin_low":     binLow,
		"bin_high":    binHigh,
		"num_workers": numWorkers,
	})

	jobs := make(chan int, numFrames)

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)

	offset := 0
	if s.center {
		offset = s.windowSize / 2
	}

	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Reuse frame buffer for this worker
			frameBuffer := make([]float64, s.windowSize)

			for frameIdx := range jobs {
				start := frameIdx*s.hopSize - offset
				for j := range frameBuffer {
					idx := start + j
					if idx >= 0 && idx < len(signal) {
						frameBuffer[j] = signal[idx]
					} else {
						frameBuffer[j] = 0
					}
				}

				if s.window != nil {
					if err := s.window.ApplyInPlace(frameBuffer); err != nil {
						errMu.Lock()
						if firstErr == nil {
							firstErr = fmt.Errorf("frame %d: %w", frameIdx, err)
						}
						errMu.Unlock()
						continue
					}
				}

				spectrum := s.fft.Compute(frameBuffer)

				sum := 0.0
				for k := binLow; k <= binHigh; k++ {
					re, im := real(spectrum[k]), imag(spectrum[k])
					sum += re*re + im*im
				}
				energy[frameIdx] = sum
			}
		}()
	}

	for frameIdx := range numFrames {
		jobs <- frameIdx
	}
	close(jobs)

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	return result, nil
}

// getOptimalWorkerCount determines the optimal number of workers based on workload
func (s *STFT) getOptimalWorkerCount(numFrames int) int {
	numCPU := runtime.NumCPU()

	// For small workloads, don't over-parallelize
	if numFrames < 100 {
		return max(1, min(numCPU/2, numFrames))
	}

	// For medium workloads, use most CPUs
	if numFrames < 1000 {
		return min(numCPU, 8)
	}

	return numCPU
}
