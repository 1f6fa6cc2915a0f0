package detector

import (
	"math"
	"math/rand/v2"

	"github.com/RyanBlaney/beep-sonar/waveform"
)

const (
	testRate      = 11025
	beepFreq      = 1200.0
	beepSeconds   = 0.05
	paddingSecs   = 0.05
	beepAmplitude = 0.5
)

// tone returns seconds of a sine starting at phase zero
func tone(freq, seconds float64, sampleRate int, amplitude float64) []float64 {
	out := make([]float64, int(seconds*float64(sampleRate)))
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

// recording returns seconds of silence (or seeded noise when noise > 0) with
// a beep starting at every offset in beeps
func recording(seconds float64, sampleRate int, noise float64, beeps ...float64) waveform.Waveform {
	samples := make([]float64, int(seconds*float64(sampleRate)))
	if noise > 0 {
		rng := rand.New(rand.NewPCG(7, 11))
		for i := range samples {
			samples[i] = noise * (2*rng.Float64() - 1)
		}
	}

	beep := tone(beepFreq, beepSeconds, sampleRate, beepAmplitude)
	for _, at := range beeps {
		start := int(at * float64(sampleRate))
		for i, v := range beep {
			samples[start+i] += v
		}
	}
	return waveform.New(samples, sampleRate)
}

// beepTemplate returns the beep with silence on both sides
func beepTemplate(sampleRate int) waveform.Waveform {
	pad := int(paddingSecs * float64(sampleRate))
	beep := tone(beepFreq, beepSeconds, sampleRate, beepAmplitude)

	samples := make([]float64, 2*pad+len(beep))
	copy(samples[pad:], beep)
	return waveform.New(samples, sampleRate)
}

// templateLead is how far a match offset precedes the beep it matched
func templateLead(sampleRate int) float64 {
	return float64(int(paddingSecs*float64(sampleRate))) / float64(sampleRate)
}
