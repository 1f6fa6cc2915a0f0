package filters

import (
	"math"
	"testing"
)

func tone(freq float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	return out
}

func TestFiltFiltPassbandIsZeroPhase(t *testing.T) {
	const sr = 11025
	bf, err := NewBandpassFilter(sr, 4, 1100, 1300)
	if err != nil {
		t.Fatalf("NewBandpassFilter failed: %v", err)
	}

	input := tone(1200, sr, sr)
	output := bf.FiltFilt(input)

	if len(output) != len(input) {
		t.Fatalf("length = %d, expected %d", len(output), len(input))
	}

	// Away from the ends the in-band tone passes unchanged, without delay
	for i := sr * 3 / 10; i < sr*7/10; i++ {
		if math.Abs(output[i]-input[i]) > 0.01 {
			t.Fatalf("output[%d] = %v, expected %v", i, output[i], input[i])
		}
	}
}

func TestFiltFiltStopband(t *testing.T) {
	const sr = 11025
	bf, _ := NewBandpassFilter(sr, 4, 1100, 1300)

	output := bf.FiltFilt(tone(200, sr, sr))

	peak := 0.0
	for _, v := range output[sr*3/10 : sr*7/10] {
		peak = math.Max(peak, math.Abs(v))
	}
	if peak > 1e-3 {
		t.Errorf("stopband peak = %v, expected strong rejection", peak)
	}
}

func TestFiltFiltKeepsEventPosition(t *testing.T) {
	const sr = 11025
	bf, _ := NewBandpassFilter(sr, 4, 1100, 1300)

	// A 50 ms burst centred at 0.5 s
	signal := make([]float64, sr)
	burst := tone(1200, sr, sr/20)
	start := sr/2 - len(burst)/2
	copy(signal[start:], burst)

	output := bf.FiltFilt(signal)

	// Energy-weighted centre of the output stays at the burst centre
	var weighted, total float64
	for i, v := range output {
		weighted += float64(i) * v * v
		total += v * v
	}
	centre := weighted / total
	if math.Abs(centre-float64(sr/2)) > float64(sr)/1000 {
		t.Errorf("output centred at sample %.1f, expected %d", centre, sr/2)
	}
}

func TestFiltFiltShortInput(t *testing.T) {
	bf, _ := NewBandpassFilter(11025, 4, 1100, 1300)

	if got := bf.FiltFilt(nil); len(got) != 0 {
		t.Errorf("FiltFilt(nil) = %v", got)
	}

	for _, n := range []int{1, 2, 5, bf.PadLength(), bf.PadLength() + 1} {
		input := tone(1200, 11025, n)
		out := bf.FiltFilt(input)
		if len(out) != n {
			t.Fatalf("n=%d: length %d", n, len(out))
		}
		for i, v := range out {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("n=%d: output[%d] = %v", n, i, v)
			}
		}
	}
}

func TestOddExtend(t *testing.T) {
	got := oddExtend([]float64{1, 2, 4}, 2)
	expected := []float64{-2, 0, 1, 2, 4, 6, 7}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("oddExtend() = %v, expected %v", got, expected)
		}
	}
}

func TestFiltFiltConstantInputHasNoTransient(t *testing.T) {
	bf, _ := NewBandpassFilter(11025, 4, 1100, 1300)

	// Steady-state initial conditions leave a DC input at its settled output
	input := make([]float64, 400)
	for i := range input {
		input[i] = 0.25
	}
	for i, v := range bf.FiltFilt(input) {
		if math.Abs(v) > 1e-9 {
			t.Fatalf("output[%d] = %v, expected 0", i, v)
		}
	}
}
