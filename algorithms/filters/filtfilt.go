package filters

// FiltFilt applies the band-pass forward and then backward so that the phase
// delays cancel and events keep their position in time.
//
// The signal is extended at both ends by an odd reflection about its end
// samples, and every pass starts from the steady-state section states scaled
// by the first sample it sees. This keeps start-up transients out of the
// returned range.
func (bf *BandpassFilter) FiltFilt(input []float64) []float64 {
	n := len(input)
	if n == 0 {
		return []float64{}
	}

	padLen := bf.PadLength()
	if padLen >= n {
		padLen = n - 1
	}

	extended := oddExtend(input, padLen)
	zi := bf.steadyState()

	forward := bf.filterFrom(extended, scaleStates(zi, extended[0]))

	reverse(forward)
	backward := bf.filterFrom(forward, scaleStates(zi, forward[0]))
	reverse(backward)

	output := make([]float64, n)
	copy(output, backward[padLen:padLen+n])
	return output
}

// PadLength is the number of samples added at each end by FiltFilt
func (bf *BandpassFilter) PadLength() int {
	return 3 * (2*len(bf.sections) + 1)
}

// steadyState returns, for every section, the state it settles in when the
// cascade input is a constant 1.
func (bf *BandpassFilter) steadyState() [][2]float64 {
	states := make([][2]float64, len(bf.sections))

	scale := 1.0 // steady input level seen by the current section
	for i, s := range bf.sections {
		gain := (s.B0 + s.B1 + s.B2) / (1 + s.A1 + s.A2)

		z2 := s.B2 - s.A2*gain
		z1 := s.B1 - s.A1*gain + z2
		states[i] = [2]float64{z1 * scale, z2 * scale}

		scale *= gain
	}

	return states
}

func scaleStates(states [][2]float64, factor float64) [][2]float64 {
	scaled := make([][2]float64, len(states))
	for i, st := range states {
		scaled[i] = [2]float64{st[0] * factor, st[1] * factor}
	}
	return scaled
}

// oddExtend returns [2*x0 - x[pad..1], x, 2*xn - x[n-2..n-1-pad]]
func oddExtend(x []float64, pad int) []float64 {
	n := len(x)
	out := make([]float64, n+2*pad)

	first, last := x[0], x[n-1]
	for i := range pad {
		out[i] = 2*first - x[pad-i]
		out[pad+n+i] = 2*last - x[n-2-i]
	}
	copy(out[pad:], x)

	return out
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
