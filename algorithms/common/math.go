package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic numeric helpers shared by the detectors, backed by gonum where it helps

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return math.Sqrt(floats.Dot(data, data) / float64(len(data)))
}

// MaxAbs returns the largest absolute value in data
func MaxAbs(data []float64) float64 {
	peak := 0.0
	for _, val := range data {
		if abs := math.Abs(val); abs > peak {
			peak = abs
		}
	}
	return peak
}

// Max returns the largest value and its first index, or (-Inf, -1) for empty data
func Max(data []float64) (float64, int) {
	if len(data) == 0 {
		return math.Inf(-1), -1
	}
	idx := floats.MaxIdx(data)
	return data[idx], idx
}

// AllFinite reports whether data holds no NaN or Inf values, returning the
// first offending index otherwise
func AllFinite(data []float64) (bool, int) {
	for i, val := range data {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return false, i
		}
	}
	return true, -1
}

// PrefixSums returns s with s[0] = 0 and s[i+1] = data[0] + ... + data[i].
// Window sums are then s[j] - s[i] without re-summing.
func PrefixSums(data []float64) []float64 {
	sums := make([]float64, len(data)+1)
	if len(data) > 0 {
		floats.CumSum(sums[1:], data)
	}
	return sums
}

// PrefixSumsOfSquares is PrefixSums over data[i]^2
func PrefixSumsOfSquares(data []float64) []float64 {
	squares := make([]float64, len(data))
	floats.MulTo(squares, data, data)
	return PrefixSums(squares)
}

// IsPowerOfTwo checks if n is a power of 2
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// NextPowerOfTwo finds the next power of 2 >= n
func NextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}

	power := 1
	for power < n {
		power <<= 1
	}
	return power
}
