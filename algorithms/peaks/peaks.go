// Package peaks selects event positions from score traces.
//
// Both detectors reduce audio to a trace (band energy per frame, correlation
// per sample offset) and then ask the same question: where are the strongest
// isolated peaks? Candidates are found first (LocalMaxima or RunMaxima) and
// then thinned by Separate so that no two accepted peaks are closer than the
// minimum separation.
package peaks

import (
	"sort"
)

// LocalMaxima returns the indices of local maxima whose score is at least
// threshold, in ascending order.
//
// A plateau of equal scores counts once, at its first index, when it is
// higher than both neighbours. The first and last samples qualify when they
// are not lower than their single neighbour.
func LocalMaxima(scores []float64, threshold float64) []int {
	n := len(scores)
	candidates := []int{}

	i := 0
	for i < n {
		// Extent of the plateau starting at i
		j := i
		for j+1 < n && scores[j+1] == scores[i] {
			j++
		}

		risingIn := i == 0 || scores[i-1] < scores[i]
		fallingOut := j == n-1 || scores[j+1] < scores[i]

		if risingIn && fallingOut && scores[i] >= threshold {
			candidates = append(candidates, i)
		}

		i = j + 1
	}

	return candidates
}

// RunMaxima returns one index per run of consecutive scores strictly above
// threshold: the position of the run's largest score, the earliest one on
// ties. Indices are ascending.
func RunMaxima(scores []float64, threshold float64) []int {
	candidates := []int{}

	best := -1
	for i, score := range scores {
		if score > threshold {
			if best < 0 || score > scores[best] {
				best = i
			}
			continue
		}

		if best >= 0 {
			candidates = append(candidates, best)
			best = -1
		}
	}

	if best >= 0 {
		candidates = append(candidates, best)
	}

	return candidates
}

// Separate thins candidates so that accepted indices are at least minSep
// apart. Candidates are visited by descending score, ties by ascending index,
// and each is kept unless it is within minSep of one already kept. The result
// is ascending. minSep <= 1 keeps every distinct candidate.
func Separate(scores []float64, candidates []int, minSep int) []int {
	if len(candidates) == 0 {
		return []int{}
	}

	order := make([]int, len(candidates))
	copy(order, candidates)

	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := scores[order[a]], scores[order[b]]
		if sa != sb {
			return sa > sb
		}
		return order[a] < order[b]
	})

	// Kept indices in ascending order, searched by position
	kept := make([]int, 0, len(order))
	for _, idx := range order {
		pos := sort.SearchInts(kept, idx)

		if pos < len(kept) && kept[pos]-idx < minSep {
			continue
		}
		if pos > 0 && idx-kept[pos-1] < minSep {
			continue
		}
		if pos < len(kept) && kept[pos] == idx {
			continue
		}

		kept = append(kept, 0)
		copy(kept[pos+1:], kept[pos:])
		kept[pos] = idx
	}

	return kept
}

// Pick is Separate(LocalMaxima(scores, threshold), minSep)
func Pick(scores []float64, threshold float64, minSep int) []int {
	return Separate(scores, LocalMaxima(scores, threshold), minSep)
}

// SeparationSamples converts a separation in seconds to a count of samples
// (or frames, with rate in frames per second), never less than one.
func SeparationSamples(seconds, rate float64) int {
	return max(1, int(seconds*rate))
}
