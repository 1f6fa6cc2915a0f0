// Package timecode converts detection offsets to and from the "MM:SS.mmm"
// display form used in reports and API responses.
package timecode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	msPerSecond = 1000
	msPerMinute = 60 * msPerSecond
)

// Millis rounds seconds to whole milliseconds, half up.
func Millis(seconds float64) int64 {
	return int64(math.Floor(seconds*msPerSecond + 0.5))
}

// Format renders seconds as "MM:SS.mmm". Minutes widen beyond two digits when
// needed. NaN, Inf and negative values render as "00:00.000".
func Format(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "00:00.000"
	}

	total := Millis(seconds)
	minutes := total / msPerMinute
	rem := total % msPerMinute

	return fmt.Sprintf("%02d:%02d.%03d", minutes, rem/msPerSecond, rem%msPerSecond)
}

// FormatAll formats every offset in order.
func FormatAll(offsets []float64) []string {
	out := make([]string, len(offsets))
	for i, s := range offsets {
		out[i] = Format(s)
	}
	return out
}

// Parse is the inverse of Format. It accepts "MM:SS.mmm" and the bare seconds
// form "SS.mmm"; the fraction may have one to three digits or be omitted.
func Parse(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty timecode")
	}

	var minutes int64
	secPart := s
	if minPart, rest, ok := strings.Cut(s, ":"); ok {
		m, err := strconv.ParseInt(minPart, 10, 64)
		if err != nil || m < 0 {
			return 0, fmt.Errorf("invalid minutes in timecode %q", s)
		}
		minutes = m
		secPart = rest
	}

	wholePart, fracPart, hasFrac := strings.Cut(secPart, ".")
	sec, err := strconv.ParseInt(wholePart, 10, 64)
	if err != nil || sec < 0 {
		return 0, fmt.Errorf("invalid seconds in timecode %q", s)
	}
	if secPart != s && sec >= 60 {
		return 0, fmt.Errorf("seconds out of range in timecode %q", s)
	}

	var ms int64
	if hasFrac {
		if len(fracPart) == 0 || len(fracPart) > 3 {
			return 0, fmt.Errorf("invalid fraction in timecode %q", s)
		}
		padded := fracPart + strings.Repeat("0", 3-len(fracPart))
		ms, err = strconv.ParseInt(padded, 10, 64)
		if err != nil || ms < 0 {
			return 0, fmt.Errorf("invalid fraction in timecode %q", s)
		}
	}

	total := minutes*msPerMinute + sec*msPerSecond + ms
	return float64(total) / msPerSecond, nil
}
