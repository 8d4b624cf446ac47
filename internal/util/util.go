// Package util provides common numeric and string helpers used across the
// drive daemon.
package util

import (
	"math"
	"strings"
)

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// Clamp limits v to the closed interval [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Deadband zeroes inputs whose magnitude is below band and rescales the
// remaining range so the output stays continuous at the band edge.
func Deadband(v, band float64) float64 {
	if band <= 0 {
		return v
	}
	if math.Abs(v) < band {
		return 0
	}
	if v > 0 {
		return (v - band) / (1 - band)
	}
	return (v + band) / (1 - band)
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
