package util

import "math"

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// Saturate returns x/limit capped at 1. A non-positive limit yields 0.
func Saturate(x, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return math.Min(x/limit, 1)
}

// RoundInt rounds half away from zero.
func RoundInt(x float64) int {
	return int(math.Round(x))
}
