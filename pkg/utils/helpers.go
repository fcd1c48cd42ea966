package utils

import (
	"math"
	"strconv"
)

// ClampInt limits a value between min and max
func ClampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// RoundTo rounds a float to specified decimal places, halves away from zero
func RoundTo(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}

// FormatWhole renders a number with no decimal places.
// Halves round away from zero and negative zero renders as "0".
func FormatWhole(value float64) string {
	r := math.Round(value)
	if r == 0 {
		r = 0 // drops the sign of -0
	}
	return strconv.FormatFloat(r, 'f', 0, 64)
}
