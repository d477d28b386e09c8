// Package util provides common utility functions for price and sign math.
package util

import "math"

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=0.01, 1.2345 becomes 1.23 or 1.24 depending on rounding.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}

// RoundToPrecision rounds x to the given number of decimal places.
func RoundToPrecision(x float64, precision int) float64 {
	if precision < 0 {
		return x
	}
	p := math.Pow(10, float64(precision))
	return math.Round(x*p) / p
}

// Clamp limits x to the inclusive range [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Sign maps x to +1 when positive and -1 otherwise. Stored direction
// signs must always be -1 or +1, so zero collapses to -1.
func Sign(x float64) int {
	if x > 0 {
		return 1
	}
	return -1
}
