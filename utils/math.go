package utils

import (
	"math"
)

// Clamp returns x limited to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// ClampFloat32 is Clamp for float32.
func ClampFloat32(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// RoundInt rounds x half away from zero.
func RoundInt(x float64) int {
	return int(math.Round(x))
}

