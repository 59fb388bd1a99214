// Package convert holds bounds-checked integer conversions.
package convert

import "math"

// ClampInt32 narrows v to int32, saturating at the int32 bounds.
func ClampInt32(v int) int32 {
	switch {
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	default:
		return int32(v)
	}
}

