package location

import "math"

const (
	// FeetPerNM converts distance_nm to feet for the approach angle.
	FeetPerNM = 6076.1155

	// FullScaleDeviationDeg maps onto MaxOffset.
	FullScaleDeviationDeg = 0.7
	MaxOffset             = 0.45

	// papiWindowDeg is the deviation span covered by PAPIPosition.
	papiWindowDeg = 2 * FullScaleDeviationDeg
)

// RawOffset scales a deviation in degrees onto the display offset range
// [-MaxOffset, MaxOffset].
func RawOffset(deviationDeg float64) float64 {
	return clamp(deviationDeg/(FullScaleDeviationDeg/MaxOffset), -MaxOffset, MaxOffset)
}

// PAPIPosition maps a deviation onto [0,1]; 0.5 is on path.
func PAPIPosition(deviationDeg float64) float64 {
	return clamp((deviationDeg+FullScaleDeviationDeg)/papiWindowDeg, 0, 1)
}

// LightIntensities returns the four light intensities left to right.
// 0 is fully red, 1 fully white.
func LightIntensities(papiPosition float64) [4]float64 {
	var out [4]float64
	for i := range out {
		k := float64(len(out) - 1 - i)
		out[i] = clamp((papiPosition-k/4)*4, 0, 1)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
