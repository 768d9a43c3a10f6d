// Package position holds the normalized position sample shared by every
// telemetry decoder and the location aggregator.
package position

import (
	"math"
	"time"
)

// Fix is one normalized position/velocity sample. Optional values are nil
// when the source did not provide them; they are never defaulted to zero.
//
// A Fix is treated as immutable once built; use the With* helpers to derive
// a modified copy.
type Fix struct {
	LatDeg   float64  `json:"lat_deg"`
	LonDeg   float64  `json:"lon_deg"`
	AltFeet  float64  `json:"alt_feet"`
	GroundKt *float64 `json:"ground_kt,omitempty"`
	TrackDeg *float64 `json:"track_deg,omitempty"`

	ReceivedAt time.Time `json:"received_at"`
}

// Valid reports whether the coordinates are finite and within range.
func (f Fix) Valid() bool {
	if math.IsNaN(f.LatDeg) || math.IsNaN(f.LonDeg) || math.IsNaN(f.AltFeet) {
		return false
	}
	if math.IsInf(f.LatDeg, 0) || math.IsInf(f.LonDeg, 0) || math.IsInf(f.AltFeet, 0) {
		return false
	}
	return f.LatDeg >= -90 && f.LatDeg <= 90 && f.LonDeg >= -180 && f.LonDeg <= 180
}

// WithGroundKt returns a copy of f with the ground speed set.
func (f Fix) WithGroundKt(kt float64) Fix {
	f.GroundKt = Float(kt)
	return f
}

// WithTrackDeg returns a copy of f with the track set.
func (f Fix) WithTrackDeg(deg float64) Fix {
	f.TrackDeg = Float(deg)
	return f
}

// Float returns a pointer to a copy of v.
func Float(v float64) *float64 {
	return &v
}

// CopyFloat returns an independent copy of p (nil stays nil).
func CopyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
