// Package approach computes the navigation target for a selected runway.
package approach

import "papi-ng/internal/geo"

const metersPerFoot = 0.3048

// Runway is the read-only geometry supplied by the runway lookup.
type Runway struct {
	Airport string `json:"airport"`
	Ident   string `json:"ident"`

	LatDeg float64 `json:"lat_deg"`
	LonDeg float64 `json:"lon_deg"`

	ElevationFt    *float64 `json:"elevation_ft,omitempty"`
	TrueHeadingDeg *float64 `json:"true_heading_deg,omitempty"`

	DisplacedThresholdFt float64 `json:"displaced_threshold_ft"`
	LengthFt             *int    `json:"length_ft,omitempty"`
	WidthFt              *int    `json:"width_ft,omitempty"`
}

// Target is the point distance, bearing and approach angle are computed
// against.
type Target struct {
	LatDeg      float64 `json:"lat_deg"`
	LonDeg      float64 `json:"lon_deg"`
	ElevationFt float64 `json:"elevation_ft"`
}

// Project returns the aiming point displacementFt+offsetFt down the runway
// along its true heading. Negative distances count as 0. With no distance or
// no heading the runway coordinate is returned unchanged.
func Project(rwy Runway, displacementFt, offsetFt float64) (float64, float64) {
	if displacementFt < 0 {
		displacementFt = 0
	}
	if offsetFt < 0 {
		offsetFt = 0
	}
	if (displacementFt == 0 && offsetFt == 0) || rwy.TrueHeadingDeg == nil {
		return rwy.LatDeg, rwy.LonDeg
	}
	meters := (displacementFt + offsetFt) * metersPerFoot
	return geo.Destination(rwy.LatDeg, rwy.LonDeg, *rwy.TrueHeadingDeg, meters)
}

// NewTarget projects the aiming point and attaches elevationFt. The caller
// picks the elevation (runway, else airport).
func NewTarget(rwy Runway, displacementFt, offsetFt, elevationFt float64) Target {
	lat, lon := Project(rwy, displacementFt, offsetFt)
	return Target{LatDeg: lat, LonDeg: lon, ElevationFt: elevationFt}
}
