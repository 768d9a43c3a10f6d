package approach

import (
	"math"
	"testing"

	"papi-ng/internal/geo"
)

func heading(v float64) *float64 { return &v }

func TestProject_NoDistanceReturnsRunwayCoordinate(t *testing.T) {
	rwy := Runway{LatDeg: 47.4638, LonDeg: -122.3081, TrueHeadingDeg: heading(179.9)}
	lat, lon := Project(rwy, 0, 0)
	if lat != rwy.LatDeg || lon != rwy.LonDeg {
		t.Fatalf("got (%v,%v) want runway coordinate", lat, lon)
	}
}

func TestProject_NoHeadingReturnsRunwayCoordinate(t *testing.T) {
	rwy := Runway{LatDeg: 47.4638, LonDeg: -122.3081}
	lat, lon := Project(rwy, 1000, 500)
	if lat != rwy.LatDeg || lon != rwy.LonDeg {
		t.Fatalf("got (%v,%v) want runway coordinate", lat, lon)
	}
}

func TestProject_NegativeDistancesTreatedAsZero(t *testing.T) {
	rwy := Runway{LatDeg: 33.9425, LonDeg: -118.4081, TrueHeadingDeg: heading(83)}
	lat, lon := Project(rwy, -200, -50)
	if lat != rwy.LatDeg || lon != rwy.LonDeg {
		t.Fatalf("got (%v,%v) want runway coordinate", lat, lon)
	}

	lat1, lon1 := Project(rwy, -200, 1000)
	lat2, lon2 := Project(rwy, 0, 1000)
	if lat1 != lat2 || lon1 != lon2 {
		t.Fatalf("negative displacement changed result: (%v,%v) vs (%v,%v)", lat1, lon1, lat2, lon2)
	}
}

func TestProject_AlongHeading(t *testing.T) {
	rwy := Runway{LatDeg: 47.4638, LonDeg: -122.3081, TrueHeadingDeg: heading(180)}
	lat, lon := Project(rwy, 1000, 500)

	wantM := 1500 * 0.3048
	gotM := geo.SphericalDistanceNM(rwy.LatDeg, rwy.LonDeg, lat, lon) * geo.MetersPerNM
	if math.Abs(gotM-wantM) > 0.01 {
		t.Fatalf("projected=%vm want %vm", gotM, wantM)
	}
	if lat >= rwy.LatDeg {
		t.Fatalf("lat=%v should move south of %v", lat, rwy.LatDeg)
	}
	if math.Abs(lon-rwy.LonDeg) > 1e-9 {
		t.Fatalf("lon=%v want %v", lon, rwy.LonDeg)
	}
}

func TestNewTarget_UsesCallerElevation(t *testing.T) {
	rwy := Runway{LatDeg: 45.5887, LonDeg: -122.5975, TrueHeadingDeg: heading(100.4), DisplacedThresholdFt: 300}
	tgt := NewTarget(rwy, rwy.DisplacedThresholdFt, 1000, 31)
	if tgt.ElevationFt != 31 {
		t.Fatalf("elevation=%v want 31", tgt.ElevationFt)
	}
	lat, lon := Project(rwy, 300, 1000)
	if tgt.LatDeg != lat || tgt.LonDeg != lon {
		t.Fatalf("target=(%v,%v) want (%v,%v)", tgt.LatDeg, tgt.LonDeg, lat, lon)
	}
}
