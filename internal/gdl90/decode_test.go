package gdl90

import (
	"math"
	"testing"
	"time"
)

func TestOwnship_RoundTripWithinResolution(t *testing.T) {
	cases := []struct {
		lat, lon float64
		alt      int
		gs       int
		trk      float64
	}{
		{47.123456, -122.654321, 1234, 142, 123.4},
		{-33.946111, 151.177222, 21, 0, 359.9},
		{0.000001, -0.000001, -1000, 4094, 0},
		{89.99, 179.99, 45000, 480, 181.3},
	}
	for _, tc := range cases {
		gs := tc.gs
		frame := OwnshipReportFrame(Ownship{LatDeg: tc.lat, LonDeg: tc.lon, AltFeet: tc.alt, GroundKt: &gs, TrackDeg: tc.trk, Airborne: true})
		msgs := Deframe(frame)
		if len(msgs) != 1 {
			t.Fatalf("messages=%d want 1", len(msgs))
		}
		o, ok := DecodeOwnship(msgs[0])
		if !ok {
			t.Fatalf("DecodeOwnship failed for %+v", tc)
		}
		if math.Abs(o.LatDeg-tc.lat) > latLonResolution {
			t.Fatalf("lat=%v want %v ±%v", o.LatDeg, tc.lat, latLonResolution)
		}
		if math.Abs(o.LonDeg-tc.lon) > latLonResolution {
			t.Fatalf("lon=%v want %v ±%v", o.LonDeg, tc.lon, latLonResolution)
		}
		if d := tc.alt - o.AltFeet; d < 0 || d >= altResolutionFt {
			t.Fatalf("alt=%d want %d within %d ft", o.AltFeet, tc.alt, altResolutionFt)
		}
		if o.GroundKt == nil || *o.GroundKt != tc.gs {
			t.Fatalf("gs=%v want %d", o.GroundKt, tc.gs)
		}
		dTrk := math.Abs(math.Mod(o.TrackDeg-tc.trk+540, 360) - 180)
		if dTrk > trackResolution {
			t.Fatalf("track=%v want %v ±%v", o.TrackDeg, tc.trk, trackResolution)
		}
	}
}

func TestDecodeOwnship_SpeedUnavailable(t *testing.T) {
	msgs := Deframe(OwnshipReportFrame(Ownship{LatDeg: 40, LonDeg: -105, AltFeet: 5000}))
	o, ok := DecodeOwnship(msgs[0])
	if !ok {
		t.Fatalf("DecodeOwnship failed")
	}
	if o.GroundKt != nil {
		t.Fatalf("gs=%d want absent", *o.GroundKt)
	}
	f := o.Fix(time.Unix(100, 0))
	if f.GroundKt != nil {
		t.Fatalf("fix ground speed should be absent")
	}
	if f.TrackDeg == nil {
		t.Fatalf("fix track should be present")
	}
}

func TestDecodeOwnship_SignExtension(t *testing.T) {
	msg := make([]byte, ownshipReportLen)
	msg[0] = MsgOwnshipReport
	// 0xFFFFFF is -1 LSB.
	msg[5], msg[6], msg[7] = 0xFF, 0xFF, 0xFF
	// 0x800000 is -180 degrees.
	msg[8], msg[9], msg[10] = 0x80, 0x00, 0x00
	o, ok := DecodeOwnship(msg)
	if !ok {
		t.Fatalf("DecodeOwnship failed")
	}
	if o.LatDeg != -latLonResolution {
		t.Fatalf("lat=%v want %v", o.LatDeg, -latLonResolution)
	}
	if o.LonDeg != -180 {
		t.Fatalf("lon=%v want -180", o.LonDeg)
	}
	if o.AltFeet != -1000 {
		t.Fatalf("alt=%d want -1000", o.AltFeet)
	}
}

func TestDecodeOwnship_RejectsShortOrWrongID(t *testing.T) {
	if _, ok := DecodeOwnship(make([]byte, 27)); ok {
		t.Fatalf("expected short message rejected")
	}
	msg := make([]byte, ownshipReportLen)
	msg[0] = 0x14
	if _, ok := DecodeOwnship(msg); ok {
		t.Fatalf("expected wrong id rejected")
	}
}

func TestDecodeGeoAltitude(t *testing.T) {
	for _, ft := range []int{0, 1500, -1000, 12345} {
		msgs := Deframe(GeoAltitudeFrame(GeoAltitude{AltFeet: ft}))
		g, ok := DecodeGeoAltitude(msgs[0])
		if !ok {
			t.Fatalf("DecodeGeoAltitude failed for %d", ft)
		}
		if d := g.AltFeet - ft; d < -2 || d > 3 {
			t.Fatalf("alt=%d want %d within 5 ft", g.AltFeet, ft)
		}
	}
	if _, ok := DecodeGeoAltitude([]byte{MsgOwnshipGeoAlt, 0x00, 0x01, 0x00}); ok {
		t.Fatalf("expected 4-byte message rejected")
	}
}

func TestDecodeBuffer_MixedStream(t *testing.T) {
	gs := 90
	var buf []byte
	buf = append(buf, HeartbeatFrameAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), true)...)
	buf = append(buf, OwnshipReportFrame(Ownship{LatDeg: 47.5, LonDeg: -122.3, AltFeet: 2000, GroundKt: &gs, TrackDeg: 180})...)
	buf = append(buf, GeoAltitudeFrame(GeoAltitude{AltFeet: 2150})...)
	// Short ownship report with a valid CRC.
	buf = append(buf, Frame([]byte{MsgOwnshipReport, 0x00, 0x01})...)

	at := time.Date(2024, 5, 1, 12, 0, 1, 0, time.UTC)
	d := DecodeBuffer(buf, at)
	if d.Frames != 4 {
		t.Fatalf("frames=%d want 4", d.Frames)
	}
	if d.Ignored != 2 {
		t.Fatalf("ignored=%d want 2", d.Ignored)
	}
	if len(d.Fixes) != 1 {
		t.Fatalf("fixes=%d want 1", len(d.Fixes))
	}
	f := d.Fixes[0]
	if !f.ReceivedAt.Equal(at) {
		t.Fatalf("received_at=%v want %v", f.ReceivedAt, at)
	}
	if f.GroundKt == nil || *f.GroundKt != 90 {
		t.Fatalf("gs=%v want 90", f.GroundKt)
	}
	if f.AltFeet != 2000 {
		t.Fatalf("alt=%v want 2000", f.AltFeet)
	}
	if len(d.GeoAltitudes) != 1 || d.GeoAltitudes[0].AltFeet != 2150 {
		t.Fatalf("geo altitudes=%v want [2150]", d.GeoAltitudes)
	}
}
