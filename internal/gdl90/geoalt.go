package gdl90

import "math"

const geoAltResolutionFt = 5

// GeoAltitude is an Ownship Geometric Altitude report (message 11). It is
// kept apart from the pressure altitude carried in the Ownship Report.
type GeoAltitude struct {
	AltFeet int
}

// DecodeGeoAltitude decodes an unframed message 11 (at least 5 bytes).
func DecodeGeoAltitude(msg []byte) (GeoAltitude, bool) {
	if len(msg) < ownshipGeoAltLen || msg[0] != MsgOwnshipGeoAlt {
		return GeoAltitude{}, false
	}
	raw := int16(uint16(msg[1])<<8 | uint16(msg[2]))
	return GeoAltitude{AltFeet: int(raw) * geoAltResolutionFt}, true
}

// GeoAltitudeFrame builds and frames message 11. Vertical figure of merit is
// sent as "not available".
func GeoAltitudeFrame(g GeoAltitude) []byte {
	v := math.Round(float64(g.AltFeet) / geoAltResolutionFt)
	if v > math.MaxInt16 {
		v = math.MaxInt16
	}
	if v < math.MinInt16 {
		v = math.MinInt16
	}
	alt := uint16(int16(v))
	msg := []byte{MsgOwnshipGeoAlt, byte(alt >> 8), byte(alt), 0x7F, 0xFF}
	return Frame(msg)
}
