package gdl90

import (
	"math"
	"strings"
	"time"

	"papi-ng/internal/position"
)

const (
	latLonResolution = 180.0 / 8388608.0 // degrees per LSB, signed 24-bit
	trackResolution  = 360.0 / 256.0
	altResolutionFt  = 25
	altOffsetFt      = -1000

	groundSpeedUnknown = 0xFFF
)

// Ownship is the decoded subset of an Ownship Report (message 10).
type Ownship struct {
	ICAO     [3]byte
	LatDeg   float64
	LonDeg   float64
	AltFeet  int // pressure altitude
	GroundKt *int
	TrackDeg float64
	Airborne bool
	Callsign string
}

// DecodeOwnship decodes an unframed Ownship Report. It reports false for any
// other message ID or a message shorter than 28 bytes.
func DecodeOwnship(msg []byte) (Ownship, bool) {
	if len(msg) < ownshipReportLen || msg[0] != MsgOwnshipReport {
		return Ownship{}, false
	}
	var o Ownship
	copy(o.ICAO[:], msg[2:5])
	o.LatDeg = float64(signed24(msg[5], msg[6], msg[7])) * latLonResolution
	o.LonDeg = float64(signed24(msg[8], msg[9], msg[10])) * latLonResolution

	alt := int(msg[11])<<4 | int(msg[12])>>4
	o.AltFeet = alt*altResolutionFt + altOffsetFt
	o.Airborne = msg[12]&0x08 != 0

	gs := int(msg[14])<<4 | int(msg[15])>>4
	if gs != groundSpeedUnknown {
		o.GroundKt = &gs
	}

	o.TrackDeg = float64(msg[17]) * trackResolution
	o.Callsign = strings.TrimRight(string(msg[19:27]), " \x00")
	return o, true
}

// Fix converts the report into a normalized position sample.
func (o Ownship) Fix(receivedAt time.Time) position.Fix {
	f := position.Fix{
		LatDeg:     o.LatDeg,
		LonDeg:     o.LonDeg,
		AltFeet:    float64(o.AltFeet),
		TrackDeg:   position.Float(o.TrackDeg),
		ReceivedAt: receivedAt,
	}
	if o.GroundKt != nil {
		f.GroundKt = position.Float(float64(*o.GroundKt))
	}
	return f
}

func signed24(b0, b1, b2 byte) int32 {
	v := int32(b0)<<16 | int32(b1)<<8 | int32(b2)
	if v&0x800000 != 0 {
		v -= 0x1000000
	}
	return v
}

// OwnshipReportFrame builds and frames an Ownship Report (0x0A).
//
// Fields not modeled are encoded as unknown. A nil GroundKt encodes the
// 0xFFF "no speed" sentinel.
func OwnshipReportFrame(o Ownship) []byte {
	msg := make([]byte, ownshipReportLen)
	msg[0] = MsgOwnshipReport

	// Alert status 0, address type ADS-B ICAO.
	msg[1] = 0x00
	copy(msg[2:5], o.ICAO[:])

	lat := encodeLatLon24(o.LatDeg)
	msg[5], msg[6], msg[7] = lat[0], lat[1], lat[2]

	lon := encodeLatLon24(o.LonDeg)
	msg[8], msg[9], msg[10] = lon[0], lon[1], lon[2]

	alt := encodeAltitude12(o.AltFeet)
	msg[11] = byte(alt >> 4)
	msg[12] = byte((alt & 0x0F) << 4)

	// Misc nibble: bit0 true track valid, bit3 airborne.
	msg[12] |= 0x01
	if o.Airborne {
		msg[12] |= 0x08
	}

	// NIC 8, NACp 8.
	msg[13] = 0x88

	gs := uint16(groundSpeedUnknown)
	if o.GroundKt != nil {
		gs = encodeU12(*o.GroundKt)
	}
	msg[14] = byte(gs >> 4)
	msg[15] = byte((gs & 0x00F) << 4)

	// Vertical velocity unknown (0x800).
	msg[15] |= 0x08
	msg[16] = 0x00

	msg[17] = encodeTrack8(o.TrackDeg)
	msg[18] = 0x01 // emitter: light

	copy(msg[19:27], sanitizeCallsign(o.Callsign))
	msg[27] = 0x00
	return Frame(msg)
}

func encodeLatLon24(deg float64) [3]byte {
	// Truncate toward zero.
	wk := int32(deg / latLonResolution)
	u := uint32(wk) & 0x00FFFFFF
	return [3]byte{byte(u >> 16), byte(u >> 8), byte(u)}
}

func encodeAltitude12(altFeet int) uint16 {
	// -1000..101350 ft maps to 0x000..0xFFE; anything else is 0xFFF.
	if altFeet < -1000 || altFeet > 101350 {
		return 0x0FFF
	}
	return uint16((altFeet-altOffsetFt)/altResolutionFt) & 0x0FFF
}

// encodeU12 clamps to the valid speed range; 0xFFF is reserved for unknown.
func encodeU12(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v >= groundSpeedUnknown {
		return groundSpeedUnknown - 1
	}
	return uint16(v)
}

func encodeTrack8(deg float64) byte {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	// Values within half an LSB of 360 wrap to 0.
	return byte(int(math.Floor((deg+trackResolution/2)/trackResolution)) & 0xFF)
}

func sanitizeCallsign(s string) []byte {
	if s == "" {
		s = "PAPISIM"
	}
	s = strings.ToUpper(s)
	if len(s) > 8 {
		s = s[:8]
	}
	b := []byte(s)
	for i, c := range b {
		ok := (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || c == ' '
		if !ok {
			b[i] = ' '
		}
	}
	for len(b) < 8 {
		b = append(b, ' ')
	}
	return b
}
