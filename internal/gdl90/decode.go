package gdl90

import (
	"time"

	"papi-ng/internal/position"
)

// Decoded is everything usable found in one datagram.
type Decoded struct {
	Fixes        []position.Fix
	GeoAltitudes []GeoAltitude

	// Frames counts CRC-valid frames, Dropped counts frames that failed
	// validation, Ignored counts valid frames of unsupported or short messages.
	Frames  int
	Dropped int
	Ignored int
}

// DecodeBuffer deframes buf and decodes every Ownship Report and Geometric
// Altitude message in it. Fixes are stamped with receivedAt.
func DecodeBuffer(buf []byte, receivedAt time.Time) Decoded {
	msgs, dropped := deframe(buf)
	out := Decoded{Frames: len(msgs), Dropped: dropped}
	for _, msg := range msgs {
		switch msg[0] {
		case MsgOwnshipReport:
			o, ok := DecodeOwnship(msg)
			if !ok {
				out.Ignored++
				continue
			}
			out.Fixes = append(out.Fixes, o.Fix(receivedAt))
		case MsgOwnshipGeoAlt:
			g, ok := DecodeGeoAltitude(msg)
			if !ok {
				out.Ignored++
				continue
			}
			out.GeoAltitudes = append(out.GeoAltitudes, g)
		default:
			out.Ignored++
		}
	}
	return out
}
