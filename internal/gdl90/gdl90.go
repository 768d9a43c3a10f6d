// Package gdl90 decodes the GDL90 datalink messages used for ownship
// position: HDLC-style framing, byte un-stuffing, CRC validation, and the
// Ownship Report (10) and Ownship Geometric Altitude (11) messages.
//
// The encoders are used by the flight simulator and by round-trip tests.
package gdl90

import "time"

const (
	flagByte   = 0x7E
	escapeByte = 0x7D
	escapeXor  = 0x20
)

// Message IDs.
const (
	MsgHeartbeat     byte = 0x00
	MsgOwnshipReport byte = 0x0A
	MsgOwnshipGeoAlt byte = 0x0B
)

// Minimum message lengths, message ID included.
const (
	ownshipReportLen = 28
	ownshipGeoAltLen = 5
)

// Frame takes an unframed GDL90 message (message ID + payload bytes), appends
// the CRC16 little-endian, applies byte-stuffing, and wraps with 0x7E flags.
func Frame(message []byte) []byte {
	crc := crc16(message)

	withCRC := make([]byte, 0, len(message)+2)
	withCRC = append(withCRC, message...)
	withCRC = append(withCRC, byte(crc&0xFF), byte(crc>>8))

	out := make([]byte, 0, 2+len(withCRC)*2)
	out = append(out, flagByte)
	for _, b := range withCRC {
		if b == flagByte || b == escapeByte {
			out = append(out, escapeByte, b^escapeXor)
			continue
		}
		out = append(out, b)
	}
	return append(out, flagByte)
}

// HeartbeatFrameAt builds and frames a Heartbeat (0x00) for nowUTC.
//
// Receivers ignore it; the simulator sends one per second so that EFB apps
// listening on the same port recognise the feed.
func HeartbeatFrameAt(nowUTC time.Time, gpsValid bool) []byte {
	msg := make([]byte, 7)
	msg[0] = MsgHeartbeat

	// bit0 UAT initialized, bit4 address talkback, bit7 GPS position valid.
	flags := byte(0x01) | byte(0x10)
	if gpsValid {
		flags |= 0x80
	}
	msg[1] = flags

	nowUTC = nowUTC.UTC()
	midnight := time.Date(nowUTC.Year(), nowUTC.Month(), nowUTC.Day(), 0, 0, 0, 0, time.UTC)
	seconds := uint32(nowUTC.Sub(midnight).Seconds())

	// Timestamp bit 16 lives in msg[2] bit 7; bit 0 is UTC OK.
	msg[2] = byte(((seconds >> 16) << 7) | 0x01)
	msg[3] = byte(seconds & 0xFF)
	msg[4] = byte((seconds & 0xFFFF) >> 8)
	return Frame(msg)
}
