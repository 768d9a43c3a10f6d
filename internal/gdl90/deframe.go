package gdl90

// Deframe splits buf into CRC-validated messages (message ID + payload,
// CRC stripped). Frames failing the CRC are dropped without error; malformed
// datagrams are routine on radio and UDP links.
func Deframe(buf []byte) [][]byte {
	msgs, _ := deframe(buf)
	return msgs
}

// deframe also returns how many completed frames were discarded.
//
// A flag byte closes the current frame when it is non-empty and opens the
// next one. An escape byte XORs the following byte with 0x20; a flag cancels
// a pending escape. Bytes after the last flag do not form a frame.
func deframe(buf []byte) (msgs [][]byte, dropped int) {
	var cur []byte
	escaped := false
	for _, b := range buf {
		switch {
		case b == flagByte:
			if len(cur) > 0 {
				if msg, ok := checkFrame(cur); ok {
					msgs = append(msgs, msg)
				} else {
					dropped++
				}
			}
			cur = nil
			escaped = false
		case escaped:
			cur = append(cur, b^escapeXor)
			escaped = false
		case b == escapeByte:
			escaped = true
		default:
			cur = append(cur, b)
		}
	}
	return msgs, dropped
}

// checkFrame validates the trailing little-endian CRC over the preceding
// bytes.
func checkFrame(raw []byte) ([]byte, bool) {
	if len(raw) < 3 {
		return nil, false
	}
	msg := raw[:len(raw)-2]
	got := uint16(raw[len(raw)-2]) | uint16(raw[len(raw)-1])<<8
	if got != crc16(msg) {
		return nil, false
	}
	return msg, true
}
