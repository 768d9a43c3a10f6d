// Package xgps decodes the X-Plane style "XGPS" UDP position datagram.
//
// Example: XGPSSimulator,-122.29843200,47.45075600,128.32,349.75,61.73
// Fields after the tag are longitude, latitude, altitude (m MSL), true track
// (deg) and ground speed (m/s).
package xgps

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"papi-ng/internal/position"
)

const (
	// Tag prefixes every datagram.
	Tag = "XGPS"

	// MinPacketLen is the shortest datagram accepted.
	MinPacketLen = 41

	// DefaultPort is the X-Plane GPS broadcast port.
	DefaultPort = 49002

	feetPerMeter = 3.2808399
	knotsPerMPS  = 1.9438445
)

const (
	fieldLon = 1 + iota
	fieldLat
	fieldAlt
	fieldTrack
	fieldSpeed
)

// Decode parses one datagram. Packets shorter than MinPacketLen or without
// the XGPS tag are rejected with ok=false.
//
// A field that is present but not a number decodes as 0. A missing
// longitude, latitude or altitude also decodes as 0, but a missing track or
// speed is left absent.
func Decode(pkt []byte, receivedAt time.Time) (position.Fix, bool) {
	if len(pkt) < MinPacketLen || !bytes.HasPrefix(pkt, []byte(Tag)) {
		return position.Fix{}, false
	}

	line := string(pkt)
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	fields := strings.Split(line, ",")

	f := position.Fix{
		LonDeg:     number(fields, fieldLon),
		LatDeg:     number(fields, fieldLat),
		AltFeet:    number(fields, fieldAlt) * feetPerMeter,
		ReceivedAt: receivedAt,
	}
	if len(fields) > fieldTrack {
		f.TrackDeg = position.Float(number(fields, fieldTrack))
	}
	if len(fields) > fieldSpeed {
		f.GroundKt = position.Float(number(fields, fieldSpeed) * knotsPerMPS)
	}
	return f, true
}

func number(fields []string, i int) float64 {
	if i >= len(fields) {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Encode builds a datagram for fix, tagged XGPS<name>. Absent track or speed
// is sent as 0.
func Encode(name string, f position.Fix) []byte {
	var trk, spd float64
	if f.TrackDeg != nil {
		trk = *f.TrackDeg
	}
	if f.GroundKt != nil {
		spd = *f.GroundKt / knotsPerMPS
	}
	return []byte(fmt.Sprintf("%s%s,%.8f,%.8f,%.2f,%.2f,%.2f",
		Tag, name, f.LonDeg, f.LatDeg, f.AltFeet/feetPerMeter, trk, spd))
}
