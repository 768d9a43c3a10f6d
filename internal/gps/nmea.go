package gps

import (
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"papi-ng/internal/position"
)

const feetPerMeter = 3.280839895013123

type nmeaState struct {
	device string
	baud   int

	latDeg   float64
	lonDeg   float64
	groundKt *float64
	trackDeg *float64
	rmcOK    bool

	altFeet float64
	altOK   bool

	fixQuality string
	satellites int64
	hdop       float64
	ggaOK      bool

	lastFix time.Time
	valid   bool
	fixes   uint64
}

// apply folds one sentence into the state. It returns a fix for every
// valid RMC once GGA has supplied an altitude.
func (s *nmeaState) apply(nowUTC time.Time, sent nmea.Sentence) (position.Fix, bool) {
	switch m := sent.(type) {
	case nmea.RMC:
		return s.applyRMC(nowUTC, m)
	case nmea.GGA:
		s.applyGGA(m)
	}
	return position.Fix{}, false
}

func (s *nmeaState) applyRMC(nowUTC time.Time, m nmea.RMC) (position.Fix, bool) {
	if m.Validity != nmea.ValidRMC {
		s.valid = false
		return position.Fix{}, false
	}
	s.latDeg = m.Latitude
	s.lonDeg = m.Longitude
	// go-nmea reports empty speed and course as 0; keep them absent.
	s.groundKt, s.trackDeg = nil, nil
	if rmcFieldSet(m, 6) {
		s.groundKt = position.Float(m.Speed)
	}
	if rmcFieldSet(m, 7) {
		s.trackDeg = position.Float(m.Course)
	}
	s.rmcOK = true
	s.valid = true
	s.lastFix = nowUTC

	if !s.altOK {
		return position.Fix{}, false
	}
	s.fixes++
	return position.Fix{
		LatDeg:     s.latDeg,
		LonDeg:     s.lonDeg,
		AltFeet:    s.altFeet,
		GroundKt:   position.CopyFloat(s.groundKt),
		TrackDeg:   position.CopyFloat(s.trackDeg),
		ReceivedAt: nowUTC,
	}, true
}

func rmcFieldSet(m nmea.RMC, i int) bool {
	return i < len(m.Fields) && strings.TrimSpace(m.Fields[i]) != ""
}

func (s *nmeaState) applyGGA(m nmea.GGA) {
	s.fixQuality = m.FixQuality
	s.satellites = m.NumSatellites
	s.hdop = m.HDOP
	s.ggaOK = true
	if m.FixQuality == nmea.Invalid {
		return
	}
	s.altFeet = m.Altitude * feetPerMeter
	s.altOK = true
}

func (s *nmeaState) snapshot() Snapshot {
	out := Snapshot{
		Enabled: true,
		Valid:   s.valid,
		Source:  "nmea",
		Device:  s.device,
		Baud:    s.baud,
		Fixes:   s.fixes,
	}
	if s.rmcOK {
		out.LatDeg = s.latDeg
		out.LonDeg = s.lonDeg
		out.GroundKt = position.CopyFloat(s.groundKt)
		out.TrackDeg = position.CopyFloat(s.trackDeg)
	}
	if s.altOK {
		out.AltFeet = position.Float(s.altFeet)
	}
	if s.ggaOK {
		out.FixQuality = s.fixQuality
		sats := int(s.satellites)
		out.Satellites = &sats
		out.HDOP = position.Float(s.hdop)
	}
	if !s.lastFix.IsZero() {
		out.LastFixUTC = s.lastFix.UTC().Format(time.RFC3339Nano)
	}
	return out
}
