package gps

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"papi-ng/internal/position"
)

const (
	gpsdDefaultAddr = "127.0.0.1:2947"

	knotsPerMPS = 1.9438444924406
)

// dialGPSD connects to gpsd over TCP.
func dialGPSD(ctx context.Context, addr string) (net.Conn, error) {
	if strings.TrimSpace(addr) == "" {
		addr = gpsdDefaultAddr
	}
	d := &net.Dialer{Timeout: 2 * time.Second}
	if ctx == nil {
		return d.Dial("tcp", addr)
	}
	return d.DialContext(ctx, "tcp", addr)
}

// gpsdWatch enables JSON streaming reports.
func gpsdWatch(conn net.Conn) error {
	// scaled=true yields SI units (m/s, meters) and degrees.
	_, err := conn.Write([]byte("?WATCH={\"enable\":true,\"json\":true,\"scaled\":true}\n"))
	return err
}

type gpsdMsgBase struct {
	Class string `json:"class"`
}

type gpsdTPV struct {
	Class string `json:"class"`
	Mode  *int   `json:"mode"`
	Time  string `json:"time"`

	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`

	Alt     *float64 `json:"alt"`
	AltMSL  *float64 `json:"altMSL"`
	SpeedMS *float64 `json:"speed"`
	Track   *float64 `json:"track"`
}

type gpsdSat struct {
	Used bool `json:"used"`
}

type gpsdSKY struct {
	Class      string    `json:"class"`
	HDOP       *float64  `json:"hdop"`
	Satellites []gpsdSat `json:"satellites"`
}

type gpsdState struct {
	addr string

	latDeg float64
	lonDeg float64
	posOK  bool

	altFeet float64
	altOK   bool

	groundKt *float64
	trackDeg *float64

	mode     int
	modeOK   bool
	satsUsed int
	satsOK   bool
	hdop     float64
	hdopOK   bool

	lastFix time.Time
	valid   bool
	fixes   uint64
}

func newGPSDState(addr string) *gpsdState {
	return &gpsdState{addr: addr}
}

func (s *gpsdState) snapshot() Snapshot {
	out := Snapshot{
		Enabled:  true,
		Valid:    s.valid,
		Device:   "gpsd",
		Source:   "gpsd",
		GPSDAddr: strings.TrimSpace(s.addr),
		Fixes:    s.fixes,
		GroundKt: position.CopyFloat(s.groundKt),
		TrackDeg: position.CopyFloat(s.trackDeg),
	}
	if s.posOK {
		out.LatDeg = s.latDeg
		out.LonDeg = s.lonDeg
	}
	if s.altOK {
		out.AltFeet = position.Float(s.altFeet)
	}
	if s.modeOK {
		v := s.mode
		out.FixMode = &v
	}
	if s.satsOK {
		v := s.satsUsed
		out.Satellites = &v
	}
	if s.hdopOK {
		out.HDOP = position.Float(s.hdop)
	}
	if !s.lastFix.IsZero() {
		out.LastFixUTC = s.lastFix.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// applyLine folds one gpsd report into the state and returns a fix when the
// report is a TPV with a 2D/3D fix and an altitude has been seen.
func (s *gpsdState) applyLine(nowUTC time.Time, line string) (position.Fix, bool, error) {
	var base gpsdMsgBase
	if err := json.Unmarshal([]byte(line), &base); err != nil {
		return position.Fix{}, false, fmt.Errorf("gpsd json parse failed: %w", err)
	}

	switch strings.ToUpper(strings.TrimSpace(base.Class)) {
	case "TPV":
		var tpv gpsdTPV
		if err := json.Unmarshal([]byte(line), &tpv); err != nil {
			return position.Fix{}, false, fmt.Errorf("gpsd tpv parse failed: %w", err)
		}
		f, ok := s.applyTPV(nowUTC, tpv)
		return f, ok, nil
	case "SKY":
		var sky gpsdSKY
		if err := json.Unmarshal([]byte(line), &sky); err != nil {
			return position.Fix{}, false, fmt.Errorf("gpsd sky parse failed: %w", err)
		}
		s.applySKY(sky)
		return position.Fix{}, false, nil
	default:
		// Ignore other gpsd messages (e.g. VERSION/DEVICES/WATCH).
		return position.Fix{}, false, nil
	}
}

func (s *gpsdState) applyTPV(nowUTC time.Time, tpv gpsdTPV) (position.Fix, bool) {
	if tpv.Mode != nil {
		s.mode = *tpv.Mode
		s.modeOK = true
	}

	if tpv.Lat != nil && tpv.Lon != nil {
		s.latDeg = *tpv.Lat
		s.lonDeg = *tpv.Lon
		s.posOK = true
	}
	if tpv.SpeedMS != nil {
		s.groundKt = position.Float(*tpv.SpeedMS * knotsPerMPS)
	} else {
		s.groundKt = nil
	}
	s.trackDeg = position.CopyFloat(tpv.Track)

	altM := tpv.AltMSL
	if altM == nil {
		altM = tpv.Alt
	}
	if altM != nil {
		s.altFeet = *altM * feetPerMeter
		s.altOK = true
	}

	s.valid = s.modeOK && s.mode >= 2 && s.posOK
	if !s.valid {
		return position.Fix{}, false
	}
	// gpsd's own timestamp is kept for display; fixes are stamped on receipt.
	s.lastFix = nowUTC
	if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(tpv.Time)); err == nil {
		s.lastFix = t.UTC()
	}
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

func (s *gpsdState) applySKY(sky gpsdSKY) {
	if sky.HDOP != nil {
		s.hdop = *sky.HDOP
		s.hdopOK = true
	}
	if len(sky.Satellites) > 0 {
		used := 0
		for _, sat := range sky.Satellites {
			if sat.Used {
				used++
			}
		}
		s.satsUsed = used
		s.satsOK = true
	}
}
