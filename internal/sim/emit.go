package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"papi-ng/internal/gdl90"
	"papi-ng/internal/replay"
	"papi-ng/internal/xgps"
)

// Output sends one datagram.
type Output func(payload []byte) error

// Emitter turns samples into datagrams. Nil outputs are skipped.
type Emitter struct {
	// Name follows the XGPS tag ("XGPS<Name>,...").
	Name string
	XGPS Output

	ICAO     [3]byte
	Callsign string
	GDL90    Output
}

// Emit sends s. GDL90 frames go out as separate datagrams in the order
// heartbeat, ownship, geometric altitude.
func (e Emitter) Emit(s Sample, now time.Time) error {
	if e.XGPS != nil {
		name := e.Name
		if name == "" {
			name = "Simulator"
		}
		if err := e.XGPS(xgps.Encode(name, s.Fix(now))); err != nil {
			return fmt.Errorf("xgps: %w", err)
		}
	}
	if e.GDL90 != nil {
		for _, frame := range e.gdl90Frames(s, now) {
			if err := e.GDL90(frame); err != nil {
				return fmt.Errorf("gdl90: %w", err)
			}
		}
	}
	return nil
}

func (e Emitter) gdl90Frames(s Sample, now time.Time) [][]byte {
	gs := int(math.Round(s.GroundKt))
	alt := int(math.Round(s.AltFeet))
	return [][]byte{
		gdl90.HeartbeatFrameAt(now.UTC(), true),
		gdl90.OwnshipReportFrame(gdl90.Ownship{
			ICAO:     e.ICAO,
			LatDeg:   s.LatDeg,
			LonDeg:   s.LonDeg,
			AltFeet:  alt,
			GroundKt: &gs,
			TrackDeg: s.TrackDeg,
			Airborne: true,
			Callsign: e.Callsign,
		}),
		gdl90.GeoAltitudeFrame(gdl90.GeoAltitude{AltFeet: alt}),
	}
}

// Run emits samples spaced by their elapsed times, scaled by speed (2.0
// runs twice as fast). onSample, when set, sees every sample after it is
// sent.
func Run(ctx context.Context, samples []Sample, speed float64, e Emitter, sleeper replay.Sleeper, onSample func(Sample)) error {
	if len(samples) == 0 {
		return errors.New("no samples")
	}
	if speed <= 0 {
		return fmt.Errorf("speed must be > 0")
	}
	if sleeper == nil {
		sleeper = replay.RealTime{}
	}
	var last time.Duration
	for i, s := range samples {
		if i > 0 {
			if wait := time.Duration(float64(s.Elapsed-last) / speed); wait > 0 {
				if err := sleeper.Sleep(ctx, wait); err != nil {
					return err
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.Emit(s, time.Now()); err != nil {
			return err
		}
		if onSample != nil {
			onSample(s)
		}
		last = s.Elapsed
	}
	return nil
}
