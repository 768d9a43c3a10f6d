package sim

import (
	"fmt"
	"math"
	"time"

	"papi-ng/internal/geo"
	"papi-ng/internal/position"
)

const DefaultSpeedKt = 120.0

// Sample is the aircraft state at one simulation step.
type Sample struct {
	Elapsed  time.Duration
	Toward   string
	LatDeg   float64
	LonDeg   float64
	AltFeet  float64
	TrackDeg float64
	GroundKt float64
}

func (s Sample) Fix(at time.Time) position.Fix {
	return position.Fix{
		LatDeg:     s.LatDeg,
		LonDeg:     s.LonDeg,
		AltFeet:    s.AltFeet,
		GroundKt:   position.Float(s.GroundKt),
		TrackDeg:   position.Float(s.TrackDeg),
		ReceivedAt: at,
	}
}

// Fly steps along route at speedKt, one sample per step. Position and
// altitude are interpolated linearly within each leg; the track is the leg's
// initial great-circle bearing. Distance left over at the end of a leg
// carries into the following legs, so legs shorter than one step (including
// repeated waypoints) are passed through without a sample. The last sample
// sits on the final waypoint.
func Fly(route []Waypoint, speedKt float64, step time.Duration) ([]Sample, error) {
	if err := validateRoute(route); err != nil {
		return nil, err
	}
	if speedKt <= 0 || math.IsNaN(speedKt) || math.IsInf(speedKt, 0) {
		return nil, fmt.Errorf("speed must be > 0")
	}
	if step <= 0 {
		return nil, fmt.Errorf("step must be > 0")
	}
	perStepNM := speedKt * step.Hours()

	legNM := func(i int) float64 {
		a, b := route[i], route[i+1]
		return geo.SphericalDistanceNM(a.LatDeg, a.LonDeg, b.LatDeg, b.LonDeg)
	}

	var out []Sample
	var elapsed time.Duration
	leg := 0
	along := 0.0
	for leg < len(route)-1 && along >= legNM(leg) {
		along -= legNM(leg)
		leg++
	}
	for leg < len(route)-1 {
		a, b := route[leg], route[leg+1]
		frac := along / legNM(leg)
		out = append(out, Sample{
			Elapsed:  elapsed,
			Toward:   b.Name,
			LatDeg:   a.LatDeg + (b.LatDeg-a.LatDeg)*frac,
			LonDeg:   a.LonDeg + (b.LonDeg-a.LonDeg)*frac,
			AltFeet:  a.AltFeet + (b.AltFeet-a.AltFeet)*frac,
			TrackDeg: geo.ForwardAzimuthDeg(a.LatDeg, a.LonDeg, b.LatDeg, b.LonDeg),
			GroundKt: speedKt,
		})

		along += perStepNM
		for leg < len(route)-1 && along >= legNM(leg) {
			along -= legNM(leg)
			leg++
		}
		elapsed += step
	}

	last, prev := route[len(route)-1], route[len(route)-2]
	out = append(out, Sample{
		Elapsed:  elapsed,
		Toward:   last.Name,
		LatDeg:   last.LatDeg,
		LonDeg:   last.LonDeg,
		AltFeet:  last.AltFeet,
		TrackDeg: geo.ForwardAzimuthDeg(prev.LatDeg, prev.LonDeg, last.LatDeg, last.LonDeg),
		GroundKt: speedKt,
	})
	return out, nil
}
