package runway

import (
	"context"
	"fmt"

	"papi-ng/internal/approach"
)

// Select resolves a runway and builds its navigation target. The target
// elevation is the runway elevation, else the airport elevation; with
// neither, Select fails.
func Select(ctx context.Context, l Lookup, airport, ident string, touchOffsetFt float64) (approach.Runway, approach.Target, error) {
	if l == nil {
		return approach.Runway{}, approach.Target{}, fmt.Errorf("runway lookup is nil")
	}
	rwy, found, err := l.Runway(ctx, airport, ident)
	if err != nil {
		return approach.Runway{}, approach.Target{}, err
	}
	if !found {
		return approach.Runway{}, approach.Target{}, fmt.Errorf("%w: %s/%s", ErrNotFound, normalizeCode(airport), normalizeCode(ident))
	}

	var elev float64
	if rwy.ElevationFt != nil {
		elev = *rwy.ElevationFt
	} else {
		aptElev, ok, err := l.AirportElevation(ctx, airport)
		if err != nil {
			return approach.Runway{}, approach.Target{}, err
		}
		if !ok {
			return approach.Runway{}, approach.Target{}, fmt.Errorf("no elevation for %s/%s", rwy.Airport, rwy.Ident)
		}
		elev = aptElev
	}
	return rwy, approach.NewTarget(rwy, rwy.DisplacedThresholdFt, touchOffsetFt, elev), nil
}
