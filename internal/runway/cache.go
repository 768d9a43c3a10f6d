package runway

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"papi-ng/internal/approach"
)

type runwayEntry struct {
	rwy   approach.Runway
	found bool
}

type elevEntry struct {
	ft    float64
	found bool
}

// Cached memoizes lookups, including misses. Errors are not cached.
type Cached struct {
	next    Lookup
	runways *expirable.LRU[string, runwayEntry]
	elev    *expirable.LRU[string, elevEntry]
}

func NewCached(next Lookup, size int, ttl time.Duration) *Cached {
	if size <= 0 {
		size = 64
	}
	return &Cached{
		next:    next,
		runways: expirable.NewLRU[string, runwayEntry](size, nil, ttl),
		elev:    expirable.NewLRU[string, elevEntry](size, nil, ttl),
	}
}

func (c *Cached) Runway(ctx context.Context, airport, ident string) (approach.Runway, bool, error) {
	key := normalizeCode(airport) + "/" + normalizeCode(ident)
	if e, ok := c.runways.Get(key); ok {
		return e.rwy, e.found, nil
	}
	rwy, found, err := c.next.Runway(ctx, airport, ident)
	if err != nil {
		return rwy, found, err
	}
	c.runways.Add(key, runwayEntry{rwy: rwy, found: found})
	return rwy, found, nil
}

func (c *Cached) AirportElevation(ctx context.Context, airport string) (float64, bool, error) {
	key := normalizeCode(airport)
	if e, ok := c.elev.Get(key); ok {
		return e.ft, e.found, nil
	}
	ft, found, err := c.next.AirportElevation(ctx, airport)
	if err != nil {
		return ft, found, err
	}
	c.elev.Add(key, elevEntry{ft: ft, found: found})
	return ft, found, nil
}
