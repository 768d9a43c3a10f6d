// Package ingest owns the active telemetry source and feeds its fixes into
// the location aggregator.
package ingest

import (
	"bytes"
	"context"
	"sync/atomic"
	"time"

	"papi-ng/internal/gdl90"
	"papi-ng/internal/logging"
	"papi-ng/internal/position"
	"papi-ng/internal/xgps"
)

const (
	SourceGPS    = "gps"
	SourceXGPS   = "xgps"
	SourceGDL90  = "gdl90"
	SourceReplay = "replay"
)

// Names lists the selectable sources.
func Names() []string {
	return []string{SourceGPS, SourceXGPS, SourceGDL90, SourceReplay}
}

// Sink receives decoded telemetry. *location.Aggregator implements it.
type Sink interface {
	Update(fix position.Fix) bool
	UpdateGeoAltitude(altFeet float64)
	Reset(source string)
}

// Source is one startable telemetry input.
type Source interface {
	Name() string
	Start(ctx context.Context) error
	Close()
	Status() any
}

// DecodeStats counts what a handler did with the payloads it saw.
type DecodeStats struct {
	Fixes        uint64 `json:"fixes"`
	GeoAltitudes uint64 `json:"geo_altitudes"`
	Rejected     uint64 `json:"rejected"`
	BadFrames    uint64 `json:"bad_frames"`
}

// handler decodes raw payloads into the sink.
type handler struct {
	sink   Sink
	reject *logging.Limited

	fixes     atomic.Uint64
	geoAlts   atomic.Uint64
	rejected  atomic.Uint64
	badFrames atomic.Uint64
}

func newHandler(sink Sink) *handler {
	return &handler{sink: sink, reject: logging.NewLimited(10*time.Second, 1)}
}

func (h *handler) stats() DecodeStats {
	return DecodeStats{
		Fixes:        h.fixes.Load(),
		GeoAltitudes: h.geoAlts.Load(),
		Rejected:     h.rejected.Load(),
		BadFrames:    h.badFrames.Load(),
	}
}

func (h *handler) fix(f position.Fix) bool {
	if !h.sink.Update(f) {
		h.rejected.Add(1)
		h.reject.Printf("fix rejected lat=%v lon=%v alt=%v", f.LatDeg, f.LonDeg, f.AltFeet)
		return false
	}
	h.fixes.Add(1)
	return true
}

func (h *handler) handleXGPS(pkt []byte, at time.Time) bool {
	f, ok := xgps.Decode(pkt, at)
	if !ok {
		h.rejected.Add(1)
		h.reject.Printf("xgps packet rejected len=%d", len(pkt))
		return false
	}
	return h.fix(f)
}

func (h *handler) handleGDL90(pkt []byte, at time.Time) bool {
	d := gdl90.DecodeBuffer(pkt, at)
	if d.Dropped > 0 {
		h.badFrames.Add(uint64(d.Dropped))
		h.reject.Printf("gdl90 frames dropped n=%d len=%d", d.Dropped, len(pkt))
	}
	accepted := false
	for _, f := range d.Fixes {
		if h.fix(f) {
			accepted = true
		}
	}
	for _, g := range d.GeoAltitudes {
		h.sink.UpdateGeoAltitude(float64(g.AltFeet))
		h.geoAlts.Add(1)
		accepted = true
	}
	return accepted
}

// handleAny picks the decoder from the payload itself; replay logs may hold
// either protocol.
func (h *handler) handleAny(pkt []byte, at time.Time) bool {
	if bytes.HasPrefix(pkt, []byte(xgps.Tag)) {
		return h.handleXGPS(pkt, at)
	}
	return h.handleGDL90(pkt, at)
}
