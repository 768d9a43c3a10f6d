package web

import (
	"sync/atomic"
	"time"

	"papi-ng/internal/ingest"
	"papi-ng/internal/location"
	"papi-ng/internal/publish"
	"papi-ng/internal/runway"
)

const serviceName = "papi-ng"

// Status tracks process-level counters that are not part of the
// aggregator state.
type Status struct {
	startUnixNano  int64
	staleChecks    uint64
	staleMarks     uint64
	lastCheckNano  int64
	runwaysEnabled atomic.Bool
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	return s
}

func (s *Status) SetRunwaysEnabled(v bool) {
	s.runwaysEnabled.Store(v)
}

// MarkStaleCheck records one run of the staleness ticker and whether the
// state was stale afterwards.
func (s *Status) MarkStaleCheck(nowUTC time.Time, marked bool) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	atomic.StoreInt64(&s.lastCheckNano, nowUTC.UnixNano())
	atomic.AddUint64(&s.staleChecks, 1)
	if marked {
		atomic.AddUint64(&s.staleMarks, 1)
	}
}

type StatusSnapshot struct {
	Service        string            `json:"service"`
	NowUTC         string            `json:"now_utc"`
	UptimeSec      int64             `json:"uptime_sec"`
	Phase          location.Phase    `json:"phase"`
	Stale          bool              `json:"stale"`
	LastUpdateUTC  string            `json:"last_update_utc,omitempty"`
	Sources        *ingest.Status    `json:"sources,omitempty"`
	RunwaysEnabled bool              `json:"runways_enabled"`
	Approach       *runway.Selection `json:"approach,omitempty"`
	StaleChecks    uint64            `json:"stale_checks"`
	StaleMarks     uint64            `json:"stale_marks"`
	LastCheckUTC   string            `json:"last_check_utc,omitempty"`
	StreamClients  int               `json:"stream_clients"`
	MQTT           *publish.Snapshot `json:"mqtt,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time, d Deps) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:        serviceName,
		NowUTC:         nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:      int64(nowUTC.Sub(start).Seconds()),
		RunwaysEnabled: s.runwaysEnabled.Load(),
		StaleChecks:    atomic.LoadUint64(&s.staleChecks),
		StaleMarks:     atomic.LoadUint64(&s.staleMarks),
		StreamClients:  d.Stream.Clients(),
	}
	if last := atomic.LoadInt64(&s.lastCheckNano); last != 0 {
		snap.LastCheckUTC = time.Unix(0, last).UTC().Format(time.RFC3339Nano)
	}
	if d.State != nil {
		st := d.State.Snapshot()
		snap.Phase = st.Phase
		snap.Stale = st.Stale
		if st.LastUpdate != nil {
			snap.LastUpdateUTC = st.LastUpdate.UTC().Format(time.RFC3339Nano)
		}
	}
	if d.Sources != nil {
		src := d.Sources.Status()
		snap.Sources = &src
	}
	if d.Approach != nil {
		if sel, ok := d.Approach.Current(); ok {
			snap.Approach = &sel
		}
	}
	if d.MQTT != nil {
		m := d.MQTT.Snapshot()
		snap.MQTT = &m
	}
	return snap
}
