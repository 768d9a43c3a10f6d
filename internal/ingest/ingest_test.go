package ingest

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"papi-ng/internal/gdl90"
	"papi-ng/internal/position"
	"papi-ng/internal/replay"
	"papi-ng/internal/xgps"
)

type fakeSink struct {
	mu      sync.Mutex
	fixes   []position.Fix
	geoAlts []float64
	resets  []string
	events  []string
}

func (s *fakeSink) Update(f position.Fix) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !f.Valid() {
		return false
	}
	s.fixes = append(s.fixes, f)
	return true
}

func (s *fakeSink) UpdateGeoAltitude(ft float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.geoAlts = append(s.geoAlts, ft)
}

func (s *fakeSink) Reset(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets = append(s.resets, source)
	s.events = append(s.events, "reset:"+source)
}

func (s *fakeSink) fixCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fixes)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

var testFix = position.Fix{LatDeg: 45.55, LonDeg: -122.75, AltFeet: 1500}.WithTrackDeg(100).WithGroundKt(90)

func TestHandler_XGPS(t *testing.T) {
	sink := &fakeSink{}
	h := newHandler(sink)
	now := time.Now()
	if !h.handleXGPS(xgps.Encode("Sim", testFix), now) {
		t.Fatalf("valid packet rejected")
	}
	if h.handleXGPS([]byte("XGPS1,short"), now) {
		t.Fatalf("short packet accepted")
	}
	// Decodes but fails range validation in the sink.
	bad := testFix
	bad.LatDeg = 95
	if h.handleXGPS(xgps.Encode("Sim", bad), now) {
		t.Fatalf("out of range fix accepted")
	}
	st := h.stats()
	if st.Fixes != 1 || st.Rejected != 2 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestHandler_GDL90(t *testing.T) {
	sink := &fakeSink{}
	h := newHandler(sink)

	gs := 90
	own := gdl90.OwnshipReportFrame(gdl90.Ownship{LatDeg: 45.55, LonDeg: -122.75, AltFeet: 1500, GroundKt: &gs, TrackDeg: 100})
	geo := gdl90.GeoAltitudeFrame(gdl90.GeoAltitude{AltFeet: 1620})
	hb := gdl90.HeartbeatFrameAt(time.Now().UTC(), true)
	corrupt := append([]byte(nil), own...)
	corrupt[len(corrupt)-2] ^= 0xFF

	buf := append(append(append([]byte{}, hb...), own...), geo...)
	if !h.handleGDL90(buf, time.Now()) {
		t.Fatalf("buffer rejected")
	}
	if h.handleGDL90(hb, time.Now()) {
		t.Fatalf("heartbeat alone should not count as accepted")
	}
	if h.handleGDL90(corrupt, time.Now()) {
		t.Fatalf("corrupt frame accepted")
	}
	st := h.stats()
	if st.Fixes != 1 || st.GeoAltitudes != 1 || st.BadFrames != 1 {
		t.Fatalf("stats=%+v", st)
	}
	if len(sink.geoAlts) != 1 || sink.geoAlts[0] != 1620 {
		t.Fatalf("geo=%v", sink.geoAlts)
	}
}

func TestHandler_AnyPicksProtocol(t *testing.T) {
	sink := &fakeSink{}
	h := newHandler(sink)
	h.handleAny(xgps.Encode("Sim", testFix), time.Now())
	h.handleAny(gdl90.OwnshipReportFrame(gdl90.Ownship{LatDeg: 1, LonDeg: 2}), time.Now())
	if sink.fixCount() != 2 {
		t.Fatalf("fixes=%d want 2", sink.fixCount())
	}
}

func TestXGPSSource_ReceivesDatagrams(t *testing.T) {
	sink := &fakeSink{}
	src, err := newXGPSSource("127.0.0.1:0", sink)
	if err != nil {
		t.Fatalf("newXGPSSource: %v", err)
	}
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer src.Close()

	conn, err := net.Dial("udp", src.listener.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_, _ = conn.Write(xgps.Encode("Sim", testFix))
	_, _ = conn.Write([]byte("garbage"))

	waitFor(t, func() bool { return src.listener.Snapshot().Packets == 2 })
	st := src.Status().(udpStatus)
	if st.Listener.Accepted != 1 || st.Listener.Rejected != 1 || st.Decode.Fixes != 1 {
		t.Fatalf("status=%+v", st)
	}
}

func TestGDL90Source_RecordsFeed(t *testing.T) {
	sink := &fakeSink{}
	path := filepath.Join(t.TempDir(), "gdl90.log")
	src, err := newGDL90Source("127.0.0.1:0", path, sink)
	if err != nil {
		t.Fatalf("newGDL90Source: %v", err)
	}
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	conn, err := net.Dial("udp", src.listener.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	frame := gdl90.OwnshipReportFrame(gdl90.Ownship{LatDeg: 45.5, LonDeg: -122.6, AltFeet: 1000})
	_, _ = conn.Write(frame)
	_ = conn.Close()
	waitFor(t, func() bool { return sink.fixCount() == 1 })
	if st := src.Status().(udpStatus); st.Recorded == nil || *st.Recorded != 1 {
		t.Fatalf("status=%+v", st)
	}
	src.Close()

	recs, err := replay.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 2 || !recs[0].IsStart() || string(recs[1].Data) != string(frame) {
		t.Fatalf("recs=%+v", recs)
	}
}

func TestReplaySource_PlaysLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.log")
	w, err := replay.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	now := time.Now()
	_ = w.Write(now, xgps.Encode("Sim", testFix))
	_ = w.Write(now, gdl90.OwnshipReportFrame(gdl90.Ownship{LatDeg: 45.5, LonDeg: -122.6, AltFeet: 1000}))
	_ = w.Write(now, gdl90.GeoAltitudeFrame(gdl90.GeoAltitude{AltFeet: 1100}))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	sink := &fakeSink{}
	src := newReplaySource(path, 100, false, sink)
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return src.Status().(replayStatus).State == "finished" })
	src.Close()
	st := src.Status().(replayStatus)
	if st.Records != 4 || st.Decode.Fixes != 2 || st.Decode.GeoAltitudes != 1 {
		t.Fatalf("status=%+v", st)
	}
}

func TestReplaySource_MissingFile(t *testing.T) {
	src := newReplaySource(filepath.Join(t.TempDir(), "nope.log"), 1, false, &fakeSink{})
	if err := src.Start(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if err := newReplaySource("", 1, false, &fakeSink{}).Start(context.Background()); err == nil {
		t.Fatalf("expected empty path error")
	}
}

type fakeSource struct {
	name     string
	startErr error
	log      *[]string
	mu       *sync.Mutex
}

func (f *fakeSource) record(ev string) {
	f.mu.Lock()
	*f.log = append(*f.log, ev)
	f.mu.Unlock()
}

func (f *fakeSource) Name() string { return f.name }
func (f *fakeSource) Start(ctx context.Context) error {
	f.record("start:" + f.name)
	return f.startErr
}
func (f *fakeSource) Close()      { f.record("close:" + f.name) }
func (f *fakeSource) Status() any { return f.name }

func TestSwitcher_StopResetStartOrder(t *testing.T) {
	var mu sync.Mutex
	var events []string
	sink := &fakeSink{}
	factory := func(name string, s Sink) (Source, error) {
		if name == "bogus" {
			return nil, errors.New("unknown source")
		}
		var err error
		if name == SourceGPS {
			err = errors.New("no device")
		}
		return &fakeSource{name: name, startErr: err, log: &events, mu: &mu}, nil
	}
	sw := NewSwitcher(context.Background(), sink, factory)

	if err := sw.Switch("XGPS"); err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if err := sw.Switch("xgps"); err != nil {
		t.Fatalf("Switch same: %v", err)
	}
	if err := sw.Switch(SourceGDL90); err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if sw.Active() != SourceGDL90 {
		t.Fatalf("active=%q", sw.Active())
	}
	if err := sw.Switch("bogus"); err == nil {
		t.Fatalf("expected unknown source error")
	}
	if sw.Active() != SourceGDL90 {
		t.Fatalf("unknown source tore down active source")
	}

	mu.Lock()
	got := strings.Join(events, ",")
	mu.Unlock()
	if got != "start:xgps,close:xgps,start:gdl90" {
		t.Fatalf("events=%s", got)
	}
	if strings.Join(sink.resets, ",") != "xgps,gdl90" {
		t.Fatalf("resets=%v", sink.resets)
	}

	if err := sw.Switch(SourceGPS); err == nil {
		t.Fatalf("expected start error")
	}
	st := sw.Status()
	if st.Active != "" || st.LastError == "" || len(st.Available) != 4 {
		t.Fatalf("status=%+v", st)
	}

	sw.Close()
	var nilSw *Switcher
	if nilSw.Active() != "" || nilSw.Switch("xgps") == nil {
		t.Fatalf("nil switcher misbehaved")
	}
}

func TestFactory_BuildsKnownSources(t *testing.T) {
	f := NewFactory(Config{XGPSAddr: "127.0.0.1:0", GDL90Addr: "127.0.0.1:0", ReplayPath: "x.log"})
	for _, name := range Names() {
		src, err := f(name, &fakeSink{})
		if err != nil {
			t.Fatalf("factory(%s): %v", name, err)
		}
		if src.Name() != name {
			t.Fatalf("name=%q want %q", src.Name(), name)
		}
		src.Close()
	}
	if _, err := f("nope", &fakeSink{}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := f(SourceGDL90, nil); err != nil {
		t.Fatalf("gdl90 without recording: %v", err)
	}
}
