package ingest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"papi-ng/internal/gps"
	"papi-ng/internal/position"
	"papi-ng/internal/replay"
	"papi-ng/internal/udp"
)

type udpStatus struct {
	Listener udp.ListenerSnapshot `json:"listener"`
	Decode   DecodeStats          `json:"decode"`
	Recorded *uint64              `json:"recorded,omitempty"`
}

// udpSource is the XGPS or GDL90 listener.
type udpSource struct {
	name     string
	listener *udp.Listener
	h        *handler
	decode   func(pkt []byte, at time.Time) bool

	recorder *replay.Writer
}

func newXGPSSource(addr string, sink Sink) (*udpSource, error) {
	l, err := udp.NewListener(udp.ListenerConfig{Name: SourceXGPS, Addr: addr})
	if err != nil {
		return nil, err
	}
	h := newHandler(sink)
	return &udpSource{name: SourceXGPS, listener: l, h: h, decode: h.handleXGPS}, nil
}

func newGDL90Source(addr string, recordPath string, sink Sink) (*udpSource, error) {
	l, err := udp.NewListener(udp.ListenerConfig{Name: SourceGDL90, Addr: addr})
	if err != nil {
		return nil, err
	}
	h := newHandler(sink)
	s := &udpSource{name: SourceGDL90, listener: l, h: h, decode: h.handleGDL90}
	if recordPath != "" {
		w, err := replay.Create(recordPath)
		if err != nil {
			return nil, err
		}
		s.recorder = w
	}
	return s, nil
}

func (s *udpSource) Name() string { return s.name }

func (s *udpSource) Start(ctx context.Context) error {
	err := s.listener.Start(ctx, func(pkt []byte, at time.Time) bool {
		if s.recorder != nil {
			if err := s.recorder.Write(at, pkt); err != nil {
				s.h.reject.Printf("%s record failed: %v", s.name, err)
			}
		}
		return s.decode(pkt, at)
	})
	if err != nil {
		return err
	}
	log.Printf("%s listener enabled addr=%s", s.name, s.listener.LocalAddr())
	if s.recorder != nil {
		log.Printf("%s recording enabled", s.name)
	}
	return nil
}

func (s *udpSource) Close() {
	s.listener.Close()
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			log.Printf("%s record close failed: %v", s.name, err)
		}
	}
}

func (s *udpSource) Status() any {
	st := udpStatus{Listener: s.listener.Snapshot(), Decode: s.h.stats()}
	if s.recorder != nil {
		n := s.recorder.Count()
		st.Recorded = &n
	}
	return st
}

type gpsStatus struct {
	GPS    gps.Snapshot `json:"gps"`
	Decode DecodeStats  `json:"decode"`
}

// gpsSource is the local positioning sensor.
type gpsSource struct {
	svc *gps.Service
	h   *handler
}

func newGPSSource(cfg gps.Config, sink Sink) *gpsSource {
	s := &gpsSource{h: newHandler(sink)}
	cfg.Enable = true
	s.svc = gps.New(cfg, func(f position.Fix) { s.h.fix(f) })
	return s
}

func (s *gpsSource) Name() string                    { return SourceGPS }
func (s *gpsSource) Start(ctx context.Context) error { return s.svc.Start(ctx) }
func (s *gpsSource) Close()                          { s.svc.Close() }
func (s *gpsSource) Status() any {
	return gpsStatus{GPS: s.svc.Snapshot(), Decode: s.h.stats()}
}

type replayStatus struct {
	Path    string      `json:"path"`
	State   string      `json:"state"`
	Records int         `json:"records"`
	Error   string      `json:"error,omitempty"`
	Decode  DecodeStats `json:"decode"`
}

// replaySource plays a recorded datagram log into the sink.
type replaySource struct {
	path  string
	speed float64
	loop  bool
	h     *handler
	now   func() time.Time

	mu      sync.Mutex
	state   string
	lastErr string
	records int
	cancel  context.CancelFunc
	done    chan struct{}
}

func newReplaySource(path string, speed float64, loop bool, sink Sink) *replaySource {
	if speed <= 0 {
		speed = 1
	}
	return &replaySource{path: path, speed: speed, loop: loop, h: newHandler(sink), now: time.Now, state: "stopped"}
}

func (s *replaySource) Name() string { return SourceReplay }

func (s *replaySource) Start(ctx context.Context) error {
	if s.path == "" {
		return fmt.Errorf("replay path is empty")
	}
	recs, err := replay.Load(s.path)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.records = len(recs)
	s.state = "playing"
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()
	log.Printf("replay enabled path=%s records=%d speed=%.2f loop=%v", s.path, len(recs), s.speed, s.loop)

	go func() {
		defer close(done)
		err := replay.Play(runCtx, recs, s.speed, s.loop, nil, func(data []byte) error {
			s.h.handleAny(data, s.now().UTC())
			return nil
		})
		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case err == nil:
			s.state = "finished"
		case runCtx.Err() != nil:
			s.state = "stopped"
		default:
			s.state = "error"
			s.lastErr = err.Error()
		}
	}()
	return nil
}

func (s *replaySource) Close() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *replaySource) Status() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return replayStatus{Path: s.path, State: s.state, Records: s.records, Error: s.lastErr, Decode: s.h.stats()}
}
