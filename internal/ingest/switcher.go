package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"papi-ng/internal/gps"
)

// Config describes every source the factory can build.
type Config struct {
	XGPSAddr  string
	GDL90Addr string
	// GDL90RecordPath enables recording of the raw GDL90 feed.
	GDL90RecordPath string

	GPS gps.Config

	ReplayPath  string
	ReplaySpeed float64
	ReplayLoop  bool
}

// Factory builds a fresh, unstarted source by name.
type Factory func(name string, sink Sink) (Source, error)

// NewFactory returns the Factory for cfg.
func NewFactory(cfg Config) Factory {
	return func(name string, sink Sink) (Source, error) {
		switch name {
		case SourceXGPS:
			return newXGPSSource(cfg.XGPSAddr, sink)
		case SourceGDL90:
			return newGDL90Source(cfg.GDL90Addr, cfg.GDL90RecordPath, sink)
		case SourceGPS:
			return newGPSSource(cfg.GPS, sink), nil
		case SourceReplay:
			return newReplaySource(cfg.ReplayPath, cfg.ReplaySpeed, cfg.ReplayLoop, sink), nil
		default:
			return nil, fmt.Errorf("unknown source %q", name)
		}
	}
}

type Status struct {
	Active    string   `json:"active,omitempty"`
	Available []string `json:"available"`
	Detail    any      `json:"detail,omitempty"`
	LastError string   `json:"last_error,omitempty"`
}

// Switcher keeps exactly one source running. Switching stops the old
// source, resets the sink, then starts the new one.
type Switcher struct {
	ctx     context.Context
	sink    Sink
	factory Factory

	mu      sync.Mutex
	active  Source
	lastErr string
}

func NewSwitcher(ctx context.Context, sink Sink, factory Factory) *Switcher {
	return &Switcher{ctx: ctx, sink: sink, factory: factory}
}

func (s *Switcher) Switch(name string) error {
	if s == nil {
		return fmt.Errorf("switcher is nil")
	}
	name = strings.ToLower(strings.TrimSpace(name))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && s.active.Name() == name {
		return nil
	}

	// Validate before tearing anything down.
	next, err := s.factory(name, s.sink)
	if err != nil {
		s.lastErr = err.Error()
		return err
	}

	prev := ""
	if s.active != nil {
		prev = s.active.Name()
		s.active.Close()
		s.active = nil
	}
	s.sink.Reset(name)

	if err := next.Start(s.ctx); err != nil {
		next.Close()
		s.lastErr = err.Error()
		log.Printf("source switch failed from=%s to=%s: %v", prev, name, err)
		return fmt.Errorf("start %s: %w", name, err)
	}
	s.active = next
	s.lastErr = ""
	log.Printf("source switched from=%s to=%s", prev, name)
	return nil
}

// Active returns the running source name ("" if none).
func (s *Switcher) Active() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ""
	}
	return s.active.Name()
}

func (s *Switcher) Status() Status {
	if s == nil {
		return Status{Available: Names()}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Available: Names(), LastError: s.lastErr}
	if s.active != nil {
		st.Active = s.active.Name()
		st.Detail = s.active.Status()
	}
	return st
}

func (s *Switcher) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		s.active.Close()
		s.active = nil
	}
}
