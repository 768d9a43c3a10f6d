package runway

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"papi-ng/internal/approach"
)

// TargetSink receives the active approach target.
type TargetSink interface {
	SetTarget(t approach.Target)
	ClearTarget()
}

// Selection is the currently selected approach.
type Selection struct {
	Runway        approach.Runway `json:"runway"`
	Target        approach.Target `json:"target"`
	TouchOffsetFt float64         `json:"touch_offset_ft"`
	SelectedUTC   string          `json:"selected_utc"`
}

// Selector owns the runway selection and keeps the sink's target in step
// with it.
type Selector struct {
	lookup Lookup
	sink   TargetSink

	mu       sync.Mutex
	offsetFt float64
	sel      *Selection
}

func NewSelector(l Lookup, sink TargetSink, touchOffsetFt float64) *Selector {
	return &Selector{lookup: l, sink: sink, offsetFt: math.Max(touchOffsetFt, 0)}
}

// Select resolves airport/ident and installs its target. On failure the
// previous selection stays active.
func (s *Selector) Select(ctx context.Context, airport, ident string) (Selection, error) {
	if s == nil {
		return Selection{}, fmt.Errorf("runway selector is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectLocked(ctx, airport, ident, s.offsetFt)
}

func (s *Selector) selectLocked(ctx context.Context, airport, ident string, offsetFt float64) (Selection, error) {
	rwy, tgt, err := Select(ctx, s.lookup, airport, ident, offsetFt)
	if err != nil {
		return Selection{}, err
	}
	sel := Selection{
		Runway:        rwy,
		Target:        tgt,
		TouchOffsetFt: offsetFt,
		SelectedUTC:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	s.sel = &sel
	if s.sink != nil {
		s.sink.SetTarget(tgt)
	}
	log.Printf("approach selected airport=%s runway=%s lat=%.6f lon=%.6f elev_ft=%.0f offset_ft=%.0f",
		rwy.Airport, rwy.Ident, tgt.LatDeg, tgt.LonDeg, tgt.ElevationFt, offsetFt)
	return sel, nil
}

// Clear drops the selection and the sink's target.
func (s *Selector) Clear() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sel != nil {
		log.Printf("approach cleared airport=%s runway=%s", s.sel.Runway.Airport, s.sel.Runway.Ident)
	}
	s.sel = nil
	if s.sink != nil {
		s.sink.ClearTarget()
	}
}

// SetTouchOffset changes the touchdown offset and re-projects the current
// selection, if any.
func (s *Selector) SetTouchOffset(ctx context.Context, ft float64) error {
	if s == nil {
		return fmt.Errorf("runway selector is nil")
	}
	if ft < 0 || math.IsNaN(ft) || math.IsInf(ft, 0) {
		return fmt.Errorf("touch offset must be a finite value >= 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sel != nil && s.sel.TouchOffsetFt != ft {
		if _, err := s.selectLocked(ctx, s.sel.Runway.Airport, s.sel.Runway.Ident, ft); err != nil {
			return err
		}
	}
	s.offsetFt = ft
	return nil
}

func (s *Selector) TouchOffsetFt() float64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offsetFt
}

// Current returns the active selection.
func (s *Selector) Current() (Selection, bool) {
	if s == nil {
		return Selection{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sel == nil {
		return Selection{}, false
	}
	return *s.sel, true
}
