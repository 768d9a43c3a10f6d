package location

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"papi-ng/internal/approach"
	"papi-ng/internal/geo"
	"papi-ng/internal/position"
)

const (
	DefaultDescentAngleDeg = 3.0
	DefaultSmoothingAlpha  = 0.5

	// StaleAfter is how long the aggregator waits for a fix before marking
	// the state stale.
	StaleAfter = 5 * time.Second
)

type Phase string

const (
	PhaseNoTarget Phase = "no_target"
	PhaseTracking Phase = "tracking"
	PhaseActive   Phase = "active"
)

// Settings are the externally supplied guidance inputs.
type Settings struct {
	DescentAngleDeg float64 `json:"descent_angle_deg"`
	SmoothingAlpha  float64 `json:"smoothing_alpha"`
}

func DefaultSettings() Settings {
	return Settings{DescentAngleDeg: DefaultDescentAngleDeg, SmoothingAlpha: DefaultSmoothingAlpha}
}

func (s Settings) validate() error {
	if math.IsNaN(s.DescentAngleDeg) || math.IsInf(s.DescentAngleDeg, 0) {
		return fmt.Errorf("descent angle must be finite")
	}
	if !(s.SmoothingAlpha > 0 && s.SmoothingAlpha <= 1) {
		return fmt.Errorf("smoothing alpha must be in (0,1]")
	}
	return nil
}

// State is the published aggregator state. Pointer fields are nil when the
// value is absent.
type State struct {
	Phase  Phase  `json:"phase"`
	Source string `json:"source,omitempty"`

	HasFix     bool     `json:"has_fix"`
	LatDeg     float64  `json:"lat_deg"`
	LonDeg     float64  `json:"lon_deg"`
	AltFeet    float64  `json:"alt_feet"`
	GroundKt   *float64 `json:"ground_kt,omitempty"`
	TrackDeg   *float64 `json:"track_deg,omitempty"`
	GeoAltFeet *float64 `json:"geo_alt_feet,omitempty"`

	Target *approach.Target `json:"target,omitempty"`

	HasSolution        bool       `json:"has_solution"`
	DistanceNM         float64    `json:"distance_nm"`
	BearingToTargetDeg *float64   `json:"bearing_to_target_deg,omitempty"`
	RelativeBearingDeg *float64   `json:"relative_bearing_deg,omitempty"`
	AngleToTargetDeg   float64    `json:"angle_to_target_deg"`
	AngleDeviationDeg  float64    `json:"angle_deviation_deg"`
	RawOffset          float64    `json:"raw_offset"`
	SmoothedOffset     float64    `json:"smoothed_offset"`
	PAPIPosition       float64    `json:"papi_position"`
	Lights             [4]float64 `json:"lights"`

	Stale      bool       `json:"stale"`
	LastUpdate *time.Time `json:"last_update,omitempty"`

	Settings Settings `json:"settings"`
}

func (s State) clone() State {
	s.GroundKt = position.CopyFloat(s.GroundKt)
	s.TrackDeg = position.CopyFloat(s.TrackDeg)
	s.GeoAltFeet = position.CopyFloat(s.GeoAltFeet)
	s.BearingToTargetDeg = position.CopyFloat(s.BearingToTargetDeg)
	s.RelativeBearingDeg = position.CopyFloat(s.RelativeBearingDeg)
	if s.Target != nil {
		t := *s.Target
		s.Target = &t
	}
	if s.LastUpdate != nil {
		t := *s.LastUpdate
		s.LastUpdate = &t
	}
	return s
}

// Aggregator owns the mutable guidance state.
type Aggregator struct {
	mu  sync.Mutex
	st  State
	ema float64
	// emaPrimed is false until the first sample after a reset.
	emaPrimed bool

	now func() time.Time

	last atomic.Value // State
}

func New(settings Settings) (*Aggregator, error) {
	if err := settings.validate(); err != nil {
		return nil, err
	}
	a := &Aggregator{now: time.Now}
	a.st = State{Phase: PhaseNoTarget, Stale: true, Settings: settings}
	a.publishLocked()
	return a, nil
}

// Snapshot returns a copy of the latest published state.
func (a *Aggregator) Snapshot() State {
	if a == nil {
		return State{Phase: PhaseNoTarget, Stale: true}
	}
	v := a.last.Load()
	if v == nil {
		return State{Phase: PhaseNoTarget, Stale: true}
	}
	return v.(State).clone()
}

// Update applies an accepted fix. Fixes with non-finite or out of range
// coordinates are rejected and leave the state untouched.
func (a *Aggregator) Update(fix position.Fix) bool {
	if a == nil || !fix.Valid() {
		return false
	}
	at := fix.ReceivedAt
	if at.IsZero() {
		at = a.now()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.st.HasFix = true
	a.st.LatDeg = fix.LatDeg
	a.st.LonDeg = fix.LonDeg
	a.st.AltFeet = fix.AltFeet
	a.st.GroundKt = position.CopyFloat(fix.GroundKt)
	a.st.TrackDeg = position.CopyFloat(fix.TrackDeg)
	a.st.LastUpdate = &at
	a.st.Stale = false

	if a.st.Target != nil {
		a.computeLocked()
		a.st.Phase = PhaseActive
	}
	a.publishLocked()
	return true
}

// UpdateGeoAltitude records a geometric altitude. It does not count as a fix.
func (a *Aggregator) UpdateGeoAltitude(altFeet float64) {
	if a == nil || math.IsNaN(altFeet) || math.IsInf(altFeet, 0) {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.st.GeoAltFeet = position.Float(altFeet)
	a.publishLocked()
}

// SetTarget replaces the navigation target. Smoothing restarts and derived
// outputs are cleared until the next fix.
func (a *Aggregator) SetTarget(t approach.Target) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.st.Target = &t
	a.st.Phase = PhaseTracking
	a.clearDerivedLocked()
	a.publishLocked()
}

func (a *Aggregator) ClearTarget() {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.st.Target = nil
	a.st.Phase = PhaseNoTarget
	a.clearDerivedLocked()
	a.publishLocked()
}

// SetSettings takes effect on the next fix.
func (a *Aggregator) SetSettings(s Settings) error {
	if a == nil {
		return fmt.Errorf("aggregator is nil")
	}
	if err := s.validate(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.st.Settings = s
	a.publishLocked()
	return nil
}

// CheckStale marks the state stale when no fix has been accepted within
// StaleAfter of now. It never clears the flag. It returns the flag.
func (a *Aggregator) CheckStale(now time.Time) bool {
	if a == nil {
		return true
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.st.Stale {
		return true
	}
	if a.st.LastUpdate == nil || now.Sub(*a.st.LastUpdate) > StaleAfter {
		a.st.Stale = true
		a.publishLocked()
	}
	return a.st.Stale
}

// Reset drops everything learned from the previous source. The target and
// settings are kept.
func (a *Aggregator) Reset(source string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.st.Source = source
	a.st.HasFix = false
	a.st.LatDeg, a.st.LonDeg, a.st.AltFeet = 0, 0, 0
	a.st.GroundKt = nil
	a.st.TrackDeg = nil
	a.st.GeoAltFeet = nil
	a.st.LastUpdate = nil
	a.st.Stale = true
	a.clearDerivedLocked()
	if a.st.Target != nil {
		a.st.Phase = PhaseTracking
	} else {
		a.st.Phase = PhaseNoTarget
	}
	a.publishLocked()
}

func (a *Aggregator) computeLocked() {
	t := a.st.Target
	dist := geo.EllipsoidalDistanceNM(a.st.LatDeg, a.st.LonDeg, t.LatDeg, t.LonDeg)
	angle := math.Atan2(a.st.AltFeet-t.ElevationFt, dist*FeetPerNM) * 180 / math.Pi
	dev := angle - a.st.Settings.DescentAngleDeg

	if !a.emaPrimed {
		a.ema = dev
		a.emaPrimed = true
	} else {
		alpha := a.st.Settings.SmoothingAlpha
		a.ema = alpha*dev + (1-alpha)*a.ema
	}

	a.st.HasSolution = true
	a.st.DistanceNM = dist
	a.st.AngleToTargetDeg = angle
	a.st.AngleDeviationDeg = dev
	a.st.RawOffset = RawOffset(dev)
	a.st.SmoothedOffset = RawOffset(a.ema)
	a.st.PAPIPosition = PAPIPosition(dev)
	a.st.Lights = LightIntensities(a.st.PAPIPosition)

	brg := geo.ForwardAzimuthDeg(a.st.LatDeg, a.st.LonDeg, t.LatDeg, t.LonDeg)
	a.st.BearingToTargetDeg = position.Float(brg)
	if a.st.TrackDeg != nil {
		a.st.RelativeBearingDeg = position.Float(geo.NormalizeRelativeDeg(brg - *a.st.TrackDeg))
	} else {
		a.st.RelativeBearingDeg = nil
	}
}

func (a *Aggregator) clearDerivedLocked() {
	a.ema = 0
	a.emaPrimed = false
	a.st.HasSolution = false
	a.st.DistanceNM = 0
	a.st.BearingToTargetDeg = nil
	a.st.RelativeBearingDeg = nil
	a.st.AngleToTargetDeg = 0
	a.st.AngleDeviationDeg = 0
	a.st.RawOffset = 0
	a.st.SmoothedOffset = 0
	a.st.PAPIPosition = 0
	a.st.Lights = [4]float64{}
}

func (a *Aggregator) publishLocked() {
	a.last.Store(a.st.clone())
}
