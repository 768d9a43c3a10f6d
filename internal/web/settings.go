package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"papi-ng/internal/config"
)

type SettingsPayload struct {
	DescentAngleDeg float64 `json:"descent_angle_deg"`
	SmoothingAlpha  float64 `json:"smoothing_alpha"`
	TouchOffsetFt   float64 `json:"touch_offset_ft"`
}

// SettingsPayloadIn is the strict PUT schema.
//
// All fields are required (no partial updates).
type SettingsPayloadIn struct {
	DescentAngleDeg *float64 `json:"descent_angle_deg"`
	SmoothingAlpha  *float64 `json:"smoothing_alpha"`
	TouchOffsetFt   *float64 `json:"touch_offset_ft"`
}

var settingsPutKeys = []string{
	"descent_angle_deg",
	"smoothing_alpha",
	"touch_offset_ft",
}

func decodeSettingsPayloadInStrict(body []byte) (SettingsPayloadIn, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()

	// First pass: stream tokens to enforce strict object rules and detect duplicate keys.
	allowed := make(map[string]struct{}, len(settingsPutKeys))
	for _, k := range settingsPutKeys {
		allowed[k] = struct{}{}
	}
	seen := make(map[string]struct{}, len(settingsPutKeys))

	tok, err := dec.Token()
	if err != nil {
		return SettingsPayloadIn{}, fmt.Errorf("invalid json: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return SettingsPayloadIn{}, errors.New("invalid json: expected object")
	}

	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: %w", err)
		}
		key, ok := kt.(string)
		if !ok {
			return SettingsPayloadIn{}, errors.New("invalid json: expected string key")
		}
		if _, ok := allowed[key]; !ok {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: unknown key %q", key)
		}
		if _, dup := seen[key]; dup {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: duplicate key %q", key)
		}
		seen[key] = struct{}{}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: %w", err)
		}
		if strings.TrimSpace(string(raw)) == "null" {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: %q cannot be null", key)
		}
	}

	end, err := dec.Token()
	if err != nil {
		return SettingsPayloadIn{}, fmt.Errorf("invalid json: %w", err)
	}
	delim, ok = end.(json.Delim)
	if !ok || delim != '}' {
		return SettingsPayloadIn{}, errors.New("invalid json: expected end of object")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return SettingsPayloadIn{}, errors.New("invalid json: trailing data")
	}

	for _, k := range settingsPutKeys {
		if _, ok := seen[k]; !ok {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: missing required key %q", k)
		}
	}

	// Second pass: decode into the typed struct.
	var out SettingsPayloadIn
	dec2 := json.NewDecoder(bytes.NewReader(body))
	dec2.DisallowUnknownFields()
	if err := dec2.Decode(&out); err != nil {
		return SettingsPayloadIn{}, fmt.Errorf("invalid json: %w", err)
	}
	if err := dec2.Decode(&struct{}{}); err != io.EOF {
		return SettingsPayloadIn{}, errors.New("invalid json: trailing data")
	}

	return out, nil
}

func approachToSettingsPayload(a config.ApproachConfig) SettingsPayload {
	return SettingsPayload{
		DescentAngleDeg: a.DescentAngleDeg,
		SmoothingAlpha:  a.SmoothingAlpha,
		TouchOffsetFt:   a.TouchOffsetFt,
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validateSettingsPayloadIn(p SettingsPayloadIn) error {
	if p.DescentAngleDeg == nil {
		return errors.New("descent_angle_deg is required")
	}
	if v := *p.DescentAngleDeg; !finite(v) || v < 2 || v > 7 {
		return errors.New("descent_angle_deg must be in [2,7]")
	}
	if p.SmoothingAlpha == nil {
		return errors.New("smoothing_alpha is required")
	}
	if v := *p.SmoothingAlpha; !finite(v) || v <= 0 || v > 1 {
		return errors.New("smoothing_alpha must be in (0,1]")
	}
	if p.TouchOffsetFt == nil {
		return errors.New("touch_offset_ft is required")
	}
	if v := *p.TouchOffsetFt; !finite(v) || v < 0 {
		return errors.New("touch_offset_ft must be >= 0")
	}
	return nil
}

func applySettingsPayload(a *config.ApproachConfig, p SettingsPayloadIn) error {
	if a == nil {
		return errors.New("approach config is nil")
	}
	if err := validateSettingsPayloadIn(p); err != nil {
		return err
	}
	a.DescentAngleDeg = *p.DescentAngleDeg
	a.SmoothingAlpha = *p.SmoothingAlpha
	a.TouchOffsetFt = *p.TouchOffsetFt
	return nil
}

// SettingsStore serves the runtime approach settings. Without a ConfigPath
// changes are applied but not persisted.
type SettingsStore struct {
	ConfigPath string
	// Current returns the settings in effect.
	Current func() config.ApproachConfig
	// Apply, when set, is called after validation and before saving.
	// If Apply returns an error, the config is not saved.
	Apply func(a config.ApproachConfig) error
}

func (s SettingsStore) load() (config.Config, error) {
	return config.Load(s.ConfigPath)
}

func (s SettingsStore) current() (config.ApproachConfig, error) {
	if s.Current != nil {
		return s.Current(), nil
	}
	if strings.TrimSpace(s.ConfigPath) == "" {
		return config.ApproachConfig{}, errors.New("settings not available")
	}
	cfg, err := s.load()
	if err != nil {
		return config.ApproachConfig{}, err
	}
	return cfg.Approach, nil
}

// persist writes a onto the config file, leaving other sections untouched.
func (s SettingsStore) persist(a config.ApproachConfig) error {
	cfg, err := s.load()
	if err != nil {
		return err
	}
	cfg.Approach.DescentAngleDeg = a.DescentAngleDeg
	cfg.Approach.SmoothingAlpha = a.SmoothingAlpha
	cfg.Approach.TouchOffsetFt = a.TouchOffsetFt
	return s.save(cfg)
}

func (s SettingsStore) save(cfg config.Config) error {
	if err := config.DefaultAndValidate(&cfg); err != nil {
		return err
	}
	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	// Write atomically to avoid corrupting config on crash/power loss.
	// Use a temp file in the same directory so os.Rename is atomic.
	dir := filepath.Dir(s.ConfigPath)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.ConfigPath)+".tmp.*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.ConfigPath)
}

func (s SettingsStore) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Current == nil && strings.TrimSpace(s.ConfigPath) == "" {
			http.Error(w, "settings not available", http.StatusNotImplemented)
			return
		}

		switch r.Method {
		case http.MethodGet:
			a, err := s.current()
			if err != nil {
				http.Error(w, fmt.Sprintf("load failed: %v", err), http.StatusInternalServerError)
				return
			}
			writeJSON(w, approachToSettingsPayload(a))
			return

		case http.MethodPut:
			if ct := strings.TrimSpace(r.Header.Get("Content-Type")); ct != "application/json" {
				http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MiB
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, fmt.Sprintf("read failed: %v", err), http.StatusBadRequest)
				return
			}
			p, err := decodeSettingsPayloadInStrict(body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			old, err := s.current()
			if err != nil {
				http.Error(w, fmt.Sprintf("load failed: %v", err), http.StatusInternalServerError)
				return
			}
			next := old
			if err := applySettingsPayload(&next, p); err != nil {
				http.Error(w, fmt.Sprintf("invalid settings: %v", err), http.StatusBadRequest)
				return
			}

			if s.Apply != nil {
				if err := s.Apply(next); err != nil {
					http.Error(w, fmt.Sprintf("apply failed: %v", err), http.StatusBadRequest)
					return
				}
			}

			if strings.TrimSpace(s.ConfigPath) != "" {
				if err := s.persist(next); err != nil {
					// Keep runtime consistent with disk.
					if s.Apply != nil {
						_ = s.Apply(old)
					}
					http.Error(w, fmt.Sprintf("save failed: %v", err), http.StatusInternalServerError)
					return
				}
			}

			writeJSON(w, approachToSettingsPayload(next))
			return
		default:
			w.Header().Set("Allow", "GET, PUT")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
	})
}
