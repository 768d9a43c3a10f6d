// Package sim flies a waypoint route at constant ground speed and emits the
// resulting positions as XGPS and GDL90 datagrams, for exercising papi-ng
// without an aircraft.
package sim

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Waypoint is one route point. Altitude is feet MSL.
type Waypoint struct {
	Name    string  `yaml:"name"`
	LatDeg  float64 `yaml:"lat_deg"`
	LonDeg  float64 `yaml:"lon_deg"`
	AltFeet float64 `yaml:"alt_feet"`
}

// RouteScript is the YAML route schema:
//
//	speed_kt: 120
//	waypoints:
//	  - name: FAF
//	    lat_deg: 45.59
//	    lon_deg: -122.80
//	    alt_feet: 2000
type RouteScript struct {
	SpeedKt   float64    `yaml:"speed_kt"`
	Waypoints []Waypoint `yaml:"waypoints"`
}

var routeColumns = []string{"Waypoint", "Latitude", "Longitude", "Altitude"}

// LoadRoute reads a route from path. Files ending in .yaml or .yml use the
// RouteScript schema; anything else is read as CSV with a
// Waypoint,Latitude,Longitude,Altitude header. The returned speed is 0 when
// the file does not set one.
func LoadRoute(path string) ([]Waypoint, float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		b, err := io.ReadAll(f)
		if err != nil {
			return nil, 0, err
		}
		var s RouteScript
		if err := yaml.Unmarshal(b, &s); err != nil {
			return nil, 0, err
		}
		if err := validateRoute(s.Waypoints); err != nil {
			return nil, 0, err
		}
		return s.Waypoints, s.SpeedKt, nil
	default:
		wps, err := ParseRouteCSV(f)
		return wps, 0, err
	}
}

// ParseRouteCSV reads CSV waypoints. Columns are found by header name, so
// extra columns and any column order are accepted.
func ParseRouteCSV(r io.Reader) ([]Waypoint, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("route: empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("route: header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range routeColumns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("route: missing column %q", c)
		}
	}

	var out []Waypoint
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("route: line %d: %w", line, err)
		}
		field := func(col string) string {
			if i := idx[col]; i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		wp := Waypoint{Name: field("Waypoint")}
		for _, c := range []struct {
			col string
			dst *float64
		}{
			{"Latitude", &wp.LatDeg},
			{"Longitude", &wp.LonDeg},
			{"Altitude", &wp.AltFeet},
		} {
			v, err := strconv.ParseFloat(field(c.col), 64)
			if err != nil {
				return nil, fmt.Errorf("route: line %d: %s: %w", line, c.col, err)
			}
			*c.dst = v
		}
		out = append(out, wp)
	}
	if err := validateRoute(out); err != nil {
		return nil, err
	}
	return out, nil
}

func validateRoute(wps []Waypoint) error {
	if len(wps) < 2 {
		return fmt.Errorf("route: need at least 2 waypoints, got %d", len(wps))
	}
	for i, wp := range wps {
		if math.IsNaN(wp.LatDeg) || wp.LatDeg < -90 || wp.LatDeg > 90 ||
			math.IsNaN(wp.LonDeg) || wp.LonDeg < -180 || wp.LonDeg > 180 {
			return fmt.Errorf("route: waypoint %d (%s) out of range", i+1, wp.Name)
		}
		if math.IsNaN(wp.AltFeet) || math.IsInf(wp.AltFeet, 0) {
			return fmt.Errorf("route: waypoint %d (%s) has invalid altitude", i+1, wp.Name)
		}
	}
	return nil
}
