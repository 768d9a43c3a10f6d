package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"papi-ng/internal/gdl90"
	"papi-ng/internal/replay"
)

func TestParseICAO(t *testing.T) {
	got, err := parseICAO("f00001")
	if err != nil {
		t.Fatalf("parseICAO: %v", err)
	}
	if got != [3]byte{0xF0, 0x00, 0x01} {
		t.Fatalf("icao=%X", got)
	}
	for _, bad := range []string{"", "XYZ", "1000000"} {
		if _, err := parseICAO(bad); err == nil {
			t.Fatalf("parseICAO(%q) expected error", bad)
		}
	}
}

func TestRun_RecordsGDL90(t *testing.T) {
	dir := t.TempDir()
	routePath := filepath.Join(dir, "route.csv")
	if err := os.WriteFile(routePath, []byte("Waypoint,Latitude,Longitude,Altitude\nA,45.0,-122.0,2000\nB,45.002,-122.0,1900\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	logPath := filepath.Join(dir, "sim.log")
	o := options{
		routePath:  routePath,
		speedKt:    3600,
		step:       time.Second,
		rate:       1000,
		format:     "gdl90",
		recordPath: logPath,
		icao:       "F00001",
		callsign:   "TEST",
		quiet:      true,
	}
	if err := run(context.Background(), o); err != nil {
		t.Fatalf("run: %v", err)
	}

	recs, err := replay.Load(logPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	fixes := 0
	for _, r := range recs {
		if r.IsStart() {
			continue
		}
		fixes += len(gdl90.DecodeBuffer(r.Data, time.Time{}).Fixes)
	}
	// 0.12 NM at 1 NM per step: departure and arrival samples.
	if fixes != 2 {
		t.Fatalf("fixes=%d want 2", fixes)
	}
}

func TestRun_RejectsFormat(t *testing.T) {
	dir := t.TempDir()
	routePath := filepath.Join(dir, "route.csv")
	if err := os.WriteFile(routePath, []byte("Waypoint,Latitude,Longitude,Altitude\nA,45,-122,2000\nB,45.1,-122,1900\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	o := options{routePath: routePath, step: time.Second, rate: 1, format: "nmea", icao: "F00001", quiet: true}
	if err := run(context.Background(), o); err == nil {
		t.Fatalf("expected format error")
	}
}
