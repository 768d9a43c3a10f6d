package main

import (
	"context"
	"testing"
	"time"

	"papi-ng/internal/config"
	"papi-ng/internal/location"
	"papi-ng/internal/position"
	"papi-ng/internal/web"
)

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	var cfg config.Config
	if err := config.DefaultAndValidate(&cfg); err != nil {
		t.Fatalf("DefaultAndValidate: %v", err)
	}
	return cfg
}

func TestApplyFlags_Overrides(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Runways.Driver = "sqlite3"
	if err := applyFlags(&cfg, "kpdx", "10r", "GDL90"); err != nil {
		t.Fatalf("applyFlags: %v", err)
	}
	if cfg.Approach.Airport != "KPDX" || cfg.Approach.Runway != "10R" || cfg.Source != "gdl90" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestApplyFlags_Rejects(t *testing.T) {
	cfg := baseConfig(t)
	if err := applyFlags(&cfg, "KPDX", "", ""); err == nil {
		t.Fatalf("expected error for airport without runway")
	}
	cfg = baseConfig(t)
	if err := applyFlags(&cfg, "", "", "radio"); err == nil {
		t.Fatalf("expected error for unknown source")
	}
	cfg = baseConfig(t)
	if err := applyFlags(&cfg, "KPDX", "10R", ""); err == nil {
		t.Fatalf("expected error for approach without runway database")
	}
}

func TestIngestConfig_RecordOnlyWhenEnabled(t *testing.T) {
	cfg := baseConfig(t)
	cfg.GDL90.Record.Path = "/tmp/gdl90.log"
	if ic := ingestConfig(cfg); ic.GDL90RecordPath != "" {
		t.Fatalf("record path set while disabled: %q", ic.GDL90RecordPath)
	}
	cfg.GDL90.Record.Enable = true
	ic := ingestConfig(cfg)
	if ic.GDL90RecordPath != "/tmp/gdl90.log" || ic.XGPSAddr != ":49002" || ic.GDL90Addr != ":4000" || ic.GPS.Baud != 9600 {
		t.Fatalf("ingest config=%+v", ic)
	}
}

func TestStaleLoop_MarksStale(t *testing.T) {
	agg, err := location.New(location.DefaultSettings())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// A fix from long ago goes stale on the first tick.
	agg.Update(position.Fix{LatDeg: 45, LonDeg: -122, AltFeet: 1000, ReceivedAt: time.Now().Add(-time.Minute)})
	status := web.NewStatus()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- staleLoop(ctx, agg, status, 5*time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for !agg.Snapshot().Stale && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("staleLoop: %v", err)
	}
	if !agg.Snapshot().Stale {
		t.Fatalf("state not marked stale")
	}
	if snap := status.Snapshot(time.Now(), web.Deps{}); snap.StaleChecks == 0 || snap.StaleMarks == 0 {
		t.Fatalf("status=%+v", snap)
	}
}
