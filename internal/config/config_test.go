package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "{}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Source != "xgps" {
		t.Fatalf("source=%q want xgps", cfg.Source)
	}
	if cfg.XGPS.Listen != ":49002" || cfg.GDL90.Listen != ":4000" {
		t.Fatalf("listen=%q/%q", cfg.XGPS.Listen, cfg.GDL90.Listen)
	}
	if cfg.Approach.DescentAngleDeg != 3.0 || cfg.Approach.SmoothingAlpha != 0.5 || cfg.Approach.TouchOffsetFt != 0 {
		t.Fatalf("approach=%+v", cfg.Approach)
	}
	if cfg.Approach.StaleCheckInterval != 5*time.Second {
		t.Fatalf("stale_check_interval=%s want 5s", cfg.Approach.StaleCheckInterval)
	}
	if cfg.Web.Listen != ":8080" {
		t.Fatalf("web.listen=%q", cfg.Web.Listen)
	}
	if cfg.MQTT.Topic != "papi/state" || cfg.MQTT.Interval != time.Second || cfg.MQTT.Format != "json" {
		t.Fatalf("mqtt=%+v", cfg.MQTT)
	}
	if cfg.Log.BufferLines != 2000 {
		t.Fatalf("log.buffer_lines=%d", cfg.Log.BufferLines)
	}
	if cfg.GPS.Source != "nmea" || cfg.GPS.Baud != 9600 {
		t.Fatalf("gps=%+v", cfg.GPS)
	}
	if cfg.Runways.Driver != "" {
		t.Fatalf("runways.driver=%q want disabled", cfg.Runways.Driver)
	}
}

func TestLoad_FullFile(t *testing.T) {
	path := writeTempConfig(t, `
source: GDL90
gdl90:
  listen: ':4001'
  record:
    enable: true
    path: /tmp/gdl90.log
approach:
  descent_angle_deg: 3.5
  smoothing_alpha: 0.3
  touch_offset_ft: 1000
  stale_check_interval: 2s
  airport: kpdx
  runway: 10r
runways:
  driver: sqlite
mqtt:
  enable: true
  broker: tcp://localhost:1883
  format: MSGPACK
log:
  file: /var/log/papi.log
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Source != "gdl90" || cfg.GDL90.Listen != ":4001" || !cfg.GDL90.Record.Enable {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Approach.Airport != "KPDX" || cfg.Approach.Runway != "10R" || cfg.Approach.StaleCheckInterval != 2*time.Second {
		t.Fatalf("approach=%+v", cfg.Approach)
	}
	if cfg.Runways.Driver != "sqlite3" || cfg.Runways.DSN != "aviation.db" || cfg.Runways.CacheSize != 256 {
		t.Fatalf("runways=%+v", cfg.Runways)
	}
	if cfg.MQTT.Format != "msgpack" || cfg.MQTT.ClientID != "papi-ng" {
		t.Fatalf("mqtt=%+v", cfg.MQTT)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown source", "source: radio\n", "source must be one of gps, xgps, gdl90, replay"},
		{"gps source", "gps:\n  source: usb\n", "gps.source must be nmea or gpsd"},
		{"record path", "gdl90:\n  record:\n    enable: true\n", "gdl90.record.path is required when gdl90.record.enable is true"},
		{"replay path", "source: replay\n", "replay.path is required when source is replay"},
		{"replay speed", "replay:\n  speed: -1\n", "replay.speed must be > 0"},
		{"angle low", "approach:\n  descent_angle_deg: 1.5\n", "approach.descent_angle_deg must be in [2,7]"},
		{"angle high", "approach:\n  descent_angle_deg: 7.5\n", "approach.descent_angle_deg must be in [2,7]"},
		{"alpha", "approach:\n  smoothing_alpha: 1.2\n", "approach.smoothing_alpha must be in (0,1]"},
		{"alpha negative", "approach:\n  smoothing_alpha: -0.1\n", "approach.smoothing_alpha must be in (0,1]"},
		{"offset", "approach:\n  touch_offset_ft: -10\n", "approach.touch_offset_ft must be >= 0"},
		{"half selection", "approach:\n  airport: KPDX\n", "approach.airport and approach.runway must be set together"},
		{"selection without db", "approach:\n  airport: KPDX\n  runway: 10R\n", "approach.airport requires runways.driver"},
		{"driver", "runways:\n  driver: mysql\n", "runways.driver must be sqlite3 or postgres"},
		{"postgres dsn", "runways:\n  driver: postgres\n", "runways.dsn is required for postgres"},
		{"mqtt format", "mqtt:\n  format: xml\n", "mqtt.format must be json or msgpack"},
		{"mqtt qos", "mqtt:\n  qos: 3\n", "mqtt.qos must be 0, 1 or 2"},
		{"mqtt broker", "mqtt:\n  enable: true\n", "mqtt.broker is required when mqtt.enable is true"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.yaml))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	if _, err := Load(writeTempConfig(t, "source: [\n")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDefaultAndValidate_Nil(t *testing.T) {
	requireErrEq(t, DefaultAndValidate(nil), "config is nil")
}
