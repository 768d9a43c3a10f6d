package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Source is the telemetry source active at startup.
	Source string `yaml:"source"`

	GPS      GPSConfig      `yaml:"gps"`
	XGPS     XGPSConfig     `yaml:"xgps"`
	GDL90    GDL90Config    `yaml:"gdl90"`
	Replay   ReplayConfig   `yaml:"replay"`
	Approach ApproachConfig `yaml:"approach"`
	Runways  RunwaysConfig  `yaml:"runways"`
	Web      WebConfig      `yaml:"web"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Log      LogConfig      `yaml:"log"`
}

type GPSConfig struct {
	// Source is "nmea" (direct serial) or "gpsd".
	Source   string `yaml:"source"`
	Device   string `yaml:"device"`
	Baud     int    `yaml:"baud"`
	GPSDAddr string `yaml:"gpsd_addr"`
}

type XGPSConfig struct {
	Listen string `yaml:"listen"`
}

type GDL90Config struct {
	Listen string       `yaml:"listen"`
	Record RecordConfig `yaml:"record"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

type ApproachConfig struct {
	DescentAngleDeg    float64       `yaml:"descent_angle_deg"`
	SmoothingAlpha     float64       `yaml:"smoothing_alpha"`
	TouchOffsetFt      float64       `yaml:"touch_offset_ft"`
	StaleCheckInterval time.Duration `yaml:"stale_check_interval"`

	// Airport and Runway select an approach at startup when both are set.
	Airport string `yaml:"airport"`
	Runway  string `yaml:"runway"`
}

type RunwaysConfig struct {
	// Driver is "sqlite3" or "postgres". Empty disables runway lookup.
	Driver    string        `yaml:"driver"`
	DSN       string        `yaml:"dsn"`
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
	// StreamInterval paces websocket state pushes.
	StreamInterval time.Duration `yaml:"stream_interval"`
}

type MQTTConfig struct {
	Enable   bool          `yaml:"enable"`
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Topic    string        `yaml:"topic"`
	QoS      int           `yaml:"qos"`
	Interval time.Duration `yaml:"interval"`
	// Format is "json" or "msgpack".
	Format string `yaml:"format"`
}

type LogConfig struct {
	File        string `yaml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
	Compress    bool   `yaml:"compress"`
	BufferLines int    `yaml:"buffer_lines"`
}

var sources = []string{"gps", "xgps", "gdl90", "replay"}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills unset fields and rejects invalid combinations.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))
	if cfg.Source == "" {
		cfg.Source = "xgps"
	}
	if !knownSource(cfg.Source) {
		return fmt.Errorf("source must be one of %s", strings.Join(sources, ", "))
	}

	cfg.GPS.Source = strings.ToLower(strings.TrimSpace(cfg.GPS.Source))
	if cfg.GPS.Source == "" {
		cfg.GPS.Source = "nmea"
	}
	if cfg.GPS.Source != "nmea" && cfg.GPS.Source != "gpsd" {
		return fmt.Errorf("gps.source must be nmea or gpsd")
	}
	if cfg.GPS.Baud == 0 {
		cfg.GPS.Baud = 9600
	}
	if cfg.GPS.Baud < 0 {
		return fmt.Errorf("gps.baud must be > 0")
	}

	if cfg.XGPS.Listen == "" {
		cfg.XGPS.Listen = ":49002"
	}
	if cfg.GDL90.Listen == "" {
		cfg.GDL90.Listen = ":4000"
	}
	if cfg.GDL90.Record.Enable && strings.TrimSpace(cfg.GDL90.Record.Path) == "" {
		return fmt.Errorf("gdl90.record.path is required when gdl90.record.enable is true")
	}

	if cfg.Replay.Speed == 0 {
		cfg.Replay.Speed = 1
	}
	if cfg.Replay.Speed < 0 {
		return fmt.Errorf("replay.speed must be > 0")
	}
	if cfg.Source == "replay" && strings.TrimSpace(cfg.Replay.Path) == "" {
		return fmt.Errorf("replay.path is required when source is replay")
	}
	if cfg.Source == "replay" && cfg.GDL90.Record.Enable && cfg.Replay.Path == cfg.GDL90.Record.Path {
		return fmt.Errorf("gdl90.record.path and replay.path must differ")
	}

	if err := DefaultAndValidateApproach(&cfg.Approach); err != nil {
		return err
	}

	cfg.Runways.Driver = strings.ToLower(strings.TrimSpace(cfg.Runways.Driver))
	switch cfg.Runways.Driver {
	case "":
	case "sqlite", "sqlite3":
		cfg.Runways.Driver = "sqlite3"
		if cfg.Runways.DSN == "" {
			cfg.Runways.DSN = "aviation.db"
		}
	case "postgres", "postgresql":
		cfg.Runways.Driver = "postgres"
		if cfg.Runways.DSN == "" {
			return fmt.Errorf("runways.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("runways.driver must be sqlite3 or postgres")
	}
	if cfg.Runways.CacheSize <= 0 {
		cfg.Runways.CacheSize = 256
	}
	if cfg.Runways.CacheTTL <= 0 {
		cfg.Runways.CacheTTL = time.Hour
	}
	if cfg.Approach.Airport != "" && cfg.Runways.Driver == "" {
		return fmt.Errorf("approach.airport requires runways.driver")
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}
	if cfg.Web.StreamInterval <= 0 {
		cfg.Web.StreamInterval = 250 * time.Millisecond
	}

	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = "papi/state"
	}
	if cfg.MQTT.Interval <= 0 {
		cfg.MQTT.Interval = time.Second
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "papi-ng"
	}
	cfg.MQTT.Format = strings.ToLower(strings.TrimSpace(cfg.MQTT.Format))
	if cfg.MQTT.Format == "" {
		cfg.MQTT.Format = "json"
	}
	if cfg.MQTT.Format != "json" && cfg.MQTT.Format != "msgpack" {
		return fmt.Errorf("mqtt.format must be json or msgpack")
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if cfg.MQTT.Enable && strings.TrimSpace(cfg.MQTT.Broker) == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt.enable is true")
	}

	if cfg.Log.BufferLines <= 0 {
		cfg.Log.BufferLines = 2000
	}
	return nil
}

// DefaultAndValidateApproach fills and checks the approach section alone.
func DefaultAndValidateApproach(a *ApproachConfig) error {
	if a.DescentAngleDeg == 0 {
		a.DescentAngleDeg = 3.0
	}
	if a.DescentAngleDeg < 2 || a.DescentAngleDeg > 7 {
		return fmt.Errorf("approach.descent_angle_deg must be in [2,7]")
	}
	if a.SmoothingAlpha == 0 {
		a.SmoothingAlpha = 0.5
	}
	if a.SmoothingAlpha < 0 || a.SmoothingAlpha > 1 {
		return fmt.Errorf("approach.smoothing_alpha must be in (0,1]")
	}
	if a.TouchOffsetFt < 0 {
		return fmt.Errorf("approach.touch_offset_ft must be >= 0")
	}
	if a.StaleCheckInterval <= 0 {
		a.StaleCheckInterval = 5 * time.Second
	}
	a.Airport = strings.ToUpper(strings.TrimSpace(a.Airport))
	a.Runway = strings.ToUpper(strings.TrimSpace(a.Runway))
	if (a.Airport == "") != (a.Runway == "") {
		return fmt.Errorf("approach.airport and approach.runway must be set together")
	}
	return nil
}

func knownSource(name string) bool {
	for _, s := range sources {
		if s == name {
			return true
		}
	}
	return false
}
