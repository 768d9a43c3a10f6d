package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"papi-ng/internal/config"
	"papi-ng/internal/logging"
)

func main() {
	var (
		configPath  string
		airport     string
		runwayIdent string
		source      string
		summaryPath string
	)
	flag.StringVar(&configPath, "config", "./papi.yaml", "Path to YAML config")
	flag.StringVar(&airport, "airport", "", "Airport to select at startup (requires -runway)")
	flag.StringVar(&runwayIdent, "runway", "", "Runway to select at startup (requires -airport)")
	flag.StringVar(&source, "source", "", "Override the startup telemetry source (gps, xgps, gdl90, replay)")
	flag.StringVar(&summaryPath, "log-summary", "", "Print a summary of a recorded replay log and exit")
	flag.Parse()

	if strings.TrimSpace(summaryPath) != "" {
		if err := printLogSummary(summaryPath); err != nil {
			log.Fatalf("log summary failed: %v", err)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := applyFlags(&cfg, airport, runwayIdent, source); err != nil {
		log.Fatalf("invalid flags: %v", err)
	}

	logBuf := logging.NewBuffer(cfg.Log.BufferLines)
	logCloser := logging.Setup(logging.Config{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}, logBuf)
	defer logCloser.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("papi-ng starting config=%s source=%s", configPath, cfg.Source)
	err = run(ctx, cfg, configPath, logBuf)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("papi-ng stopped: %v", err)
		_ = logCloser.Close()
		os.Exit(1)
	}
	log.Printf("papi-ng stopping")
}

// applyFlags folds command-line overrides into cfg and re-validates it.
func applyFlags(cfg *config.Config, airport, runwayIdent, source string) error {
	if airport != "" || runwayIdent != "" {
		cfg.Approach.Airport = airport
		cfg.Approach.Runway = runwayIdent
	}
	if source != "" {
		cfg.Source = source
	}
	return config.DefaultAndValidate(cfg)
}
