package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"papi-ng/internal/config"
	"papi-ng/internal/gps"
	"papi-ng/internal/ingest"
	"papi-ng/internal/location"
	"papi-ng/internal/logging"
	"papi-ng/internal/publish"
	"papi-ng/internal/runway"
	"papi-ng/internal/web"
)

func ingestConfig(cfg config.Config) ingest.Config {
	ic := ingest.Config{
		XGPSAddr:  cfg.XGPS.Listen,
		GDL90Addr: cfg.GDL90.Listen,
		GPS: gps.Config{
			Source:   cfg.GPS.Source,
			GPSDAddr: cfg.GPS.GPSDAddr,
			Device:   cfg.GPS.Device,
			Baud:     cfg.GPS.Baud,
		},
		ReplayPath:  cfg.Replay.Path,
		ReplaySpeed: cfg.Replay.Speed,
		ReplayLoop:  cfg.Replay.Loop,
	}
	if cfg.GDL90.Record.Enable {
		ic.GDL90RecordPath = cfg.GDL90.Record.Path
	}
	return ic
}

func aggregatorSettings(a config.ApproachConfig) location.Settings {
	return location.Settings{
		DescentAngleDeg: a.DescentAngleDeg,
		SmoothingAlpha:  a.SmoothingAlpha,
	}
}

// run wires every service and blocks until ctx ends or one of them fails.
func run(ctx context.Context, cfg config.Config, configPath string, logBuf *logging.Buffer) error {
	agg, err := location.New(aggregatorSettings(cfg.Approach))
	if err != nil {
		return fmt.Errorf("aggregator: %w", err)
	}
	status := web.NewStatus()

	deps := web.Deps{
		Status: status,
		State:  agg,
		Logs:   logBuf,
		Stream: web.NewStateBroadcaster(),
	}

	var selector *runway.Selector
	if cfg.Runways.Driver != "" {
		store, err := runway.Open(cfg.Runways.Driver, cfg.Runways.DSN)
		if err != nil {
			return fmt.Errorf("runway store: %w", err)
		}
		defer store.Close()
		log.Printf("runway lookup enabled driver=%s cache_size=%d cache_ttl=%s",
			cfg.Runways.Driver, cfg.Runways.CacheSize, cfg.Runways.CacheTTL)

		lookup := runway.NewCached(store, cfg.Runways.CacheSize, cfg.Runways.CacheTTL)
		selector = runway.NewSelector(lookup, agg, cfg.Approach.TouchOffsetFt)
		deps.Approach = selector
		deps.Runways = store
		status.SetRunwaysEnabled(true)

		if cfg.Approach.Airport != "" {
			selCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := selector.Select(selCtx, cfg.Approach.Airport, cfg.Approach.Runway)
			cancel()
			if err != nil {
				log.Printf("startup approach not selected airport=%s runway=%s: %v",
					cfg.Approach.Airport, cfg.Approach.Runway, err)
			}
		}
	}

	switcher := ingest.NewSwitcher(ctx, agg, ingest.NewFactory(ingestConfig(cfg)))
	defer switcher.Close()
	deps.Sources = switcher
	if err := switcher.Switch(cfg.Source); err != nil {
		// Keep serving; the source can be changed over the API.
		log.Printf("startup source not started: %v", err)
	}

	settings := &approachRuntime{ctx: ctx, agg: agg, current: cfg.Approach}
	if selector != nil {
		settings.offsets = selector
	}
	deps.Settings = web.SettingsStore{
		ConfigPath: configPath,
		Current:    settings.Current,
		Apply:      settings.Apply,
	}

	var pub *publish.Publisher
	if cfg.MQTT.Enable {
		pub, err = publish.New(publish.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      byte(cfg.MQTT.QoS),
			Interval: cfg.MQTT.Interval,
			Format:   cfg.MQTT.Format,
		})
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		deps.MQTT = pub
		log.Printf("mqtt publish enabled broker=%s topic=%s format=%s interval=%s",
			cfg.MQTT.Broker, cfg.MQTT.Topic, cfg.MQTT.Format, cfg.MQTT.Interval)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return staleLoop(gctx, agg, status, cfg.Approach.StaleCheckInterval)
	})
	g.Go(func() error {
		return deps.Stream.Run(gctx, agg, cfg.Web.StreamInterval)
	})
	g.Go(func() error {
		return web.Serve(gctx, cfg.Web.Listen, deps)
	})
	if pub != nil {
		g.Go(func() error {
			return pub.Run(gctx, agg)
		})
	}
	return g.Wait()
}

// staleLoop runs the periodic staleness check. It logs only transitions
// into the stale state; a fresh fix clears the flag inside the aggregator.
func staleLoop(ctx context.Context, agg *location.Aggregator, status *web.Status, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	wasStale := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			stale := agg.CheckStale(now)
			status.MarkStaleCheck(now.UTC(), stale)
			if stale && !wasStale {
				log.Printf("telemetry stale: no fix within %s", location.StaleAfter)
			}
			wasStale = stale
		}
	}
}
