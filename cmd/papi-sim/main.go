package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"papi-ng/internal/replay"
	"papi-ng/internal/sim"
	"papi-ng/internal/udp"
	"papi-ng/internal/xgps"
)

type options struct {
	routePath  string
	speedKt    float64
	step       time.Duration
	rate       float64
	host       string
	xgpsPort   int
	gdl90Port  int
	format     string
	recordPath string
	icao       string
	callsign   string
	quiet      bool
}

func main() {
	var o options
	flag.Float64Var(&o.speedKt, "speed", 0, "Ground speed in knots (default: route file value, else 120)")
	flag.DurationVar(&o.step, "step", time.Second, "Simulation step")
	flag.Float64Var(&o.rate, "rate", 1, "Playback rate; 2 runs twice as fast as real time")
	flag.StringVar(&o.host, "ip", "", "Destination host for UDP datagrams (empty prints only)")
	flag.IntVar(&o.xgpsPort, "xgps-port", xgps.DefaultPort, "Destination port for XGPS datagrams")
	flag.IntVar(&o.gdl90Port, "gdl90-port", 4000, "Destination port for GDL90 datagrams")
	flag.StringVar(&o.format, "format", "xgps", "Output protocol: xgps, gdl90 or both")
	flag.StringVar(&o.recordPath, "record", "", "Also write GDL90 datagrams to a replay log")
	flag.StringVar(&o.icao, "icao", "F00001", "Ownship ICAO address (hex) for GDL90")
	flag.StringVar(&o.callsign, "callsign", "PAPISIM", "Ownship callsign for GDL90")
	flag.BoolVar(&o.quiet, "quiet", false, "Do not print each sample")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] route.csv|route.yaml\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	o.routePath = flag.Arg(0)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, o); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("papi-sim: %v", err)
	}
}

func parseICAO(s string) ([3]byte, error) {
	var out [3]byte
	v, err := strconv.ParseUint(strings.TrimSpace(s), 16, 24)
	if err != nil {
		return out, fmt.Errorf("invalid icao %q", s)
	}
	out[0], out[1], out[2] = byte(v>>16), byte(v>>8), byte(v)
	return out, nil
}

func run(ctx context.Context, o options) error {
	route, routeSpeed, err := sim.LoadRoute(o.routePath)
	if err != nil {
		return err
	}
	speed := o.speedKt
	if speed <= 0 {
		speed = routeSpeed
	}
	if speed <= 0 {
		speed = sim.DefaultSpeedKt
	}
	samples, err := sim.Fly(route, speed, o.step)
	if err != nil {
		return err
	}

	icao, err := parseICAO(o.icao)
	if err != nil {
		return err
	}
	e := sim.Emitter{ICAO: icao, Callsign: o.callsign}

	wantXGPS := o.format == "xgps" || o.format == "both"
	wantGDL90 := o.format == "gdl90" || o.format == "both"
	if !wantXGPS && !wantGDL90 {
		return fmt.Errorf("format must be xgps, gdl90 or both")
	}

	var outputs []func([]byte) error
	if o.host != "" && wantXGPS {
		b, err := udp.NewBroadcaster(net.JoinHostPort(o.host, strconv.Itoa(o.xgpsPort)))
		if err != nil {
			return fmt.Errorf("xgps output: %w", err)
		}
		defer b.Close()
		e.XGPS = b.Send
		log.Printf("sending XGPS to %s", b.Dest())
	}
	if o.host != "" && wantGDL90 {
		b, err := udp.NewBroadcaster(net.JoinHostPort(o.host, strconv.Itoa(o.gdl90Port)))
		if err != nil {
			return fmt.Errorf("gdl90 output: %w", err)
		}
		defer b.Close()
		outputs = append(outputs, b.Send)
		log.Printf("sending GDL90 to %s", b.Dest())
	}
	if o.recordPath != "" && wantGDL90 {
		w, err := replay.Create(o.recordPath)
		if err != nil {
			return err
		}
		defer w.Close()
		outputs = append(outputs, func(p []byte) error { return w.Write(time.Now(), p) })
		log.Printf("recording GDL90 to %s", o.recordPath)
	}
	if len(outputs) > 0 {
		e.GDL90 = func(p []byte) error {
			for _, out := range outputs {
				if err := out(p); err != nil {
					return err
				}
			}
			return nil
		}
	}

	names := make([]string, len(route))
	for i, wp := range route {
		names[i] = wp.Name
	}
	fmt.Printf("Starting flight simulation at %.0f knots\n", speed)
	fmt.Printf("Route: %s\n\n", strings.Join(names, " -> "))
	if !o.quiet {
		fmt.Printf("%8s | %10s | %12s | %12s | %13s | %8s\n", "Time (s)", "Waypoint", "Latitude", "Longitude", "Altitude (ft)", "Heading")
		fmt.Println(strings.Repeat("-", 80))
	}

	err = sim.Run(ctx, samples, o.rate, e, nil, func(s sim.Sample) {
		if o.quiet {
			return
		}
		fmt.Printf("%8.0f | %10s | %12.8f | %12.8f | %13.1f | %8.2f\n",
			s.Elapsed.Seconds(), "-> "+s.Toward, s.LatDeg, s.LonDeg, s.AltFeet, s.TrackDeg)
	})
	if err != nil {
		return err
	}
	fmt.Printf("\nArrived at %s - flight complete\n", route[len(route)-1].Name)
	return nil
}
