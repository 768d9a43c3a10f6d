package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"papi-ng/internal/position"
)

// Config controls the positioning sensor reader.
//
// Device may be empty to auto-detect /dev/ttyACM* or /dev/ttyUSB*.
// Baud must be a supported rate by the platform implementation.
type Config struct {
	Enable bool

	// Source selects how GPS is ingested: "nmea" (direct serial) or "gpsd".
	// When empty, defaults to "nmea".
	Source string

	// GPSDAddr is host:port for gpsd when Source=="gpsd".
	GPSDAddr string

	Device string
	Baud   int
}

type Snapshot struct {
	Enabled bool `json:"enabled"`
	Valid   bool `json:"valid"`

	Source   string `json:"source,omitempty"`
	GPSDAddr string `json:"gpsd_addr,omitempty"`

	Device string `json:"device,omitempty"`
	Baud   int    `json:"baud,omitempty"`

	LatDeg     float64  `json:"lat_deg,omitempty"`
	LonDeg     float64  `json:"lon_deg,omitempty"`
	AltFeet    *float64 `json:"alt_feet,omitempty"`
	GroundKt   *float64 `json:"ground_kt,omitempty"`
	TrackDeg   *float64 `json:"track_deg,omitempty"`
	FixQuality string   `json:"fix_quality,omitempty"`
	FixMode    *int     `json:"fix_mode,omitempty"`
	Satellites *int     `json:"satellites,omitempty"`
	HDOP       *float64 `json:"hdop,omitempty"`

	Fixes      uint64 `json:"fixes"`
	LastFixUTC string `json:"last_fix_utc,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

// Service reads the sensor in the background and hands every fix to onFix.
type Service struct {
	cfg   Config
	onFix func(position.Fix)

	cancel context.CancelFunc
	wg     sync.WaitGroup

	last atomic.Value // Snapshot

	mu     sync.Mutex
	closer io.Closer
}

func New(cfg Config, onFix func(position.Fix)) *Service {
	s := &Service{cfg: cfg, onFix: onFix}
	s.last.Store(Snapshot{Enabled: cfg.Enable, Source: sourceName(cfg.Source), GPSDAddr: strings.TrimSpace(cfg.GPSDAddr), Device: cfg.Device, Baud: cfg.Baud})
	return s
}

func sourceName(src string) string {
	src = strings.ToLower(strings.TrimSpace(src))
	if src == "" {
		return "nmea"
	}
	return src
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	switch sourceName(s.cfg.Source) {
	case "gpsd":
		return s.startGPSDLocked(ctx)
	case "nmea":
		return s.startNMEALocked(ctx)
	default:
		return fmt.Errorf("unknown gps source %q", s.cfg.Source)
	}
}

func (s *Service) startNMEALocked(ctx context.Context) error {
	device := strings.TrimSpace(s.cfg.Device)
	if device == "" {
		device = autoDetectDevice()
		if device == "" {
			s.setErrorLocked("gps auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
			return fmt.Errorf("gps auto-detect failed")
		}
	}

	baud := s.cfg.Baud
	if baud == 0 {
		baud = 9600
	}

	port, err := openSerial(device, baud)
	if err != nil {
		s.setErrorLocked(fmt.Sprintf("gps open failed device=%s baud=%d: %v", device, baud, err))
		return fmt.Errorf("gps open %s: %w", device, err)
	}
	s.closer = port

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// Publish initial snapshot.
	s.last.Store(Snapshot{Enabled: true, Source: "nmea", Device: device, Baud: baud})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = port.Close() }()

		log.Printf("gps enabled device=%s baud=%d", device, baud)
		st := &nmeaState{device: device, baud: baud}
		if err := s.readNMEA(childCtx, port, st, func() time.Time { return time.Now().UTC() }); err != nil && childCtx.Err() == nil {
			s.setError(fmt.Sprintf("gps read stopped: %v", err))
		}
	}()
	return nil
}

// readNMEA consumes sentences from r until it fails or ctx is done.
func (s *Service) readNMEA(ctx context.Context, r io.Reader, st *nmeaState, now func() time.Time) error {
	scanner := bufio.NewScanner(r)
	// NMEA sentences are typically < 82 chars, but allow some headroom.
	scanner.Buffer(make([]byte, 0, 256), 4096)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !scanner.Scan() {
			err := scanner.Err()
			if err == nil {
				err = io.EOF
			}
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		// Some receivers include non-NMEA chatter; filter quickly.
		if line == "" || !strings.HasPrefix(line, "$") {
			continue
		}

		sent, perr := nmea.Parse(line)
		if perr != nil {
			// Keep only the last error; noise is expected.
			s.setError(perr.Error())
			continue
		}

		fix, ok := st.apply(now(), sent)
		snap := st.snapshot()
		snap.LastError = s.Snapshot().LastError
		s.last.Store(snap)
		if ok && s.onFix != nil {
			s.onFix(fix)
		}
	}
}

func (s *Service) startGPSDLocked(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.GPSDAddr)
	if addr == "" {
		addr = gpsdDefaultAddr
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// Publish initial snapshot.
	s.last.Store(Snapshot{Enabled: true, Source: "gpsd", GPSDAddr: addr, Device: "gpsd"})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		log.Printf("gps enabled source=gpsd addr=%s", addr)
		st := newGPSDState(addr)
		backoff := 250 * time.Millisecond
		maxBackoff := 10 * time.Second

		for {
			select {
			case <-childCtx.Done():
				return
			default:
			}

			conn, err := dialGPSD(childCtx, addr)
			if err != nil {
				s.setError(fmt.Sprintf("gpsd dial failed addr=%s: %v", addr, err))
				select {
				case <-childCtx.Done():
					return
				case <-time.After(backoff):
				}
				if backoff < maxBackoff {
					backoff *= 2
					if backoff > maxBackoff {
						backoff = maxBackoff
					}
				}
				continue
			}
			backoff = 250 * time.Millisecond

			s.mu.Lock()
			// Swap the closer so Close() can interrupt an active connection.
			s.closer = conn
			s.mu.Unlock()

			if err := gpsdWatch(conn); err != nil {
				s.setError(fmt.Sprintf("gpsd watch failed: %v", err))
				_ = conn.Close()
				continue
			}
			err = s.readGPSD(childCtx, conn, st, func() time.Time { return time.Now().UTC() })
			_ = conn.Close()
			if childCtx.Err() != nil {
				return
			}
			s.setError(fmt.Sprintf("gpsd read stopped: %v", err))
			// Loop and reconnect.
		}
	}()
	return nil
}

// readGPSD consumes gpsd JSON reports from r until it fails or ctx is done.
func (s *Service) readGPSD(ctx context.Context, r io.Reader, st *gpsdState, now func() time.Time) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 256*1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !scanner.Scan() {
			err := scanner.Err()
			if err == nil {
				err = io.EOF
			}
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fix, ok, perr := st.applyLine(now(), line)
		if perr != nil {
			s.setError(perr.Error())
			continue
		}
		snap := st.snapshot()
		snap.LastError = s.Snapshot().LastError
		s.last.Store(snap)
		if ok && s.onFix != nil {
			s.onFix(fix)
		}
	}
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	v := s.last.Load()
	if v == nil {
		return Snapshot{}
	}
	return v.(Snapshot)
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErrorLocked(msg)
}

func (s *Service) setErrorLocked(msg string) {
	cur := s.Snapshot()
	cur.LastError = msg
	// Transient parse issues don't flip validity.
	s.last.Store(cur)
}

func autoDetectDevice() string {
	candidates := []string{}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
