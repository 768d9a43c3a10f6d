package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

type ListenerConfig struct {
	Name string
	Addr string

	// MaxDatagram bounds the read buffer; longer datagrams are truncated by
	// the kernel.
	MaxDatagram int
}

// Listener receives datagrams on a UDP port and hands each one to a
// handler. The handler reports whether the payload was accepted.
type Listener struct {
	cfg ListenerConfig

	started atomic.Bool
	closed  atomic.Bool

	mu       sync.RWMutex
	state    string
	lastErr  string
	lastSeen time.Time
	packets  uint64
	accepted uint64
	rejected uint64
	conn     net.PacketConn

	cancel context.CancelFunc
	done   chan struct{}

	retryMin time.Duration
	retryMax time.Duration
}

type ListenerSnapshot struct {
	Name        string `json:"name"`
	Addr        string `json:"addr"`
	State       string `json:"state"`
	LastError   string `json:"last_error,omitempty"`
	LastSeenUTC string `json:"last_seen_utc,omitempty"`
	Packets     uint64 `json:"packets"`
	Accepted    uint64 `json:"accepted"`
	Rejected    uint64 `json:"rejected"`
}

func NewListener(cfg ListenerConfig) (*Listener, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("listener name is required")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("listener addr is required")
	}
	if cfg.MaxDatagram <= 0 {
		cfg.MaxDatagram = 2048
	}
	return &Listener{
		cfg:      cfg,
		state:    "stopped",
		done:     make(chan struct{}),
		retryMin: 250 * time.Millisecond,
		retryMax: 10 * time.Second,
	}, nil
}

// Start binds the socket and reads until ctx is done or Close is called.
// onPacket receives a buffer it may keep.
func (l *Listener) Start(ctx context.Context, onPacket func(pkt []byte, at time.Time) bool) error {
	if l == nil {
		return fmt.Errorf("listener is nil")
	}
	if l.closed.Load() {
		return fmt.Errorf("listener is closed")
	}
	if onPacket == nil {
		return fmt.Errorf("listener onPacket is nil")
	}
	if l.started.Swap(true) {
		return fmt.Errorf("listener already started")
	}

	conn, err := net.ListenPacket("udp", l.cfg.Addr)
	if err != nil {
		l.started.Store(false)
		l.setState("error", err.Error())
		return fmt.Errorf("listen %s %s: %w", l.cfg.Name, l.cfg.Addr, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.conn = conn
	l.cancel = cancel
	l.mu.Unlock()
	l.setState("listening", "")

	go func() {
		<-runCtx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(l.done)
		l.readLoop(runCtx, conn, onPacket)
	}()
	return nil
}

// LocalAddr is the bound address, or nil before Start.
func (l *Listener) LocalAddr() net.Addr {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

func (l *Listener) Close() {
	if l == nil {
		return
	}
	if l.closed.Swap(true) {
		return
	}
	l.mu.RLock()
	cancel := l.cancel
	l.mu.RUnlock()
	if cancel == nil {
		return
	}
	cancel()
	<-l.done
}

func (l *Listener) Snapshot() ListenerSnapshot {
	if l == nil {
		return ListenerSnapshot{}
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := ListenerSnapshot{
		Name:      l.cfg.Name,
		Addr:      l.cfg.Addr,
		State:     l.state,
		LastError: l.lastErr,
		Packets:   l.packets,
		Accepted:  l.accepted,
		Rejected:  l.rejected,
	}
	if !l.lastSeen.IsZero() {
		out.LastSeenUTC = l.lastSeen.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// readLoop runs until the socket is closed. Other read errors put the
// listener in the "error" state and the read is retried with backoff; the
// next datagram returns it to "listening".
func (l *Listener) readLoop(ctx context.Context, conn net.PacketConn, onPacket func(pkt []byte, at time.Time) bool) {
	buf := make([]byte, l.cfg.MaxDatagram)
	backoff := l.retryMin
	failing := false
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				l.setState("stopped", "")
				return
			}
			l.setState("error", err.Error())
			failing = true
			select {
			case <-ctx.Done():
				l.setState("stopped", "")
				return
			case <-time.After(backoff):
			}
			if backoff < l.retryMax {
				backoff *= 2
				if backoff > l.retryMax {
					backoff = l.retryMax
				}
			}
			continue
		}
		if failing {
			failing = false
			backoff = l.retryMin
			l.setState("listening", "")
		}
		if n == 0 {
			continue
		}
		now := time.Now().UTC()
		pkt := append([]byte(nil), buf[:n]...)
		ok := onPacket(pkt, now)

		l.mu.Lock()
		l.lastSeen = now
		l.packets++
		if ok {
			l.accepted++
		} else {
			l.rejected++
		}
		l.mu.Unlock()
	}
}

func (l *Listener) setState(state string, lastErr string) {
	l.mu.Lock()
	l.state = state
	if lastErr != "" {
		l.lastErr = lastErr
	} else if state == "listening" || state == "stopped" {
		l.lastErr = ""
	}
	l.mu.Unlock()
}
