// Package publish pushes aggregator snapshots to an MQTT broker at a fixed
// rate, encoded as JSON or msgpack.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	"papi-ng/internal/location"
)

const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"

	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

type Config struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Interval time.Duration
	Format   string
}

// StateSource exposes the aggregator's published snapshot.
type StateSource interface {
	Snapshot() location.State
}

// Encoder serializes one snapshot.
type Encoder func(location.State) ([]byte, error)

// EncoderFor returns the encoder for format. Both encodings use the
// snapshot's JSON field names.
func EncoderFor(format string) (Encoder, error) {
	switch format {
	case "", FormatJSON:
		return func(st location.State) ([]byte, error) {
			return json.Marshal(st)
		}, nil
	case FormatMsgpack:
		return func(st location.State) ([]byte, error) {
			var buf bytes.Buffer
			enc := msgpack.NewEncoder(&buf)
			enc.SetCustomStructTag("json")
			if err := enc.Encode(st); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown publish format %q", format)
	}
}

type publishFunc func(topic string, qos byte, retained bool, payload []byte) error

type Snapshot struct {
	Broker    string `json:"broker"`
	Topic     string `json:"topic"`
	Format    string `json:"format"`
	Connected bool   `json:"connected"`
	Published uint64 `json:"published"`
	Errors    uint64 `json:"errors"`
	LastError string `json:"last_error,omitempty"`
}

type Publisher struct {
	cfg Config
	enc Encoder

	connected atomic.Bool
	published atomic.Uint64
	errors    atomic.Uint64

	mu      sync.Mutex
	lastErr string
}

func New(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("mqtt topic is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	enc, err := EncoderFor(cfg.Format)
	if err != nil {
		return nil, err
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	return &Publisher{cfg: cfg, enc: enc}, nil
}

// Run connects to the broker and publishes src every interval until ctx
// ends. Publish failures are counted and logged; they do not stop the loop.
func (p *Publisher) Run(ctx context.Context, src StateSource) error {
	opts := mqtt.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(p.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(func(mqtt.Client) {
			p.connected.Store(true)
			log.Printf("mqtt connected broker=%s topic=%s", p.cfg.Broker, p.cfg.Topic)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			p.connected.Store(false)
			log.Printf("mqtt connection lost broker=%s: %v", p.cfg.Broker, err)
		})

	client := mqtt.NewClient(opts)
	// With ConnectRetry the token completes only once connected; the loop
	// below runs regardless and counts publishes made while offline.
	client.Connect()
	defer client.Disconnect(250)

	return p.loop(ctx, src, func(topic string, qos byte, retained bool, payload []byte) error {
		if !client.IsConnectionOpen() {
			return fmt.Errorf("not connected")
		}
		tok := client.Publish(topic, qos, retained, payload)
		if !tok.WaitTimeout(publishTimeout) {
			return fmt.Errorf("publish timeout")
		}
		return tok.Error()
	})
}

func (p *Publisher) loop(ctx context.Context, src StateSource, pub publishFunc) error {
	t := time.NewTicker(p.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			p.publishOnce(src, pub)
		}
	}
}

func (p *Publisher) publishOnce(src StateSource, pub publishFunc) {
	payload, err := p.enc(src.Snapshot())
	if err == nil {
		err = pub(p.cfg.Topic, p.cfg.QoS, true, payload)
	}
	if err != nil {
		n := p.errors.Add(1)
		p.mu.Lock()
		first := p.lastErr != err.Error()
		p.lastErr = err.Error()
		p.mu.Unlock()
		if first || n%60 == 0 {
			log.Printf("mqtt publish failed topic=%s errors=%d: %v", p.cfg.Topic, n, err)
		}
		return
	}
	p.published.Add(1)
}

func (p *Publisher) Snapshot() Snapshot {
	if p == nil {
		return Snapshot{}
	}
	p.mu.Lock()
	lastErr := p.lastErr
	p.mu.Unlock()
	return Snapshot{
		Broker:    p.cfg.Broker,
		Topic:     p.cfg.Topic,
		Format:    p.cfg.Format,
		Connected: p.connected.Load(),
		Published: p.published.Load(),
		Errors:    p.errors.Load(),
		LastError: lastErr,
	}
}
