package web

import (
	"context"
	"sync"
	"time"

	"papi-ng/internal/location"
)

// StateBroadcaster fans aggregator snapshots out to stream subscribers.
// It keeps the most recent value so new subscribers get an immediate sample.
type StateBroadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan location.State
	nextID   int
	last     location.State
	haveLast bool
}

func NewStateBroadcaster() *StateBroadcaster {
	return &StateBroadcaster{
		subs: make(map[int]chan location.State),
	}
}

func (b *StateBroadcaster) Subscribe(buffer int) (int, <-chan location.State) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 2
	}
	ch := make(chan location.State, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	last := b.last
	have := b.haveLast
	b.mu.Unlock()
	if have {
		select {
		case ch <- last:
		default:
		}
	}
	return id, ch
}

func (b *StateBroadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *StateBroadcaster) Clients() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers st to every subscriber. Slow subscribers miss samples
// rather than blocking the publisher.
func (b *StateBroadcaster) Publish(st location.State) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = st
	b.haveLast = true
	for _, ch := range b.subs {
		select {
		case ch <- st:
		default:
		}
	}
}

// Run polls src every interval and publishes snapshots that differ from
// the previous one. It returns when ctx ends.
func (b *StateBroadcaster) Run(ctx context.Context, src StateSource, every time.Duration) error {
	if b == nil || src == nil {
		<-ctx.Done()
		return nil
	}
	if every <= 0 {
		every = 250 * time.Millisecond
	}
	t := time.NewTicker(every)
	defer t.Stop()

	var prev location.State
	have := false
	for {
		st := src.Snapshot()
		if !have || stateChanged(prev, st) {
			b.Publish(st)
			prev, have = st, true
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func stateChanged(a, b location.State) bool {
	if a.Phase != b.Phase || a.Stale != b.Stale || a.Source != b.Source || a.Settings != b.Settings || a.HasFix != b.HasFix {
		return true
	}
	if !sameFloat(a.GeoAltFeet, b.GeoAltFeet) {
		return true
	}
	if (a.Target == nil) != (b.Target == nil) || (a.Target != nil && *a.Target != *b.Target) {
		return true
	}
	if (a.LastUpdate == nil) != (b.LastUpdate == nil) {
		return true
	}
	return a.LastUpdate != nil && !a.LastUpdate.Equal(*b.LastUpdate)
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
