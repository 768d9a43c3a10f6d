package main

import (
	"context"
	"log"
	"sync"

	"papi-ng/internal/config"
	"papi-ng/internal/location"
)

type touchOffsetSetter interface {
	SetTouchOffset(ctx context.Context, ft float64) error
}

// approachRuntime holds the live approach settings shared by the aggregator
// and the runway selector. Apply changes both or neither.
type approachRuntime struct {
	ctx     context.Context
	agg     *location.Aggregator
	offsets touchOffsetSetter // nil without a runway lookup

	mu      sync.Mutex
	current config.ApproachConfig
}

func (r *approachRuntime) Current() config.ApproachConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *approachRuntime) Apply(a config.ApproachConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.agg.SetSettings(aggregatorSettings(a)); err != nil {
		return err
	}
	if r.offsets != nil {
		if err := r.offsets.SetTouchOffset(r.ctx, a.TouchOffsetFt); err != nil {
			if rbErr := r.agg.SetSettings(aggregatorSettings(r.current)); rbErr != nil {
				log.Printf("settings rollback failed: %v", rbErr)
			}
			return err
		}
	}
	r.current = a
	log.Printf("settings applied descent_angle_deg=%.2f smoothing_alpha=%.2f touch_offset_ft=%.0f",
		a.DescentAngleDeg, a.SmoothingAlpha, a.TouchOffsetFt)
	return nil
}
