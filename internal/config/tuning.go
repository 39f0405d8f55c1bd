package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds server-wide simulation knobs that are not per-world.
type Tuning struct {
	TickRateHz      int     `yaml:"tick_rate_hz"`
	ChunksPerTick   int     `yaml:"chunks_per_tick"`
	EntitySyncTicks int     `yaml:"entity_sync_ticks"`
	TimeSyncTicks   int     `yaml:"time_sync_ticks"`
	JumpEveryTicks  int     `yaml:"jump_every_ticks"`
	SearchRadius    float64 `yaml:"search_radius"`
	OutboundQueue   int     `yaml:"outbound_queue"`

	RateLimits RateLimits `yaml:"rate_limits"`
	Physics    Physics    `yaml:"physics"`
	Player     BodyDims   `yaml:"player"`
}

type RateLimits struct {
	InboundPerSec float64 `yaml:"inbound_per_sec"`
	InboundBurst  int     `yaml:"inbound_burst"`
}

type Physics struct {
	Gravity          float64 `yaml:"gravity"`
	MinBounceImpulse float64 `yaml:"min_bounce_impulse"`
	AirDrag          float64 `yaml:"air_drag"`
	FluidDrag        float64 `yaml:"fluid_drag"`
	FluidDensity     float64 `yaml:"fluid_density"`
}

type BodyDims struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

func DefaultTuning() Tuning {
	return Tuning{
		TickRateHz:      60,
		ChunksPerTick:   8,
		EntitySyncTicks: 2,
		TimeSyncTicks:   100,
		JumpEveryTicks:  100,
		SearchRadius:    32,
		OutboundQueue:   512,
		RateLimits: RateLimits{
			InboundPerSec: 120,
			InboundBurst:  240,
		},
		Physics: Physics{
			Gravity:          -24,
			MinBounceImpulse: 0.5,
			AirDrag:          0.1,
			FluidDrag:        0.4,
			FluidDensity:     2.0,
		},
		Player: BodyDims{Width: 0.8, Height: 1.8},
	}
}

// LoadTuning reads tuning.yaml over the defaults. A missing file yields the defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.normalize()
	return t, nil
}

func (t *Tuning) normalize() {
	d := DefaultTuning()
	if t.TickRateHz <= 0 {
		t.TickRateHz = d.TickRateHz
	}
	if t.ChunksPerTick <= 0 {
		t.ChunksPerTick = d.ChunksPerTick
	}
	if t.EntitySyncTicks <= 0 {
		t.EntitySyncTicks = d.EntitySyncTicks
	}
	if t.TimeSyncTicks <= 0 {
		t.TimeSyncTicks = d.TimeSyncTicks
	}
	if t.JumpEveryTicks <= 0 {
		t.JumpEveryTicks = d.JumpEveryTicks
	}
	if t.SearchRadius <= 0 {
		t.SearchRadius = d.SearchRadius
	}
	if t.OutboundQueue <= 0 {
		t.OutboundQueue = d.OutboundQueue
	}
	if t.Player.Width <= 0 || t.Player.Height <= 0 {
		t.Player = d.Player
	}
}
