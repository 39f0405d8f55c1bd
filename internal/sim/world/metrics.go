package world

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorldMetrics is a read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Players      int `json:"players"`
	Entities     int `json:"entities"`
	LoadedChunks int `json:"loaded_chunks"`

	PendingGenerate int `json:"pending_generate"`
	PendingMesh     int `json:"pending_mesh"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
	Time   float64 `json:"time"`

	EvictedPlayers uint64 `json:"evicted_players"`
	EvictedChunks  uint64 `json:"evicted_chunks"`
	ChunksSaved    uint64 `json:"chunks_saved"`
}

type QueueDepths struct {
	Inbox    int `json:"inbox"`
	Sessions int `json:"sessions"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

// publishMetrics stores a fresh snapshot. Counters carry over from the previous one.
func (w *World) publishMetrics(step time.Duration) {
	prev := w.Metrics()
	gen, mesh := w.chunks.Pending()
	m := WorldMetrics{
		Tick:            w.clock.Ticks(),
		Players:         w.players.Len(),
		Entities:        w.c.etypes.Len(),
		LoadedChunks:    w.chunks.Len(),
		PendingGenerate: gen,
		PendingMesh:     mesh,
		QueueDepths: QueueDepths{
			Inbox:    len(w.inbox),
			Sessions: len(w.sessions),
		},
		StepMS:         float64(step.Microseconds()) / 1000,
		Time:           w.clock.Time(),
		EvictedPlayers: prev.EvictedPlayers + w.pending.evictedPlayers,
		EvictedChunks:  prev.EvictedChunks + w.pending.evictedChunks,
		ChunksSaved:    prev.ChunksSaved,
	}
	if w.saver != nil {
		m.ChunksSaved = w.saver.saved.Load()
	}
	w.pending = counters{}
	w.metrics.Store(m)

	if w.prom != nil {
		name := w.cfg.Name
		w.prom.TickSeconds.WithLabelValues(name).Observe(step.Seconds())
		w.prom.Players.WithLabelValues(name).Set(float64(m.Players))
		w.prom.Entities.WithLabelValues(name).Set(float64(m.Entities))
		w.prom.Chunks.WithLabelValues(name).Set(float64(m.LoadedChunks))
		w.prom.Collisions.WithLabelValues(name).Add(float64(w.collisions))
	}
	w.collisions = 0
}

// counters accumulate within one tick and are folded into the snapshot.
type counters struct {
	evictedPlayers uint64
	evictedChunks  uint64
}

func (w *World) countFrame(typ string) {
	if w.prom != nil {
		w.prom.Frames.WithLabelValues(w.cfg.Name, typ).Inc()
	}
}

func (w *World) countEviction(kind string, n int) {
	switch kind {
	case "player":
		w.pending.evictedPlayers += uint64(n)
	case "chunk":
		w.pending.evictedChunks += uint64(n)
	}
	if w.prom != nil && n > 0 {
		w.prom.Evictions.WithLabelValues(w.cfg.Name, kind).Add(float64(n))
	}
}

// Collectors are the Prometheus series shared by every world of a server,
// labelled by world name.
type Collectors struct {
	TickSeconds *prometheus.HistogramVec
	Players     *prometheus.GaugeVec
	Entities    *prometheus.GaugeVec
	Chunks      *prometheus.GaugeVec
	Frames      *prometheus.CounterVec
	Evictions   *prometheus.CounterVec
	Collisions  *prometheus.CounterVec
}

// NewCollectors builds the series and registers them with reg when it is not nil.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		TickSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voxelforge",
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent in one world step.",
			Buckets:   []float64{.0005, .001, .002, .004, .008, .016, .032, .064},
		}, []string{"world"}),
		Players: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "voxelforge",
			Name:      "players",
			Help:      "Connected players.",
		}, []string{"world"}),
		Entities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "voxelforge",
			Name:      "entities",
			Help:      "Simulated NPC entities.",
		}, []string{"world"}),
		Chunks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "voxelforge",
			Name:      "loaded_chunks",
			Help:      "Resident chunks.",
		}, []string{"world"}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxelforge",
			Name:      "frames_sent_total",
			Help:      "Outbound envelopes drained by the broadcast system.",
		}, []string{"world", "type"}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxelforge",
			Name:      "evictions_total",
			Help:      "Players dropped on send failure and chunks dropped from memory.",
		}, []string{"world", "kind"}),
		Collisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxelforge",
			Name:      "collisions_total",
			Help:      "Rigid body collisions resolved by the physics system.",
		}, []string{"world"}),
	}
	if reg != nil {
		reg.MustRegister(c.TickSeconds, c.Players, c.Entities, c.Chunks, c.Frames, c.Evictions, c.Collisions)
	}
	return c
}
