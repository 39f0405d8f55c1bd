package world

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"voxelforge.io/internal/config"
	"voxelforge.io/internal/sim/clock"
	"voxelforge.io/internal/sim/ecs"
	"voxelforge.io/internal/sim/kdtree"
	"voxelforge.io/internal/sim/mathx"
	"voxelforge.io/internal/sim/physics"
	"voxelforge.io/internal/sim/registry"
	"voxelforge.io/internal/sim/terrain"
)

// SpawnPoint is where players appear when the join request names no position.
var SpawnPoint = mgl64.Vec3{0, 80, 0}

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg    config.WorldConfig
	tuning config.Tuning
	log    *zap.Logger

	clock    *clock.Clock
	registry *registry.Registry
	chunks   *terrain.Chunks
	engine   *physics.Engine
	tree     *kdtree.Tree
	store    *ecs.Store
	c        components
	players  *Players
	queue    MessagesQueue

	inbox    chan Inbound
	sessions chan sessionReq
	info     chan infoReq
	stop     chan struct{}

	stopOnce sync.Once

	saver      *saver
	chunkIndex ChunkIndex
	events     []EventLogger
	prom       *Collectors
	collisions int
	pending    counters

	metrics atomic.Value
}

type Option func(*World)

func WithLogger(l *zap.Logger) Option {
	return func(w *World) {
		if l != nil {
			w.log = l
		}
	}
}

// WithClockSource replaces wall time, for deterministic tests.
func WithClockSource(now func() time.Time) Option {
	return func(w *World) { w.clock = clock.NewWithSource(w.cfg.Time, w.cfg.TickSpeed, now) }
}

// WithDataDir enables chunk persistence under dir/chunks when the world has save on.
func WithDataDir(dir string) Option {
	return func(w *World) {
		if dir == "" || !w.cfg.Save {
			return
		}
		w.saver = newSaver(filepath.Join(dir, "chunks"), w.cfg.Name, w.log)
	}
}

func WithChunkIndex(idx ChunkIndex) Option { return func(w *World) { w.chunkIndex = idx } }

func WithEventLogger(l EventLogger) Option {
	return func(w *World) {
		if l != nil {
			w.events = append(w.events, l)
		}
	}
}

func WithCollectors(c *Collectors) Option { return func(w *World) { w.prom = c } }

func New(cfg config.WorldConfig, tuning config.Tuning, reg *registry.Registry, opts ...Option) (*World, error) {
	if reg == nil {
		reg = registry.Default()
	}
	gen, err := terrain.NewGenerator(cfg.Generator, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("world %s: %w", cfg.Name, err)
	}
	store := ecs.NewStore()
	w := &World{
		cfg:      cfg,
		tuning:   tuning,
		log:      zap.NewNop(),
		clock:    clock.New(cfg.Time, cfg.TickSpeed),
		registry: reg,
		engine: physics.NewEngine(
			tuning.Physics.Gravity,
			tuning.Physics.MinBounceImpulse,
			tuning.Physics.AirDrag,
			tuning.Physics.FluidDrag,
			tuning.Physics.FluidDensity,
		),
		tree:     kdtree.New(),
		store:    store,
		c:        newComponents(store),
		players:  NewPlayers(),
		inbox:    make(chan Inbound, 1024),
		sessions: make(chan sessionReq, 128),
		info:     make(chan infoReq, 16),
		stop:     make(chan struct{}),
	}
	for _, o := range opts {
		if o != nil {
			o(w)
		}
	}
	w.log = w.log.With(zap.String("world", cfg.Name))
	if w.saver != nil {
		w.saver.log = w.log
		w.saver.index = w.chunkIndex
	}

	params := terrain.Params{Size: cfg.ChunkSize, MaxHeight: cfg.MaxHeight, SubChunks: cfg.SubChunks}
	chunkOpts := []terrain.Option{terrain.WithLogger(w.log)}
	if w.saver != nil {
		chunkOpts = append(chunkOpts, terrain.WithSource(diskSource{saver: w.saver}))
	}
	w.chunks = terrain.NewChunks(params, reg, gen, chunkOpts...)
	w.publishMetrics(0)
	return w, nil
}

func (w *World) Name() string                 { return w.cfg.Name }
func (w *World) Config() config.WorldConfig   { return w.cfg }
func (w *World) Registry() *registry.Registry { return w.registry }

func (w *World) Inbox() chan<- Inbound { return w.inbox }

// sessionReq is a join or a leave. Both share one channel so a session that
// leaves and re-enters is seen in that order.
type sessionReq struct {
	join  *JoinRequest
	leave string
}

// RequestJoin queues req behind every earlier join or leave. The answer
// arrives on req.Resp.
func (w *World) RequestJoin(ctx context.Context, req JoinRequest) error {
	return w.sendSession(ctx, sessionReq{join: &req})
}

func (w *World) RequestLeave(ctx context.Context, id string) error {
	return w.sendSession(ctx, sessionReq{leave: id})
}

func (w *World) sendSession(ctx context.Context, r sessionReq) error {
	select {
	case w.sessions <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// The accessors below expose world-loop state to tests and tools that drive
// the world through StepOnce. They are not safe while Run is active.

func (w *World) Chunks() *terrain.Chunks { return w.chunks }
func (w *World) Players() *Players       { return w.players }
func (w *World) Clock() *clock.Clock     { return w.clock }
func (w *World) Queue() *MessagesQueue   { return &w.queue }

// SendMessage queues env for the next broadcast pass.
func (w *World) SendMessage(env Envelope) { w.queue.Push(env) }

func (w *World) Body(e ecs.Entity) *physics.RigidBody {
	rb, ok := w.c.bodies.Get(e)
	if !ok {
		return nil
	}
	return rb.Body
}

func (w *World) CurrChunk(e ecs.Entity) (CurrChunkComp, bool) { return w.c.currChunks.Get(e) }

func (w *World) Target(e ecs.Entity) (TargetComp, bool) { return w.c.targets.Get(e) }

func (w *World) chunkOf(pos mgl64.Vec3) mathx.Coords2 {
	return mathx.ChunkOf(pos, w.cfg.Dimension, w.cfg.ChunkSize)
}

// SpawnEntity adds an NPC with a physics body at pos. Its chunk neighbourhood is
// generated at once so the body has ground to land on.
func (w *World) SpawnEntity(etype string, pos mgl64.Vec3, brain Brain) ecs.Entity {
	e := w.store.Create()
	body := physics.NewRigidBody(physics.NewAABB(pos, 0.6, 0.9, 0.6), 1, 1, 0, 1, true)
	w.c.etypes.Insert(e, ETypeComp{Type: etype})
	w.c.bodies.Insert(e, RigidBodyComp{Body: body})
	w.c.phys.Insert(e, PhysComp{})
	w.c.rotations.Insert(e, RotationComp{Quat: mgl64.QuatIdent()})
	w.c.currChunks.Insert(e, CurrChunkComp{})
	w.c.walks.Insert(e, WalkTowardsComp{})
	w.c.targets.Insert(e, TargetComp{Access{Kind: AccessPlayer}})
	w.c.lookAts.Insert(e, LookAtComp{Access{Kind: AccessPlayer}})
	if brain != nil {
		w.c.brains.Insert(e, BrainComp{Brain: brain})
	}
	w.chunks.Generate(w.chunkOf(pos), 0, false)
	return e
}

func (w *World) RemoveEntity(e ecs.Entity) bool {
	if _, isPlayer := w.c.ids.Get(e); isPlayer {
		return false
	}
	return w.store.Delete(e)
}

func (w *World) logEvent(ev Event) {
	ev.World = w.cfg.Name
	ev.Tick = w.clock.Ticks()
	for _, l := range w.events {
		if err := l.WriteEvent(ev); err != nil {
			w.log.Warn("event log write failed", zap.String("kind", ev.Kind), zap.Error(err))
		}
	}
}
