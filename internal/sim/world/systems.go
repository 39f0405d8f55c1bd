package world

import (
	"runtime"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/sync/errgroup"

	"voxelforge.io/internal/protocol"
	"voxelforge.io/internal/sim/ecs"
	"voxelforge.io/internal/sim/kdtree"
	"voxelforge.io/internal/sim/mathx"
	"voxelforge.io/internal/sim/physics"
	"voxelforge.io/internal/sim/terrain"
)

// runSystems runs the tick pipeline in its fixed order.
func (w *World) runSystems(tick uint64) {
	w.chunkingSystem()
	w.generationSystem()
	w.searchSystem()
	w.jumpingSystem(tick)
	w.physicsSystem()
	w.meshingSystem(tick)
	w.broadcastSystem()
}

func (w *World) chunkingSystem() {
	w.c.currChunks.Each(func(e ecs.Entity, cc *CurrChunkComp) {
		rb, ok := w.c.bodies.Get(e)
		if !ok {
			return
		}
		cc.Changed = false
		now := w.chunkOf(rb.Body.Position())
		if !cc.Valid || cc.Val != now {
			cc.Val, cc.Valid, cc.Changed = now, true, true
		}
	})
}

func (w *World) generationSystem() {
	w.c.viewRadii.Each(func(e ecs.Entity, vr *ViewRadiusComp) {
		cc := w.c.currChunks.Ptr(e)
		if cc == nil || !cc.Valid {
			return
		}
		changed := cc.Changed
		cc.Changed = false
		p := w.playerOf(e)
		if p != nil && p.restream {
			changed, p.restream = true, false
		}
		if !changed {
			return
		}
		w.chunks.Generate(cc.Val, vr.Radius, false)
		if p != nil {
			w.refreshStream(p, cc.Val, vr.Radius)
		}
	})

	w.chunks.Update(w.tuning.ChunksPerTick)
	for _, c := range w.chunks.TakeRemeshed() {
		var include []string
		for _, p := range w.players.Sorted() {
			if p.sent[c.Coords] {
				include = append(include, p.ID)
			}
		}
		if len(include) == 0 {
			continue
		}
		msg := protocol.NewMessage(protocol.TypeUpdate)
		msg.Chunks = []protocol.ChunkProtocol{c.GetProtocol(true, false, false, terrain.All)}
		w.queue.Push(Envelope{Msg: msg, Include: include})
	}
}

// refreshStream queues every coord within radius that p has not received,
// nearest first, and unloads sent chunks that fell out of radius+1.
func (w *World) refreshStream(p *Player, center mathx.Coords2, radius int) {
	var gone []mathx.Coords2
	for c := range p.sent {
		if mathx.Chebyshev(c, center) > radius+1 {
			gone = append(gone, c)
		}
	}
	if len(gone) > 0 {
		sort.Slice(gone, func(i, j int) bool { return gone[i].Less(gone[j]) })
		msg := protocol.NewMessage(protocol.TypeUnload)
		for _, c := range gone {
			delete(p.sent, c)
			msg.Chunks = append(msg.Chunks, protocol.ChunkProtocol{ID: c.String(), X: c.X, Z: c.Z})
		}
		w.queue.Push(Envelope{Msg: msg, Include: []string{p.ID}})
	}
	p.retain(func(c mathx.Coords2) bool { return mathx.Chebyshev(c, center) <= radius })
	for _, c := range coverage(center, radius) {
		if !p.sent[c] {
			p.Enqueue(c)
		}
	}
}

// coverage lists the square of chunks around center, nearest first.
func coverage(center mathx.Coords2, radius int) []mathx.Coords2 {
	out := make([]mathx.Coords2, 0, (2*radius+1)*(2*radius+1))
	for dx := -radius; dx <= radius; dx++ {
		for dz := -radius; dz <= radius; dz++ {
			out = append(out, mathx.Coords2{X: center.X + dx, Z: center.Z + dz})
		}
	}
	dist := func(c mathx.Coords2) (int, int) {
		dx, dz := c.X-center.X, c.Z-center.Z
		return mathx.Chebyshev(c, center), dx*dx + dz*dz
	}
	sort.Slice(out, func(i, j int) bool {
		ci, ei := dist(out[i])
		cj, ej := dist(out[j])
		if ci != cj {
			return ci < cj
		}
		if ei != ej {
			return ei < ej
		}
		return out[i].Less(out[j])
	})
	return out
}

func (w *World) searchSystem() {
	w.tree.Reset()
	w.c.bodies.Each(func(e ecs.Entity, rb *RigidBodyComp) {
		w.tree.Insert(kdtree.Item{Pos: rb.Body.Position(), Entity: e, Player: w.c.ids.Has(e)})
	})
	w.tree.Build()

	radius := w.tuning.SearchRadius
	w.c.targets.Each(func(e ecs.Entity, t *TargetComp) {
		t.Select(w.nearest(e, t.Access, radius))
		if walk := w.c.walks.Ptr(e); walk != nil {
			walk.Active = t.Selection != nil
			if walk.Active {
				walk.Pos = t.Selection.Pos
			}
		}
	})
	w.c.lookAts.Each(func(e ecs.Entity, l *LookAtComp) {
		l.Select(w.nearest(e, l.Access, radius))
		rot := w.c.rotations.Ptr(e)
		rb, ok := w.c.bodies.Get(e)
		if l.Selection != nil && rot != nil && ok {
			rot.Quat = yawTowards(rb.Body.Position(), l.Selection.Pos)
		}
	})
}

func (w *World) nearest(e ecs.Entity, a Access, radius float64) *Selection {
	rb, ok := w.c.bodies.Get(e)
	if !ok {
		return nil
	}
	it, found := w.tree.Nearest(rb.Body.Position(), radius, a.filter(e))
	if !found {
		return nil
	}
	return &Selection{Pos: it.Pos, Entity: it.Entity}
}

type brainJob struct {
	brain  Brain
	target *Selection
	body   *physics.RigidBody
}

// jumpingSystem runs NPC brains every JumpEveryTicks. Each job owns a distinct
// body, so jobs run in parallel.
func (w *World) jumpingSystem(tick uint64) {
	every := uint64(w.tuning.JumpEveryTicks)
	if every == 0 || tick%every != 0 {
		return
	}
	var jobs []brainJob
	w.c.brains.Each(func(e ecs.Entity, b *BrainComp) {
		t, okT := w.c.targets.Get(e)
		rb, okB := w.c.bodies.Get(e)
		if !okT || !okB || b.Brain == nil {
			return
		}
		var target *Selection
		if t.Selection != nil {
			sel := *t.Selection
			target = &sel
		}
		jobs = append(jobs, brainJob{brain: b.Brain, target: target, body: rb.Body})
	})
	if len(jobs) == 0 {
		return
	}
	dt := w.clock.DeltaSecs()
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, j := range jobs {
		g.Go(func() error {
			j.brain.Jump()
			j.brain.Operate(j.target, j.body, dt)
			return nil
		})
	}
	_ = g.Wait()
}

func (w *World) physicsSystem() {
	dt := w.clock.DeltaSecs()
	if dt <= 0 {
		return
	}
	hooks := physics.Hooks{
		OnCollide: func(*physics.RigidBody, mgl64.Vec3) { w.collisions++ },
	}
	w.c.phys.Each(func(e ecs.Entity, _ *PhysComp) {
		rb, ok := w.c.bodies.Get(e)
		if !ok {
			return
		}
		// Bodies over terrain that does not exist yet stay frozen.
		if c := w.chunks.GetChunk(w.chunkOf(rb.Body.Position())); c == nil || !c.Generated {
			return
		}
		w.engine.Iterate(rb.Body, dt, w.isSolid, w.isFluid, hooks)
	})
}

// isSolid and isFluid take unit cells of the continuous frame.
func (w *World) isSolid(x, y, z int) bool {
	d := w.cfg.Dimension
	return w.chunks.GetSolidityByVoxel(mathx.FloorDiv(x, d), mathx.FloorDiv(y, d), mathx.FloorDiv(z, d))
}

func (w *World) isFluid(x, y, z int) bool {
	d := w.cfg.Dimension
	return w.chunks.GetFluidityByVoxel(mathx.FloorDiv(x, d), mathx.FloorDiv(y, d), mathx.FloorDiv(z, d))
}

// meshingSystem serves up to ChunksPerTick queued coords per named player. A
// coord whose chunk is not ready goes back to the tail of the queue.
func (w *World) meshingSystem(tick uint64) {
	budget := w.tuning.ChunksPerTick
	for _, p := range w.players.Sorted() {
		if p.Name == "" {
			continue
		}
		for i := 0; i < budget && len(p.requested) > 0; i++ {
			coords, _ := p.pop()
			if p.sent[coords] {
				continue
			}
			c := w.chunks.Get(coords, terrain.All, false)
			if c == nil {
				p.Enqueue(coords)
				continue
			}
			for _, msg := range loadFrames(c) {
				w.queue.Push(Envelope{Msg: msg, Include: []string{p.ID}})
			}
			p.sent[coords] = true
		}
	}

	every := uint64(w.tuning.EntitySyncTicks)
	if every == 0 || tick%every != 0 {
		return
	}
	if ents := w.entityProtocols(); len(ents) > 0 {
		msg := protocol.NewMessage(protocol.TypeUpdate)
		msg.Entities = ents
		w.queue.Push(Envelope{Msg: msg})
	}
}

// loadFrames splits one chunk into mesh, voxel and light frames. All three are
// always sent, even when a payload is empty.
func loadFrames(c *terrain.Chunk) []protocol.Message {
	out := make([]protocol.Message, 0, 3)
	for _, part := range [3][3]bool{
		{true, false, false},
		{false, true, false},
		{false, false, true},
	} {
		msg := protocol.NewMessage(protocol.TypeLoad)
		msg.Chunks = []protocol.ChunkProtocol{c.GetProtocol(part[0], part[1], part[2], terrain.All)}
		out = append(out, msg)
	}
	return out
}

func (w *World) entityProtocols() []protocol.EntityProtocol {
	var out []protocol.EntityProtocol
	w.c.etypes.Each(func(e ecs.Entity, et *ETypeComp) {
		rb, ok := w.c.bodies.Get(e)
		if !ok {
			return
		}
		pos := rb.Body.Position()
		ep := protocol.EntityProtocol{
			ID:       e.String(),
			Type:     et.Type,
			Position: [3]float64{pos[0], pos[1], pos[2]},
			Rotation: [4]float64{0, 0, 0, 1},
		}
		if rot, ok := w.c.rotations.Get(e); ok {
			ep.Rotation = quatArray(rot.Quat)
		}
		if t, ok := w.c.targets.Get(e); ok && t.Selection != nil {
			tp := [3]float64{t.Selection.Pos[0], t.Selection.Pos[1], t.Selection.Pos[2]}
			ep.Target = &tp
		}
		out = append(out, ep)
	})
	return out
}

// broadcastSystem drains the queue in push order. A player whose send fails is
// evicted on the spot and never attempted again this tick.
func (w *World) broadcastSystem() {
	for _, env := range w.queue.Drain() {
		var failed []*Player
		if env.Include != nil {
			failed = w.players.SendTo(env.Msg, env.Include)
		} else {
			failed = w.players.Broadcast(env.Msg, env.Exclude)
		}
		w.countFrame(env.Msg.Type)
		for _, p := range failed {
			w.evictPlayer(p)
		}
	}
}

func (w *World) playerOf(e ecs.Entity) *Player {
	id, ok := w.c.ids.Get(e)
	if !ok {
		return nil
	}
	return w.players.Get(id.ID)
}
