package world

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"voxelforge.io/internal/protocol"
	"voxelforge.io/internal/sim/ecs"
	"voxelforge.io/internal/sim/mathx"
)

// Run drives the world at TickRateHz until ctx is cancelled or Stop is called.
// Session input is buffered and applied at the next tick boundary in receive order.
func (w *World) Run(ctx context.Context) error {
	if w.saver == nil {
		return w.loop(ctx)
	}
	// The saver outlives the loop so the final saveDirty still reaches disk.
	done := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error { return w.saver.run(done) })
	g.Go(func() error {
		defer close(done)
		return w.loop(ctx)
	})
	return g.Wait()
}

func (w *World) loop(ctx context.Context) error {
	hz := w.tuning.TickRateHz
	if hz <= 0 {
		hz = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()
	defer w.saveDirty()

	var pendingSessions []sessionReq
	var pendingInbound []Inbound

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case r := <-w.sessions:
			pendingSessions = append(pendingSessions, r)
		case in := <-w.inbox:
			pendingInbound = append(pendingInbound, in)
		case req := <-w.info:
			w.handleInfoReq(req)
		case <-ticker.C:
			w.step(pendingSessions, pendingInbound)
			pendingSessions = pendingSessions[:0]
			pendingInbound = pendingInbound[:0]
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// StepOnce advances the world by a single tick using the same ordering as Run.
// It returns the tick just completed.
// Leaves are applied before joins.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, inbound []Inbound) uint64 {
	sessions := make([]sessionReq, 0, len(joins)+len(leaves))
	for _, id := range leaves {
		sessions = append(sessions, sessionReq{leave: id})
	}
	for i := range joins {
		sessions = append(sessions, sessionReq{join: &joins[i]})
	}
	w.step(sessions, inbound)
	return w.clock.Ticks()
}

func (w *World) step(sessions []sessionReq, inbound []Inbound) {
	start := time.Now()
	w.clock.Tick()
	tick := w.clock.Ticks()
	w.chunks.SetTick(tick)

	// Arrival order, so a session re-entering the same world leaves before it joins.
	for _, r := range sessions {
		if r.join != nil {
			w.handleJoin(*r.join)
		} else {
			w.handleLeave(r.leave)
		}
	}
	for _, in := range inbound {
		w.handleInbound(in)
	}

	w.runSystems(tick)

	if every := uint64(w.tuning.TimeSyncTicks); every > 0 && tick%every == 0 {
		msg := protocol.NewMessage(protocol.TypeConfig).WithJSON(protocol.ConfigPayload{
			Time:      w.clock.Time(),
			TickSpeed: w.clock.TickSpeed(),
		})
		w.queue.Push(Envelope{Msg: msg})
	}
	if every := uint64(w.cfg.SaveInterval); every > 0 && tick%every == 0 {
		w.saveDirty()
	}
	w.evictChunks()

	w.publishMetrics(time.Since(start))
}

func (w *World) saveDirty() {
	if w.saver == nil {
		return
	}
	tick := w.clock.Ticks()
	for _, snap := range w.chunks.DirtySnapshots() {
		w.saver.enqueue(snap, tick)
	}
}

// evictChunks trims the store down to MaxChunks. Chunks within radius+1 of any
// viewer stay resident, as do the chunks under NPC bodies.
func (w *World) evictChunks() {
	limit := w.cfg.MaxChunks
	if limit <= 0 || w.chunks.Len() <= limit {
		return
	}
	type anchor struct {
		at     mathx.Coords2
		radius int
	}
	var anchors []anchor
	w.c.currChunks.Each(func(e ecs.Entity, cc *CurrChunkComp) {
		if !cc.Valid {
			return
		}
		r := 0
		if vr, ok := w.c.viewRadii.Get(e); ok {
			r = vr.Radius
		}
		anchors = append(anchors, anchor{at: cc.Val, radius: r + 1})
	})
	keep := func(c mathx.Coords2) bool {
		for _, a := range anchors {
			if mathx.Chebyshev(c, a.at) <= a.radius {
				return true
			}
		}
		return false
	}
	evicted := w.chunks.Evict(keep, limit)
	if len(evicted) == 0 {
		return
	}
	tick := w.clock.Ticks()
	for _, c := range evicted {
		if c.Dirty && w.saver != nil {
			w.saver.enqueue(c, tick)
		}
	}
	w.countEviction("chunk", len(evicted))
	w.log.Debug("chunks evicted", zap.Int("count", len(evicted)), zap.Int("resident", w.chunks.Len()))
}
