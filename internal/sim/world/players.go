package world

import (
	"fmt"
	"sort"

	"voxelforge.io/internal/protocol"
	"voxelforge.io/internal/sim/ecs"
	"voxelforge.io/internal/sim/mathx"
)

type Player struct {
	ID           string
	Name         string
	Entity       ecs.Entity
	RenderRadius int

	out Sender

	requested []mathx.Coords2
	queued    map[mathx.Coords2]bool
	sent      map[mathx.Coords2]bool
	// restream forces the next generation pass to rebuild the streaming set.
	restream bool
}

func newPlayer(id string, e ecs.Entity, out Sender) *Player {
	return &Player{
		ID:     id,
		Entity: e,
		out:    out,
		queued: map[mathx.Coords2]bool{},
		sent:   map[mathx.Coords2]bool{},
	}
}

func (p *Player) Send(msg protocol.Message) error {
	if p.out == nil {
		return fmt.Errorf("%w: %s has no outbound channel", ErrSendFailed, p.ID)
	}
	if err := p.out.Send(msg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSendFailed, p.ID, err)
	}
	return nil
}

// Enqueue appends c to the streaming queue unless it is already queued.
func (p *Player) Enqueue(c mathx.Coords2) bool {
	if p.queued[c] {
		return false
	}
	p.queued[c] = true
	p.requested = append(p.requested, c)
	return true
}

func (p *Player) pop() (mathx.Coords2, bool) {
	if len(p.requested) == 0 {
		return mathx.Coords2{}, false
	}
	c := p.requested[0]
	p.requested = p.requested[1:]
	delete(p.queued, c)
	return c, true
}

func (p *Player) retain(keep func(mathx.Coords2) bool) {
	out := p.requested[:0]
	for _, c := range p.requested {
		if keep(c) {
			out = append(out, c)
		} else {
			delete(p.queued, c)
		}
	}
	p.requested = out
}

// Requested returns a copy of the pending streaming queue, head first.
func (p *Player) Requested() []mathx.Coords2 {
	return append([]mathx.Coords2(nil), p.requested...)
}

func (p *Player) HasSent(c mathx.Coords2) bool { return p.sent[c] }

func (p *Player) SentCount() int { return len(p.sent) }

// Players is the per-world session map. Iteration is in id order.
type Players struct {
	m map[string]*Player
}

func NewPlayers() *Players { return &Players{m: map[string]*Player{}} }

func (ps *Players) Add(p *Player)         { ps.m[p.ID] = p }
func (ps *Players) Get(id string) *Player { return ps.m[id] }
func (ps *Players) Len() int              { return len(ps.m) }

func (ps *Players) Remove(id string) *Player {
	p := ps.m[id]
	delete(ps.m, id)
	return p
}

func (ps *Players) Sorted() []*Player {
	out := make([]*Player, 0, len(ps.m))
	for _, p := range ps.m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Broadcast sends msg to every named player not in exclude. Players whose send
// fails are removed once the iteration is over and returned.
func (ps *Players) Broadcast(msg protocol.Message, exclude []string) []*Player {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var failed []string
	for _, p := range ps.Sorted() {
		if skip[p.ID] || p.Name == "" {
			continue
		}
		if err := p.Send(msg); err != nil {
			failed = append(failed, p.ID)
		}
	}
	return ps.removeAll(failed)
}

// SendTo delivers msg to each listed player that is present, with the same
// failure handling as Broadcast.
func (ps *Players) SendTo(msg protocol.Message, include []string) []*Player {
	var failed []string
	seen := make(map[string]bool, len(include))
	for _, id := range include {
		p := ps.m[id]
		if p == nil || seen[id] {
			continue
		}
		seen[id] = true
		if err := p.Send(msg); err != nil {
			failed = append(failed, id)
		}
	}
	return ps.removeAll(failed)
}

func (ps *Players) removeAll(ids []string) []*Player {
	if len(ids) == 0 {
		return nil
	}
	out := make([]*Player, 0, len(ids))
	for _, id := range ids {
		if p := ps.Remove(id); p != nil {
			out = append(out, p)
		}
	}
	return out
}
