package world

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"voxelforge.io/internal/protocol"
	"voxelforge.io/internal/sim/mathx"
	"voxelforge.io/internal/sim/physics"
)

func (w *World) handleJoin(req JoinRequest) {
	resp := JoinResponse{ID: req.ID}
	defer func() {
		if req.Resp == nil {
			return
		}
		select {
		case req.Resp <- resp:
		default:
		}
	}()
	if req.ID == "" {
		resp.Err = errors.New("join: empty session id")
		return
	}
	if w.players.Get(req.ID) != nil {
		resp.Err = fmt.Errorf("join: %s is already in %s", req.ID, w.cfg.Name)
		return
	}

	pos := SpawnPoint
	if req.Position != nil {
		pos = *req.Position
	}
	dims := w.tuning.Player
	radius := w.clampRadius(req.RenderRadius)
	e := w.store.Create()
	w.c.ids.Insert(e, IDComp{ID: req.ID})
	w.c.names.Insert(e, NameComp{Name: req.Name})
	w.c.rotations.Insert(e, RotationComp{Quat: mgl64.QuatIdent()})
	w.c.bodies.Insert(e, RigidBodyComp{Body: physics.NewRigidBody(physics.NewAABB(pos, dims.Width, dims.Height, dims.Width), 1, 1, 0, 1, false)})
	w.c.currChunks.Insert(e, CurrChunkComp{})
	w.c.viewRadii.Insert(e, ViewRadiusComp{Radius: radius})

	p := newPlayer(req.ID, e, req.Out)
	p.Name = req.Name
	p.RenderRadius = radius

	initMsg := protocol.NewMessage(protocol.TypeInit).WithJSON(protocol.InitPayload{
		ID:              req.ID,
		Params:          w.worldParams(),
		Time:            w.clock.Time(),
		RegistryHash:    w.registry.Digest(),
		Tick:            w.clock.Ticks(),
		ProtocolVersion: protocol.Version,
	})
	for _, other := range w.players.Sorted() {
		initMsg.Peers = append(initMsg.Peers, w.peerOf(other))
	}
	initMsg.Entities = w.entityProtocols()
	if err := p.Send(initMsg); err != nil {
		w.store.Delete(e)
		resp.Err = err
		w.log.Info("player dropped during join", zap.String("player", req.ID), zap.Error(err))
		return
	}
	w.players.Add(p)

	join := protocol.NewMessage(protocol.TypeJoin).WithText(req.ID)
	join.Peers = []protocol.PeerProtocol{w.peerOf(p)}
	w.queue.Push(Envelope{Msg: join, Exclude: []string{req.ID}, Sender: req.ID})

	w.logEvent(Event{Kind: EventJoin, Player: req.ID, Name: req.Name})
	w.log.Info("player joined", zap.String("player", req.ID), zap.String("name", req.Name), zap.Int("radius", radius))
}

func (w *World) handleLeave(id string) {
	p := w.players.Remove(id)
	if p == nil {
		return
	}
	w.cleanupPlayer(p, EventLeave)
	w.log.Info("player left", zap.String("player", id))
}

// evictPlayer finishes removing a player whose send failed.
func (w *World) evictPlayer(p *Player) {
	w.cleanupPlayer(p, EventEvict)
	w.countEviction("player", 1)
	w.log.Info("player evicted", zap.String("player", p.ID))
}

// cleanupPlayer releases the entity of a player already removed from the
// session map and tells everyone else. The Leave frame goes out next tick.
func (w *World) cleanupPlayer(p *Player, kind string) {
	w.store.Delete(p.Entity)
	w.queue.Push(Envelope{Msg: protocol.NewMessage(protocol.TypeLeave).WithText(p.ID), Exclude: []string{p.ID}})
	w.logEvent(Event{Kind: kind, Player: p.ID, Name: p.Name})
}

// clampRadius caps r at the world's render radius. A player that has not
// announced a radius keeps 0 until a PEER frame sets one.
func (w *World) clampRadius(r int) int {
	if r <= 0 {
		return 0
	}
	if limit := w.cfg.RenderRadius; r > limit {
		return limit
	}
	return r
}

func (w *World) worldParams() protocol.WorldParams {
	return protocol.WorldParams{
		Name:         w.cfg.Name,
		ChunkSize:    w.cfg.ChunkSize,
		MaxHeight:    w.cfg.MaxHeight,
		SubChunks:    w.cfg.SubChunks,
		Dimension:    w.cfg.Dimension,
		RenderRadius: w.cfg.RenderRadius,
		Generator:    w.cfg.Generator,
		TickSpeed:    w.clock.TickSpeed(),
	}
}

func (w *World) peerOf(p *Player) protocol.PeerProtocol {
	peer := protocol.PeerProtocol{
		ID:           p.ID,
		Name:         p.Name,
		Rotation:     [4]float64{0, 0, 0, 1},
		RenderRadius: p.RenderRadius,
	}
	if rb, ok := w.c.bodies.Get(p.Entity); ok {
		pos := rb.Body.Position()
		peer.Position = [3]float64{pos[0], pos[1], pos[2]}
	}
	if rot, ok := w.c.rotations.Get(p.Entity); ok {
		peer.Rotation = quatArray(rot.Quat)
	}
	return peer
}

func (w *World) handleInbound(in Inbound) {
	p := w.players.Get(in.PlayerID)
	if p == nil {
		return
	}
	switch in.Msg.Type {
	case protocol.TypePeer:
		w.onPeer(p, in.Msg)
	case protocol.TypeLoad:
		w.onLoad(p, in.Msg)
	case protocol.TypeUnload:
		w.onUnload(p, in.Msg)
	case protocol.TypeUpdate:
		w.onUpdate(p, in.Msg)
	case protocol.TypeChat:
		w.onChat(p, in.Msg)
	case protocol.TypeNoop:
	default:
		w.log.Debug("ignored inbound message", zap.String("player", p.ID), zap.String("type", in.Msg.Type))
	}
}

// onPeer applies the client-reported state of its own avatar and relays it.
func (w *World) onPeer(p *Player, msg protocol.Message) {
	if len(msg.Peers) == 0 {
		return
	}
	peer := msg.Peers[0]
	if peer.Name != "" && peer.Name != p.Name {
		p.Name = peer.Name
		w.c.names.Insert(p.Entity, NameComp{Name: peer.Name})
	}
	if rb, ok := w.c.bodies.Get(p.Entity); ok {
		rb.Body.SetPosition(mgl64.Vec3{peer.Position[0], peer.Position[1], peer.Position[2]})
	}
	if rot := w.c.rotations.Ptr(p.Entity); rot != nil {
		r := peer.Rotation
		rot.Quat = mgl64.Quat{W: r[3], V: mgl64.Vec3{r[0], r[1], r[2]}}
	}
	if peer.RenderRadius > 0 {
		radius := w.clampRadius(peer.RenderRadius)
		if radius != p.RenderRadius {
			p.RenderRadius = radius
			w.c.viewRadii.Insert(p.Entity, ViewRadiusComp{Radius: radius})
			p.restream = true
		}
	}
	relay := protocol.NewMessage(protocol.TypePeer)
	relay.Peers = []protocol.PeerProtocol{w.peerOf(p)}
	w.queue.Push(Envelope{Msg: relay, Exclude: []string{p.ID}, Sender: p.ID})
}

// onLoad queues explicitly requested chunks. Coords outside the player's radius
// are ignored; chunks already sent are sent again.
func (w *World) onLoad(p *Player, msg protocol.Message) {
	req, ok := w.decodeChunkRequest(p, msg)
	if !ok {
		return
	}
	cc, _ := w.c.currChunks.Get(p.Entity)
	center := cc.Val
	if !cc.Valid {
		if rb, ok := w.c.bodies.Get(p.Entity); ok {
			center = w.chunkOf(rb.Body.Position())
		}
	}
	for _, c := range req.Chunks {
		if mathx.Chebyshev(c, center) > p.RenderRadius {
			continue
		}
		delete(p.sent, c)
		p.Enqueue(c)
	}
}

func (w *World) onUnload(p *Player, msg protocol.Message) {
	req, ok := w.decodeChunkRequest(p, msg)
	if !ok {
		return
	}
	drop := make(map[mathx.Coords2]bool, len(req.Chunks))
	for _, c := range req.Chunks {
		drop[c] = true
		delete(p.sent, c)
	}
	p.retain(func(c mathx.Coords2) bool { return !drop[c] })
}

func (w *World) decodeChunkRequest(p *Player, msg protocol.Message) (protocol.ChunkRequest, bool) {
	var req protocol.ChunkRequest
	if len(msg.JSON) == 0 {
		return req, false
	}
	if err := json.Unmarshal(msg.JSON, &req); err != nil {
		w.log.Debug("bad chunk request", zap.String("player", p.ID), zap.Error(err))
		return req, false
	}
	return req, true
}

// onUpdate applies voxel edits and echoes the accepted ones, with fresh light
// values, to every player.
func (w *World) onUpdate(p *Player, msg protocol.Message) {
	var applied []protocol.UpdateProtocol
	for _, u := range msg.Updates {
		if !w.chunks.SetRawVoxel(u.VX, u.VY, u.VZ, u.Voxel) {
			continue
		}
		u.Light = w.chunks.GetLightByVoxel(u.VX, u.VY, u.VZ)
		applied = append(applied, u)
		w.logEvent(Event{Kind: EventEdit, Player: p.ID, Pos: [3]int{u.VX, u.VY, u.VZ}, Voxel: u.Voxel})
	}
	if len(applied) == 0 {
		return
	}
	out := protocol.NewMessage(protocol.TypeUpdate)
	out.Updates = applied
	w.queue.Push(Envelope{Msg: out, Sender: p.ID})
}

type chatSender struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

func (w *World) onChat(p *Player, msg protocol.Message) {
	if msg.Text == "" {
		return
	}
	out := protocol.NewMessage(protocol.TypeChat).WithText(msg.Text).WithJSON(chatSender{ID: p.ID, Name: p.Name})
	w.queue.Push(Envelope{Msg: out, Sender: p.ID})
	w.logEvent(Event{Kind: EventChat, Player: p.ID, Name: p.Name, Text: msg.Text})
}

// WorldInfo is the HTTP-facing summary of a running world.
type WorldInfo struct {
	Name    string                  `json:"name"`
	Params  protocol.WorldParams    `json:"params"`
	Players []protocol.PeerProtocol `json:"players"`
	Chunks  int                     `json:"chunks"`
	Time    float64                 `json:"time"`
	Tick    uint64                  `json:"tick"`
}

type infoReq struct {
	Resp chan WorldInfo
}

// Info asks the world loop for a consistent summary. It needs Run to be active.
func (w *World) Info(ctx context.Context) (WorldInfo, error) {
	req := infoReq{Resp: make(chan WorldInfo, 1)}
	select {
	case w.info <- req:
	case <-ctx.Done():
		return WorldInfo{}, ctx.Err()
	}
	select {
	case info := <-req.Resp:
		return info, nil
	case <-ctx.Done():
		return WorldInfo{}, ctx.Err()
	}
}

func (w *World) handleInfoReq(req infoReq) {
	info := w.snapshotInfo()
	select {
	case req.Resp <- info:
	default:
	}
}

func (w *World) snapshotInfo() WorldInfo {
	info := WorldInfo{
		Name:    w.cfg.Name,
		Params:  w.worldParams(),
		Players: []protocol.PeerProtocol{},
		Chunks:  w.chunks.Len(),
		Time:    w.clock.Time(),
		Tick:    w.clock.Ticks(),
	}
	for _, p := range w.players.Sorted() {
		info.Players = append(info.Players, w.peerOf(p))
	}
	return info
}
