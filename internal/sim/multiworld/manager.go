package multiworld

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"voxelforge.io/internal/protocol"
	"voxelforge.io/internal/sim/world"
)

// ErrUnknownWorld is returned for names no running world answers to.
var ErrUnknownWorld = errors.New("unknown world")

const (
	worldRequestTimeout = 3 * time.Second
)

type Manager struct {
	mu sync.RWMutex

	worlds map[string]*world.World
	log    *zap.Logger

	stopOnce sync.Once
}

// Summary is one row of the world listing.
type Summary struct {
	Name    string  `json:"name"`
	Players int     `json:"players"`
	Chunks  int     `json:"chunks"`
	Time    float64 `json:"time"`
}

func NewManager(worlds []*world.World, log *zap.Logger) (*Manager, error) {
	if len(worlds) == 0 {
		return nil, fmt.Errorf("no worlds")
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{worlds: map[string]*world.World{}, log: log}
	for _, w := range worlds {
		if w == nil {
			return nil, fmt.Errorf("nil world")
		}
		if _, dup := m.worlds[w.Name()]; dup {
			return nil, fmt.Errorf("duplicate world %q", w.Name())
		}
		m.worlds[w.Name()] = w
	}
	return m, nil
}

func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.worlds))
	for name := range m.worlds {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) Get(name string) *world.World {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.worlds[name]
}

// List reads each world's last published metrics. It never blocks on a world loop.
func (m *Manager) List() []Summary {
	names := m.Names()
	out := make([]Summary, 0, len(names))
	for _, name := range names {
		met := m.Get(name).Metrics()
		out = append(out, Summary{
			Name:    name,
			Players: met.Players,
			Chunks:  met.LoadedChunks,
			Time:    met.Time,
		})
	}
	return out
}

// Run drives every world until ctx ends or one of them fails.
func (m *Manager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range m.Names() {
		w := m.Get(name)
		g.Go(func() error {
			err := w.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				m.log.Error("world stopped", zap.String("world", w.Name()), zap.Error(err))
				return fmt.Errorf("world %s: %w", w.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		for _, name := range m.Names() {
			m.Get(name).Stop()
		}
	})
}

// Join hands req to the named world and waits for its answer.
func (m *Manager) Join(ctx context.Context, name string, req world.JoinRequest) (world.JoinResponse, error) {
	w := m.Get(name)
	if w == nil {
		return world.JoinResponse{}, fmt.Errorf("%w: %s", ErrUnknownWorld, name)
	}
	if req.Resp == nil {
		req.Resp = make(chan world.JoinResponse, 1)
	}
	reqCtx, cancel := m.requestCtx(ctx)
	defer cancel()
	resp, err := m.sendJoinRequest(reqCtx, w, req)
	if err != nil {
		return world.JoinResponse{}, fmt.Errorf("join request failed: %w", err)
	}
	if resp.Err != nil {
		return resp, resp.Err
	}
	return resp, nil
}

// Leave is best effort; a stuck world loses the request after worldRequestTimeout.
func (m *Manager) Leave(name, id string) {
	w := m.Get(name)
	if w == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), worldRequestTimeout)
	defer cancel()
	if err := w.RequestLeave(ctx, id); err != nil {
		m.log.Warn("leave dropped", zap.String("world", name), zap.String("player", id))
	}
}

// Route forwards one client message to the world inbox.
func (m *Manager) Route(ctx context.Context, name, id string, msg protocol.Message) error {
	w := m.Get(name)
	if w == nil {
		return fmt.Errorf("%w: %s", ErrUnknownWorld, name)
	}
	reqCtx, cancel := m.requestCtx(ctx)
	defer cancel()
	select {
	case w.Inbox() <- world.Inbound{PlayerID: id, Msg: msg}:
		return nil
	case <-reqCtx.Done():
		return reqCtx.Err()
	}
}

// Info asks the named world for its live summary.
func (m *Manager) Info(ctx context.Context, name string) (world.WorldInfo, error) {
	w := m.Get(name)
	if w == nil {
		return world.WorldInfo{}, fmt.Errorf("%w: %s", ErrUnknownWorld, name)
	}
	reqCtx, cancel := m.requestCtx(ctx)
	defer cancel()
	return w.Info(reqCtx)
}

func (m *Manager) requestCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, worldRequestTimeout)
}

func (m *Manager) sendJoinRequest(ctx context.Context, w *world.World, req world.JoinRequest) (world.JoinResponse, error) {
	if err := w.RequestJoin(ctx, req); err != nil {
		return world.JoinResponse{}, err
	}
	select {
	case resp := <-req.Resp:
		return resp, nil
	case <-ctx.Done():
		return world.JoinResponse{}, ctx.Err()
	}
}
