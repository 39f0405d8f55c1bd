package multiworld

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelforge.io/internal/config"
	"voxelforge.io/internal/protocol"
	"voxelforge.io/internal/sim/registry"
	"voxelforge.io/internal/sim/world"
)

// flakySender accepts the first okSends frames and fails every later one.
type flakySender struct {
	mu       sync.Mutex
	okSends  int
	attempts int
	msgs     []protocol.Message
}

func (s *flakySender) Send(msg protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.okSends >= 0 && s.attempts > s.okSends {
		return errors.New("closed")
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *flakySender) count(typ string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.msgs {
		if m.Type == typ {
			n++
		}
	}
	return n
}

func newWorld(t *testing.T, name string) *world.World {
	t.Helper()
	cfg := config.Default(name)
	cfg.RenderRadius = 1
	tuning := config.DefaultTuning()
	tuning.TickRateHz = 200
	w, err := world.New(cfg, tuning, registry.Default())
	require.NoError(t, err)
	return w
}

func startManager(t *testing.T, names ...string) *Manager {
	t.Helper()
	var worlds []*world.World
	for _, n := range names {
		worlds = append(worlds, newWorld(t, n))
	}
	m, err := NewManager(worlds, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Errorf("manager did not stop")
		}
	})
	return m
}

func TestNewManagerRejectsDuplicates(t *testing.T) {
	a := newWorld(t, "overworld")
	b := newWorld(t, "overworld")
	_, err := NewManager([]*world.World{a, b}, nil)
	require.Error(t, err)

	_, err = NewManager(nil, nil)
	require.Error(t, err)
}

func TestNamesSorted(t *testing.T) {
	m, err := NewManager([]*world.World{newWorld(t, "nether"), newWorld(t, "end"), newWorld(t, "overworld")}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"end", "nether", "overworld"}, m.Names())
	assert.Nil(t, m.Get("missing"))
	assert.NotNil(t, m.Get("end"))
}

func TestJoinUnknownWorld(t *testing.T) {
	m := startManager(t, "overworld")
	_, err := m.Join(context.Background(), "nowhere", world.JoinRequest{ID: "a", Out: &flakySender{okSends: -1}})
	require.ErrorIs(t, err, ErrUnknownWorld)

	err = m.Route(context.Background(), "nowhere", "a", protocol.NewMessage(protocol.TypeNoop))
	require.ErrorIs(t, err, ErrUnknownWorld)
}

func TestJoinAndListPlayers(t *testing.T) {
	m := startManager(t, "overworld", "nether")
	out := &flakySender{okSends: -1}
	resp, err := m.Join(context.Background(), "overworld", world.JoinRequest{ID: "a", Name: "alice", Out: out})
	require.NoError(t, err)
	assert.Equal(t, "a", resp.ID)

	require.Eventually(t, func() bool {
		for _, s := range m.List() {
			if s.Name == "overworld" {
				return s.Players == 1 && s.Chunks > 0
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, out.count(protocol.TypeInit))

	info, err := m.Info(context.Background(), "overworld")
	require.NoError(t, err)
	require.Len(t, info.Players, 1)
	assert.Equal(t, "alice", info.Players[0].Name)

	m.Leave("overworld", "a")
	require.Eventually(t, func() bool { return m.Get("overworld").Metrics().Players == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestFailedPlayerDisappearsFromListing(t *testing.T) {
	m := startManager(t, "overworld")
	a := &flakySender{okSends: -1}
	b := &flakySender{okSends: 1}
	_, err := m.Join(context.Background(), "overworld", world.JoinRequest{ID: "a", Name: "alice", Out: a})
	require.NoError(t, err)
	_, err = m.Join(context.Background(), "overworld", world.JoinRequest{ID: "b", Name: "bob", Out: b})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		list := m.List()
		return len(list) == 1 && list[0].Players == 1
	}, 3*time.Second, 10*time.Millisecond)

	b.mu.Lock()
	attempts := b.attempts
	b.mu.Unlock()
	assert.Equal(t, 2, attempts, "one INIT and one failed frame")
	require.Eventually(t, func() bool { return a.count(protocol.TypeLeave) == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestDuplicateJoinReturnsWorldError(t *testing.T) {
	m := startManager(t, "overworld")
	_, err := m.Join(context.Background(), "overworld", world.JoinRequest{ID: "a", Name: "alice", Out: &flakySender{okSends: -1}})
	require.NoError(t, err)
	_, err = m.Join(context.Background(), "overworld", world.JoinRequest{ID: "a", Name: "alice", Out: &flakySender{okSends: -1}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownWorld)
}
