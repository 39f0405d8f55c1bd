package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelforge.io/internal/config"
	"voxelforge.io/internal/protocol"
	"voxelforge.io/internal/sim/multiworld"
	"voxelforge.io/internal/sim/registry"
	"voxelforge.io/internal/sim/world"
)

func startServer(t *testing.T, names ...string) (*multiworld.Manager, string) {
	t.Helper()
	tuning := config.DefaultTuning()
	tuning.TickRateHz = 200
	var worlds []*world.World
	for _, n := range names {
		cfg := config.Default(n)
		cfg.RenderRadius = 1
		w, err := world.New(cfg, tuning, registry.Default())
		require.NoError(t, err)
		worlds = append(worlds, w)
	}
	mgr, err := multiworld.NewManager(worlds, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = mgr.Run(ctx) }()

	srv := httptest.NewServer(NewServer(mgr, tuning, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return mgr, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

// readUntil returns the first frame of type typ.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) protocol.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, b, err := conn.ReadMessage()
		require.NoError(t, err)
		var m protocol.Message
		require.NoError(t, json.Unmarshal(b, &m))
		if m.Type == typ {
			return m
		}
	}
}

func TestJoinStreamsInitAndChunks(t *testing.T) {
	mgr, url := startServer(t, "overworld")
	conn := dial(t, url)
	send(t, conn, `{"type":"JOIN","text":"overworld","json":{"name":"alice","render_radius":1}}`)

	initMsg := readUntil(t, conn, protocol.TypeInit)
	assert.Contains(t, string(initMsg.JSON), `"protocol_version"`)
	load := readUntil(t, conn, protocol.TypeLoad)
	require.Len(t, load.Chunks, 1)

	require.Eventually(t, func() bool { return mgr.Get("overworld").Metrics().Players == 1 }, 3*time.Second, 10*time.Millisecond)
	_ = conn.Close()
	require.Eventually(t, func() bool { return mgr.Get("overworld").Metrics().Players == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestUnknownWorldClosesWithCode(t *testing.T) {
	_, url := startServer(t, "overworld")
	conn := dial(t, url)
	send(t, conn, `{"type":"JOIN","text":"nowhere"}`)

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce), "expected close frame, got %v", err)
	assert.Equal(t, protocol.ErrWorldNotFound, ce.Text)
}

func TestSwitchWorldsAndChat(t *testing.T) {
	mgr, url := startServer(t, "overworld", "nether")
	a := dial(t, url)
	b := dial(t, url)
	send(t, a, `{"type":"JOIN","text":"overworld","json":{"name":"alice"}}`)
	readUntil(t, a, protocol.TypeInit)
	send(t, b, `{"type":"JOIN","text":"overworld","json":{"name":"bob"}}`)
	readUntil(t, b, protocol.TypeInit)
	readUntil(t, a, protocol.TypeJoin)

	send(t, b, `{"type":"CHAT","text":"hello"}`)
	chat := readUntil(t, a, protocol.TypeChat)
	assert.Equal(t, "hello", chat.Text)

	send(t, b, `{"type":"JOIN","text":"nether","json":{"name":"bob"}}`)
	readUntil(t, b, protocol.TypeInit)
	readUntil(t, a, protocol.TypeLeave)
	require.Eventually(t, func() bool {
		return mgr.Get("overworld").Metrics().Players == 1 && mgr.Get("nether").Metrics().Players == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSessionSendAfterClose(t *testing.T) {
	s := newSession("x", 1)
	require.NoError(t, s.Send(protocol.NewMessage(protocol.TypeNoop)))
	assert.ErrorIs(t, s.Send(protocol.NewMessage(protocol.TypeNoop)), ErrQueueFull)
	s.close()
	s.close()
	assert.ErrorIs(t, s.Send(protocol.NewMessage(protocol.TypeNoop)), ErrSessionClosed)
}
