package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"voxelforge.io/internal/config"
	"voxelforge.io/internal/protocol"
	"voxelforge.io/internal/sim/multiworld"
	"voxelforge.io/internal/sim/registry"
	"voxelforge.io/internal/sim/world"
)

func newTestServer(t *testing.T, names ...string) *httptest.Server {
	t.Helper()
	tune := config.DefaultTuning()
	tune.TickRateHz = 200
	promReg := prometheus.NewRegistry()
	col := world.NewCollectors(promReg)

	var worlds []*world.World
	for _, n := range names {
		cfg := config.Default(n)
		cfg.Texturepack = "default"
		w, err := world.New(cfg, tune, registry.Default(), world.WithCollectors(col))
		require.NoError(t, err)
		worlds = append(worlds, w)
	}
	mgr, err := multiworld.NewManager(worlds, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = mgr.Run(ctx) }()
	srv := httptest.NewServer(newHandler(mgr, tune, promReg, zap.NewNop()))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestWorldsListingAndDetail(t *testing.T) {
	srv := newTestServer(t, "overworld", "nether")

	var list []multiworld.Summary
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/worlds", &list))
	require.Len(t, list, 2)
	assert.Equal(t, "nether", list[0].Name)
	assert.Equal(t, "overworld", list[1].Name)

	var detail struct {
		Name   string             `json:"name"`
		Tick   uint64             `json:"tick"`
		Config config.WorldConfig `json:"config"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/worlds/overworld", &detail))
	assert.Equal(t, "overworld", detail.Name)
	assert.Equal(t, 16, detail.Config.ChunkSize)
	assert.Equal(t, config.GeneratorFlat, detail.Config.Generator)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/worlds/missing", nil))
}

func TestTimeAndAtlas(t *testing.T) {
	srv := newTestServer(t, "overworld")

	require.Eventually(t, func() bool {
		var tr timeResponse
		return getJSON(t, srv.URL+"/time?world=overworld", &tr) == http.StatusOK && tr.Tick > 0
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/time", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/atlas?world=missing", nil))

	var atlas atlasResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/atlas?world=overworld", &atlas))
	reg := registry.Default()
	assert.Equal(t, "default", atlas.Texturepack)
	assert.Equal(t, reg.Digest(), atlas.RegistryHash)
	assert.Len(t, atlas.Blocks, reg.Len())
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, "overworld")

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(b), `voxelforge_tick_duration_seconds_count{world="overworld"}`)
	}, 3*time.Second, 10*time.Millisecond)
}

func TestBuildRuntimeOpensSinksForSavedWorlds(t *testing.T) {
	assets := t.TempDir()
	data := t.TempDir()
	worlds := `{"shared":{"save":true,"render_radius":2},"worlds":[{"name":"overworld"},{"name":"scratch","save":false}]}`
	require.NoError(t, os.WriteFile(filepath.Join(assets, "worlds.json"), []byte(worlds), 0o644))

	cfgs, err := config.LoadWorlds(filepath.Join(assets, "worlds.json"))
	require.NoError(t, err)
	rt, err := buildRuntime(cfgs, config.DefaultTuning(), options{AssetsDir: assets, DataDir: data}, prometheus.NewRegistry(), zap.NewNop())
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, []string{"overworld", "scratch"}, rt.mgr.Names())
	assert.FileExists(t, filepath.Join(data, "overworld", "index", "world.sqlite"))
	assert.NoDirExists(t, filepath.Join(data, "scratch"))
}

func TestWorldLogsNameWorldOnce(t *testing.T) {
	assets := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(assets, "worlds.json"),
		[]byte(`{"shared":{"save":false,"render_radius":1},"worlds":[{"name":"overworld"}]}`), 0o644))
	cfgs, err := config.LoadWorlds(filepath.Join(assets, "worlds.json"))
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	tune := config.DefaultTuning()
	tune.TickRateHz = 200
	rt, err := buildRuntime(cfgs, tune, options{AssetsDir: assets, DataDir: t.TempDir()}, prometheus.NewRegistry(), zap.New(core))
	require.NoError(t, err)
	defer rt.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = rt.mgr.Run(ctx) }()

	_, err = rt.mgr.Join(ctx, "overworld", world.JoinRequest{ID: "a", Name: "alice", RenderRadius: 1, Out: discardSender{}})
	require.NoError(t, err)

	joined := logs.FilterMessage("player joined").All()
	require.Len(t, joined, 1)
	n := 0
	for _, f := range joined[0].Context {
		if f.Key == "world" {
			n++
			assert.Equal(t, "overworld", f.String)
		}
	}
	assert.Equal(t, 1, n)
}

type discardSender struct{}

func (discardSender) Send(protocol.Message) error { return nil }

func TestRunStopsOnCancel(t *testing.T) {
	assets := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(assets, "worlds.json"),
		[]byte(`{"worlds":[{"name":"overworld"}]}`), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, options{
			Addr:       "127.0.0.1:0",
			AssetsDir:  assets,
			DataDir:    t.TempDir(),
			WorldsPath: filepath.Join(assets, "worlds.json"),
			TuningPath: filepath.Join(assets, "tuning.yaml"),
		}, zap.NewNop())
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}
