package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"voxelforge.io/internal/config"
	"voxelforge.io/internal/sim/multiworld"
	"voxelforge.io/internal/sim/registry"
	"voxelforge.io/internal/sim/world"
	"voxelforge.io/internal/transport/ws"
)

type worldDetail struct {
	world.WorldInfo
	Config config.WorldConfig `json:"config"`
}

type timeResponse struct {
	World string  `json:"world"`
	Time  float64 `json:"time"`
	Tick  uint64  `json:"tick"`
}

type atlasResponse struct {
	World        string           `json:"world"`
	Texturepack  string           `json:"texturepack"`
	RegistryHash string           `json:"registry_hash"`
	Blocks       []registry.Block `json:"blocks"`
}

func newHandler(mgr *multiworld.Manager, tune config.Tuning, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /worlds", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, mgr.List())
	})
	mux.HandleFunc("GET /worlds/{name}", func(rw http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		info, err := mgr.Info(r.Context(), name)
		if err != nil {
			writeWorldError(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, worldDetail{WorldInfo: info, Config: mgr.Get(name).Config()})
	})
	mux.HandleFunc("GET /time", func(rw http.ResponseWriter, r *http.Request) {
		w := lookupWorld(rw, r, mgr)
		if w == nil {
			return
		}
		m := w.Metrics()
		writeJSON(rw, http.StatusOK, timeResponse{World: w.Name(), Time: m.Time, Tick: m.Tick})
	})
	mux.HandleFunc("GET /atlas", func(rw http.ResponseWriter, r *http.Request) {
		w := lookupWorld(rw, r, mgr)
		if w == nil {
			return
		}
		reg := w.Registry()
		writeJSON(rw, http.StatusOK, atlasResponse{
			World:        w.Name(),
			Texturepack:  w.Config().Texturepack,
			RegistryHash: reg.Digest(),
			Blocks:       reg.Blocks(),
		})
	})
	mux.HandleFunc("GET /ws", ws.NewServer(mgr, tune, logger).Handler())
	return mux
}

func lookupWorld(rw http.ResponseWriter, r *http.Request, mgr *multiworld.Manager) *world.World {
	name := r.URL.Query().Get("world")
	if name == "" {
		http.Error(rw, "missing world", http.StatusBadRequest)
		return nil
	}
	w := mgr.Get(name)
	if w == nil {
		http.Error(rw, "world not found", http.StatusNotFound)
		return nil
	}
	return w
}

func writeWorldError(rw http.ResponseWriter, err error) {
	if errors.Is(err, multiworld.ErrUnknownWorld) {
		http.Error(rw, "world not found", http.StatusNotFound)
		return
	}
	http.Error(rw, err.Error(), http.StatusServiceUnavailable)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
