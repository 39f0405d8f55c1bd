package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"voxelforge.io/internal/config"
	"voxelforge.io/internal/persistence/indexdb"
	persistlog "voxelforge.io/internal/persistence/log"
	"voxelforge.io/internal/sim/multiworld"
	"voxelforge.io/internal/sim/registry"
	"voxelforge.io/internal/sim/world"
)

type options struct {
	Addr       string
	AssetsDir  string
	DataDir    string
	WorldsPath string
	TuningPath string
	DisableDB  bool
}

func main() {
	var (
		addr       = flag.String("addr", "localhost:4000", "http listen address")
		assetsDir  = flag.String("assets", "./assets", "assets directory (blocks, packs, worlds.json)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		worldsPath = flag.String("worlds", "", "worlds config path (default: <assets>/worlds.json)")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <assets>/tuning.yaml)")
		debug      = flag.Bool("debug", false, "development logging")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index")
	)
	flag.Parse()

	var (
		logger *zap.Logger
		err    error
	)
	if *debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	opts := options{
		Addr:       *addr,
		AssetsDir:  *assetsDir,
		DataDir:    *dataDir,
		WorldsPath: strings.TrimSpace(*worldsPath),
		TuningPath: strings.TrimSpace(*tuningPath),
		DisableDB:  *disableDB,
	}
	if opts.WorldsPath == "" {
		opts.WorldsPath = filepath.Join(opts.AssetsDir, "worlds.json")
	}
	if opts.TuningPath == "" {
		opts.TuningPath = filepath.Join(opts.AssetsDir, "tuning.yaml")
	}

	ctx, cancel := signalContext()
	defer cancel()
	if err := run(ctx, opts, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, opts options, logger *zap.Logger) error {
	cfgs, err := config.LoadWorlds(opts.WorldsPath)
	if err != nil {
		return fmt.Errorf("load worlds: %w", err)
	}
	tune, err := config.LoadTuning(opts.TuningPath)
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt, err := buildRuntime(cfgs, tune, opts, promReg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           newHandler(rt.mgr, tune, promReg, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.mgr.Run(gctx) })
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", opts.Addr), zap.Strings("worlds", rt.mgr.Names()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// serverRuntime owns the worlds and the sinks that must outlive them.
type serverRuntime struct {
	mgr     *multiworld.Manager
	closers []func() error
}

func (r *serverRuntime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

func buildRuntime(cfgs []config.WorldConfig, tune config.Tuning, opts options, promReg prometheus.Registerer, logger *zap.Logger) (*serverRuntime, error) {
	rt := &serverRuntime{}
	col := world.NewCollectors(promReg)
	worlds := make([]*world.World, 0, len(cfgs))
	for _, cfg := range cfgs {
		reg, err := registry.Load(opts.AssetsDir, cfg.Packs)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("registry (%s): %w", cfg.Name, err)
		}
		worldDir := filepath.Join(opts.DataDir, cfg.Name)
		wopts := []world.Option{
			world.WithLogger(logger),
			world.WithDataDir(worldDir),
			world.WithCollectors(col),
		}
		if cfg.Save {
			events := persistlog.NewEventLogger(worldDir)
			rt.closers = append(rt.closers, events.Close)
			wopts = append(wopts, world.WithEventLogger(events))

			if !opts.DisableDB {
				idx, err := indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
				if err != nil {
					rt.Close()
					return nil, fmt.Errorf("open index db (%s): %w", cfg.Name, err)
				}
				rt.closers = append(rt.closers, idx.Close)
				wopts = append(wopts, world.WithChunkIndex(idx), world.WithEventLogger(idx))
			}
		}
		w, err := world.New(cfg, tune, reg, wopts...)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("create world (%s): %w", cfg.Name, err)
		}
		worlds = append(worlds, w)
	}
	mgr, err := multiworld.NewManager(worlds, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.mgr = mgr
	return rt, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
