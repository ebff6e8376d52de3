// Package app wires the engagement engines, the realtime hub and the two
// HTTP surfaces together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"hearth/internal/reconcile"
	"hearth/pkg/comments"
	"hearth/pkg/config"
	"hearth/pkg/directory"
	"hearth/pkg/ingest"
	"hearth/pkg/ingest/queue"
	"hearth/pkg/logger"
	"hearth/pkg/migrate"
	"hearth/pkg/reactions"
	"hearth/pkg/realtime"
	"hearth/pkg/sensor"
	"hearth/pkg/state"
	"hearth/pkg/store"
	"hearth/pkg/validation"
	"hearth/pkg/warmth"
)

const shutdownGrace = 10 * time.Second

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	dir *directory.Memory
	agg *warmth.Aggregator
	hub *realtime.Hub

	queue *queue.Queue
	proc  *ingest.Processor

	reactions *reactions.Engine
	comments  *comments.Engine

	srv  *http.Server
	fast *fasthttp.Server
}

// New initializes resources that do not require a running context: runtime
// keys, validation rules, the state layout, the store and the engines. It
// does not start listeners or background loops; call Run for those.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	// validate effective config early and fail fast
	if err := validateConfig(eff); err != nil {
		return nil, err
	}
	cfg := eff.Config

	// runtime keys: backend keys double as identity signing keys
	runtimeCfg := &config.RuntimeConfig{BackendKeys: map[string]struct{}{}, SigningKeys: map[string]struct{}{}}
	for _, k := range cfg.Security.APIKeys.Backend {
		runtimeCfg.BackendKeys[k] = struct{}{}
		runtimeCfg.SigningKeys[k] = struct{}{}
	}
	config.SetRuntime(runtimeCfg)

	validation.SetRules(cfg.Rules())

	if err := state.Init(eff.DBPath); err != nil {
		return nil, fmt.Errorf("state layout under %s: %w", eff.DBPath, err)
	}
	if err := store.Open(state.PathsVar.Store); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", state.PathsVar.Store, err)
	}

	if _, err := migrate.Run(context.Background(), version); err != nil {
		return nil, fmt.Errorf("data migration to %s: %w", version, err)
	}

	dir, err := loadDirectory(cfg)
	if err != nil {
		return nil, err
	}

	agg := warmth.NewAggregator()
	hub := realtime.NewHub(realtime.Options{
		HeartbeatTimeout: cfg.Realtime.HeartbeatTimeout.Duration(),
		SendBuffer:       cfg.Realtime.SendBuffer,
		SweepInterval:    cfg.Realtime.SweepInterval.Duration(),
	})

	re := reactions.New(agg, hub, dir, dir, dir)
	ce := comments.New(agg, hub, dir, dir, dir)

	if n := int(cfg.Ingest.Queue.MaxPooledBufferBytes); n > 0 {
		queue.SetMaxPooledBuffer(n)
	}
	q := queue.NewQueue(cfg.Ingest.Queue.Capacity)
	queue.SetDefaultQueue(q)
	ingest.ObserveQueueDepth(q)

	proc := ingest.NewProcessor(q, cfg.Ingest.Processor.Lanes)
	ingest.RegisterDefaultHandlers(proc, re, ce)

	return &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		dir:       dir,
		agg:       agg,
		hub:       hub,
		queue:     q,
		proc:      proc,
		reactions: re,
		comments:  ce,
	}, nil
}

// Run starts the background loops and listeners, then blocks until ctx is
// canceled or a fatal server error occurs. Shutdown order matters: stop
// accepting, drain the queue through the processor, then close the hub and
// the store.
func (a *App) Run(ctx context.Context) error {
	hubCtx, hubCancel := context.WithCancel(ctx)
	defer hubCancel()
	go a.hub.Run(hubCtx)

	a.proc.Start()

	// pressure monitor pauses ingest while pebble is under load
	sens := sensor.NewSensor(time.Second)
	sens.Start()
	defer sens.Stop()
	monCancel := sensor.StartStoreMonitor(ctx, a.proc, sens, sensor.DefaultMonitorConfig())
	defer monCancel()

	recCancel, err := reconcile.Start(ctx, a.eff, reconcile.Deps{Agg: a.agg, Scopes: a.dir, Hub: a.hub})
	if err != nil {
		return err
	}
	defer recCancel()

	a.printBanner()

	errCh := a.startHTTP()
	fastErrCh := a.startFast()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	case runErr = <-fastErrCh:
	}

	a.shutdown()
	return runErr
}

func (a *App) shutdown() {
	sdCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if a.fast != nil {
		if err := a.fast.ShutdownWithContext(sdCtx); err != nil {
			logger.Warn("fast_listener_shutdown_error", "error", err)
		}
	}
	if a.srv != nil {
		if err := a.srv.Shutdown(sdCtx); err != nil {
			logger.Warn("http_shutdown_error", "error", err)
		}
	}

	// stop intake first so the processor can run the queue dry
	a.queue.CloseAndDrain()
	a.proc.Stop(sdCtx)

	a.hub.Shutdown()

	if err := store.Close(); err != nil {
		logger.Error("store_close_error", "error", err)
	}
	logger.Info("shutdown_complete")
}

// loadDirectory builds the family directory from the configured seed file,
// or an empty one when no seed is set.
func loadDirectory(cfg *config.Config) (*directory.Memory, error) {
	if cfg.Directory.SeedFile == "" {
		logger.Warn("directory_seed_missing", "msg", "starting with empty directory; all access checks will deny")
		return directory.NewMemory(), nil
	}
	dir, err := directory.LoadSeed(cfg.Directory.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("load directory seed: %w", err)
	}
	logger.Info("directory_seed_loaded", "path", cfg.Directory.SeedFile, "scopes", len(dir.Scopes()))
	return dir, nil
}
