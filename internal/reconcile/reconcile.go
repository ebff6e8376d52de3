// Package reconcile runs the scheduled background pass that keeps derived
// state honest: expired idempotency records are swept, old activity records
// pruned, and per-family warmth recomputed from the surviving activity so
// the rolling window actually rolls even on quiet days.
package reconcile

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"

	"hearth/pkg/config"
	"hearth/pkg/directory"
	"hearth/pkg/logger"
	"hearth/pkg/realtime"
	"hearth/pkg/state"
	"hearth/pkg/warmth"
)

// Deps carries what a reconcile run needs beyond config. Hub may be nil;
// warmth change events are then simply not broadcast.
type Deps struct {
	Agg    *warmth.Aggregator
	Scopes directory.ScopeLister
	Hub    *realtime.Hub
}

var (
	storedEff  *config.EffectiveConfigResult
	storedDeps Deps
	paused     atomic.Bool
)

// SetPaused suspends or resumes scheduled runs without tearing down the
// scheduler. An in-flight run is not interrupted.
func SetPaused(p bool) { paused.Store(p) }

// Paused reports whether scheduled runs are currently suspended.
func Paused() bool { return paused.Load() }

// SetEffectiveConfig stores the effective config and deps so tests (or
// admin triggers) can invoke reconcile runs on-demand.
func SetEffectiveConfig(eff config.EffectiveConfigResult, deps Deps) {
	storedEff = &eff
	storedDeps = deps
}

// RunImmediate triggers a single reconcile run using the stored effective
// config. Returns an error if no effective config was registered.
func RunImmediate() error {
	if storedEff == nil {
		return fmt.Errorf("no effective config registered for reconcile run")
	}
	if state.PathsVar.Reconcile == "" {
		return fmt.Errorf("state paths not initialized")
	}
	return runOnce(context.Background(), *storedEff, storedDeps, state.PathsVar.Reconcile)
}

// Start starts the reconcile scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, eff config.EffectiveConfigResult, deps Deps) (context.CancelFunc, error) {
	rc := eff.Config.Reconcile

	if !rc.Enabled {
		logger.Info("reconcile_disabled")
		return func() {}, nil
	}

	paused.Store(rc.Paused)
	SetEffectiveConfig(eff, deps)

	// lock and run artifacts live under <DBPath>/state/reconcile
	runPath := state.PathsVar.Reconcile
	if err := os.MkdirAll(runPath, 0o700); err != nil {
		logger.Error("reconcile_path_create_failed", "path", runPath, "error", err)
		return nil, err
	}

	// map empty cron to default daily @03:00
	cronExpr := rc.Cron
	if cronExpr == "" {
		cronExpr = "0 3 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("reconcile_invalid_cron", "cron", rc.Cron)
		return nil, fmt.Errorf("invalid reconcile cron expression: %s", rc.Cron)
	}

	logger.Info("reconcile_enabled", "cron", cronExpr, "activity_retention", rc.ActivityRetention.Duration().String(), "path", runPath)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, eff, deps, runPath, cronExpr)
	logger.Info("reconcile_scheduler_started", "path", runPath)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured cron
// expression and sleeps until that time.
func runScheduler(ctx context.Context, eff config.EffectiveConfigResult, deps Deps, runPath, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("reconcile_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("reconcile_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("reconcile_scheduler_stopping")
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			wait = time.Second
		}

		select {
		case <-time.After(wait):
			if paused.Load() {
				logger.Info("reconcile_run_skipped_paused")
				continue
			}
			go func() {
				if err := runOnce(ctx, eff, deps, runPath); err != nil {
					logger.Error("reconcile_run_error", "error", err)
				}
			}()
		case <-ctx.Done():
			logger.Info("reconcile_scheduler_stopping")
			return
		}
	}
}
