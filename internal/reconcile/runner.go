package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hearth/pkg/config"
	"hearth/pkg/logger"
	"hearth/pkg/models"
	"hearth/pkg/realtime"
	"hearth/pkg/store"
	"hearth/pkg/warmth"
)

const defaultLockTTL = 2 * time.Minute

// runOnce executes a single reconcile run: acquire the lease, sweep expired
// idempotency records, prune aged activity rows, recompute family warmth per
// scope, and broadcast the scores that moved.
func runOnce(ctx context.Context, eff config.EffectiveConfigResult, deps Deps, runPath string) error {
	rc := eff.Config.Reconcile
	ttl := rc.LockTTL.Duration()
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	owner := uuid.NewString()
	lock := newFileLease(runPath)
	acq, err := lock.Acquire(owner, ttl)
	if err != nil {
		logger.Error("reconcile_lease_acquire_error", "error", err)
		return fmt.Errorf("lease acquire failed: %w", err)
	}
	if !acq {
		logger.Info("reconcile_lease_not_acquired")
		return nil
	}
	defer func() {
		if err := lock.Release(owner); err != nil {
			logger.Error("reconcile_lease_release_error", "error", err)
		}
	}()

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()

	// heartbeat goroutine renews the lease and aborts the run if renewal
	// fails repeatedly
	hbCtx, hbCancel := context.WithCancel(runCtx)
	defer hbCancel()
	go func() {
		t := time.NewTicker(ttl / 3)
		defer t.Stop()
		var failCount int
		const maxConsecutiveRenewFails = 3
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-t.C:
				if err := lock.Renew(owner, ttl); err != nil {
					failCount++
					logger.Error("reconcile_lease_renew_failed", "error", err, "count", failCount)
					if failCount >= maxConsecutiveRenewFails {
						logger.Error("reconcile_lease_renew_failed_fatal", "owner", owner)
						runCancel()
						return
					}
				} else {
					failCount = 0
				}
			}
		}
	}()

	runID := uuid.NewString()
	now := time.Now().UTC()
	logger.Info("reconcile_run_start", "run_id", runID, "owner", owner)

	// expired idempotency records
	swept, err := store.SweepIdempotency(now.UnixNano())
	if err != nil {
		logger.Error("reconcile_idem_sweep_failed", "run_id", runID, "error", err)
	} else if swept > 0 {
		store.RecordSweep("idempotency", swept)
		logger.Info("reconcile_idem_swept", "run_id", runID, "removed", swept)
	}

	if deps.Scopes == nil {
		logger.Warn("reconcile_no_scope_lister", "run_id", runID)
		logger.Info("reconcile_run_complete", "run_id", runID, "idem_swept", swept, "scopes", 0)
		return nil
	}

	retention := rc.ActivityRetention.Duration()
	var pruned, scopes int
	for _, scopeID := range deps.Scopes.Scopes() {
		select {
		case <-runCtx.Done():
			return fmt.Errorf("reconcile run aborted due to lease renewal failures")
		default:
		}
		scopes++

		if retention > 0 {
			n, err := store.PruneActivityBefore(scopeID, now.Add(-retention).UnixNano())
			if err != nil {
				logger.Error("reconcile_activity_prune_failed", "run_id", runID, "scope", scopeID, "error", err)
			} else if n > 0 {
				store.RecordSweep("activity", n)
				pruned += n
			}
		}

		if deps.Agg == nil {
			continue
		}
		prev, _ := store.GetWarmth(models.ScopeFamily, scopeID)
		score, err := deps.Agg.RecomputeFamily(scopeID, now)
		if err != nil {
			logger.Error("reconcile_family_recompute_failed", "run_id", runID, "scope", scopeID, "error", err)
			continue
		}
		if deps.Hub == nil {
			continue
		}
		if score != prev.Score {
			ev := realtime.NewEvent(models.EventWarmthUpdated, scopeID, "", map[string]any{
				"scope":  string(models.ScopeFamily),
				"id":     scopeID,
				"warmth": score,
			})
			deps.Hub.Publish(scopeID, ev, "", models.TopicWarmth)
		}
		// Window digest so clients can show "your family was active this
		// week" without replaying individual events.
		rows, err := store.ListActivitySince(scopeID, now.Add(-warmth.FamilyWindow).UnixNano())
		if err != nil || len(rows) == 0 {
			continue
		}
		var sum float64
		for _, a := range rows {
			sum += a.Warmth
		}
		digest := realtime.NewEvent(models.EventFamilyActivity, scopeID, "", map[string]any{
			"scope_id": scopeID,
			"events":   len(rows),
			"warmth":   sum,
			"window":   warmth.FamilyWindow.String(),
		})
		deps.Hub.Publish(scopeID, digest, "", models.TopicWarmth)
	}

	logger.Info("reconcile_run_complete", "run_id", runID, "idem_swept", swept, "activity_pruned", pruned, "scopes", scopes)
	return nil
}
