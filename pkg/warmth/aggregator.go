package warmth

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"hearth/pkg/fault"
	"hearth/pkg/logger"
	"hearth/pkg/models"
	"hearth/pkg/store"
)

// FamilyWindow is the rolling window for the family-level aggregate.
const FamilyWindow = 7 * 24 * time.Hour

// familyNorm scales the raw window sum into [0,1]; a week with this much
// accumulated contribution reads as fully warm.
const familyNorm = 25.0

const applyRetries = 3

// Aggregator serializes warmth updates per aggregate id with striped locks
// on top of the store's read-modify-write.
type Aggregator struct {
	stripes [64]sync.Mutex
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

func (a *Aggregator) lock(scope models.WarmthScope, id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(string(scope)))
	h.Write([]byte(id))
	return &a.stripes[h.Sum32()%uint32(len(a.stripes))]
}

// ApplyDelta adds delta to the aggregate for (scope, id), clamps to [0,1],
// persists and returns the new score. Safe under concurrent application
// from multiple writers on the same id.
func (a *Aggregator) ApplyDelta(scope models.WarmthScope, id string, delta float64) (float64, error) {
	mu := a.lock(scope, id)
	mu.Lock()
	defer mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < applyRetries; attempt++ {
		cur, err := store.GetWarmth(scope, id)
		if err != nil && !store.IsNotFound(err) {
			lastErr = err
			continue
		}
		next := models.WarmthScore{
			Scope:     scope,
			ID:        id,
			Score:     Clamp(cur.Score + delta),
			UpdatedTS: time.Now().UTC().UnixNano(),
		}
		if err := store.SaveWarmth(next); err != nil {
			lastErr = err
			time.Sleep(time.Duration(attempt+1) * time.Millisecond)
			continue
		}
		return next.Score, nil
	}
	logger.Error("warmth_apply_exhausted", "scope", scope, "id", id, "error", lastErr)
	return 0, fmt.Errorf("%w: apply delta on %s/%s: %v", fault.ErrConflict, scope, id, lastErr)
}

// Recompute rebuilds the aggregate for (scope, id) from the live
// contributions, ignoring incremental history. Used by the reconciler and
// after bulk changes, never on the hot path.
func (a *Aggregator) Recompute(scope models.WarmthScope, id string) (float64, error) {
	mu := a.lock(scope, id)
	mu.Lock()
	defer mu.Unlock()

	var sum float64
	switch scope {
	case models.ScopePost:
		target := models.ReactionTarget{PostID: id}
		reactions, err := store.ListReactions(target)
		if err != nil {
			return 0, err
		}
		for _, r := range reactions {
			sum += r.Warmth
		}
		comments, err := store.ListCommentsByPost(id)
		if err != nil {
			return 0, err
		}
		for _, c := range comments {
			if !c.Deleted {
				sum += c.Warmth
			}
		}
	case models.ScopeComment:
		target := models.ReactionTarget{CommentID: id}
		reactions, err := store.ListReactions(target)
		if err != nil {
			return 0, err
		}
		for _, r := range reactions {
			sum += r.Warmth
		}
	default:
		return 0, fmt.Errorf("recompute: unsupported scope %q", scope)
	}

	next := models.WarmthScore{
		Scope:     scope,
		ID:        id,
		Score:     Clamp(sum),
		UpdatedTS: time.Now().UTC().UnixNano(),
	}
	if err := store.SaveWarmth(next); err != nil {
		return 0, err
	}
	return next.Score, nil
}

// RecomputeFamily rebuilds the family-level score for a scope from its
// activity rows inside the rolling window. Always a full scan; the window
// slides so incremental maintenance would drift.
func (a *Aggregator) RecomputeFamily(scopeID string, now time.Time) (float64, error) {
	mu := a.lock(models.ScopeFamily, scopeID)
	mu.Lock()
	defer mu.Unlock()

	since := now.Add(-FamilyWindow).UnixNano()
	recs, err := store.ListActivitySince(scopeID, since)
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, r := range recs {
		sum += r.Warmth
	}
	next := models.WarmthScore{
		Scope:     models.ScopeFamily,
		ID:        scopeID,
		Score:     Clamp(sum / familyNorm),
		UpdatedTS: now.UTC().UnixNano(),
	}
	if err := store.SaveWarmth(next); err != nil {
		return 0, err
	}
	return next.Score, nil
}
