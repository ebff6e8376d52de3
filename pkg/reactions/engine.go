// Package reactions implements the reaction engine: validated, idempotent,
// replace-on-repeat reactions with warmth aggregation and best-effort
// realtime fanout.
package reactions

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"hearth/pkg/directory"
	"hearth/pkg/fault"
	"hearth/pkg/logger"
	"hearth/pkg/models"
	"hearth/pkg/realtime"
	"hearth/pkg/store"
	"hearth/pkg/validation"
	"hearth/pkg/warmth"

	"github.com/google/uuid"
)

// DefaultIdemWindow bounds how long a client key guards against replays.
const DefaultIdemWindow = 24 * time.Hour

// MaxNoteLen bounds the optional free-text note.
const MaxNoteLen = 280

// Publisher is the slice of the broadcast hub the engine needs. Publish is
// best-effort: failures never roll back persistence.
type Publisher interface {
	Publish(scopeID string, ev models.Event, excludeUserID string, topic models.Topic)
}

// Engine validates and persists reactions and keeps warmth aggregates
// consistent with them.
type Engine struct {
	agg    *warmth.Aggregator
	hub    Publisher
	posts  directory.Posts
	users  directory.Users
	access directory.AccessChecker

	idemWindow time.Duration
	stripes    [64]sync.Mutex
}

// targetLock returns the stripe serializing writes on one reaction target.
// Replay detection and replace-on-repeat read the prior row before writing,
// so concurrent writers on a target must not interleave.
func (e *Engine) targetLock(targetKey string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(targetKey))
	return &e.stripes[h.Sum32()%uint32(len(e.stripes))]
}

// New builds a reaction engine. hub may be nil (no fanout).
func New(agg *warmth.Aggregator, hub Publisher, posts directory.Posts, users directory.Users, access directory.AccessChecker) *Engine {
	return &Engine{
		agg:        agg,
		hub:        hub,
		posts:      posts,
		users:      users,
		access:     access,
		idemWindow: DefaultIdemWindow,
	}
}

// AddInput carries one addReaction call. ID is optional; the optimistic
// mutation path pre-assigns it so the accepted id matches the stored one.
type AddInput struct {
	ID        string                `json:"id,omitempty"`
	UserID    string                `json:"user_id"`
	Target    models.ReactionTarget `json:"target"`
	Kind      models.ReactionKind   `json:"kind"`
	Intensity int                   `json:"intensity"`
	Note      string                `json:"note,omitempty"`
	Milestone bool                  `json:"milestone,omitempty"`
	ClientKey string                `json:"client_key,omitempty"`
}

// AddReaction validates and persists a reaction, returning the stored row
// and the net warmth delta applied to the target's aggregate. A repeat call
// for the same (user, target) replaces the prior reaction; a replay of the
// same client key is a no-op returning the original row with a zero delta.
func (e *Engine) AddReaction(ctx context.Context, in AddInput) (models.Reaction, float64, error) {
	if err := ctx.Err(); err != nil {
		return models.Reaction{}, 0, err
	}
	if !in.Target.Valid() {
		return models.Reaction{}, 0, fmt.Errorf("%w: exactly one of post_id/comment_id must be set", fault.ErrInvalidTarget)
	}
	if !models.KnownReactionKind(in.Kind) {
		return models.Reaction{}, 0, fmt.Errorf("%w: %q", fault.ErrUnknownReactionKind, in.Kind)
	}
	// Out-of-range intensity clamps to medium rather than rejecting; the
	// optimistic client path sends before the user settles.
	if in.Intensity < 1 || in.Intensity > 3 {
		in.Intensity = 2
	}
	in.Note = strings.TrimSpace(in.Note)
	if len(in.Note) > MaxNoteLen {
		// Cut on a rune boundary so a clipped note stays valid UTF-8.
		cut := MaxNoteLen
		for cut > 0 && !utf8.RuneStart(in.Note[cut]) {
			cut--
		}
		in.Note = in.Note[:cut]
	}

	post, err := e.resolvePost(in.Target)
	if err != nil {
		return models.Reaction{}, 0, err
	}
	if !e.access.UserCanAccessPost(in.UserID, post.ID) {
		return models.Reaction{}, 0, fmt.Errorf("%w: user %s on post %s", fault.ErrForbidden, in.UserID, post.ID)
	}

	targetKey := in.Target.Key()
	mu := e.targetLock(targetKey)
	mu.Lock()
	defer mu.Unlock()

	now := time.Now().UTC()

	// Replay with a previously seen client key returns the original result
	// without re-applying the aggregate delta.
	if in.ClientKey != "" {
		if rec, err := store.GetIdempotency(targetKey, in.UserID, in.ClientKey); err == nil && rec.ExpiresTS > now.UnixNano() {
			if prior, err := store.GetReaction(in.Target, in.UserID); err == nil && prior.ID == rec.ResultID {
				logger.Debug("reaction_replayed", "target", targetKey, "user", in.UserID, "key", in.ClientKey)
				return prior, 0, nil
			}
		}
	}

	var oldWarmth float64
	replaced := false
	if prior, err := store.GetReaction(in.Target, in.UserID); err == nil {
		oldWarmth = prior.Warmth
		replaced = true
	} else if !store.IsNotFound(err) {
		return models.Reaction{}, 0, err
	}

	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	r := models.Reaction{
		ID:        id,
		UserID:    in.UserID,
		Target:    in.Target,
		Kind:      in.Kind,
		Intensity: in.Intensity,
		Note:      in.Note,
		Milestone: in.Milestone,
		ClientKey: in.ClientKey,
		Warmth:    warmth.Contribution(in.Kind, in.Intensity, in.Milestone),
		CreatedTS: now.UnixNano(),
	}
	if err := validation.ValidateReaction(r); err != nil {
		return models.Reaction{}, 0, fmt.Errorf("%w: %v", fault.ErrInvalidContent, err)
	}
	if err := store.SaveReaction(r); err != nil {
		return models.Reaction{}, 0, err
	}

	// Old contribution out, new contribution in: one atomic aggregate step
	// with respect to other writers on this id.
	delta := r.Warmth - oldWarmth
	scope, id := aggregateFor(in.Target)
	newScore, err := e.agg.ApplyDelta(scope, id, delta)
	if err != nil {
		return models.Reaction{}, 0, err
	}

	if in.ClientKey != "" {
		rec := models.IdempotencyRecord{
			UserID:    in.UserID,
			TargetKey: targetKey,
			ClientKey: in.ClientKey,
			ResultID:  r.ID,
			CreatedTS: now.UnixNano(),
			ExpiresTS: now.Add(e.idemWindow).UnixNano(),
		}
		if err := store.SaveIdempotency(rec); err != nil {
			logger.Warn("idempotency_save_failed", "target", targetKey, "user", in.UserID, "error", err)
		}
	}

	if err := store.AppendActivity(models.ActivityRecord{
		ScopeID: post.ScopeID,
		UserID:  in.UserID,
		Kind:    "reaction",
		Warmth:  delta,
		TS:      now.UnixNano(),
	}); err != nil {
		logger.Warn("activity_append_failed", "scope", post.ScopeID, "error", err)
	}

	e.publishReaction(r, post, replaced, newScore, scope, id)
	logger.Info("reaction_added", "target", targetKey, "user", in.UserID, "kind", r.Kind, "replaced", replaced)
	return r, delta, nil
}

// RemoveReaction deletes the user's reaction on target if present, applies
// the inverse aggregate delta and emits the removal event. It returns false,
// not an error, when nothing existed.
func (e *Engine) RemoveReaction(ctx context.Context, userID string, target models.ReactionTarget) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !target.Valid() {
		return false, fmt.Errorf("%w: exactly one of post_id/comment_id must be set", fault.ErrInvalidTarget)
	}
	mu := e.targetLock(target.Key())
	mu.Lock()
	defer mu.Unlock()

	prior, err := store.GetReaction(target, userID)
	if err != nil {
		if store.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	post, err := e.resolvePost(target)
	if err != nil {
		return false, err
	}
	if err := store.DeleteReaction(target, userID); err != nil {
		return false, err
	}
	scope, id := aggregateFor(target)
	newScore, err := e.agg.ApplyDelta(scope, id, -prior.Warmth)
	if err != nil {
		return false, err
	}
	if err := store.AppendActivity(models.ActivityRecord{
		ScopeID: post.ScopeID,
		UserID:  userID,
		Kind:    "reaction",
		Warmth:  -prior.Warmth,
		TS:      time.Now().UTC().UnixNano(),
	}); err != nil {
		logger.Warn("activity_append_failed", "scope", post.ScopeID, "error", err)
	}

	if e.hub != nil {
		user, _ := e.users.ResolveUser(userID)
		ev := realtime.NewEvent(models.EventReactionRemoved, post.ScopeID, userID, struct {
			User   directory.UserRef     `json:"user"`
			Target models.ReactionTarget `json:"target"`
			Kind   models.ReactionKind   `json:"kind"`
		}{User: user, Target: target, Kind: prior.Kind})
		e.hub.Publish(post.ScopeID, ev, userID, models.TopicReactions)
		e.publishWarmth(post.ScopeID, scope, id, newScore)
	}
	logger.Info("reaction_removed", "target", target.Key(), "user", userID)
	return true, nil
}

// Summary builds the reaction read model for a target: counts by kind and
// intensity, aggregate warmth and the requesting user's own reaction.
func (e *Engine) Summary(ctx context.Context, target models.ReactionTarget, requesterID string) (models.ReactionSummary, error) {
	if err := ctx.Err(); err != nil {
		return models.ReactionSummary{}, err
	}
	if !target.Valid() {
		return models.ReactionSummary{}, fmt.Errorf("%w: exactly one of post_id/comment_id must be set", fault.ErrInvalidTarget)
	}
	rows, err := store.ListReactions(target)
	if err != nil {
		return models.ReactionSummary{}, err
	}
	sum := models.ReactionSummary{
		Target:      target,
		ByKind:      map[models.ReactionKind]int{},
		ByIntensity: map[int]int{},
	}
	for i := range rows {
		r := rows[i]
		sum.Total++
		sum.ByKind[r.Kind]++
		sum.ByIntensity[r.Intensity]++
		if r.UserID == requesterID {
			own := r
			sum.Own = &own
		}
	}
	scope, id := aggregateFor(target)
	if w, err := store.GetWarmth(scope, id); err == nil {
		sum.Warmth = w.Score
	}
	return sum, nil
}

// resolvePost maps a target to its post reference (directly, or through the
// target comment's post).
func (e *Engine) resolvePost(target models.ReactionTarget) (directory.PostRef, error) {
	postID := target.PostID
	if target.CommentID != "" {
		c, err := store.GetComment(target.CommentID)
		if err != nil {
			if store.IsNotFound(err) {
				return directory.PostRef{}, fmt.Errorf("%w: comment %s", fault.ErrNotFound, target.CommentID)
			}
			return directory.PostRef{}, err
		}
		postID = c.PostID
	}
	post, ok := e.posts.GetPost(postID)
	if !ok {
		return directory.PostRef{}, fmt.Errorf("%w: post %s", fault.ErrNotFound, postID)
	}
	return post, nil
}

func aggregateFor(target models.ReactionTarget) (models.WarmthScope, string) {
	if target.PostID != "" {
		return models.ScopePost, target.PostID
	}
	return models.ScopeComment, target.CommentID
}

func (e *Engine) publishReaction(r models.Reaction, post directory.PostRef, replaced bool, newScore float64, scope models.WarmthScope, id string) {
	if e.hub == nil {
		return
	}
	user, _ := e.users.ResolveUser(r.UserID)
	typ := models.EventReactionAdded
	if replaced {
		typ = models.EventReactionUpdated
	}
	ev := realtime.NewEvent(typ, post.ScopeID, r.UserID, struct {
		User     directory.UserRef `json:"user"`
		Reaction models.Reaction   `json:"reaction"`
	}{User: user, Reaction: r})
	e.hub.Publish(post.ScopeID, ev, r.UserID, models.TopicReactions)
	e.publishWarmth(post.ScopeID, scope, id, newScore)

	if r.Milestone && !replaced {
		cel := realtime.NewEvent(models.EventMilestone, post.ScopeID, r.UserID, struct {
			User   directory.UserRef     `json:"user"`
			Target models.ReactionTarget `json:"target"`
			Kind   models.ReactionKind   `json:"kind"`
		}{User: user, Target: r.Target, Kind: r.Kind})
		e.hub.Publish(post.ScopeID, cel, "", models.TopicCelebrations)
	}
}

func (e *Engine) publishWarmth(scopeID string, scope models.WarmthScope, id string, score float64) {
	ev := realtime.NewEvent(models.EventWarmthUpdated, scopeID, "", struct {
		Scope models.WarmthScope `json:"scope"`
		ID    string             `json:"id"`
		Score float64            `json:"score"`
	}{Scope: scope, ID: id, Score: score})
	e.hub.Publish(scopeID, ev, "", models.TopicWarmth)
}
