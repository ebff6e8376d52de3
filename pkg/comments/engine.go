// Package comments implements the comment thread engine: hierarchical
// comment placement (depth, path, root pointer), counter maintenance, edit
// history and tombstone deletion, plus the typing indicator fanout.
package comments

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"time"

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

// MaxContentLen bounds comment content after trimming.
const MaxContentLen = 2000

// DefaultIdemWindow bounds how long a client key guards against replays.
const DefaultIdemWindow = 24 * time.Hour

// Publisher is the slice of the broadcast hub the engine needs.
type Publisher interface {
	Publish(scopeID string, ev models.Event, excludeUserID string, topic models.Topic)
}

// Engine creates, edits and deletes comments and keeps thread counters and
// warmth aggregates consistent with them.
type Engine struct {
	agg    *warmth.Aggregator
	hub    Publisher
	posts  directory.Posts
	users  directory.Users
	access directory.AccessChecker

	idemWindow time.Duration
	stripes    [64]sync.Mutex
}

// postLock returns the stripe serializing all comment writes on a post.
// Placement, counters and replay detection are read-modify-write over
// several rows, so every mutation on a post goes through its stripe.
func (e *Engine) postLock(postID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(postID))
	return &e.stripes[h.Sum32()%uint32(len(e.stripes))]
}

// New builds a comment engine. hub may be nil (no fanout).
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

// AddInput carries one addComment call. ID is optional; the optimistic
// mutation path pre-assigns it so the accepted id matches the stored one.
type AddInput struct {
	ID        string   `json:"id,omitempty"`
	PostID    string   `json:"post_id"`
	ParentID  string   `json:"parent_id,omitempty"`
	AuthorID  string   `json:"author_id"`
	Content   string   `json:"content"`
	Mentions  []string `json:"mentions,omitempty"`
	ClientKey string   `json:"client_key,omitempty"`
}

// AddComment validates and persists a comment, assigns its thread position
// and updates the counters along its ancestor chain. Replies deeper than the
// maximum depth are rejected with ThreadTooDeep.
func (e *Engine) AddComment(ctx context.Context, in AddInput) (models.Comment, error) {
	if err := ctx.Err(); err != nil {
		return models.Comment{}, err
	}
	content := strings.TrimSpace(in.Content)
	if content == "" || len(content) > MaxContentLen {
		return models.Comment{}, fmt.Errorf("%w: content empty or over %d bytes", fault.ErrInvalidContent, MaxContentLen)
	}
	post, ok := e.posts.GetPost(in.PostID)
	if !ok {
		return models.Comment{}, fmt.Errorf("%w: post %s", fault.ErrNotFound, in.PostID)
	}
	if !e.access.UserCanAccessPost(in.AuthorID, post.ID) {
		return models.Comment{}, fmt.Errorf("%w: user %s on post %s", fault.ErrForbidden, in.AuthorID, post.ID)
	}

	mu := e.postLock(in.PostID)
	mu.Lock()
	defer mu.Unlock()

	idemTarget := "comment-create:post:" + in.PostID
	now := time.Now().UTC()
	if in.ClientKey != "" {
		if rec, err := store.GetIdempotency(idemTarget, in.AuthorID, in.ClientKey); err == nil && rec.ExpiresTS > now.UnixNano() {
			if prior, err := store.GetComment(rec.ResultID); err == nil {
				logger.Debug("comment_replayed", "post", in.PostID, "author", in.AuthorID, "key", in.ClientKey)
				return prior, nil
			}
		}
	}

	var parent models.Comment
	depth := 0
	parentPath := ""
	rootID := ""
	if in.ParentID != "" {
		var err error
		parent, err = store.GetComment(in.ParentID)
		if err != nil {
			if store.IsNotFound(err) {
				return models.Comment{}, fmt.Errorf("%w: parent comment %s", fault.ErrNotFound, in.ParentID)
			}
			return models.Comment{}, err
		}
		if parent.PostID != in.PostID {
			return models.Comment{}, fmt.Errorf("%w: parent %s belongs to another post", fault.ErrInvalidTarget, in.ParentID)
		}
		if parent.Depth >= models.MaxThreadDepth {
			return models.Comment{}, fmt.Errorf("%w: depth %d exceeds max %d", fault.ErrThreadTooDeep, parent.Depth+1, models.MaxThreadDepth)
		}
		depth = parent.Depth + 1
		parentPath = parent.Path
		rootID = parent.RootID
		if rootID == "" {
			rootID = parent.ID
		}
	}

	// Sibling ordinal by creation order; tombstones keep their slot so
	// ordinals are never reused.
	siblings, err := store.CountSiblings(in.PostID, parentPath)
	if err != nil {
		return models.Comment{}, err
	}
	path := strconv.Itoa(siblings + 1)
	if parentPath != "" {
		path = parentPath + "." + path
	}

	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	c := models.Comment{
		ID:        id,
		PostID:    in.PostID,
		ParentID:  in.ParentID,
		AuthorID:  in.AuthorID,
		Content:   content,
		Depth:     depth,
		Path:      path,
		RootID:    rootID,
		Mentions:  in.Mentions,
		Warmth:    warmth.CommentContribution,
		CreatedTS: now.UnixNano(),
	}
	if err := validation.ValidateComment(c); err != nil {
		return models.Comment{}, fmt.Errorf("%w: %v", fault.ErrInvalidContent, err)
	}
	if err := store.SaveComment(c); err != nil {
		return models.Comment{}, err
	}

	if err := e.applyCounters(c, post, +1); err != nil {
		return models.Comment{}, err
	}

	newScore, err := e.agg.ApplyDelta(models.ScopePost, in.PostID, c.Warmth)
	if err != nil {
		return models.Comment{}, err
	}

	if in.ClientKey != "" {
		rec := models.IdempotencyRecord{
			UserID:    in.AuthorID,
			TargetKey: idemTarget,
			ClientKey: in.ClientKey,
			ResultID:  c.ID,
			CreatedTS: now.UnixNano(),
			ExpiresTS: now.Add(e.idemWindow).UnixNano(),
		}
		if err := store.SaveIdempotency(rec); err != nil {
			logger.Warn("idempotency_save_failed", "target", idemTarget, "author", in.AuthorID, "error", err)
		}
	}

	if err := store.AppendActivity(models.ActivityRecord{
		ScopeID: post.ScopeID,
		UserID:  in.AuthorID,
		Kind:    "comment",
		Warmth:  c.Warmth,
		TS:      now.UnixNano(),
	}); err != nil {
		logger.Warn("activity_append_failed", "scope", post.ScopeID, "error", err)
	}

	e.publishComment(models.EventCommentAdded, c, post, newScore)
	logger.Info("comment_added", "post", in.PostID, "comment", c.ID, "depth", depth, "path", path)
	return c, nil
}

// EditComment replaces a comment's content. Only the author may edit; the
// prior content is appended to the bounded edit history.
func (e *Engine) EditComment(ctx context.Context, commentID, editorID, newContent string) (models.Comment, error) {
	if err := ctx.Err(); err != nil {
		return models.Comment{}, err
	}
	content := strings.TrimSpace(newContent)
	if content == "" || len(content) > MaxContentLen {
		return models.Comment{}, fmt.Errorf("%w: content empty or over %d bytes", fault.ErrInvalidContent, MaxContentLen)
	}
	c, err := store.GetComment(commentID)
	if err != nil {
		if store.IsNotFound(err) {
			return models.Comment{}, fmt.Errorf("%w: comment %s", fault.ErrNotFound, commentID)
		}
		return models.Comment{}, err
	}

	mu := e.postLock(c.PostID)
	mu.Lock()
	defer mu.Unlock()
	// Re-read under the lock so concurrent edits stack in the history
	// instead of overwriting each other.
	if c, err = store.GetComment(commentID); err != nil {
		return models.Comment{}, err
	}
	if c.Deleted {
		return models.Comment{}, fmt.Errorf("%w: comment %s", fault.ErrNotFound, commentID)
	}
	if c.AuthorID != editorID {
		return models.Comment{}, fmt.Errorf("%w: only the author may edit", fault.ErrForbidden)
	}

	now := time.Now().UTC().UnixNano()
	c.EditHistory = append(c.EditHistory, models.CommentEdit{Content: c.Content, EditedTS: now})
	if len(c.EditHistory) > models.MaxEditHistory {
		c.EditHistory = c.EditHistory[len(c.EditHistory)-models.MaxEditHistory:]
	}
	c.Content = content
	c.Edited = true
	if err := store.SaveComment(c); err != nil {
		return models.Comment{}, err
	}

	post, ok := e.posts.GetPost(c.PostID)
	if ok {
		e.publishComment(models.EventCommentUpdated, c, post, -1)
	}
	logger.Info("comment_edited", "comment", c.ID, "editor", editorID)
	return c, nil
}

// DeleteComment tombstones a comment: the row stays (so descendants keep a
// valid chain) but content is cleared and the counters it incremented are
// decremented. Author or scope moderator only. Returns false when nothing
// was deleted.
func (e *Engine) DeleteComment(ctx context.Context, commentID, requesterID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c, err := store.GetComment(commentID)
	if err != nil {
		if store.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	mu := e.postLock(c.PostID)
	mu.Lock()
	defer mu.Unlock()
	if c, err = store.GetComment(commentID); err != nil {
		return false, err
	}
	if c.Deleted {
		return false, nil
	}
	post, ok := e.posts.GetPost(c.PostID)
	if !ok {
		return false, fmt.Errorf("%w: post %s", fault.ErrNotFound, c.PostID)
	}
	if c.AuthorID != requesterID && !e.access.UserIsModerator(requesterID, post.ScopeID) {
		return false, fmt.Errorf("%w: author or moderator required", fault.ErrForbidden)
	}

	removedWarmth := c.Warmth
	c.Deleted = true
	c.DeletedTS = time.Now().UTC().UnixNano()
	c.Content = ""
	c.EditHistory = nil
	c.Warmth = 0
	if err := store.SaveComment(c); err != nil {
		return false, err
	}

	if err := e.applyCounters(c, post, -1); err != nil {
		return false, err
	}
	newScore, err := e.agg.ApplyDelta(models.ScopePost, c.PostID, -removedWarmth)
	if err != nil {
		return false, err
	}

	e.publishComment(models.EventCommentDeleted, c, post, newScore)
	logger.Info("comment_deleted", "comment", c.ID, "requester", requesterID)
	return true, nil
}

// SetTyping emits a typing indicator event for the scope owning the post.
// It never touches persisted state.
func (e *Engine) SetTyping(ctx context.Context, userID, postID, parentID string, typing bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	post, ok := e.posts.GetPost(postID)
	if !ok {
		return fmt.Errorf("%w: post %s", fault.ErrNotFound, postID)
	}
	if !e.access.UserCanAccessPost(userID, postID) {
		return fmt.Errorf("%w: user %s on post %s", fault.ErrForbidden, userID, postID)
	}
	if e.hub == nil {
		return nil
	}
	user, _ := e.users.ResolveUser(userID)
	if user.ID == "" {
		user.ID = userID
	}
	e.hub.Publish(post.ScopeID, realtime.TypingEvent(post.ScopeID, user, postID, parentID, typing), userID, models.TopicTyping)
	return nil
}

// applyCounters adjusts the parent's reply count, the root's descendant
// count and the post's comment count by sign (+1 on create, -1 on delete).
func (e *Engine) applyCounters(c models.Comment, post directory.PostRef, sign int) error {
	if c.ParentID != "" {
		parent, err := store.GetComment(c.ParentID)
		if err != nil {
			return fmt.Errorf("counter update: parent %s: %w", c.ParentID, err)
		}
		parent.ReplyCount += sign
		if parent.ReplyCount < 0 {
			parent.ReplyCount = 0
		}
		if c.RootID == parent.ID {
			// Parent is the root: both counters live on one row.
			parent.DescendantCount += sign
			if parent.DescendantCount < 0 {
				parent.DescendantCount = 0
			}
			if err := store.SaveComment(parent); err != nil {
				return err
			}
		} else {
			if err := store.SaveComment(parent); err != nil {
				return err
			}
			root, err := store.GetComment(c.RootID)
			if err != nil {
				return fmt.Errorf("counter update: root %s: %w", c.RootID, err)
			}
			root.DescendantCount += sign
			if root.DescendantCount < 0 {
				root.DescendantCount = 0
			}
			if err := store.SaveComment(root); err != nil {
				return err
			}
		}
	}

	meta, err := store.GetPostMeta(c.PostID)
	if err != nil {
		if !store.IsNotFound(err) {
			return err
		}
		meta = models.PostMeta{ID: c.PostID, ScopeID: post.ScopeID}
	}
	meta.CommentCount += sign
	if meta.CommentCount < 0 {
		meta.CommentCount = 0
	}
	meta.UpdatedTS = time.Now().UTC().UnixNano()
	return store.SavePostMeta(meta)
}

func (e *Engine) publishComment(typ models.EventType, c models.Comment, post directory.PostRef, warmthScore float64) {
	if e.hub == nil {
		return
	}
	user, _ := e.users.ResolveUser(c.AuthorID)
	ev := realtime.NewEvent(typ, post.ScopeID, c.AuthorID, struct {
		User    directory.UserRef `json:"user"`
		Comment models.Comment    `json:"comment"`
	}{User: user, Comment: c})
	e.hub.Publish(post.ScopeID, ev, c.AuthorID, models.TopicComments)

	if warmthScore >= 0 {
		wev := realtime.NewEvent(models.EventWarmthUpdated, post.ScopeID, "", struct {
			Scope models.WarmthScope `json:"scope"`
			ID    string             `json:"id"`
			Score float64            `json:"score"`
		}{Scope: models.ScopePost, ID: c.PostID, Score: warmthScore})
		e.hub.Publish(post.ScopeID, wev, "", models.TopicWarmth)
	}
}
