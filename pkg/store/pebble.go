package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"hearth/pkg/logger"
	"hearth/pkg/models"

	"github.com/cockroachdb/pebble"
)

var db *pebble.DB
var dbPath string

// activitySeq breaks key collisions when multiple activity rows share the
// same nanosecond timestamp.
var activitySeq uint64

// Open opens (or creates) a Pebble database at the given path and keeps a
// package handle for use by the engines.
func Open(path string) error {
	var err error
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

// IsNotFound reports whether err is the store's missing-key error.
func IsNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

// EngineMetrics is the trimmed view of pebble internals the pressure
// monitor watches.
type EngineMetrics struct {
	WALBytes      uint64
	MemtableBytes uint64
	L0Files       int64
}

// GetEngineMetrics snapshots the underlying engine metrics. Zero values
// when the store is not open.
func GetEngineMetrics() EngineMetrics {
	if db == nil {
		return EngineMetrics{}
	}
	m := db.Metrics()
	return EngineMetrics{
		WALBytes:      m.WAL.Size,
		MemtableBytes: m.MemTable.Size,
		L0Files:       m.Levels[0].NumFiles,
	}
}

func notOpened() error {
	return fmt.Errorf("pebble not opened; call store.Open first")
}

func setJSON(key string, v any, sync bool) error {
	if db == nil {
		return notOpened()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	opt := pebble.NoSync
	if sync {
		opt = pebble.Sync
	}
	if err := db.Set([]byte(key), b, opt); err != nil {
		logger.Error("pebble_set_failed", "key", key, "error", err)
		return err
	}
	recordWrite()
	return nil
}

func getJSON(key string, v any) error {
	if db == nil {
		return notOpened()
	}
	val, closer, err := db.Get([]byte(key))
	if err != nil {
		return err
	}
	defer closer.Close()
	return json.Unmarshal(val, v)
}

// --- Reactions ---

// SaveReaction stores one user's reaction row under its target.
func SaveReaction(r models.Reaction) error {
	return setJSON(ReactionKey(r.Target, r.UserID), r, true)
}

// GetReaction returns the stored reaction for (target, user), or
// pebble.ErrNotFound.
func GetReaction(t models.ReactionTarget, userID string) (models.Reaction, error) {
	var r models.Reaction
	err := getJSON(ReactionKey(t, userID), &r)
	return r, err
}

// DeleteReaction removes the reaction row for (target, user). Deleting a
// missing row is not an error.
func DeleteReaction(t models.ReactionTarget, userID string) error {
	if db == nil {
		return notOpened()
	}
	if err := db.Delete([]byte(ReactionKey(t, userID)), pebble.Sync); err != nil {
		logger.Error("delete_reaction_failed", "target", t.Key(), "user", userID, "error", err)
		return err
	}
	recordWrite()
	return nil
}

// ListReactions returns every live reaction on a target in user-key order.
func ListReactions(t models.ReactionTarget) ([]models.Reaction, error) {
	rows, err := scanPrefix(ReactionPrefix(t))
	if err != nil {
		return nil, err
	}
	out := make([]models.Reaction, 0, len(rows))
	for _, v := range rows {
		var r models.Reaction
		if err := json.Unmarshal(v, &r); err != nil {
			logger.Warn("reaction_row_invalid", "target", t.Key(), "error", err)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// --- Idempotency ---

// SaveIdempotency records the outcome of a first write for later retries.
func SaveIdempotency(rec models.IdempotencyRecord) error {
	return setJSON(IdemKey(rec.TargetKey, rec.UserID, rec.ClientKey), rec, true)
}

// GetIdempotency returns a previously saved record, or pebble.ErrNotFound.
func GetIdempotency(targetKey, userID, clientKey string) (models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	err := getJSON(IdemKey(targetKey, userID, clientKey), &rec)
	return rec, err
}

// SweepIdempotency deletes records whose retry window expired before now
// (unix nanos) and returns how many were removed.
func SweepIdempotency(now int64) (int, error) {
	if db == nil {
		return 0, notOpened()
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	prefix := []byte(IdemPrefix)
	var expired [][]byte
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var rec models.IdempotencyRecord
		if json.Unmarshal(iter.Value(), &rec) != nil {
			continue
		}
		if rec.ExpiresTS > 0 && rec.ExpiresTS < now {
			expired = append(expired, append([]byte(nil), iter.Key()...))
		}
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	for _, k := range expired {
		if err := db.Delete(k, pebble.NoSync); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

// --- Comments ---

// SaveComment writes the comment row under both its id key and its
// post/path index key so thread reads are one prefix scan.
func SaveComment(c models.Comment) error {
	if db == nil {
		return notOpened()
	}
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal comment %s: %w", c.ID, err)
	}
	wb := new(pebble.Batch)
	wb.Set([]byte(CommentKey(c.ID)), b, nil)
	wb.Set([]byte(CommentPathKey(c.PostID, c.Path)), b, nil)
	if err := db.Apply(wb, pebble.Sync); err != nil {
		logger.Error("save_comment_failed", "comment", c.ID, "error", err)
		return err
	}
	recordWrite()
	return nil
}

// GetComment returns a comment row by id, or pebble.ErrNotFound.
func GetComment(commentID string) (models.Comment, error) {
	var c models.Comment
	err := getJSON(CommentKey(commentID), &c)
	return c, err
}

// ListCommentsByPost returns every comment of a post ordered by thread path,
// i.e. depth-first rendering order.
func ListCommentsByPost(postID string) ([]models.Comment, error) {
	rows, err := scanPrefix(CommentPathPrefix(postID))
	if err != nil {
		return nil, err
	}
	out := make([]models.Comment, 0, len(rows))
	for _, v := range rows {
		var c models.Comment
		if err := json.Unmarshal(v, &c); err != nil {
			logger.Warn("comment_row_invalid", "post", postID, "error", err)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// CountSiblings returns how many comments already exist directly under
// parentPath ("" for roots) in a post.
func CountSiblings(postID, parentPath string) (int, error) {
	comments, err := ListCommentsByPost(postID)
	if err != nil {
		return 0, err
	}
	depth := 0
	if parentPath != "" {
		depth = len(bytes.Split([]byte(parentPath), []byte(".")))
	}
	n := 0
	for _, c := range comments {
		if c.Depth != depth {
			continue
		}
		if parentPath == "" || hasPathPrefix(c.Path, parentPath) {
			n++
		}
	}
	return n, nil
}

func hasPathPrefix(path, parent string) bool {
	return len(path) > len(parent) && path[:len(parent)] == parent && path[len(parent)] == '.'
}

// --- Post meta ---

// SavePostMeta stores a post's engagement counters.
func SavePostMeta(m models.PostMeta) error {
	return setJSON(PostMetaKey(m.ID), m, true)
}

// GetPostMeta returns a post's counters, or pebble.ErrNotFound.
func GetPostMeta(postID string) (models.PostMeta, error) {
	var m models.PostMeta
	err := getJSON(PostMetaKey(postID), &m)
	return m, err
}

// --- Warmth ---

// SaveWarmth stores an aggregate score row.
func SaveWarmth(w models.WarmthScore) error {
	return setJSON(WarmthKey(w.Scope, w.ID), w, false)
}

// GetWarmth returns the stored aggregate, or pebble.ErrNotFound.
func GetWarmth(scope models.WarmthScope, id string) (models.WarmthScore, error) {
	var w models.WarmthScore
	err := getJSON(WarmthKey(scope, id), &w)
	return w, err
}

// --- Activity ---

// AppendActivity records one interaction in a family scope for the
// rolling-window recompute.
func AppendActivity(rec models.ActivityRecord) error {
	s := atomic.AddUint64(&activitySeq, 1)
	return setJSON(ActivityKey(rec.ScopeID, rec.TS, s), rec, false)
}

// ListActivitySince returns a scope's activity rows with TS >= since,
// oldest first.
func ListActivitySince(scopeID string, since int64) ([]models.ActivityRecord, error) {
	rows, err := scanPrefix(ActivityPrefix(scopeID))
	if err != nil {
		return nil, err
	}
	out := make([]models.ActivityRecord, 0, len(rows))
	for _, v := range rows {
		var rec models.ActivityRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			continue
		}
		if rec.TS >= since {
			out = append(out, rec)
		}
	}
	return out, nil
}

// PruneActivityBefore deletes a scope's activity rows older than cutoff and
// returns how many were removed.
func PruneActivityBefore(scopeID string, cutoff int64) (int, error) {
	if db == nil {
		return 0, notOpened()
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	prefix := []byte(ActivityPrefix(scopeID))
	var old [][]byte
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var rec models.ActivityRecord
		if json.Unmarshal(iter.Value(), &rec) != nil {
			continue
		}
		if rec.TS < cutoff {
			old = append(old, append([]byte(nil), iter.Key()...))
		}
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	for _, k := range old {
		if err := db.Delete(k, pebble.NoSync); err != nil {
			return 0, err
		}
	}
	return len(old), nil
}

// --- Generic helpers ---

func scanPrefix(prefix string) ([][]byte, error) {
	if db == nil {
		return nil, notOpened()
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	pfx := []byte(prefix)
	var out [][]byte
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		out = append(out, append([]byte(nil), iter.Value()...))
	}
	return out, iter.Error()
}

// ListKeys lists all keys for a prefix; all keys if prefix is empty. Used by
// the inspect tool and tests.
func ListKeys(prefix string) ([]string, error) {
	if db == nil {
		return nil, notOpened()
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	pfx := []byte(prefix)
	var out []string
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if prefix != "" && !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		out = append(out, string(append([]byte(nil), iter.Key()...)))
	}
	return out, iter.Error()
}

// GetKey returns the raw value stored at key. Used by the inspect tool.
func GetKey(key string) (string, error) {
	if db == nil {
		return "", notOpened()
	}
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		return "", err
	}
	defer closer.Close()
	out := string(append([]byte(nil), v...))
	return out, nil
}

// SaveKey writes a raw value at key, synced. Used by migrations for system
// markers.
func SaveKey(key string, val []byte) error {
	if db == nil {
		return notOpened()
	}
	if err := db.Set([]byte(key), val, pebble.Sync); err != nil {
		return err
	}
	recordWrite()
	return nil
}

// DeleteKey removes a raw key.
func DeleteKey(key string) error {
	if db == nil {
		return notOpened()
	}
	return db.Delete([]byte(key), pebble.Sync)
}

// ListAllComments scans every comment row in the store, across all posts.
// Reaction rows share the "comment:" keyspace and are skipped. Migration
// use only; normal reads go through ListCommentsByPost.
func ListAllComments() ([]models.Comment, error) {
	if db == nil {
		return nil, notOpened()
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	prefix := []byte("comment:")
	var out []models.Comment
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if bytes.Contains(iter.Key(), []byte(":react:")) {
			continue
		}
		var c models.Comment
		if json.Unmarshal(iter.Value(), &c) != nil {
			continue
		}
		out = append(out, c)
	}
	return out, iter.Error()
}
