// Package migrate performs upgrade work between stored data versions.
package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hearth/pkg/logger"
	"hearth/pkg/store"
)

const (
	systemVersionKey    = "system:version"
	systemInProgressKey = "system:migration_in_progress"
)

// Sync performs upgrade work between versions. Edit in-place for migration
// logic.
func Sync(ctx context.Context, from, to string) error {
	logger.Info("migrate_sync_start", "from", from, "to", to)

	// Migration: rebuild PostMeta.CommentCount from the comment rows for
	// posts whose counters predate counter tracking or have drifted. This
	// is idempotent and safe to run multiple times.
	all, err := store.ListAllComments()
	if err != nil {
		logger.Error("migrate_list_comments_failed", "error", err)
		return err
	}
	counts := map[string]int{}
	for _, c := range all {
		if _, ok := counts[c.PostID]; !ok {
			counts[c.PostID] = 0
		}
		if !c.Deleted {
			counts[c.PostID]++
		}
	}
	for postID, live := range counts {
		meta, err := store.GetPostMeta(postID)
		if err != nil && !store.IsNotFound(err) {
			logger.Error("migrate_read_postmeta_failed", "post", postID, "error", err)
			continue
		}
		if meta.CommentCount == live {
			continue
		}
		meta.ID = postID
		meta.CommentCount = live
		meta.UpdatedTS = time.Now().UTC().UnixNano()
		if err := store.SavePostMeta(meta); err != nil {
			logger.Error("migrate_save_postmeta_failed", "post", postID, "error", err)
			continue
		}
		logger.Info("migrate_comment_count_rebuilt", "post", postID, "count", live)
	}

	logger.Info("migrate_sync_done", "from", from, "to", to)
	return nil
}

// Run checks for a version change and runs Sync if needed.
// Returns (invoked, error): invoked is true if Sync ran.
func Run(ctx context.Context, newVersion string) (bool, error) {
	stored := storedVersion()
	logger.Info("migrate_version_check", "stored", stored, "running", newVersion)

	if stored == newVersion {
		logger.Info("migrate_noop", "version", newVersion)
		return false, nil
	}

	marker := map[string]string{
		"from":       stored,
		"to":         newVersion,
		"started_at": time.Now().UTC().Format(time.RFC3339),
	}
	mb, _ := json.Marshal(marker)
	if err := store.SaveKey(systemInProgressKey, mb); err != nil {
		logger.Error("migrate_write_inprogress_failed", "error", err)
		return true, fmt.Errorf("failed to write in-progress marker: %w", err)
	}

	logger.Info("migrate_start_sync", "from", stored, "to", newVersion)
	if err := Sync(ctx, stored, newVersion); err != nil {
		logger.Error("migrate_sync_failed", "from", stored, "to", newVersion, "error", err)
		return true, err
	}

	if err := store.SaveKey(systemVersionKey, []byte(newVersion)); err != nil {
		logger.Error("migrate_persist_version_failed", "version", newVersion, "error", err)
		return true, fmt.Errorf("failed to persist new version: %w", err)
	}
	if err := store.DeleteKey(systemInProgressKey); err != nil {
		logger.Error("migrate_delete_inprogress_failed", "error", err)
	}

	logger.Info("migrate_version_persisted", "version", newVersion)
	return true, nil
}

func storedVersion() string {
	v, _ := store.GetKey(systemVersionKey)
	return v
}
