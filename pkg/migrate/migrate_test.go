package migrate

import (
	"context"
	"testing"

	"hearth/pkg/models"
	"hearth/pkg/store"
)

func openStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func TestRunRebuildsCommentCounts(t *testing.T) {
	openStore(t)
	put := func(id, postID, path string, deleted bool) {
		t.Helper()
		c := models.Comment{ID: id, PostID: postID, Path: path, Deleted: deleted}
		if err := store.SaveComment(c); err != nil {
			t.Fatalf("save comment: %v", err)
		}
	}
	put("c1", "p1", "1", false)
	put("c2", "p1", "2", false)
	put("c3", "p1", "3", true)
	put("c4", "p2", "1", true)

	// Drifted counters left behind by a crash.
	if err := store.SavePostMeta(models.PostMeta{ID: "p1", ScopeID: "fam1", CommentCount: 9}); err != nil {
		t.Fatalf("save meta: %v", err)
	}
	if err := store.SavePostMeta(models.PostMeta{ID: "p2", ScopeID: "fam1", CommentCount: 1}); err != nil {
		t.Fatalf("save meta: %v", err)
	}

	ran, err := Run(context.Background(), "v2")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !ran {
		t.Fatalf("expected migration to run")
	}

	m1, err := store.GetPostMeta("p1")
	if err != nil {
		t.Fatalf("meta p1: %v", err)
	}
	if m1.CommentCount != 2 {
		t.Fatalf("p1 count: expected 2 live comments, got %d", m1.CommentCount)
	}
	m2, err := store.GetPostMeta("p2")
	if err != nil {
		t.Fatalf("meta p2: %v", err)
	}
	if m2.CommentCount != 0 {
		t.Fatalf("p2 count: expected 0 after tombstones, got %d", m2.CommentCount)
	}

	// Same version again is a no-op.
	ran, err = Run(context.Background(), "v2")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if ran {
		t.Fatalf("repeat run for the same version should be a no-op")
	}
}
