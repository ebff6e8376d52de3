package store

import (
	"fmt"
	"testing"
	"time"

	"hearth/pkg/models"
)

func openStore(t *testing.T) {
	t.Helper()
	if err := Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = Close() })
}

func TestPadPathOrdering(t *testing.T) {
	if got := PadPath("3.1.12"); got != "0003.0001.0012" {
		t.Fatalf("PadPath(3.1.12) = %q", got)
	}
	if got := PadPath(""); got != "" {
		t.Fatalf("PadPath(\"\") = %q", got)
	}
	// Padded form must sort ordinal 2 before ordinal 10.
	if PadPath("2") >= PadPath("10") {
		t.Fatalf("padded %q should sort before %q", PadPath("2"), PadPath("10"))
	}
}

func TestReactionRoundTrip(t *testing.T) {
	openStore(t)
	target := models.ReactionTarget{PostID: "p1"}
	r := models.Reaction{
		ID:        "r1",
		UserID:    "grandma",
		Target:    target,
		Kind:      models.ReactionLove,
		Intensity: 2,
		Warmth:    0.12,
		CreatedTS: time.Now().UnixNano(),
	}
	if err := SaveReaction(r); err != nil {
		t.Fatalf("save reaction: %v", err)
	}
	got, err := GetReaction(target, "grandma")
	if err != nil {
		t.Fatalf("get reaction: %v", err)
	}
	if got.Kind != models.ReactionLove || got.Intensity != 2 {
		t.Fatalf("unexpected row: %+v", got)
	}
	if err := DeleteReaction(target, "grandma"); err != nil {
		t.Fatalf("delete reaction: %v", err)
	}
	if _, err := GetReaction(target, "grandma"); !IsNotFound(err) {
		t.Fatalf("expected not-found after delete, got %v", err)
	}
	// Deleting again still succeeds.
	if err := DeleteReaction(target, "grandma"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestListReactionsScopedToTarget(t *testing.T) {
	openStore(t)
	t1 := models.ReactionTarget{PostID: "p1"}
	t2 := models.ReactionTarget{PostID: "p10"}
	for i := 0; i < 3; i++ {
		u := fmt.Sprintf("user-%d", i)
		if err := SaveReaction(models.Reaction{ID: u, UserID: u, Target: t1, Kind: models.ReactionHappy, Intensity: 1}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := SaveReaction(models.Reaction{ID: "x", UserID: "x", Target: t2, Kind: models.ReactionHappy, Intensity: 1}); err != nil {
		t.Fatalf("save: %v", err)
	}
	rows, err := ListReactions(t1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 reactions on p1, got %d", len(rows))
	}
	for _, r := range rows {
		if r.Target.PostID != "p1" {
			t.Fatalf("leaked row from other target: %+v", r)
		}
	}
}

func TestCountSiblingsCountsTombstones(t *testing.T) {
	openStore(t)
	now := time.Now().UnixNano()
	put := func(id, path string, depth int, deleted bool) {
		t.Helper()
		c := models.Comment{ID: id, PostID: "p1", Path: path, Depth: depth, Deleted: deleted, CreatedTS: now}
		if err := SaveComment(c); err != nil {
			t.Fatalf("save comment %s: %v", id, err)
		}
	}
	put("c1", "1", 0, false)
	put("c2", "2", 0, true)
	put("c3", "1.1", 1, false)

	roots, err := CountSiblings("p1", "")
	if err != nil {
		t.Fatalf("count roots: %v", err)
	}
	if roots != 2 {
		t.Fatalf("expected 2 root siblings including tombstone, got %d", roots)
	}
	under, err := CountSiblings("p1", "1")
	if err != nil {
		t.Fatalf("count under 1: %v", err)
	}
	if under != 1 {
		t.Fatalf("expected 1 child under path 1, got %d", under)
	}
	none, err := CountSiblings("p1", "2")
	if err != nil {
		t.Fatalf("count under 2: %v", err)
	}
	if none != 0 {
		t.Fatalf("expected no children under path 2, got %d", none)
	}
}

func TestListCommentsByPostPathOrder(t *testing.T) {
	openStore(t)
	paths := []string{"2", "1", "1.1", "10", "1.2"}
	for i, p := range paths {
		c := models.Comment{ID: fmt.Sprintf("c%d", i), PostID: "p1", Path: p}
		if err := SaveComment(c); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	rows, err := ListCommentsByPost("p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"1", "1.1", "1.2", "2", "10"}
	if len(rows) != len(want) {
		t.Fatalf("expected %d comments, got %d", len(want), len(rows))
	}
	for i, c := range rows {
		if c.Path != want[i] {
			t.Fatalf("position %d: expected path %q, got %q", i, want[i], c.Path)
		}
	}
}

func TestSweepIdempotency(t *testing.T) {
	openStore(t)
	now := time.Now().UnixNano()
	expired := models.IdempotencyRecord{
		UserID: "u1", TargetKey: "post:p1", ClientKey: "old",
		ResultID: "r-old", ExpiresTS: now - 1,
	}
	live := models.IdempotencyRecord{
		UserID: "u1", TargetKey: "post:p1", ClientKey: "new",
		ResultID: "r-new", ExpiresTS: now + int64(time.Hour),
	}
	if err := SaveIdempotency(expired); err != nil {
		t.Fatalf("save expired: %v", err)
	}
	if err := SaveIdempotency(live); err != nil {
		t.Fatalf("save live: %v", err)
	}
	n, err := SweepIdempotency(now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 record swept, got %d", n)
	}
	if _, err := GetIdempotency("post:p1", "u1", "old"); !IsNotFound(err) {
		t.Fatalf("expired record should be gone, got %v", err)
	}
	got, err := GetIdempotency("post:p1", "u1", "new")
	if err != nil {
		t.Fatalf("live record missing: %v", err)
	}
	if got.ResultID != "r-new" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestActivityWindowAndPrune(t *testing.T) {
	openStore(t)
	now := time.Now().UnixNano()
	day := int64(24 * time.Hour)
	for i, age := range []int64{10 * day, 3 * day, 0} {
		rec := models.ActivityRecord{
			ScopeID: "fam1", UserID: fmt.Sprintf("u%d", i),
			Kind: "reaction", Warmth: 0.1, TS: now - age,
		}
		if err := AppendActivity(rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	recs, err := ListActivitySince("fam1", now-7*day)
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 rows inside the window, got %d", len(recs))
	}
	n, err := PruneActivityBefore("fam1", now-7*day)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row pruned, got %d", n)
	}
	all, err := ListActivitySince("fam1", 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 rows after prune, got %d", len(all))
	}
}

func TestListAllCommentsSkipsReactionRows(t *testing.T) {
	openStore(t)
	if err := SaveComment(models.Comment{ID: "c1", PostID: "p1", Path: "1"}); err != nil {
		t.Fatalf("save comment: %v", err)
	}
	if err := SaveComment(models.Comment{ID: "c2", PostID: "p2", Path: "1"}); err != nil {
		t.Fatalf("save comment: %v", err)
	}
	r := models.Reaction{ID: "r1", UserID: "u1", Target: models.ReactionTarget{CommentID: "c1"}, Kind: models.ReactionLaugh, Intensity: 1}
	if err := SaveReaction(r); err != nil {
		t.Fatalf("save reaction: %v", err)
	}
	out, err := ListAllComments()
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(out))
	}
	for _, c := range out {
		if c.ID != "c1" && c.ID != "c2" {
			t.Fatalf("unexpected row: %+v", c)
		}
	}
}

func TestWarmthRoundTrip(t *testing.T) {
	openStore(t)
	w := models.WarmthScore{Scope: models.ScopePost, ID: "p1", Score: 0.42, UpdatedTS: time.Now().UnixNano()}
	if err := SaveWarmth(w); err != nil {
		t.Fatalf("save warmth: %v", err)
	}
	got, err := GetWarmth(models.ScopePost, "p1")
	if err != nil {
		t.Fatalf("get warmth: %v", err)
	}
	if got.Score != 0.42 {
		t.Fatalf("expected score 0.42, got %v", got.Score)
	}
	if _, err := GetWarmth(models.ScopeFamily, "p1"); !IsNotFound(err) {
		t.Fatalf("expected not-found for other scope, got %v", err)
	}
}
