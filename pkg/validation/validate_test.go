package validation

import (
	"strings"
	"testing"

	"hearth/pkg/models"
)

func resetRules(t *testing.T) {
	t.Helper()
	SetRules(Rules{})
	t.Cleanup(func() { SetRules(Rules{}) })
}

func TestValidateReactionBuiltins(t *testing.T) {
	resetRules(t)
	ok := models.Reaction{
		ID: "r1", UserID: "u1",
		Target: models.ReactionTarget{PostID: "p1"},
		Kind:   models.ReactionLove, Intensity: 2,
	}
	if err := ValidateReaction(ok); err != nil {
		t.Fatalf("valid reaction rejected: %v", err)
	}

	bad := ok
	bad.Target = models.ReactionTarget{}
	if err := ValidateReaction(bad); err == nil {
		t.Fatalf("empty target accepted")
	}
	bad = ok
	bad.Target = models.ReactionTarget{PostID: "p1", CommentID: "c1"}
	if err := ValidateReaction(bad); err == nil {
		t.Fatalf("double target accepted")
	}
	bad = ok
	bad.Kind = "angry"
	if err := ValidateReaction(bad); err == nil {
		t.Fatalf("unknown kind accepted")
	}
}

func TestValidateCommentBuiltins(t *testing.T) {
	resetRules(t)
	ok := models.Comment{ID: "c1", PostID: "p1", AuthorID: "u1", Content: "hello", Depth: 0, Path: "1"}
	if err := ValidateComment(ok); err != nil {
		t.Fatalf("valid comment rejected: %v", err)
	}

	bad := ok
	bad.Content = "   "
	if err := ValidateComment(bad); err == nil {
		t.Fatalf("blank content accepted")
	}
	// Tombstones carry no content by design.
	bad.Deleted = true
	if err := ValidateComment(bad); err != nil {
		t.Fatalf("tombstone rejected: %v", err)
	}
	bad = ok
	bad.Depth = models.MaxThreadDepth + 1
	if err := ValidateComment(bad); err == nil {
		t.Fatalf("over-deep comment accepted")
	}
	bad = ok
	bad.Depth = -1
	if err := ValidateComment(bad); err == nil {
		t.Fatalf("negative depth accepted")
	}
}

func TestConfiguredRules(t *testing.T) {
	resetRules(t)
	SetRules(Rules{
		Required: []string{"note"},
		MaxLen:   map[string]int{"note": 10},
		Enums:    map[string][]string{"kind": {"love", "happy"}},
	})

	r := models.Reaction{
		ID: "r1", UserID: "u1",
		Target: models.ReactionTarget{PostID: "p1"},
		Kind:   models.ReactionLove, Intensity: 1, Note: "short",
	}
	if err := ValidateReaction(r); err != nil {
		t.Fatalf("conforming reaction rejected: %v", err)
	}
	r.Note = strings.Repeat("x", 11)
	if err := ValidateReaction(r); err == nil {
		t.Fatalf("over-long note accepted")
	}
	r.Note = "ok"
	r.Kind = models.ReactionProud
	if err := ValidateReaction(r); err == nil {
		t.Fatalf("enum violation accepted")
	}
}

func TestWhenThenRules(t *testing.T) {
	resetRules(t)
	SetRules(Rules{
		WhenThen: []WhenThenRule{{
			WhenPath: "milestone",
			Equals:   true,
			ThenReq:  []string{"note"},
		}},
	})

	r := models.Reaction{
		ID: "r1", UserID: "u1",
		Target: models.ReactionTarget{PostID: "p1"},
		Kind:   models.ReactionProud, Intensity: 3, Milestone: true,
	}
	// "note" exists as a field even when empty, so the rule is satisfied by
	// presence; a rule on a missing path must fail.
	if err := ValidateReaction(r); err != nil {
		t.Fatalf("milestone with note field rejected: %v", err)
	}

	SetRules(Rules{
		WhenThen: []WhenThenRule{{
			WhenPath: "milestone",
			Equals:   true,
			ThenReq:  []string{"celebration_gif"},
		}},
	})
	if err := ValidateReaction(r); err == nil {
		t.Fatalf("missing conditional requirement accepted")
	}
	r.Milestone = false
	if err := ValidateReaction(r); err != nil {
		t.Fatalf("rule should not fire when condition is false: %v", err)
	}
}

func TestValueAtPaths(t *testing.T) {
	root := map[string]interface{}{
		"target": map[string]interface{}{"post_id": "p1"},
		"tags":   []interface{}{"a", "b"},
	}
	if v, ok := valueAt(root, "target.post_id"); !ok || v != "p1" {
		t.Fatalf("nested lookup failed: %v %v", v, ok)
	}
	if v, ok := valueAt(root, "tags.1"); !ok || v != "b" {
		t.Fatalf("index lookup failed: %v %v", v, ok)
	}
	if v, ok := valueAt(root, "tags.*"); !ok || v != "a" {
		t.Fatalf("wildcard lookup failed: %v %v", v, ok)
	}
	if _, ok := valueAt(root, "missing.path"); ok {
		t.Fatalf("missing path reported present")
	}
}
