// Package validation applies configurable field rules to incoming
// reactions and comments before they reach the engines. Rules are loaded
// from config; the built-in checks always run.
package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"hearth/pkg/models"
)

type Rules struct {
	Required []string
	Types    map[string]string
	MaxLen   map[string]int
	Enums    map[string][]string
	WhenThen []WhenThenRule
}

type WhenThenRule struct {
	WhenPath string
	Equals   interface{}
	ThenReq  []string
}

var rules Rules

func SetRules(r Rules) { rules = r }

// ValidateReaction checks a reaction against the built-in constraints and
// any configured rules.
func ValidateReaction(r models.Reaction) error {
	var errs []string
	if !r.Target.Valid() {
		errs = append(errs, "target must name exactly one of post or comment")
	}
	if !models.KnownReactionKind(r.Kind) {
		errs = append(errs, fmt.Sprintf("unknown reaction kind: %s", r.Kind))
	}
	root := map[string]interface{}{
		"id":        r.ID,
		"user_id":   r.UserID,
		"kind":      string(r.Kind),
		"intensity": r.Intensity,
		"note":      r.Note,
		"milestone": r.Milestone,
		"target": map[string]interface{}{
			"post_id":    r.Target.PostID,
			"comment_id": r.Target.CommentID,
		},
	}
	errs = append(errs, applyRules(root)...)
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ValidateComment checks a comment against the built-in constraints and any
// configured rules.
func ValidateComment(c models.Comment) error {
	var errs []string
	if strings.TrimSpace(c.Content) == "" && !c.Deleted {
		errs = append(errs, "content is required")
	}
	if c.Depth < 0 || c.Depth > models.MaxThreadDepth {
		errs = append(errs, fmt.Sprintf("depth out of range: %d", c.Depth))
	}
	root := map[string]interface{}{
		"id":        c.ID,
		"post_id":   c.PostID,
		"parent_id": c.ParentID,
		"author_id": c.AuthorID,
		"content":   c.Content,
		"depth":     c.Depth,
		"path":      c.Path,
	}
	errs = append(errs, applyRules(root)...)
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// applyRules runs the configured rule set against a generic map view.
func applyRules(root map[string]interface{}) []string {
	var errs []string
	for _, p := range rules.Required {
		if !existsAt(root, p) {
			errs = append(errs, fmt.Sprintf("required path missing: %s", p))
		}
	}
	for p, t := range rules.Types {
		if v, ok := valueAt(root, p); ok {
			if !typeMatches(v, t) {
				errs = append(errs, fmt.Sprintf("type mismatch at %s: expected %s", p, t))
			}
		}
	}
	for p, max := range rules.MaxLen {
		if v, ok := valueAt(root, p); ok {
			switch vv := v.(type) {
			case string:
				if len(vv) > max {
					errs = append(errs, fmt.Sprintf("max length exceeded at %s: %d > %d", p, len(vv), max))
				}
			case []interface{}:
				if len(vv) > max {
					errs = append(errs, fmt.Sprintf("max length exceeded at %s: %d > %d", p, len(vv), max))
				}
			}
		}
	}
	for p, vals := range rules.Enums {
		if v, ok := valueAt(root, p); ok {
			if s, ok2 := v.(string); ok2 && !contains(vals, s) {
				errs = append(errs, fmt.Sprintf("invalid enum at %s", p))
			}
		}
	}
	for _, r := range rules.WhenThen {
		if v, ok := valueAt(root, r.WhenPath); ok {
			if equalsJSONValue(v, r.Equals) {
				for _, p := range r.ThenReq {
					if !existsAt(root, p) {
						errs = append(errs, fmt.Sprintf("required by rule (when %s == %v): %s", r.WhenPath, r.Equals, p))
					}
				}
			}
		}
	}
	return errs
}

func existsAt(root interface{}, path string) bool {
	_, ok := valueAt(root, path)
	return ok
}

func valueAt(root interface{}, path string) (interface{}, bool) {
	segs := strings.Split(path, ".")
	cur := root
	for _, s := range segs {
		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[s]
			if !ok {
				return nil, false
			}
			cur = v
		case []interface{}:
			if s == "*" {
				if len(node) == 0 {
					return nil, false
				}
				cur = node[0]
			} else if idx, err := strconv.Atoi(s); err == nil {
				if idx < 0 || idx >= len(node) {
					return nil, false
				}
				cur = node[idx]
			} else {
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return cur, true
}

func typeMatches(v interface{}, t string) bool {
	switch strings.ToLower(t) {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case int, int32, int64, float32, float64:
			return true
		default:
			return false
		}
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]interface{})
		return ok
	case "array":
		_, ok := v.([]interface{})
		return ok
	default:
		return true
	}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func equalsJSONValue(a interface{}, b interface{}) bool {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return av == bv
		}
	case float64:
		switch bv := b.(type) {
		case float64:
			return av == bv
		case int:
			return av == float64(bv)
		case int64:
			return av == float64(bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return av == bv
		}
	case map[string]interface{}, []interface{}:
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
