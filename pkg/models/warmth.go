package models

// WarmthScope names the aggregate level a warmth score attaches to.
type WarmthScope string

const (
	ScopePost    WarmthScope = "post"
	ScopeComment WarmthScope = "comment"
	ScopeFamily  WarmthScope = "family"
)

// WarmthScore is a bounded engagement-intensity aggregate in [0,1]. It is
// derived state: always recomputable from the live reaction/comment
// contributions for the id.
type WarmthScore struct {
	Scope     WarmthScope `json:"scope"`
	ID        string      `json:"id"`
	Score     float64     `json:"score"`
	UpdatedTS int64       `json:"updated_ts"`
}

// ActivityRecord is one interaction inside a family scope, written alongside
// reaction/comment persistence. The family-level rolling-window warmth is
// recomputed by scanning these.
type ActivityRecord struct {
	ScopeID string  `json:"scope_id"`
	UserID  string  `json:"user_id"`
	Kind    string  `json:"kind"` // "reaction" or "comment"
	Warmth  float64 `json:"warmth"`
	TS      int64   `json:"ts"`
}
