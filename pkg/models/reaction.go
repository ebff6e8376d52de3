package models

// ReactionKind is one of the fixed emotional categories a family member can
// attach to a post or comment.
type ReactionKind string

const (
	ReactionSupportive ReactionKind = "supportive"
	ReactionExcited    ReactionKind = "excited"
	ReactionHappy      ReactionKind = "happy"
	ReactionLove       ReactionKind = "love"
	ReactionLaugh      ReactionKind = "laugh"
	ReactionProud      ReactionKind = "proud"
)

// KnownReactionKind reports whether k is a member of the fixed kind set.
func KnownReactionKind(k ReactionKind) bool {
	switch k {
	case ReactionSupportive, ReactionExcited, ReactionHappy,
		ReactionLove, ReactionLaugh, ReactionProud:
		return true
	}
	return false
}

// ReactionTarget names the single entity a reaction attaches to. Exactly one
// of PostID/CommentID must be set.
type ReactionTarget struct {
	PostID    string `json:"post_id,omitempty"`
	CommentID string `json:"comment_id,omitempty"`
}

// Valid reports whether exactly one of PostID/CommentID is set.
func (t ReactionTarget) Valid() bool {
	return (t.PostID != "") != (t.CommentID != "")
}

// Key returns a stable key fragment for the target, used in store keys and
// idempotency records.
func (t ReactionTarget) Key() string {
	if t.PostID != "" {
		return "post:" + t.PostID
	}
	return "comment:" + t.CommentID
}

// Reaction is one user's reaction to a post or comment. At most one reaction
// exists per (user, target); a repeat call replaces the stored row.
type Reaction struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Target    ReactionTarget `json:"target"`
	Kind      ReactionKind   `json:"kind"`
	// Intensity is 1 (light), 2 (medium) or 3 (strong).
	Intensity int    `json:"intensity"`
	Note      string `json:"note,omitempty"`
	Milestone bool   `json:"milestone,omitempty"`
	// ClientKey is the client-supplied idempotency key for the write that
	// produced this row.
	ClientKey string `json:"client_key,omitempty"`
	// Warmth is the computed contribution this reaction adds to its
	// target's warmth aggregate.
	Warmth float64 `json:"warmth"`
	// CreatedTS is the creation timestamp (ns).
	CreatedTS int64 `json:"created_ts"`
}

// ReactionSummary is the read model returned for a target: counts by kind,
// intensity breakdown, total warmth and the requesting user's own reaction.
type ReactionSummary struct {
	Target      ReactionTarget       `json:"target"`
	Total       int                  `json:"total"`
	ByKind      map[ReactionKind]int `json:"by_kind"`
	ByIntensity map[int]int          `json:"by_intensity"`
	Warmth      float64              `json:"warmth"`
	Own         *Reaction            `json:"own,omitempty"`
}

// IdempotencyRecord remembers the outcome of a previously processed write so
// retries with the same client key return the original result without
// re-applying side effects.
type IdempotencyRecord struct {
	UserID    string `json:"user_id"`
	TargetKey string `json:"target_key"`
	ClientKey string `json:"client_key"`
	// ResultID points at the row produced by the first call (a reaction or
	// comment id, depending on the guarded write).
	ResultID  string `json:"result_id"`
	CreatedTS int64  `json:"created_ts"`
	ExpiresTS int64  `json:"expires_ts"`
}
