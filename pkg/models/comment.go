package models

// MaxThreadDepth caps reply nesting. Root comments have depth 0; a reply to
// a comment at MaxThreadDepth is rejected.
const MaxThreadDepth = 5

// MaxEditHistory bounds the per-comment edit log; oldest entries are dropped
// beyond the cap.
const MaxEditHistory = 10

// CommentEdit records one prior content revision.
type CommentEdit struct {
	Content  string `json:"content"`
	EditedTS int64  `json:"edited_ts"`
}

// Comment is a threaded comment on a post. Depth, Path and RootID encode the
// thread position: depth = parent.depth+1 (0 for roots), Path appends the
// 1-based sibling ordinal to the parent's path ("3.1.2"), RootID points at
// the top-level ancestor and is empty iff Depth == 0.
type Comment struct {
	ID       string `json:"id"`
	PostID   string `json:"post_id"`
	ParentID string `json:"parent_id,omitempty"`
	AuthorID string `json:"author_id"`
	Content  string `json:"content"`

	Depth  int    `json:"depth"`
	Path   string `json:"path"`
	RootID string `json:"root_id,omitempty"`

	// ReplyCount counts direct children; DescendantCount the whole subtree.
	ReplyCount      int `json:"reply_count"`
	DescendantCount int `json:"descendant_count"`

	Mentions []string `json:"mentions,omitempty"`

	Edited      bool          `json:"edited,omitempty"`
	EditHistory []CommentEdit `json:"edit_history,omitempty"`

	// Deleted marks a tombstoned comment; content is cleared but the row
	// stays so descendants keep a valid parent chain.
	Deleted   bool  `json:"deleted,omitempty"`
	DeletedTS int64 `json:"deleted_ts,omitempty"`

	// Warmth is this comment's own contribution to its post's aggregate.
	Warmth    float64 `json:"warmth"`
	CreatedTS int64   `json:"created_ts"`
}

// PostMeta is the slice of post state this service owns: engagement counters
// maintained alongside comment writes. Post content itself lives elsewhere.
type PostMeta struct {
	ID           string `json:"id"`
	ScopeID      string `json:"scope_id"`
	CommentCount int    `json:"comment_count"`
	UpdatedTS    int64  `json:"updated_ts"`
}

// CommentNode is a comment with its assembled replies, returned by the
// threaded-tree read path.
type CommentNode struct {
	Comment
	Replies []*CommentNode `json:"replies,omitempty"`
}
