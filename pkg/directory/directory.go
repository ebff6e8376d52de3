// Package directory holds the narrow contracts this service consumes from
// the surrounding application: access control, identity lookup and post
// resolution. Their real implementations live in other services; the
// in-memory versions here back tests and single-process deployments.
package directory

// PostRef is the minimal view of a post the engagement engines need: who
// owns it and which family scope it belongs to.
type PostRef struct {
	ID        string
	ScopeID   string
	AuthorID  string
	Milestone bool
}

// UserRef is the enrichment payload attached to realtime events.
type UserRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// AccessChecker answers authorization questions.
type AccessChecker interface {
	UserCanAccessPost(userID, postID string) bool
	UserInScope(userID, scopeID string) bool
	UserOwnsScope(userID, scopeID string) bool
	// UserIsModerator reports whether the user may delete others' comments
	// inside the scope.
	UserIsModerator(userID, scopeID string) bool
}

// Users resolves user ids for event enrichment.
type Users interface {
	ResolveUser(userID string) (UserRef, bool)
}

// Posts resolves post ids to their owning scope.
type Posts interface {
	GetPost(postID string) (PostRef, bool)
}

// ScopeLister enumerates family scopes for background reconciliation.
type ScopeLister interface {
	Scopes() []string
}
