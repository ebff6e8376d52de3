// Package fault defines the sentinel errors shared by the engagement
// engines. Handlers map them to HTTP status codes with errors.Is.
package fault

import "errors"

var (
	// ErrInvalidTarget means a reaction named zero or both of post/comment.
	ErrInvalidTarget = errors.New("invalid reaction target")
	// ErrUnknownReactionKind means the kind is outside the fixed set.
	ErrUnknownReactionKind = errors.New("unknown reaction kind")
	// ErrInvalidContent means comment content is empty or over the bound.
	ErrInvalidContent = errors.New("invalid comment content")
	// ErrThreadTooDeep means a reply would exceed the maximum thread depth.
	ErrThreadTooDeep = errors.New("thread too deep")
	// ErrForbidden means the caller lacks rights for the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound means the target post/comment/connection does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a concurrent aggregate update raced past the
	// internal retry budget.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable means the broadcast hub is degraded; delivery was
	// skipped but the write itself succeeded.
	ErrUnavailable = errors.New("unavailable")
)
