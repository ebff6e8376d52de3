package store

import (
	"fmt"
	"strconv"
	"strings"

	"hearth/pkg/models"
)

// Key layout. Segments are lowercase, ":"-separated; variable parts noted
// in angle brackets. Ordinals and timestamps are zero-padded so prefix scans
// return rows in creation order.
//
//	post:<postID>:react:<userID>        reaction row
//	comment:<commentID>:react:<userID>  reaction row
//	comment:<commentID>                 comment row
//	post:<postID>:cpath:<paddedPath>    comment row, indexed by thread path
//	postmeta:<postID>                   post engagement counters
//	idem:<targetKey>:<userID>:<key>     idempotency record
//	warmth:<scope>:<id>                 warmth aggregate
//	activity:<scopeID>:<ts>-<seq>       family activity row
const (
	tsPadWidth   = 20
	seqPadWidth  = 6
	pathPadWidth = 4
)

// ReactionKey returns the storage key for one user's reaction on a target.
func ReactionKey(t models.ReactionTarget, userID string) string {
	return t.Key() + ":react:" + userID
}

// ReactionPrefix returns the scan prefix covering every reaction on a target.
func ReactionPrefix(t models.ReactionTarget) string {
	return t.Key() + ":react:"
}

// CommentKey returns the primary key for a comment row.
func CommentKey(commentID string) string {
	return "comment:" + commentID
}

// CommentPathKey indexes a comment under its post by padded thread path so a
// single prefix scan yields the whole thread in rendering order.
func CommentPathKey(postID, path string) string {
	return "post:" + postID + ":cpath:" + PadPath(path)
}

// CommentPathPrefix returns the scan prefix for all comments of a post.
func CommentPathPrefix(postID string) string {
	return "post:" + postID + ":cpath:"
}

// PostMetaKey returns the key for a post's engagement counters.
func PostMetaKey(postID string) string {
	return "postmeta:" + postID
}

// IdemKey returns the key for an idempotency record.
func IdemKey(targetKey, userID, clientKey string) string {
	return "idem:" + targetKey + ":" + userID + ":" + clientKey
}

// IdemPrefix is the scan prefix for all idempotency records.
const IdemPrefix = "idem:"

// WarmthKey returns the key for a stored warmth aggregate.
func WarmthKey(scope models.WarmthScope, id string) string {
	return "warmth:" + string(scope) + ":" + id
}

// ActivityKey returns the key for one family activity row. ts is unix nanos;
// seq breaks ties within a nanosecond.
func ActivityKey(scopeID string, ts int64, seq uint64) string {
	return fmt.Sprintf("activity:%s:%0*d-%0*d", scopeID, tsPadWidth, ts, seqPadWidth, seq)
}

// ActivityPrefix returns the scan prefix for a scope's activity rows.
func ActivityPrefix(scopeID string) string {
	return "activity:" + scopeID + ":"
}

// PadPath converts a display path like "3.1.12" into a fixed-width form
// ("0003.0001.0012") whose lexicographic order matches sibling creation
// order at every level.
func PadPath(path string) string {
	if path == "" {
		return ""
	}
	segs := strings.Split(path, ".")
	for i, s := range segs {
		if n, err := strconv.Atoi(s); err == nil {
			segs[i] = fmt.Sprintf("%0*d", pathPadWidth, n)
		}
	}
	return strings.Join(segs, ".")
}
