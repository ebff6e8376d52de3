package realtime

import (
	"encoding/json"
	"time"

	"hearth/pkg/directory"
	"hearth/pkg/models"
)

// NewEvent builds a server-to-client envelope with the payload marshaled in
// place. Marshal failures degrade to an empty data field; the envelope still
// carries type/scope/actor.
func NewEvent(typ models.EventType, scopeID, userID string, payload any) models.Event {
	var data json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			data = b
		}
	}
	return models.Event{
		Type:    typ,
		TS:      time.Now().UTC().UnixNano(),
		UserID:  userID,
		ScopeID: scopeID,
		Data:    data,
	}
}

// TypingEvent builds the non-persisted typing indicator event.
func TypingEvent(scopeID string, user directory.UserRef, postID, parentID string, typing bool) models.Event {
	typ := models.EventTypingStopped
	if typing {
		typ = models.EventTypingStarted
	}
	return NewEvent(typ, scopeID, user.ID, struct {
		User     directory.UserRef `json:"user"`
		PostID   string            `json:"post_id,omitempty"`
		ParentID string            `json:"parent_id,omitempty"`
	}{User: user, PostID: postID, ParentID: parentID})
}
