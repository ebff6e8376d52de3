package models

import "encoding/json"

// EventType names a realtime event pushed over a family scope stream.
type EventType string

const (
	EventReactionAdded   EventType = "reaction_added"
	EventReactionUpdated EventType = "reaction_updated"
	EventReactionRemoved EventType = "reaction_removed"
	EventCommentAdded    EventType = "comment_added"
	EventCommentUpdated  EventType = "comment_updated"
	EventCommentDeleted  EventType = "comment_deleted"
	EventTypingStarted   EventType = "typing_started"
	EventTypingStopped   EventType = "typing_stopped"
	EventWarmthUpdated   EventType = "warmth_updated"
	EventFamilyActivity  EventType = "family_activity"
	EventMilestone       EventType = "milestone_celebration"
	EventConnectionAck   EventType = "connection_ack"
	EventHeartbeat       EventType = "heartbeat"
	EventError           EventType = "error"
)

// Topic is a subscription interest on a connection. A connection only
// receives events whose topic is in its subscription set.
type Topic string

const (
	TopicReactions    Topic = "reactions"
	TopicComments     Topic = "comments"
	TopicTyping       Topic = "typing"
	TopicWarmth       Topic = "warmth"
	TopicCelebrations Topic = "celebrations"
)

// KnownTopic reports whether t is a subscribable topic.
func KnownTopic(t Topic) bool {
	switch t {
	case TopicReactions, TopicComments, TopicTyping, TopicWarmth, TopicCelebrations:
		return true
	}
	return false
}

// Event is the server-to-client envelope.
type Event struct {
	Type    EventType       `json:"event_type"`
	TS      int64           `json:"timestamp"`
	UserID  string          `json:"user_id,omitempty"`
	ScopeID string          `json:"scope_id"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is the client-to-server frame: subscribe/unsubscribe,
// heartbeat, or a typing-state change.
type ClientMessage struct {
	Action string  `json:"action"`
	Topics []Topic `json:"topics,omitempty"`
	// Typing-state fields.
	PostID   string `json:"post_id,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
	Typing   bool   `json:"typing,omitempty"`
}
