package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"hearth/pkg/models"

	"github.com/google/uuid"
)

// ConnState tracks the per-connection lifecycle:
// Connecting -> Connected -> (Disconnected | Expired).
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnected
	StateExpired
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateExpired:
		return "expired"
	}
	return "unknown"
}

// Conn is one live channel bound to a user within a family scope. Events are
// handed to the connection through a bounded queue drained by the transport
// writer; a full queue marks the connection broken rather than blocking the
// publisher.
type Conn struct {
	ID      string
	UserID  string
	ScopeID string

	ConnectedTS int64

	state    atomic.Int32
	lastSeen atomic.Int64

	mu     sync.RWMutex
	topics map[models.Topic]struct{}
	closed bool
	out    chan models.Event
}

func newConn(userID, scopeID string, topics []models.Topic, buffer int) *Conn {
	c := &Conn{
		ID:          uuid.NewString(),
		UserID:      userID,
		ScopeID:     scopeID,
		ConnectedTS: time.Now().UTC().UnixNano(),
		topics:      make(map[models.Topic]struct{}, len(topics)),
		out:         make(chan models.Event, buffer),
	}
	for _, t := range topics {
		if models.KnownTopic(t) {
			c.topics[t] = struct{}{}
		}
	}
	c.state.Store(int32(StateConnecting))
	c.Touch()
	return c
}

// State returns the current lifecycle state.
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

// Out is the event stream the transport writer drains. It is closed when the
// connection is deregistered.
func (c *Conn) Out() <-chan models.Event {
	return c.out
}

// Touch records heartbeat activity.
func (c *Conn) Touch() {
	c.lastSeen.Store(time.Now().UTC().UnixNano())
}

// LastSeen returns the last heartbeat timestamp (ns).
func (c *Conn) LastSeen() int64 {
	return c.lastSeen.Load()
}

// Subscribe adds topics to the subscription set.
func (c *Conn) Subscribe(topics ...models.Topic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		if models.KnownTopic(t) {
			c.topics[t] = struct{}{}
		}
	}
}

// Unsubscribe removes topics from the subscription set.
func (c *Conn) Unsubscribe(topics ...models.Topic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.topics, t)
	}
}

// Subscribed reports whether the connection wants events for topic.
func (c *Conn) Subscribed(topic models.Topic) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.topics[topic]
	return ok
}

// Topics returns a copy of the subscription set.
func (c *Conn) Topics() []models.Topic {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Topic, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	return out
}

// enqueue hands an event to the connection without blocking. It returns
// false when the connection is closed or its queue is full; callers treat
// that as a broken recipient.
func (c *Conn) enqueue(ev models.Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.out <- ev:
		return true
	default:
		return false
	}
}

// close transitions to the terminal state and closes the event stream.
// Idempotent.
func (c *Conn) close(terminal ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.state.Store(int32(terminal))
	close(c.out)
}
