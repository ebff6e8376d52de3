// Package realtime implements the broadcast hub: a registry of live
// connections grouped by family scope, with topic-filtered fanout, heartbeat
// tracking and stale-connection eviction. The hub owns every registered
// connection for its lifetime.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"hearth/pkg/logger"
	"hearth/pkg/models"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultHeartbeatTimeout evicts connections silent for this long.
const DefaultHeartbeatTimeout = 120 * time.Second

// DefaultSendBuffer is the per-connection event queue size.
const DefaultSendBuffer = 64

var (
	connsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hearth_hub_connections",
		Help: "Currently registered live connections.",
	})
	publishTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hearth_hub_publish_total",
		Help: "Events accepted for fanout.",
	})
	dropTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hearth_hub_drops_total",
		Help: "Recipient deliveries dropped due to broken or slow connections.",
	})
	expireTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hearth_hub_expired_total",
		Help: "Connections evicted by the heartbeat sweeper.",
	})
)

func init() {
	prometheus.MustRegister(connsGauge, publishTotal, dropTotal, expireTotal)
}

// Options configures a Hub.
type Options struct {
	HeartbeatTimeout time.Duration
	SendBuffer       int
	SweepInterval    time.Duration
}

// Hub is the connection registry. It is created at process start, passed to
// the API layer explicitly, and torn down at shutdown.
type Hub struct {
	mu     sync.RWMutex
	scopes map[string]map[string]*Conn // scopeID -> connID -> conn

	timeout time.Duration
	buffer  int
	sweep   time.Duration
}

// NewHub builds an empty hub with the given options.
func NewHub(opts Options) *Hub {
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = opts.HeartbeatTimeout / 4
	}
	return &Hub{
		scopes:  make(map[string]map[string]*Conn),
		timeout: opts.HeartbeatTimeout,
		buffer:  opts.SendBuffer,
		sweep:   opts.SweepInterval,
	}
}

// Connect registers a new connection for userID within scopeID and sends the
// connection acknowledgement carrying the resolved subscription set. Multiple
// simultaneous connections per user are allowed.
func (h *Hub) Connect(userID, scopeID string, topics []models.Topic) *Conn {
	c := newConn(userID, scopeID, topics, h.buffer)

	h.mu.Lock()
	if h.scopes[scopeID] == nil {
		h.scopes[scopeID] = make(map[string]*Conn)
	}
	h.scopes[scopeID][c.ID] = c
	h.mu.Unlock()

	c.state.Store(int32(StateConnected))
	connsGauge.Inc()

	ack, _ := json.Marshal(struct {
		ConnectionID string         `json:"connection_id"`
		Topics       []models.Topic `json:"topics"`
	}{ConnectionID: c.ID, Topics: c.Topics()})
	c.enqueue(models.Event{
		Type:    models.EventConnectionAck,
		TS:      time.Now().UTC().UnixNano(),
		ScopeID: scopeID,
		Data:    ack,
	})
	logger.Info("hub_connected", "conn", c.ID, "user", userID, "scope", scopeID)
	return c
}

// Publish enqueues ev for every live connection in scopeID subscribed to
// topic, except connections owned by excludeUserID. Delivery is best-effort
// and asynchronous; a broken recipient is deregistered without affecting the
// rest of the fanout, and Publish never blocks on recipient I/O.
func (h *Hub) Publish(scopeID string, ev models.Event, excludeUserID string, topic models.Topic) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.scopes[scopeID]))
	for _, c := range h.scopes[scopeID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	publishTotal.Inc()
	for _, c := range conns {
		if excludeUserID != "" && c.UserID == excludeUserID {
			continue
		}
		if c.State() != StateConnected || !c.Subscribed(topic) {
			continue
		}
		if !c.enqueue(ev) {
			dropTotal.Inc()
			logger.Warn("hub_recipient_broken", "conn", c.ID, "user", c.UserID, "scope", scopeID)
			h.remove(c, StateDisconnected)
		}
	}
}

// Heartbeat records liveness for the connection. No other state changes.
func (h *Hub) Heartbeat(c *Conn) {
	c.Touch()
}

// Disconnect explicitly tears down a connection.
func (h *Hub) Disconnect(c *Conn) {
	h.remove(c, StateDisconnected)
}

// remove deregisters the connection and closes it with the terminal state.
// No transition leaves a dangling registration.
func (h *Hub) remove(c *Conn, terminal ConnState) {
	h.mu.Lock()
	scope, ok := h.scopes[c.ScopeID]
	if ok {
		if _, present := scope[c.ID]; present {
			delete(scope, c.ID)
			if len(scope) == 0 {
				delete(h.scopes, c.ScopeID)
			}
		} else {
			ok = false
		}
	}
	h.mu.Unlock()

	c.close(terminal)
	if ok {
		connsGauge.Dec()
		logger.Info("hub_removed", "conn", c.ID, "user", c.UserID, "state", terminal.String())
	}
}

// Run drives the background heartbeat sweep until ctx is done, then closes
// every remaining connection.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.sweep)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Shutdown()
			return
		case <-t.C:
			h.sweepStale()
		}
	}
}

func (h *Hub) sweepStale() {
	cutoff := time.Now().UTC().Add(-h.timeout).UnixNano()
	h.mu.RLock()
	var stale []*Conn
	for _, scope := range h.scopes {
		for _, c := range scope {
			if c.LastSeen() < cutoff {
				stale = append(stale, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		expireTotal.Inc()
		logger.Info("hub_expired", "conn", c.ID, "user", c.UserID, "idle_ns", cutoff-c.LastSeen())
		h.remove(c, StateExpired)
	}
}

// Shutdown closes every registered connection.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	var all []*Conn
	for _, scope := range h.scopes {
		for _, c := range scope {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.remove(c, StateDisconnected)
	}
}

// ConnCount returns the number of live connections in a scope (all scopes
// when scopeID is empty).
func (h *Hub) ConnCount(scopeID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if scopeID != "" {
		return len(h.scopes[scopeID])
	}
	n := 0
	for _, scope := range h.scopes {
		n += len(scope)
	}
	return n
}
