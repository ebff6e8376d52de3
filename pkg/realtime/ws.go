package realtime

import (
	"net/http"
	"strings"
	"time"

	"hearth/pkg/directory"
	"hearth/pkg/logger"
	"hearth/pkg/models"
	"hearth/pkg/utils"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4 * 1024
)

// WSHandler upgrades HTTP requests to websocket connections and bridges them
// onto the hub. Identity arrives in the X-Identity header (set by the auth
// gateway); the scope and initial topics come from query parameters.
type WSHandler struct {
	Hub      *Hub
	Users    directory.Users
	Access   directory.AccessChecker
	upgrader websocket.Upgrader
}

// NewWSHandler builds a handler; allowedOrigins behaves like the CORS
// allow-list ("*" or empty allows any origin).
func NewWSHandler(h *Hub, users directory.Users, access directory.AccessChecker, allowedOrigins []string) *WSHandler {
	anyOrigin := len(allowedOrigins) == 0
	allowed := map[string]struct{}{}
	for _, o := range allowedOrigins {
		if o == "*" {
			anyOrigin = true
		}
		allowed[o] = struct{}{}
	}
	return &WSHandler{
		Hub:    h,
		Users:  users,
		Access: access,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if anyOrigin {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

func (wh *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-Identity")
	if userID == "" {
		userID = r.URL.Query().Get("user")
	}
	scopeID := r.URL.Query().Get("scope")
	if userID == "" || scopeID == "" {
		utils.JSONError(w, http.StatusBadRequest, "user and scope required")
		return
	}
	if !wh.Access.UserInScope(userID, scopeID) {
		utils.JSONError(w, http.StatusForbidden, "not a member of scope")
		return
	}

	topics := parseTopics(r.URL.Query().Get("topics"))

	ws, err := wh.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws_upgrade_failed", "user", userID, "error", err)
		return
	}

	conn := wh.Hub.Connect(userID, scopeID, topics)
	go wh.writePump(conn, ws)
	go wh.readPump(conn, ws)
}

// parseTopics splits a comma-separated topic list; an empty list subscribes
// to everything.
func parseTopics(raw string) []models.Topic {
	if raw == "" {
		return []models.Topic{
			models.TopicReactions, models.TopicComments, models.TopicTyping,
			models.TopicWarmth, models.TopicCelebrations,
		}
	}
	var out []models.Topic
	for _, s := range strings.Split(raw, ",") {
		t := models.Topic(strings.TrimSpace(s))
		if models.KnownTopic(t) {
			out = append(out, t)
		}
	}
	return out
}

// writePump drains the connection's event queue onto the socket and keeps
// the transport alive with pings. It exits when the hub closes the queue.
func (wh *WSHandler) writePump(c *Conn, ws *websocket.Conn) {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		_ = ws.Close()
	}()
	for {
		select {
		case ev, ok := <-c.Out():
			if !ok {
				_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(ev); err != nil {
				logger.Debug("ws_write_failed", "conn", c.ID, "error", err)
				wh.Hub.Disconnect(c)
				return
			}
		case <-ping.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				wh.Hub.Disconnect(c)
				return
			}
		}
	}
}

// readPump consumes client frames: subscribe/unsubscribe, heartbeat and
// typing-state. Transport errors tear the connection down.
func (wh *WSHandler) readPump(c *Conn, ws *websocket.Conn) {
	defer wh.Hub.Disconnect(c)
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(wh.Hub.timeout))
	ws.SetPongHandler(func(string) error {
		wh.Hub.Heartbeat(c)
		return ws.SetReadDeadline(time.Now().Add(wh.Hub.timeout))
	})
	for {
		var msg models.ClientMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("ws_read_failed", "conn", c.ID, "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(wh.Hub.timeout))
		switch msg.Action {
		case "subscribe":
			c.Subscribe(msg.Topics...)
		case "unsubscribe":
			c.Unsubscribe(msg.Topics...)
		case "heartbeat":
			wh.Hub.Heartbeat(c)
			c.enqueue(NewEvent(models.EventHeartbeat, c.ScopeID, "", nil))
		case "typing":
			user, _ := wh.Users.ResolveUser(c.UserID)
			if user.ID == "" {
				user.ID = c.UserID
			}
			ev := TypingEvent(c.ScopeID, user, msg.PostID, msg.ParentID, msg.Typing)
			wh.Hub.Publish(c.ScopeID, ev, c.UserID, models.TopicTyping)
		default:
			c.enqueue(NewEvent(models.EventError, c.ScopeID, "", map[string]string{
				"error": "unknown action: " + msg.Action,
			}))
		}
	}
}
