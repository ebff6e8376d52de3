package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hearth/pkg/directory"
	"hearth/pkg/models"

	"github.com/gorilla/websocket"
)

func newWSServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	dir := directory.NewMemory()
	dir.AddUser(directory.UserRef{ID: "grandma", DisplayName: "Grandma Rose"}, "fam1")
	dir.AddUser(directory.UserRef{ID: "uncle", DisplayName: "Uncle Leo"}, "fam1")

	hub := NewHub(Options{})
	srv := httptest.NewServer(NewWSHandler(hub, dir, dir, nil))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", query, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) models.Event {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev models.Event
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestWSConnectAndFanout(t *testing.T) {
	hub, srv := newWSServer(t)

	ws := dialWS(t, srv, "user=grandma&scope=fam1&topics=reactions")
	if ev := readEvent(t, ws); ev.Type != models.EventConnectionAck {
		t.Fatalf("expected ack first, got %s", ev.Type)
	}

	// Wait for registration to settle, then publish into the scope.
	deadline := time.Now().Add(time.Second)
	for hub.ConnCount("fam1") == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("connection never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	hub.Publish("fam1", NewEvent(models.EventReactionAdded, "fam1", "uncle", map[string]string{"k": "v"}), "uncle", models.TopicReactions)

	ev := readEvent(t, ws)
	if ev.Type != models.EventReactionAdded || ev.ScopeID != "fam1" {
		t.Fatalf("unexpected fanout event: %+v", ev)
	}
}

func TestWSSubscribeAction(t *testing.T) {
	hub, srv := newWSServer(t)
	ws := dialWS(t, srv, "user=grandma&scope=fam1&topics=typing")
	readEvent(t, ws) // ack

	if err := ws.WriteJSON(models.ClientMessage{Action: "subscribe", Topics: []models.Topic{models.TopicWarmth}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	// Subscriptions apply asynchronously in the read pump; poll by publishing.
	deadline := time.Now().Add(2 * time.Second)
	got := false
	for !got && time.Now().Before(deadline) {
		hub.Publish("fam1", NewEvent(models.EventWarmthUpdated, "fam1", "", nil), "", models.TopicWarmth)
		_ = ws.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		var ev models.Event
		if err := ws.ReadJSON(&ev); err == nil && ev.Type == models.EventWarmthUpdated {
			got = true
		}
	}
	if !got {
		t.Fatalf("warmth event never delivered after subscribe")
	}
}

func TestWSHeartbeatAction(t *testing.T) {
	_, srv := newWSServer(t)
	ws := dialWS(t, srv, "user=grandma&scope=fam1")
	readEvent(t, ws) // ack

	if err := ws.WriteJSON(models.ClientMessage{Action: "heartbeat"}); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if ev := readEvent(t, ws); ev.Type != models.EventHeartbeat {
		t.Fatalf("expected heartbeat echo, got %s", ev.Type)
	}

	if err := ws.WriteJSON(models.ClientMessage{Action: "mystery"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := readEvent(t, ws); ev.Type != models.EventError {
		t.Fatalf("expected error event for unknown action, got %s", ev.Type)
	}
}

func TestWSTypingFanout(t *testing.T) {
	hub, srv := newWSServer(t)
	typist := dialWS(t, srv, "user=grandma&scope=fam1")
	watcher := dialWS(t, srv, "user=uncle&scope=fam1")
	readEvent(t, typist)
	readEvent(t, watcher)

	deadline := time.Now().Add(time.Second)
	for hub.ConnCount("fam1") < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("connections never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := typist.WriteJSON(models.ClientMessage{Action: "typing", PostID: "p1", Typing: true}); err != nil {
		t.Fatalf("typing: %v", err)
	}
	ev := readEvent(t, watcher)
	if ev.Type != models.EventTypingStarted || ev.UserID != "grandma" {
		t.Fatalf("unexpected typing event: %+v", ev)
	}
}

func TestWSRejectsOutsiders(t *testing.T) {
	_, srv := newWSServer(t)

	resp, err := http.Get(srv.URL + "/ws?user=stranger&scope=fam1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider: expected 403, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/ws?scope=fam1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing user: expected 400, got %d", resp.StatusCode)
	}
}
