package reconcile

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"hearth/pkg/config"
	"hearth/pkg/directory"
	"hearth/pkg/models"
	"hearth/pkg/realtime"
	"hearth/pkg/store"
	"hearth/pkg/warmth"
)

func TestRunOnceBroadcastsFamilyDigest(t *testing.T) {
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	dir := directory.NewMemory()
	dir.AddUser(directory.UserRef{ID: "grandma"}, "fam1")
	dir.AddUser(directory.UserRef{ID: "uncle"}, "fam1")

	now := time.Now().UTC()
	for i, w := range []float64{4, 6} {
		if err := store.AppendActivity(models.ActivityRecord{
			ScopeID: "fam1", UserID: "grandma", Kind: "reaction", Warmth: w,
			TS: now.Add(-time.Duration(i+1) * time.Hour).UnixNano(),
		}); err != nil {
			t.Fatalf("seed activity: %v", err)
		}
	}

	hub := realtime.NewHub(realtime.Options{})
	t.Cleanup(hub.Shutdown)
	conn := hub.Connect("uncle", "fam1", []models.Topic{models.TopicWarmth})
	readEvent(t, conn) // ack

	eff := config.EffectiveConfigResult{Config: &config.Config{}}
	deps := Deps{Agg: warmth.NewAggregator(), Scopes: dir, Hub: hub}
	if err := runOnce(context.Background(), eff, deps, t.TempDir()); err != nil {
		t.Fatalf("reconcile run: %v", err)
	}

	if ev := readEvent(t, conn); ev.Type != models.EventWarmthUpdated {
		t.Fatalf("expected the family warmth change first, got %s", ev.Type)
	}
	ev := readEvent(t, conn)
	if ev.Type != models.EventFamilyActivity {
		t.Fatalf("expected the family activity digest, got %s", ev.Type)
	}
	var d struct {
		ScopeID string  `json:"scope_id"`
		Events  int     `json:"events"`
		Warmth  float64 `json:"warmth"`
	}
	if err := json.Unmarshal(ev.Data, &d); err != nil {
		t.Fatalf("digest payload: %v", err)
	}
	if d.ScopeID != "fam1" || d.Events != 2 || d.Warmth != 10 {
		t.Fatalf("unexpected digest: %+v", d)
	}
}

func readEvent(t *testing.T, c *realtime.Conn) models.Event {
	t.Helper()
	select {
	case ev, ok := <-c.Out():
		if !ok {
			t.Fatalf("connection stream closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event within 1s")
	}
	return models.Event{}
}
