package space

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/atelier-backend/internal/realtime"
	"github.com/yungbote/atelier-backend/internal/types"
)

func TestPresenceUpdateBroadcasts(t *testing.T) {
	e := newTestEnv(t)
	client := e.join(types.RoleViewer)

	userID := uuid.New()
	assetID := uuid.New()
	e.coord.UpdatePresence(userID, &assetID)

	msgs := drain(t, client)
	if len(msgs) != 1 || msgs[0].Type != realtime.EventPresenceUpdate {
		t.Fatalf("want one presence:update frame, got %v", eventTypes(msgs))
	}

	snap := e.coord.PresenceSnapshot()
	if len(snap) != 1 || snap[0].UserID != userID {
		t.Fatalf("snapshot: want one entry for %s, got %+v", userID, snap)
	}
	if snap[0].ViewingAssetID == nil || *snap[0].ViewingAssetID != assetID {
		t.Fatalf("viewing asset not recorded")
	}
}

func TestPresenceEvictsStaleEntries(t *testing.T) {
	e := newTestEnv(t)

	base := time.Now().UTC()
	e.coord.now = func() time.Time { return base }

	stale := uuid.New()
	fresh := uuid.New()
	e.coord.UpdatePresence(stale, nil)

	e.coord.now = func() time.Time { return base.Add(4 * time.Minute) }
	e.coord.UpdatePresence(fresh, nil)

	// At +6m the first entry is older than the 5 minute horizon, the
	// second is not.
	e.coord.now = func() time.Time { return base.Add(6 * time.Minute) }
	snap := e.coord.PresenceSnapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot: want=1 got=%d", len(snap))
	}
	if snap[0].UserID != fresh {
		t.Fatalf("wrong entry survived eviction")
	}
}

func TestClearPresence(t *testing.T) {
	e := newTestEnv(t)
	client := e.join(types.RoleViewer)

	userID := uuid.New()
	e.coord.UpdatePresence(userID, nil)
	drain(t, client)

	e.coord.ClearPresence(userID)
	msgs := drain(t, client)
	if len(msgs) != 1 || msgs[0].Type != realtime.EventPresenceUpdate {
		t.Fatalf("want one presence:update frame, got %v", eventTypes(msgs))
	}
	if snap := e.coord.PresenceSnapshot(); len(snap) != 0 {
		t.Fatalf("snapshot after clear: want empty, got %+v", snap)
	}
}
