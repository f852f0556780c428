package space

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/atelier-backend/internal/realtime"
	"github.com/yungbote/atelier-backend/internal/types"
)

// presenceStaleAfter is the staleness window; entries older than this are
// evicted lazily on the next read rather than by a background timer.
const presenceStaleAfter = 5 * time.Minute

// UpdatePresence is last-writer-wins per user and broadcasts the full
// presence set after every change.
func (c *Coordinator) UpdatePresence(userID uuid.UUID, viewingAssetID *uuid.UUID) {
	c.mu.Lock()
	c.presence[userID] = &types.PresenceEntry{
		UserID:         userID,
		ViewingAssetID: viewingAssetID,
		LastSeenAt:     c.now().UTC(),
	}
	entries := c.presenceSnapshotLocked()
	c.mu.Unlock()
	c.broadcastPresence(entries)
}

// ClearPresence drops a user's entry when their last connection goes away.
func (c *Coordinator) ClearPresence(userID uuid.UUID) {
	c.mu.Lock()
	delete(c.presence, userID)
	entries := c.presenceSnapshotLocked()
	c.mu.Unlock()
	c.broadcastPresence(entries)
}

// PresenceSnapshot returns the live presence set, evicting stale entries.
func (c *Coordinator) PresenceSnapshot() []*types.PresenceEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.presenceSnapshotLocked()
}

func (c *Coordinator) presenceSnapshotLocked() []*types.PresenceEntry {
	cutoff := c.now().UTC().Add(-presenceStaleAfter)
	entries := make([]*types.PresenceEntry, 0, len(c.presence))
	for userID, entry := range c.presence {
		if entry.LastSeenAt.Before(cutoff) {
			delete(c.presence, userID)
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UserID.String() < entries[j].UserID.String()
	})
	return entries
}

func (c *Coordinator) broadcastPresence(entries []*types.PresenceEntry) {
	c.hub.Broadcast(c.SpaceID, realtime.ServerMessage{
		Type:    realtime.EventPresenceUpdate,
		Payload: map[string]interface{}{"presence": entries},
	})
}
