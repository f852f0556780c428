package types

import (
	"time"

	"github.com/google/uuid"
)

// PresenceEntry is ephemeral per-user state held only in the coordinator's
// memory. It is never persisted; entries go stale after five minutes and
// are evicted lazily on the next read.
type PresenceEntry struct {
	UserID         uuid.UUID  `json:"user_id"`
	ViewingAssetID *uuid.UUID `json:"viewing_asset_id,omitempty"`
	LastSeenAt     time.Time  `json:"last_seen_at"`
}
