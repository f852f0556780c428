package space

import (
	"context"

	"github.com/yungbote/atelier-backend/internal/platform/apierr"
	"github.com/yungbote/atelier-backend/internal/realtime"
	"github.com/yungbote/atelier-backend/internal/types"
)

// StateSnapshot is the full space state sent to one client on connect or
// explicit resync. It is assembled under the coordinator lock, so it sits at
// a definite point in the commit order: every later broadcast the client
// receives applies cleanly on top of it.
type StateSnapshot struct {
	Assets   []*types.Asset         `json:"assets"`
	Variants []*types.Variant       `json:"variants"`
	Lineage  []*types.Lineage       `json:"lineage"`
	TileSets []*types.TileSet       `json:"tile_sets"`
	Presence []*types.PresenceEntry `json:"presence"`
}

// SyncState captures a snapshot and sends it to the requesting client only.
func (c *Coordinator) SyncState(ctx context.Context, client *realtime.Client) error {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return err
	}
	c.hub.SendTo(client, realtime.ServerMessage{Type: realtime.EventSyncState, Payload: snap})
	return nil
}

// Snapshot reads the whole space state under the single-writer lock.
func (c *Coordinator) Snapshot(ctx context.Context) (*StateSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dbc := c.read(ctx)
	assets, err := c.assets.List(dbc)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	variants, err := c.variants.List(dbc)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	lineage, err := c.lineage.List(dbc)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	sets := make([]*types.TileSet, 0)
	for _, asset := range assets {
		active, err := c.tileSets.GetActiveByAssetID(dbc, asset.ID)
		if err != nil {
			return nil, apierr.Internal(err)
		}
		sets = append(sets, active...)
	}

	return &StateSnapshot{
		Assets:   assets,
		Variants: variants,
		Lineage:  lineage,
		TileSets: sets,
		Presence: c.presenceSnapshotLocked(),
	}, nil
}
