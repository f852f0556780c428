package space

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/atelier-backend/internal/platform/apierr"
	"github.com/yungbote/atelier-backend/internal/realtime"
	"github.com/yungbote/atelier-backend/internal/types"
)

// Command names accepted over the websocket. The protocol is closed: any
// frame whose type is not listed here is answered with a VALIDATION error
// to the sender and nothing else.
const (
	CmdSyncRequest      = "sync:request"
	CmdAssetCreate      = "asset:create"
	CmdAssetUpdate      = "asset:update"
	CmdAssetDelete      = "asset:delete"
	CmdAssetSetActive   = "asset:setActive"
	CmdAssetSpawn       = "asset:spawn"
	CmdVariantDelete    = "variant:delete"
	CmdVariantStar      = "variant:star"
	CmdLineageSever     = "lineage:sever"
	CmdPresenceUpdate   = "presence:update"
	CmdChatSend         = "chat:send"
	CmdTileSetRequest   = "tileset:request"
	CmdTileSetRetry     = "tileset:retry_tile"
	CmdTileSetCancel    = "tileset:cancel"
	CmdTileRefineEdges  = "tileset:refine_edges"
	CmdTileRefineSingle = "tileset:refine_tile"
)

type commandFunc func(c *Coordinator, ctx context.Context, client *realtime.Client, payload json.RawMessage) error

// commandTable maps every accepted command to its handler. Kept as package
// data so the accepted set is inspectable.
var commandTable = map[string]commandFunc{
	CmdSyncRequest:      (*Coordinator).cmdSyncRequest,
	CmdAssetCreate:      (*Coordinator).cmdAssetCreate,
	CmdAssetUpdate:      (*Coordinator).cmdAssetUpdate,
	CmdAssetDelete:      (*Coordinator).cmdAssetDelete,
	CmdAssetSetActive:   (*Coordinator).cmdAssetSetActive,
	CmdAssetSpawn:       (*Coordinator).cmdAssetSpawn,
	CmdVariantDelete:    (*Coordinator).cmdVariantDelete,
	CmdVariantStar:      (*Coordinator).cmdVariantStar,
	CmdLineageSever:     (*Coordinator).cmdLineageSever,
	CmdPresenceUpdate:   (*Coordinator).cmdPresenceUpdate,
	CmdChatSend:         (*Coordinator).cmdChatSend,
	CmdTileSetRequest:   (*Coordinator).cmdTileSetRequest,
	CmdTileSetRetry:     (*Coordinator).cmdTileSetRetry,
	CmdTileSetCancel:    (*Coordinator).cmdTileSetCancel,
	CmdTileRefineEdges:  (*Coordinator).cmdTileRefineEdges,
	CmdTileRefineSingle: (*Coordinator).cmdTileRefineSingle,
}

const commandTimeout = 30 * time.Second

// HandleCommand is the hub's entry point for inbound frames. Failures go
// back to the sending connection only; committed mutations broadcast to the
// whole space through the usual emit path.
func (c *Coordinator) HandleCommand(client *realtime.Client, msg realtime.Message) {
	handler, ok := commandTable[msg.Type]
	if !ok {
		c.hub.SendError(client, apierr.CodeValidation, "unknown command "+msg.Type)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := handler(c, ctx, client, msg.Payload); err != nil {
		ae := apierr.From(err)
		if ae.Code == apierr.CodeInternal {
			c.log.Error("Command failed", "command", msg.Type, "user_id", client.UserID.String(), "error", err)
		}
		c.hub.SendError(client, ae.Code, ae.Error())
	}
}

func clientActor(client *realtime.Client) Actor {
	return Actor{UserID: client.UserID, Role: client.Role}
}

func decodePayload(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return apierr.Validation("missing payload")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apierr.Validation("malformed payload: %v", err)
	}
	return nil
}

func (c *Coordinator) cmdSyncRequest(ctx context.Context, client *realtime.Client, _ json.RawMessage) error {
	return c.SyncState(ctx, client)
}

func (c *Coordinator) cmdAssetCreate(ctx context.Context, client *realtime.Client, raw json.RawMessage) error {
	var in CreateAssetInput
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	_, err := c.CreateAsset(ctx, clientActor(client), in)
	return err
}

func (c *Coordinator) cmdAssetUpdate(ctx context.Context, client *realtime.Client, raw json.RawMessage) error {
	var in UpdateAssetInput
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	_, err := c.UpdateAsset(ctx, clientActor(client), in)
	return err
}

func (c *Coordinator) cmdAssetDelete(ctx context.Context, client *realtime.Client, raw json.RawMessage) error {
	var in struct {
		AssetID uuid.UUID `json:"asset_id"`
	}
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	return c.DeleteAsset(ctx, clientActor(client), in.AssetID)
}

func (c *Coordinator) cmdAssetSetActive(ctx context.Context, client *realtime.Client, raw json.RawMessage) error {
	var in struct {
		AssetID   uuid.UUID `json:"asset_id"`
		VariantID uuid.UUID `json:"variant_id"`
	}
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	_, err := c.SetActiveVariant(ctx, clientActor(client), in.AssetID, in.VariantID)
	return err
}

func (c *Coordinator) cmdAssetSpawn(ctx context.Context, client *realtime.Client, raw json.RawMessage) error {
	var in SpawnAssetInput
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	_, _, _, err := c.SpawnAsset(ctx, clientActor(client), in)
	return err
}

func (c *Coordinator) cmdVariantDelete(ctx context.Context, client *realtime.Client, raw json.RawMessage) error {
	var in struct {
		VariantID uuid.UUID `json:"variant_id"`
	}
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	return c.DeleteVariant(ctx, clientActor(client), in.VariantID)
}

func (c *Coordinator) cmdVariantStar(ctx context.Context, client *realtime.Client, raw json.RawMessage) error {
	var in struct {
		VariantID uuid.UUID `json:"variant_id"`
		Starred   bool      `json:"starred"`
	}
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	_, err := c.StarVariant(ctx, clientActor(client), in.VariantID, in.Starred)
	return err
}

func (c *Coordinator) cmdLineageSever(ctx context.Context, client *realtime.Client, raw json.RawMessage) error {
	var in struct {
		LineageID uuid.UUID `json:"lineage_id"`
	}
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	_, err := c.SeverLineage(ctx, clientActor(client), in.LineageID)
	return err
}

func (c *Coordinator) cmdPresenceUpdate(_ context.Context, client *realtime.Client, raw json.RawMessage) error {
	var in struct {
		ViewingAssetID *uuid.UUID `json:"viewing_asset_id"`
	}
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	c.UpdatePresence(client.UserID, in.ViewingAssetID)
	return nil
}

func (c *Coordinator) cmdChatSend(ctx context.Context, client *realtime.Client, raw json.RawMessage) error {
	var in struct {
		Content  string         `json:"content"`
		Metadata datatypes.JSON `json:"metadata,omitempty"`
	}
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	_, err := c.SendChat(ctx, clientActor(client), types.SenderTypeUser, in.Content, in.Metadata)
	return err
}

func (c *Coordinator) cmdTileSetRequest(ctx context.Context, client *realtime.Client, raw json.RawMessage) error {
	var in RequestTileSetInput
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	_, err := c.RequestTileSet(ctx, clientActor(client), in)
	return err
}

type tileCellCommand struct {
	TileSetID uuid.UUID `json:"tile_set_id"`
	GridX     int       `json:"grid_x"`
	GridY     int       `json:"grid_y"`
}

func (c *Coordinator) cmdTileSetRetry(ctx context.Context, client *realtime.Client, raw json.RawMessage) error {
	var in tileCellCommand
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	return c.RetryTile(ctx, clientActor(client), in.TileSetID, in.GridX, in.GridY)
}

func (c *Coordinator) cmdTileSetCancel(ctx context.Context, client *realtime.Client, raw json.RawMessage) error {
	var in struct {
		TileSetID uuid.UUID `json:"tile_set_id"`
	}
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	return c.CancelTileSet(ctx, clientActor(client), in.TileSetID)
}

func (c *Coordinator) cmdTileRefineEdges(ctx context.Context, client *realtime.Client, raw json.RawMessage) error {
	var in struct {
		TileSetID uuid.UUID `json:"tile_set_id"`
	}
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	return c.RefineEdges(ctx, clientActor(client), in.TileSetID)
}

func (c *Coordinator) cmdTileRefineSingle(ctx context.Context, client *realtime.Client, raw json.RawMessage) error {
	var in tileCellCommand
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	return c.RefineTile(ctx, clientActor(client), in.TileSetID, in.GridX, in.GridY)
}
