package realtime

import "encoding/json"

// Event names pushed to clients. One broadcast per committed mutation,
// delivered to every live connection of the space in commit order.
type Event string

const (
	EventSyncState        Event = "sync:state"
	EventAssetCreated     Event = "asset:created"
	EventAssetUpdated     Event = "asset:updated"
	EventAssetDeleted     Event = "asset:deleted"
	EventAssetSpawned     Event = "asset:spawned"
	EventVariantCreated   Event = "variant:created"
	EventVariantUpdated   Event = "variant:updated"
	EventVariantDeleted   Event = "variant:deleted"
	EventLineageCreated   Event = "lineage:created"
	EventLineageSevered   Event = "lineage:severed"
	EventTileSetStarted   Event = "tileset:started"
	EventTileCompleted    Event = "tileset:tile_completed"
	EventTileSetCompleted Event = "tileset:completed"
	EventTileSetFailed    Event = "tileset:failed"
	EventTileSetCancelled Event = "tileset:cancelled"
	EventChatMessage      Event = "chat:message"
	EventPresenceUpdate   Event = "presence:update"
	EventError            Event = "error"
)

// Message is the JSON frame shared by both directions of the connection
// protocol: a fixed string discriminator plus a payload.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage is an outbound frame before encoding.
type ServerMessage struct {
	Type    Event       `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ErrorPayload is the payload of an EventError frame. Code is stable for
// client branching; Message is for display.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
