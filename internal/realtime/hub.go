package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/types"
)

// Hub tracks live connections grouped by space and fans broadcast events out
// to them. Per-client delivery order is the order of Broadcast calls because
// frames are enqueued to each client's buffered Outbound channel while the
// hub lock is held. A client that cannot keep up is dropped rather than
// allowed to stall or reorder the space.
type Hub struct {
	mu     sync.RWMutex
	log    *logger.Logger
	spaces map[uuid.UUID]map[*Client]bool

	// mirror, when set, receives every broadcast frame as well (redis bus).
	mirror func(spaceID uuid.UUID, raw []byte)
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:    log.With("component", "Hub"),
		spaces: make(map[uuid.UUID]map[*Client]bool),
	}
}

// SetMirror installs a best-effort secondary sink for broadcast frames.
func (h *Hub) SetMirror(mirror func(spaceID uuid.UUID, raw []byte)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mirror = mirror
}

// NewClient builds a client bound to this hub. conn may be nil in tests;
// only ReadPump/WritePump touch it.
func (h *Hub) NewClient(conn *websocket.Conn, spaceID, userID uuid.UUID, role types.Role) *Client {
	return &Client{
		ID:       uuid.New(),
		SpaceID:  spaceID,
		UserID:   userID,
		Role:     role,
		Outbound: make(chan []byte, 256),
		hub:      h,
		conn:     conn,
		log:      h.log.With("client_id", uuid.NewString(), "user_id", userID.String()),
	}
}

func (h *Hub) AddClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.spaces[client.SpaceID]
	if !ok {
		clients = make(map[*Client]bool)
		h.spaces[client.SpaceID] = clients
	}
	clients[client] = true
	h.log.Debug("Client joined space", "space_id", client.SpaceID.String(), "user_id", client.UserID.String(), "connections", len(clients))
}

func (h *Hub) RemoveClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.spaces[client.SpaceID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.spaces, client.SpaceID)
	}
	close(client.Outbound)
	h.log.Debug("Client left space", "space_id", client.SpaceID.String(), "user_id", client.UserID.String())
}

// Broadcast pushes one event to every live connection of the space,
// including the originator.
func (h *Hub) Broadcast(spaceID uuid.UUID, msg ServerMessage) {
	raw, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("Failed to encode broadcast frame", "event", string(msg.Type), "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var stalled []*Client
	for client := range h.spaces[spaceID] {
		select {
		case client.Outbound <- raw:
		default:
			stalled = append(stalled, client)
		}
	}
	for _, client := range stalled {
		h.log.Warn("Dropping stalled client", "space_id", spaceID.String(), "user_id", client.UserID.String())
		h.removeClientLocked(client)
	}

	if h.mirror != nil {
		h.mirror(spaceID, raw)
	}
}

// SendTo delivers one frame to a single client only. Used for command errors
// and sync snapshots, which are never broadcast.
func (h *Hub) SendTo(client *Client, msg ServerMessage) {
	raw, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("Failed to encode frame", "event", string(msg.Type), "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.spaces[client.SpaceID]; !ok || !clients[client] {
		return
	}
	select {
	case client.Outbound <- raw:
	default:
		h.log.Warn("Dropping stalled client", "space_id", client.SpaceID.String(), "user_id", client.UserID.String())
		h.removeClientLocked(client)
	}
}

// SendError reports a handler failure to the originating connection only.
func (h *Hub) SendError(client *Client, code, message string) {
	h.SendTo(client, ServerMessage{
		Type:    EventError,
		Payload: ErrorPayload{Code: code, Message: message},
	})
}

func (h *Hub) removeClientLocked(client *Client) {
	clients, ok := h.spaces[client.SpaceID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.spaces, client.SpaceID)
	}
	close(client.Outbound)
}

// SpaceConnections reports the live connection count for a space.
func (h *Hub) SpaceConnections(spaceID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.spaces[spaceID])
}

// UserConnections reports how many live connections a user holds in a
// space. Presence is cleared only when this drops to zero, so closing one
// of several tabs does not evict the user.
func (h *Hub) UserConnections(spaceID, userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for client := range h.spaces[spaceID] {
		if client.UserID == userID {
			n++
		}
	}
	return n
}
