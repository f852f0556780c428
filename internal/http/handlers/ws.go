package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yungbote/atelier-backend/internal/middleware"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/realtime"
	"github.com/yungbote/atelier-backend/internal/services"
	"github.com/yungbote/atelier-backend/internal/space"
)

type WSHandler struct {
	log        *logger.Logger
	hub        *realtime.Hub
	spaces     *space.Manager
	verifier   services.TokenVerifier
	membership services.MembershipResolver
	upgrader   websocket.Upgrader
}

func NewWSHandler(log *logger.Logger, hub *realtime.Hub, spaces *space.Manager, verifier services.TokenVerifier, membership services.MembershipResolver) *WSHandler {
	return &WSHandler{
		log:        log.With("handler", "WSHandler"),
		hub:        hub,
		spaces:     spaces,
		verifier:   verifier,
		membership: membership,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origins are enforced by the CORS layer in front of us.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Connect authenticates, resolves the caller's role once, upgrades the
// connection and joins it to the space. The role is fixed for the life of
// the connection; a membership change takes effect on reconnect.
func (h *WSHandler) Connect(c *gin.Context) {
	spaceID, err := uuid.Parse(c.Param("spaceID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid space id"})
		return
	}
	token := middleware.ExtractToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
		return
	}
	userID, err := h.verifier.VerifyToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	role, ok, err := h.membership.ResolveRole(c.Request.Context(), spaceID, userID)
	if err != nil {
		h.log.Error("Membership resolution failed", "space_id", spaceID.String(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership lookup failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this space"})
		return
	}

	coord, err := h.spaces.Get(spaceID)
	if err != nil {
		h.log.Error("Space open failed", "space_id", spaceID.String(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "space unavailable"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "space_id", spaceID.String(), "error", err)
		return
	}

	client := h.hub.NewClient(conn, spaceID, userID, role)
	h.hub.AddClient(client)
	go client.WritePump()

	// Initial snapshot so the client can apply subsequent broadcasts
	// without a gap.
	if err := coord.SyncState(c.Request.Context(), client); err != nil {
		h.log.Error("Initial sync failed", "space_id", spaceID.String(), "error", err)
	}

	client.ReadPump(coord.HandleCommand)

	// ReadPump has unregistered the client; drop presence only when the
	// user has no other live connection to this space.
	if h.hub.UserConnections(spaceID, userID) == 0 {
		coord.ClearPresence(userID)
	}
}
