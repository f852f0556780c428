package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/atelier-backend/internal/platform/apierr"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/requestdata"
	"github.com/yungbote/atelier-backend/internal/space"
	"github.com/yungbote/atelier-backend/internal/types"
)

// SpaceHandler exposes space state over HTTP: read endpoints for members
// and the trusted internal surface used by the job executor and sibling
// services. Every mutation goes through the same coordinator methods as the
// websocket commands, so it broadcasts identically.
type SpaceHandler struct {
	log    *logger.Logger
	spaces *space.Manager
}

func NewSpaceHandler(log *logger.Logger, spaces *space.Manager) *SpaceHandler {
	return &SpaceHandler{
		log:    log.With("handler", "SpaceHandler"),
		spaces: spaces,
	}
}

func (h *SpaceHandler) coordinator(c *gin.Context) (*space.Coordinator, bool) {
	spaceID, err := uuid.Parse(c.Param("spaceID"))
	if err != nil {
		respondError(c, apierr.Validation("invalid space id"))
		return nil, false
	}
	coord, err := h.spaces.Get(spaceID)
	if err != nil {
		h.log.Error("Space open failed", "space_id", spaceID.String(), "error", err)
		respondError(c, apierr.Internal(err))
		return nil, false
	}
	return coord, true
}

// memberActor reads the identity RequireMember resolved.
func memberActor(c *gin.Context) space.Actor {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		return space.Actor{Role: types.RoleViewer}
	}
	return space.Actor{UserID: rd.UserID, Role: rd.Role}
}

// serviceActor is the identity internal calls run as. Attribution comes
// from the acting_user_id most internal payloads carry.
func serviceActor(userID uuid.UUID) space.Actor {
	return space.Actor{UserID: userID, Role: types.RoleOwner}
}

// ---- member reads ----

func (h *SpaceHandler) GetState(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	snap, err := coord.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *SpaceHandler) GetAsset(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	assetID, err := uuid.Parse(c.Param("assetID"))
	if err != nil {
		respondError(c, apierr.Validation("invalid asset id"))
		return
	}
	details, err := coord.GetAssetDetails(c.Request.Context(), memberActor(c), assetID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *SpaceHandler) GetAssetAncestors(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	assetID, err := uuid.Parse(c.Param("assetID"))
	if err != nil {
		respondError(c, apierr.Validation("invalid asset id"))
		return
	}
	ancestors, err := coord.GetAssetAncestors(c.Request.Context(), memberActor(c), assetID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ancestors": ancestors})
}

func (h *SpaceHandler) GetLineage(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	variantID, err := uuid.Parse(c.Param("variantID"))
	if err != nil {
		respondError(c, apierr.Validation("invalid variant id"))
		return
	}
	edges, err := coord.DirectLineage(c.Request.Context(), memberActor(c), variantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"edges": edges})
}

func (h *SpaceHandler) GetLineageGraph(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	variantID, err := uuid.Parse(c.Param("variantID"))
	if err != nil {
		respondError(c, apierr.Validation("invalid variant id"))
		return
	}
	graph, err := coord.TransitiveLineage(c.Request.Context(), memberActor(c), variantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, graph)
}

func (h *SpaceHandler) GetChat(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	var q struct {
		Limit  int        `form:"limit"`
		Before *time.Time `form:"before" time_format:"2006-01-02T15:04:05Z07:00"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, apierr.Validation("malformed query: %v", err))
		return
	}
	messages, err := coord.ChatHistory(c.Request.Context(), memberActor(c), q.Limit, q.Before)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// ---- internal surface ----

type actingBody struct {
	ActingUserID uuid.UUID `json:"acting_user_id"`
}

func (h *SpaceHandler) InternalCreateAsset(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	var body struct {
		actingBody
		space.CreateAssetInput
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apierr.Validation("malformed body: %v", err))
		return
	}
	asset, err := coord.CreateAsset(c.Request.Context(), serviceActor(body.ActingUserID), body.CreateAssetInput)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"asset": asset})
}

func (h *SpaceHandler) InternalUpdateAsset(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	assetID, err := uuid.Parse(c.Param("assetID"))
	if err != nil {
		respondError(c, apierr.Validation("invalid asset id"))
		return
	}
	var body struct {
		actingBody
		space.AssetChanges
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apierr.Validation("malformed body: %v", err))
		return
	}
	asset, err := coord.UpdateAsset(c.Request.Context(), serviceActor(body.ActingUserID), space.UpdateAssetInput{
		AssetID: assetID,
		Changes: body.AssetChanges,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset": asset})
}

func (h *SpaceHandler) InternalSetActiveVariant(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	assetID, err := uuid.Parse(c.Param("assetID"))
	if err != nil {
		respondError(c, apierr.Validation("invalid asset id"))
		return
	}
	var body struct {
		actingBody
		VariantID uuid.UUID `json:"variant_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apierr.Validation("malformed body: %v", err))
		return
	}
	asset, err := coord.SetActiveVariant(c.Request.Context(), serviceActor(body.ActingUserID), assetID, body.VariantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset": asset})
}

func (h *SpaceHandler) InternalSpawnAsset(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	var body struct {
		actingBody
		space.SpawnAssetInput
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apierr.Validation("malformed body: %v", err))
		return
	}
	asset, variant, edge, err := coord.SpawnAsset(c.Request.Context(), serviceActor(body.ActingUserID), body.SpawnAssetInput)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"asset": asset, "variant": variant, "lineage": edge})
}

func (h *SpaceHandler) InternalStarVariant(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	variantID, err := uuid.Parse(c.Param("variantID"))
	if err != nil {
		respondError(c, apierr.Validation("invalid variant id"))
		return
	}
	var body struct {
		actingBody
		Starred bool `json:"starred"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apierr.Validation("malformed body: %v", err))
		return
	}
	variant, err := coord.StarVariant(c.Request.Context(), serviceActor(body.ActingUserID), variantID, body.Starred)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"variant": variant})
}

func (h *SpaceHandler) InternalAddLineage(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	var body struct {
		actingBody
		ParentVariantID uuid.UUID `json:"parent_variant_id"`
		ChildVariantID  uuid.UUID `json:"child_variant_id"`
		RelationType    string    `json:"relation_type"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apierr.Validation("malformed body: %v", err))
		return
	}
	edge, err := coord.AddLineageEdge(c.Request.Context(), serviceActor(body.ActingUserID), body.ParentVariantID, body.ChildVariantID, body.RelationType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"lineage": edge})
}

func (h *SpaceHandler) InternalSeverLineage(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	lineageID, err := uuid.Parse(c.Param("lineageID"))
	if err != nil {
		respondError(c, apierr.Validation("invalid lineage id"))
		return
	}
	var body actingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apierr.Validation("malformed body: %v", err))
		return
	}
	edge, err := coord.SeverLineage(c.Request.Context(), serviceActor(body.ActingUserID), lineageID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lineage": edge})
}

func (h *SpaceHandler) InternalPostChat(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	var body struct {
		actingBody
		SenderType string         `json:"sender_type"`
		Content    string         `json:"content"`
		Metadata   datatypes.JSON `json:"metadata,omitempty"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apierr.Validation("malformed body: %v", err))
		return
	}
	if body.SenderType == "" {
		body.SenderType = types.SenderTypeBot
	}
	msg, err := coord.SendChat(c.Request.Context(), serviceActor(body.ActingUserID), body.SenderType, body.Content, body.Metadata)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// InternalApplyJob is the executor's completion callback. Replays are safe:
// a jobId that already produced its variant responds 200 with created=false.
func (h *SpaceHandler) InternalApplyJob(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	var body space.ApplyJobInput
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apierr.Validation("malformed body: %v", err))
		return
	}
	result, err := coord.ApplyCompletedJob(c.Request.Context(), body)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

func (h *SpaceHandler) InternalFailJob(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	var body struct {
		JobID  string `json:"job_id"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apierr.Validation("malformed body: %v", err))
		return
	}
	if err := coord.FailJob(c.Request.Context(), body.JobID, body.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SpaceHandler) InternalJobProgress(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	var body struct {
		JobID    string  `json:"job_id"`
		Progress float64 `json:"progress"`
		Note     string  `json:"note,omitempty"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apierr.Validation("malformed body: %v", err))
		return
	}
	coord.BroadcastJobProgress(body.JobID, body.Progress, body.Note)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
