package space

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/atelier-backend/internal/platform/apierr"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/realtime"
	"github.com/yungbote/atelier-backend/internal/services"
	"github.com/yungbote/atelier-backend/internal/types"
)

// ApplyJobInput is the payload of a completion callback from the external
// job executor. JobID is unique per logical job; the executor may deliver
// the same completion more than once.
type ApplyJobInput struct {
	JobID     string         `json:"job_id"`
	AssetID   uuid.UUID      `json:"asset_id"`
	ImageKey  string         `json:"image_key"`
	ThumbKey  string         `json:"thumb_key,omitempty"`
	Recipe    datatypes.JSON `json:"recipe,omitempty"`
	CreatedBy uuid.UUID      `json:"created_by,omitempty"`
}

// ApplyJobResult reports what the merge did. Created is false when the job
// had already been applied, which callers treat as success.
type ApplyJobResult struct {
	Variant *types.Variant `json:"variant"`
	Created bool           `json:"created"`
}

// ApplyCompletedJob is the single entry point through which an externally
// completed generation job merges into space state. The jobId lookup makes
// the merge idempotent: retried callbacks and duplicate queue messages find
// the already-terminal variant and change nothing.
func (c *Coordinator) ApplyCompletedJob(ctx context.Context, in ApplyJobInput) (*ApplyJobResult, error) {
	if strings.TrimSpace(in.JobID) == "" {
		return nil, apierr.Validation("job id is required")
	}
	if in.ImageKey == "" {
		return nil, apierr.Validation("image key is required")
	}

	result := &ApplyJobResult{}
	err := c.apply(ctx, func(dbc dbctx.Context, emit emitFunc) error {
		existing, err := c.variants.GetByJobID(dbc, in.JobID)
		if err != nil {
			return apierr.Internal(err)
		}

		switch {
		case existing == nil:
			variant, err := c.insertCompletedVariant(dbc, emit, in)
			if err != nil {
				return err
			}
			result.Variant = variant
			result.Created = true
			return nil

		case existing.Status == types.VariantStatusCompleted || existing.Status == types.VariantStatusFailed:
			// Already applied; at-least-once delivery collapses to
			// at-most-once effect.
			result.Variant = existing
			result.Created = false
			return nil

		default:
			// A pending variant created at dispatch time (tile pipeline).
			if err := c.completePendingVariant(dbc, emit, existing, in); err != nil {
				return err
			}
			result.Variant = existing
			result.Created = false
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Coordinator) insertCompletedVariant(dbc dbctx.Context, emit emitFunc, in ApplyJobInput) (*types.Variant, error) {
	asset, err := c.assets.GetByID(dbc, in.AssetID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if asset == nil {
		return nil, apierr.NotFound("asset %s not found", in.AssetID)
	}

	now := c.now().UTC()
	jobID := in.JobID
	variant := &types.Variant{
		ID:        uuid.New(),
		AssetID:   in.AssetID,
		JobID:     &jobID,
		Status:    types.VariantStatusCompleted,
		ImageKey:  in.ImageKey,
		ThumbKey:  in.ThumbKey,
		Recipe:    in.Recipe,
		CreatedBy: in.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := c.variants.Create(dbc, []*types.Variant{variant}); err != nil {
		return nil, apierr.Internal(err)
	}
	if err := c.refs.Acquire(dbc, variant.BlobKeys()...); err != nil {
		return nil, apierr.Internal(err)
	}
	if err := c.createRecipeLineage(dbc, emit, variant); err != nil {
		return nil, err
	}
	emit(realtime.ServerMessage{Type: realtime.EventVariantCreated, Payload: map[string]interface{}{"variant": variant}})

	if asset.ActiveVariantID == nil {
		asset.ActiveVariantID = &variant.ID
		asset.UpdatedAt = now
		if err := c.assets.Save(dbc, asset); err != nil {
			return nil, apierr.Internal(err)
		}
		emit(realtime.ServerMessage{Type: realtime.EventAssetUpdated, Payload: map[string]interface{}{"asset": asset}})
	}
	return variant, nil
}

// completePendingVariant finishes a variant the tile pipeline inserted at
// dispatch time. Recipe-input references were counted at dispatch, so only
// the freshly produced image and thumbnail are acquired here.
func (c *Coordinator) completePendingVariant(dbc dbctx.Context, emit emitFunc, variant *types.Variant, in ApplyJobInput) error {
	variant.Status = types.VariantStatusCompleted
	variant.ImageKey = in.ImageKey
	variant.ThumbKey = in.ThumbKey
	variant.UpdatedAt = c.now().UTC()
	if err := c.variants.Save(dbc, variant); err != nil {
		return apierr.Internal(err)
	}
	if err := c.refs.Acquire(dbc, in.ImageKey); err != nil {
		return apierr.Internal(err)
	}
	if in.ThumbKey != "" {
		if err := c.refs.Acquire(dbc, in.ThumbKey); err != nil {
			return apierr.Internal(err)
		}
	}
	if err := c.createRecipeLineage(dbc, emit, variant); err != nil {
		return err
	}
	emit(realtime.ServerMessage{Type: realtime.EventVariantUpdated, Payload: map[string]interface{}{"variant": variant}})

	asset, err := c.assets.GetByID(dbc, variant.AssetID)
	if err != nil {
		return apierr.Internal(err)
	}
	if asset != nil && asset.ActiveVariantID == nil {
		asset.ActiveVariantID = &variant.ID
		asset.UpdatedAt = c.now().UTC()
		if err := c.assets.Save(dbc, asset); err != nil {
			return apierr.Internal(err)
		}
		emit(realtime.ServerMessage{Type: realtime.EventAssetUpdated, Payload: map[string]interface{}{"asset": asset}})
	}

	return c.onTileVariantTerminal(dbc, emit, variant, types.TilePositionCompleted)
}

// createRecipeLineage adds derived edges to every recipe-declared parent
// variant that is still alive. Parents deleted mid-flight are skipped.
func (c *Coordinator) createRecipeLineage(dbc dbctx.Context, emit emitFunc, variant *types.Variant) error {
	recipe, err := types.DecodeRecipe(variant.Recipe)
	if err != nil {
		c.log.Warn("Undecodable recipe, skipping lineage", "variant_id", variant.ID.String(), "error", err)
		return nil
	}
	for _, parentID := range recipe.ParentVariantIDs {
		parent, err := c.variants.GetByID(dbc, parentID)
		if err != nil {
			return apierr.Internal(err)
		}
		if parent == nil {
			continue
		}
		edge := &types.Lineage{
			ID:              uuid.New(),
			ParentVariantID: parentID,
			ChildVariantID:  variant.ID,
			RelationType:    types.RelationDerived,
			CreatedAt:       c.now().UTC(),
		}
		if _, err := c.lineage.Create(dbc, []*types.Lineage{edge}); err != nil {
			return apierr.Internal(err)
		}
		emit(realtime.ServerMessage{Type: realtime.EventLineageCreated, Payload: map[string]interface{}{"lineage": edge}})
	}
	return nil
}

// FailJob records a generation failure reported by the executor. The
// variant (if any) is marked failed, its position is marked failed and the
// owning tile set advances past the dead cell.
func (c *Coordinator) FailJob(ctx context.Context, jobID, reason string) error {
	if strings.TrimSpace(jobID) == "" {
		return apierr.Validation("job id is required")
	}
	return c.apply(ctx, func(dbc dbctx.Context, emit emitFunc) error {
		variant, err := c.variants.GetByJobID(dbc, jobID)
		if err != nil {
			return apierr.Internal(err)
		}
		if variant == nil {
			c.log.Warn("Failure callback for unknown job", "job_id", jobID)
			return nil
		}
		if variant.Status == types.VariantStatusCompleted || variant.Status == types.VariantStatusFailed {
			return nil
		}
		variant.Status = types.VariantStatusFailed
		variant.UpdatedAt = c.now().UTC()
		if err := c.variants.Save(dbc, variant); err != nil {
			return apierr.Internal(err)
		}
		emit(realtime.ServerMessage{Type: realtime.EventVariantUpdated, Payload: map[string]interface{}{
			"variant": variant,
			"reason":  reason,
		}})
		return c.onTileVariantTerminal(dbc, emit, variant, types.TilePositionFailed)
	})
}

// recordDispatchFailureLocked compensates for an executor that rejected a
// job after the mutation that queued it already committed.
func (c *Coordinator) recordDispatchFailureLocked(ctx context.Context, req services.GenerationRequest, cause error) {
	err := c.applyLocked(ctx, func(dbc dbctx.Context, emit emitFunc) error {
		variant, err := c.variants.GetByID(dbc, req.VariantID)
		if err != nil {
			return apierr.Internal(err)
		}
		if variant == nil || variant.Status == types.VariantStatusCompleted || variant.Status == types.VariantStatusFailed {
			return nil
		}
		variant.Status = types.VariantStatusFailed
		variant.UpdatedAt = c.now().UTC()
		if err := c.variants.Save(dbc, variant); err != nil {
			return apierr.Internal(err)
		}
		emit(realtime.ServerMessage{Type: realtime.EventVariantUpdated, Payload: map[string]interface{}{
			"variant": variant,
			"reason":  cause.Error(),
		}})
		return c.onTileVariantTerminal(dbc, emit, variant, types.TilePositionFailed)
	})
	if err != nil {
		c.log.Error("Failed to record dispatch failure", "job_id", req.JobID, "error", err)
	}
}

// BroadcastJobProgress relays executor progress to clients. Progress is
// ephemeral: nothing is persisted and no handler state changes.
func (c *Coordinator) BroadcastJobProgress(jobID string, progress float64, note string) {
	c.hub.Broadcast(c.SpaceID, realtime.ServerMessage{
		Type: realtime.EventVariantUpdated,
		Payload: map[string]interface{}{
			"job_id":   jobID,
			"progress": progress,
			"note":     note,
		},
	})
}
