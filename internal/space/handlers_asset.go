package space

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/atelier-backend/internal/platform/apierr"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/realtime"
	"github.com/yungbote/atelier-backend/internal/types"
)

type CreateAssetInput struct {
	Name          string     `json:"name"`
	AssetType     string     `json:"asset_type"`
	ParentAssetID *uuid.UUID `json:"parent_asset_id,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
}

type AssetChanges struct {
	Name      *string   `json:"name,omitempty"`
	AssetType *string   `json:"asset_type,omitempty"`
	Tags      *[]string `json:"tags,omitempty"`
	// ParentAssetID re-parents the asset; ClearParent moves it to the root.
	ParentAssetID *uuid.UUID `json:"parent_asset_id,omitempty"`
	ClearParent   bool       `json:"clear_parent,omitempty"`
}

type UpdateAssetInput struct {
	AssetID uuid.UUID    `json:"asset_id"`
	Changes AssetChanges `json:"changes"`
}

type SpawnAssetInput struct {
	SourceVariantID uuid.UUID  `json:"source_variant_id"`
	Name            string     `json:"name"`
	AssetType       string     `json:"asset_type"`
	ParentAssetID   *uuid.UUID `json:"parent_asset_id,omitempty"`
}

func encodeTags(tags []string) (datatypes.JSON, error) {
	if tags == nil {
		return nil, nil
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func (c *Coordinator) CreateAsset(ctx context.Context, actor Actor, in CreateAssetInput) (*types.Asset, error) {
	if err := requireRole(actor, types.RoleEditor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apierr.Validation("asset name is required")
	}
	if strings.TrimSpace(in.AssetType) == "" {
		return nil, apierr.Validation("asset type is required")
	}
	tags, err := encodeTags(in.Tags)
	if err != nil {
		return nil, apierr.Validation("tags: %v", err)
	}

	now := c.now().UTC()
	asset := &types.Asset{
		ID:            uuid.New(),
		Name:          name,
		Kind:          in.AssetType,
		Tags:          tags,
		ParentAssetID: in.ParentAssetID,
		CreatedBy:     actor.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = c.apply(ctx, func(dbc dbctx.Context, emit emitFunc) error {
		if in.ParentAssetID != nil {
			parent, err := c.assets.GetByID(dbc, *in.ParentAssetID)
			if err != nil {
				return apierr.Internal(err)
			}
			if parent == nil {
				return apierr.NotFound("parent asset %s not found", in.ParentAssetID)
			}
		}
		if _, err := c.assets.Create(dbc, []*types.Asset{asset}); err != nil {
			return apierr.Internal(err)
		}
		emit(realtime.ServerMessage{Type: realtime.EventAssetCreated, Payload: map[string]interface{}{"asset": asset}})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return asset, nil
}

func (c *Coordinator) UpdateAsset(ctx context.Context, actor Actor, in UpdateAssetInput) (*types.Asset, error) {
	if err := requireRole(actor, types.RoleEditor); err != nil {
		return nil, err
	}

	var updated *types.Asset
	err := c.apply(ctx, func(dbc dbctx.Context, emit emitFunc) error {
		asset, err := c.assets.GetByID(dbc, in.AssetID)
		if err != nil {
			return apierr.Internal(err)
		}
		if asset == nil {
			return apierr.NotFound("asset %s not found", in.AssetID)
		}

		if in.Changes.Name != nil {
			name := strings.TrimSpace(*in.Changes.Name)
			if name == "" {
				return apierr.Validation("asset name cannot be empty")
			}
			asset.Name = name
		}
		if in.Changes.AssetType != nil {
			if strings.TrimSpace(*in.Changes.AssetType) == "" {
				return apierr.Validation("asset type cannot be empty")
			}
			asset.Kind = *in.Changes.AssetType
		}
		if in.Changes.Tags != nil {
			tags, err := encodeTags(*in.Changes.Tags)
			if err != nil {
				return apierr.Validation("tags: %v", err)
			}
			asset.Tags = tags
		}
		switch {
		case in.Changes.ClearParent:
			asset.ParentAssetID = nil
		case in.Changes.ParentAssetID != nil:
			newParent := *in.Changes.ParentAssetID
			if newParent == asset.ID {
				return apierr.Conflict("asset cannot be its own parent")
			}
			parent, err := c.assets.GetByID(dbc, newParent)
			if err != nil {
				return apierr.Internal(err)
			}
			if parent == nil {
				return apierr.NotFound("parent asset %s not found", newParent)
			}
			cycle, err := c.wouldCreateCycle(dbc, asset.ID, newParent)
			if err != nil {
				return apierr.Internal(err)
			}
			if cycle {
				return apierr.Conflict("re-parenting %s under %s would create a cycle", asset.ID, newParent)
			}
			asset.ParentAssetID = &newParent
		}

		asset.UpdatedAt = c.now().UTC()
		if err := c.assets.Save(dbc, asset); err != nil {
			return apierr.Internal(err)
		}
		updated = asset
		emit(realtime.ServerMessage{Type: realtime.EventAssetUpdated, Payload: map[string]interface{}{"asset": asset}})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// wouldCreateCycle walks the ancestor chain of the proposed parent; the move
// is rejected iff the asset's own id appears. The visited guard keeps a
// corrupted chain from looping forever.
func (c *Coordinator) wouldCreateCycle(dbc dbctx.Context, assetID, newParentID uuid.UUID) (bool, error) {
	visited := map[uuid.UUID]bool{}
	cursor := &newParentID
	for cursor != nil {
		if *cursor == assetID {
			return true, nil
		}
		if visited[*cursor] {
			return false, nil
		}
		visited[*cursor] = true
		ancestor, err := c.assets.GetByID(dbc, *cursor)
		if err != nil {
			return false, err
		}
		if ancestor == nil {
			return false, nil
		}
		cursor = ancestor.ParentAssetID
	}
	return false, nil
}

func (c *Coordinator) DeleteAsset(ctx context.Context, actor Actor, assetID uuid.UUID) error {
	if err := requireRole(actor, types.RoleOwner); err != nil {
		return err
	}

	return c.apply(ctx, func(dbc dbctx.Context, emit emitFunc) error {
		asset, err := c.assets.GetByID(dbc, assetID)
		if err != nil {
			return apierr.Internal(err)
		}
		if asset == nil {
			return apierr.NotFound("asset %s not found", assetID)
		}

		variants, err := c.variants.GetByAssetIDs(dbc, []uuid.UUID{assetID})
		if err != nil {
			return apierr.Internal(err)
		}
		if err := c.deleteVariantRows(dbc, variants); err != nil {
			return err
		}

		// Children are hoisted to the deleted asset's parent so the tree
		// never dangles.
		children, err := c.assets.GetChildren(dbc, assetID)
		if err != nil {
			return apierr.Internal(err)
		}
		for _, child := range children {
			child.ParentAssetID = asset.ParentAssetID
			child.UpdatedAt = c.now().UTC()
			if err := c.assets.Save(dbc, child); err != nil {
				return apierr.Internal(err)
			}
			emit(realtime.ServerMessage{Type: realtime.EventAssetUpdated, Payload: map[string]interface{}{"asset": child}})
		}

		if err := c.assets.DeleteByIDs(dbc, []uuid.UUID{assetID}); err != nil {
			return apierr.Internal(err)
		}

		deletedVariantIDs := make([]uuid.UUID, 0, len(variants))
		for _, v := range variants {
			deletedVariantIDs = append(deletedVariantIDs, v.ID)
		}
		emit(realtime.ServerMessage{Type: realtime.EventAssetDeleted, Payload: map[string]interface{}{
			"asset_id":            assetID,
			"deleted_variant_ids": deletedVariantIDs,
		}})
		return nil
	})
}

func (c *Coordinator) SetActiveVariant(ctx context.Context, actor Actor, assetID, variantID uuid.UUID) (*types.Asset, error) {
	if err := requireRole(actor, types.RoleEditor); err != nil {
		return nil, err
	}

	var updated *types.Asset
	err := c.apply(ctx, func(dbc dbctx.Context, emit emitFunc) error {
		asset, err := c.assets.GetByID(dbc, assetID)
		if err != nil {
			return apierr.Internal(err)
		}
		if asset == nil {
			return apierr.NotFound("asset %s not found", assetID)
		}
		variant, err := c.variants.GetByID(dbc, variantID)
		if err != nil {
			return apierr.Internal(err)
		}
		if variant == nil {
			return apierr.NotFound("variant %s not found", variantID)
		}
		if variant.AssetID != assetID {
			return apierr.Conflict("variant %s does not belong to asset %s", variantID, assetID)
		}

		asset.ActiveVariantID = &variantID
		asset.UpdatedAt = c.now().UTC()
		if err := c.assets.Save(dbc, asset); err != nil {
			return apierr.Internal(err)
		}
		updated = asset
		emit(realtime.ServerMessage{Type: realtime.EventAssetUpdated, Payload: map[string]interface{}{"asset": asset}})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SpawnAsset forks a source variant into a brand-new asset. The image is
// shared, not copied: the new variant re-references the source's blob keys
// and the counters go up inside the same transaction as the inserts, so a
// crash can never leave a half-counted reference.
func (c *Coordinator) SpawnAsset(ctx context.Context, actor Actor, in SpawnAssetInput) (*types.Asset, *types.Variant, *types.Lineage, error) {
	if err := requireRole(actor, types.RoleEditor); err != nil {
		return nil, nil, nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, nil, nil, apierr.Validation("asset name is required")
	}

	var (
		asset   *types.Asset
		variant *types.Variant
		edge    *types.Lineage
	)
	err := c.apply(ctx, func(dbc dbctx.Context, emit emitFunc) error {
		source, err := c.variants.GetByID(dbc, in.SourceVariantID)
		if err != nil {
			return apierr.Internal(err)
		}
		if source == nil {
			return apierr.NotFound("source variant %s not found", in.SourceVariantID)
		}
		if in.ParentAssetID != nil {
			parent, err := c.assets.GetByID(dbc, *in.ParentAssetID)
			if err != nil {
				return apierr.Internal(err)
			}
			if parent == nil {
				return apierr.NotFound("parent asset %s not found", in.ParentAssetID)
			}
		}

		now := c.now().UTC()
		asset = &types.Asset{
			ID:            uuid.New(),
			Name:          name,
			Kind:          in.AssetType,
			ParentAssetID: in.ParentAssetID,
			CreatedBy:     actor.UserID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		variant = &types.Variant{
			ID:        uuid.New(),
			AssetID:   asset.ID,
			Status:    types.VariantStatusCompleted,
			ImageKey:  source.ImageKey,
			ThumbKey:  source.ThumbKey,
			Recipe:    source.Recipe,
			CreatedBy: actor.UserID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		edge = &types.Lineage{
			ID:              uuid.New(),
			ParentVariantID: source.ID,
			ChildVariantID:  variant.ID,
			RelationType:    types.RelationSpawned,
			CreatedAt:       now,
		}

		if _, err := c.assets.Create(dbc, []*types.Asset{asset}); err != nil {
			return apierr.Internal(err)
		}
		if _, err := c.variants.Create(dbc, []*types.Variant{variant}); err != nil {
			return apierr.Internal(err)
		}
		if err := c.refs.Acquire(dbc, variant.BlobKeys()...); err != nil {
			return apierr.Internal(err)
		}
		if _, err := c.lineage.Create(dbc, []*types.Lineage{edge}); err != nil {
			return apierr.Internal(err)
		}
		asset.ActiveVariantID = &variant.ID
		if err := c.assets.Save(dbc, asset); err != nil {
			return apierr.Internal(err)
		}

		emit(realtime.ServerMessage{Type: realtime.EventAssetSpawned, Payload: map[string]interface{}{
			"asset":   asset,
			"variant": variant,
			"lineage": edge,
		}})
		return nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return asset, variant, edge, nil
}
