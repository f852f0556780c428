package space

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/atelier-backend/internal/platform/apierr"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/realtime"
	"github.com/yungbote/atelier-backend/internal/types"
)

// deleteVariantRows removes variants in two explicit phases: first every
// blob key the variants hold is released, then the dependent rows (tile
// positions, lineage edges) and the variant rows themselves go. Database
// cascade alone cannot do this because it knows nothing about the external
// blob store.
func (c *Coordinator) deleteVariantRows(dbc dbctx.Context, variants []*types.Variant) error {
	if len(variants) == 0 {
		return nil
	}

	keys := make([]string, 0, len(variants)*3)
	ids := make([]uuid.UUID, 0, len(variants))
	for _, v := range variants {
		keys = append(keys, v.BlobKeys()...)
		ids = append(ids, v.ID)
	}
	if err := c.refs.Release(dbc, keys...); err != nil {
		return apierr.Internal(err)
	}

	for _, id := range ids {
		pos, err := c.tilePositions.GetByVariantID(dbc, id)
		if err != nil {
			return apierr.Internal(err)
		}
		if pos != nil {
			if err := c.tilePositions.DeleteByIDs(dbc, []uuid.UUID{pos.ID}); err != nil {
				return apierr.Internal(err)
			}
		}
	}
	if err := c.lineage.DeleteByVariantIDs(dbc, ids); err != nil {
		return apierr.Internal(err)
	}
	if err := c.variants.DeleteByIDs(dbc, ids); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

func (c *Coordinator) DeleteVariant(ctx context.Context, actor Actor, variantID uuid.UUID) error {
	if err := requireRole(actor, types.RoleOwner); err != nil {
		return err
	}

	return c.apply(ctx, func(dbc dbctx.Context, emit emitFunc) error {
		variant, err := c.variants.GetByID(dbc, variantID)
		if err != nil {
			return apierr.Internal(err)
		}
		if variant == nil {
			return apierr.NotFound("variant %s not found", variantID)
		}

		if err := c.deleteVariantRows(dbc, []*types.Variant{variant}); err != nil {
			return err
		}

		asset, err := c.assets.GetByID(dbc, variant.AssetID)
		if err != nil {
			return apierr.Internal(err)
		}
		if asset != nil && asset.ActiveVariantID != nil && *asset.ActiveVariantID == variantID {
			asset.ActiveVariantID = nil
			asset.UpdatedAt = c.now().UTC()
			if err := c.assets.Save(dbc, asset); err != nil {
				return apierr.Internal(err)
			}
			emit(realtime.ServerMessage{Type: realtime.EventAssetUpdated, Payload: map[string]interface{}{"asset": asset}})
		}

		emit(realtime.ServerMessage{Type: realtime.EventVariantDeleted, Payload: map[string]interface{}{
			"variant_id": variantID,
			"asset_id":   variant.AssetID,
		}})
		return nil
	})
}

func (c *Coordinator) StarVariant(ctx context.Context, actor Actor, variantID uuid.UUID, starred bool) (*types.Variant, error) {
	if err := requireRole(actor, types.RoleEditor); err != nil {
		return nil, err
	}

	var updated *types.Variant
	err := c.apply(ctx, func(dbc dbctx.Context, emit emitFunc) error {
		variant, err := c.variants.GetByID(dbc, variantID)
		if err != nil {
			return apierr.Internal(err)
		}
		if variant == nil {
			return apierr.NotFound("variant %s not found", variantID)
		}
		variant.Starred = starred
		variant.UpdatedAt = c.now().UTC()
		if err := c.variants.Save(dbc, variant); err != nil {
			return apierr.Internal(err)
		}
		updated = variant
		emit(realtime.ServerMessage{Type: realtime.EventVariantUpdated, Payload: map[string]interface{}{"variant": variant}})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
