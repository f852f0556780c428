package space

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/atelier-backend/internal/platform/apierr"
	"github.com/yungbote/atelier-backend/internal/types"
)

// AssetDetails bundles one asset with its variants and direct children.
type AssetDetails struct {
	Asset    *types.Asset     `json:"asset"`
	Variants []*types.Variant `json:"variants"`
	Children []*types.Asset   `json:"children"`
}

func (c *Coordinator) GetAssetDetails(ctx context.Context, actor Actor, assetID uuid.UUID) (*AssetDetails, error) {
	if err := requireRole(actor, types.RoleViewer); err != nil {
		return nil, err
	}
	dbc := c.read(ctx)
	asset, err := c.assets.GetByID(dbc, assetID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if asset == nil {
		return nil, apierr.NotFound("asset %s not found", assetID)
	}
	variants, err := c.variants.GetByAssetIDs(dbc, []uuid.UUID{assetID})
	if err != nil {
		return nil, apierr.Internal(err)
	}
	children, err := c.assets.GetChildren(dbc, assetID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return &AssetDetails{Asset: asset, Variants: variants, Children: children}, nil
}

// GetAssetAncestors walks the parent chain from the asset to the root,
// nearest parent first. The walk carries a visited guard so a corrupted
// parent cycle terminates instead of looping.
func (c *Coordinator) GetAssetAncestors(ctx context.Context, actor Actor, assetID uuid.UUID) ([]*types.Asset, error) {
	if err := requireRole(actor, types.RoleViewer); err != nil {
		return nil, err
	}
	dbc := c.read(ctx)
	asset, err := c.assets.GetByID(dbc, assetID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if asset == nil {
		return nil, apierr.NotFound("asset %s not found", assetID)
	}

	var ancestors []*types.Asset
	seen := map[uuid.UUID]bool{assetID: true}
	for asset.ParentAssetID != nil {
		parent, err := c.assets.GetByID(dbc, *asset.ParentAssetID)
		if err != nil {
			return nil, apierr.Internal(err)
		}
		if parent == nil || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		ancestors = append(ancestors, parent)
		asset = parent
	}
	return ancestors, nil
}
