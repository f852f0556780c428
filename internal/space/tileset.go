package space

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/atelier-backend/internal/platform/apierr"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/realtime"
	"github.com/yungbote/atelier-backend/internal/services"
	"github.com/yungbote/atelier-backend/internal/space/tiles"
	"github.com/yungbote/atelier-backend/internal/types"
)

const (
	minGridDim = 2
	maxGridDim = 5

	thumbMaxDim = 256
)

// RequestTileSetInput starts a grid-generation workflow on an asset.
type RequestTileSetInput struct {
	AssetID       uuid.UUID  `json:"asset_id"`
	TileType      string     `json:"tile_type"`
	GridWidth     int        `json:"grid_width"`
	GridHeight    int        `json:"grid_height"`
	Mode          string     `json:"mode,omitempty"`
	Prompt        string     `json:"prompt,omitempty"`
	AspectRatio   string     `json:"aspect_ratio,omitempty"`
	SeedVariantID *uuid.UUID `json:"seed_variant_id,omitempty"`
}

// RequestTileSet validates and opens a tile set, then dispatches its first
// generation job after the open commits. Spiral mode produces one job per
// cell walked outward from the grid center; single-shot mode produces one
// grid-sized job that the coordinator slices locally on completion.
func (c *Coordinator) RequestTileSet(ctx context.Context, actor Actor, in RequestTileSetInput) (*types.TileSet, error) {
	if err := requireRole(actor, types.RoleEditor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.TileType) == "" {
		return nil, apierr.Validation("tile type is required")
	}
	if in.GridWidth < minGridDim || in.GridWidth > maxGridDim ||
		in.GridHeight < minGridDim || in.GridHeight > maxGridDim {
		return nil, apierr.Validation("grid dimensions must be between %d and %d", minGridDim, maxGridDim)
	}
	mode := in.Mode
	if mode == "" {
		mode = types.TileModeSpiral
	}
	if mode != types.TileModeSpiral && mode != types.TileModeSingleShot {
		return nil, apierr.Validation("unknown tile mode %q", mode)
	}

	var set *types.TileSet
	err := c.apply(ctx, func(dbc dbctx.Context, emit emitFunc) error {
		asset, err := c.assets.GetByID(dbc, in.AssetID)
		if err != nil {
			return apierr.Internal(err)
		}
		if asset == nil {
			return apierr.NotFound("asset %s not found", in.AssetID)
		}
		active, err := c.tileSets.GetActiveByAssetID(dbc, in.AssetID)
		if err != nil {
			return apierr.Internal(err)
		}
		if len(active) > 0 {
			return apierr.Conflict("asset %s already has an active tile set", in.AssetID)
		}

		var seedKey string
		if in.SeedVariantID != nil {
			seed, err := c.variants.GetByID(dbc, *in.SeedVariantID)
			if err != nil {
				return apierr.Internal(err)
			}
			if seed == nil {
				return apierr.NotFound("seed variant %s not found", *in.SeedVariantID)
			}
			if seed.Status != types.VariantStatusCompleted {
				return apierr.Conflict("seed variant %s has no completed image", *in.SeedVariantID)
			}
			seedKey = seed.ImageKey
		}

		config, err := types.EncodeTileSetConfig(types.TileSetConfig{
			Prompt:      in.Prompt,
			AspectRatio: in.AspectRatio,
			Mode:        mode,
		})
		if err != nil {
			return apierr.Internal(err)
		}

		now := c.now().UTC()
		set = &types.TileSet{
			ID:            uuid.New(),
			AssetID:       in.AssetID,
			TileType:      in.TileType,
			GridWidth:     in.GridWidth,
			GridHeight:    in.GridHeight,
			SeedVariantID: in.SeedVariantID,
			Config:        config,
			TotalSteps:    in.GridWidth * in.GridHeight,
			Status:        types.TileSetStatusActive,
			CreatedBy:     actor.UserID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if _, err := c.tileSets.Create(dbc, set); err != nil {
			return apierr.Internal(err)
		}
		emit(realtime.ServerMessage{Type: realtime.EventTileSetStarted, Payload: map[string]interface{}{"tile_set": set}})

		if mode == types.TileModeSingleShot {
			return c.dispatchGridJob(dbc, set, actor.UserID, in.Prompt, in.AspectRatio, seedKey)
		}
		first := tiles.SpiralOrder(in.GridWidth, in.GridHeight)[0]
		return c.dispatchCell(dbc, emit, set, first, actor.UserID, "cell", seedKey)
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// dispatchCell inserts the pending variant and generating position for one
// cell, then queues the executor job for after commit. Conditioning inputs
// (completed axis-neighbor images plus the optional seed) are gathered fresh
// here so a retried or late dispatch always sees current neighbor state.
func (c *Coordinator) dispatchCell(dbc dbctx.Context, emit emitFunc, set *types.TileSet, cell types.GridCoord, createdBy uuid.UUID, kind string, seedKey string) error {
	config, err := types.DecodeTileSetConfig(set.Config)
	if err != nil {
		return apierr.Internal(err)
	}

	neighborKeys, parentIDs, err := c.completedNeighborInputs(dbc, set, cell)
	if err != nil {
		return err
	}
	inputs := neighborKeys
	if seedKey != "" {
		inputs = append(inputs, seedKey)
	}
	if seedKey != "" && set.SeedVariantID != nil {
		parentIDs = append(parentIDs, *set.SeedVariantID)
	}

	recipe, err := types.EncodeRecipe(types.Recipe{
		Kind:             "tile_cell",
		Prompt:           config.Prompt,
		AspectRatio:      config.AspectRatio,
		InputImageKeys:   inputs,
		ParentVariantIDs: parentIDs,
		TileSetID:        &set.ID,
	})
	if err != nil {
		return apierr.Internal(err)
	}

	now := c.now().UTC()
	jobID := uuid.NewString()
	variant := &types.Variant{
		ID:        uuid.New(),
		AssetID:   set.AssetID,
		JobID:     &jobID,
		Status:    types.VariantStatusPending,
		Recipe:    recipe,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := c.variants.Create(dbc, []*types.Variant{variant}); err != nil {
		return apierr.Internal(err)
	}
	// Input image refs are held from dispatch so neighbor deletion cannot
	// retire a blob the executor is still reading.
	if err := c.refs.Acquire(dbc, inputs...); err != nil {
		return apierr.Internal(err)
	}

	pos, err := c.tilePositions.GetByCell(dbc, set.ID, cell.X, cell.Y)
	if err != nil {
		return apierr.Internal(err)
	}
	if pos == nil {
		pos = &types.TilePosition{
			ID:        uuid.New(),
			TileSetID: set.ID,
			VariantID: variant.ID,
			GridX:     cell.X,
			GridY:     cell.Y,
			Status:    types.TilePositionGenerating,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := c.tilePositions.Create(dbc, []*types.TilePosition{pos}); err != nil {
			return apierr.Internal(err)
		}
	} else {
		pos.VariantID = variant.ID
		pos.Status = types.TilePositionGenerating
		pos.UpdatedAt = now
		if err := c.tilePositions.Save(dbc, pos); err != nil {
			return apierr.Internal(err)
		}
	}
	emit(realtime.ServerMessage{Type: realtime.EventVariantCreated, Payload: map[string]interface{}{"variant": variant}})

	x, y := cell.X, cell.Y
	c.queueDispatch(services.GenerationRequest{
		JobID:             jobID,
		SpaceID:           c.SpaceID,
		AssetID:           set.AssetID,
		VariantID:         variant.ID,
		TileSetID:         &set.ID,
		GridX:             &x,
		GridY:             &y,
		Kind:              kind,
		TileType:          set.TileType,
		Prompt:            config.Prompt,
		AspectRatio:       config.AspectRatio,
		GridWidth:         set.GridWidth,
		GridHeight:        set.GridHeight,
		NeighborImageKeys: neighborKeys,
		SeedImageKey:      seedKey,
	})
	return nil
}

// completedNeighborInputs collects the image keys and variant ids of every
// completed axis neighbor of a cell.
func (c *Coordinator) completedNeighborInputs(dbc dbctx.Context, set *types.TileSet, cell types.GridCoord) ([]string, []uuid.UUID, error) {
	var keys []string
	var parents []uuid.UUID
	for _, n := range tiles.Neighbors(set.GridWidth, set.GridHeight, cell.X, cell.Y) {
		pos, err := c.tilePositions.GetByCell(dbc, set.ID, n.X, n.Y)
		if err != nil {
			return nil, nil, apierr.Internal(err)
		}
		if pos == nil || pos.Status != types.TilePositionCompleted {
			continue
		}
		v, err := c.variants.GetByID(dbc, pos.VariantID)
		if err != nil {
			return nil, nil, apierr.Internal(err)
		}
		if v == nil || v.ImageKey == "" {
			continue
		}
		keys = append(keys, v.ImageKey)
		parents = append(parents, v.ID)
	}
	return keys, parents, nil
}

// dispatchGridJob queues the one whole-grid job of a single-shot tile set.
// The pending variant it creates receives the full grid image on completion
// and doubles as the lineage parent of every sliced cell.
func (c *Coordinator) dispatchGridJob(dbc dbctx.Context, set *types.TileSet, createdBy uuid.UUID, prompt, aspectRatio, seedKey string) error {
	var inputs []string
	var parents []uuid.UUID
	if seedKey != "" {
		inputs = append(inputs, seedKey)
	}
	if set.SeedVariantID != nil {
		parents = append(parents, *set.SeedVariantID)
	}
	recipe, err := types.EncodeRecipe(types.Recipe{
		Kind:             "tile_grid",
		Prompt:           prompt,
		AspectRatio:      aspectRatio,
		InputImageKeys:   inputs,
		ParentVariantIDs: parents,
		TileSetID:        &set.ID,
	})
	if err != nil {
		return apierr.Internal(err)
	}

	now := c.now().UTC()
	jobID := uuid.NewString()
	variant := &types.Variant{
		ID:        uuid.New(),
		AssetID:   set.AssetID,
		JobID:     &jobID,
		Status:    types.VariantStatusPending,
		Recipe:    recipe,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := c.variants.Create(dbc, []*types.Variant{variant}); err != nil {
		return apierr.Internal(err)
	}
	if err := c.refs.Acquire(dbc, inputs...); err != nil {
		return apierr.Internal(err)
	}

	c.queueDispatch(services.GenerationRequest{
		JobID:        jobID,
		SpaceID:      c.SpaceID,
		AssetID:      set.AssetID,
		VariantID:    variant.ID,
		TileSetID:    &set.ID,
		Kind:         "grid",
		TileType:     set.TileType,
		Prompt:       prompt,
		AspectRatio:  aspectRatio,
		GridWidth:    set.GridWidth,
		GridHeight:   set.GridHeight,
		SeedImageKey: seedKey,
	})
	return nil
}

// onTileVariantTerminal reconnects a variant that just reached a terminal
// status to the tile pipeline: cell variants update their position and step
// the owning set forward, grid variants trigger local slicing. Variants
// outside any tile set fall straight through.
func (c *Coordinator) onTileVariantTerminal(dbc dbctx.Context, emit emitFunc, variant *types.Variant, posStatus string) error {
	pos, err := c.tilePositions.GetByVariantID(dbc, variant.ID)
	if err != nil {
		return apierr.Internal(err)
	}
	if pos == nil {
		recipe, err := types.DecodeRecipe(variant.Recipe)
		if err != nil || recipe.TileSetID == nil || recipe.Kind != "tile_grid" {
			return nil
		}
		return c.onGridVariantTerminal(dbc, emit, variant, *recipe.TileSetID)
	}

	pos.Status = posStatus
	pos.UpdatedAt = c.now().UTC()
	if err := c.tilePositions.Save(dbc, pos); err != nil {
		return apierr.Internal(err)
	}

	set, err := c.tileSets.GetByID(dbc, pos.TileSetID)
	if err != nil {
		return apierr.Internal(err)
	}
	if set == nil {
		return nil
	}
	emit(realtime.ServerMessage{Type: realtime.EventTileCompleted, Payload: map[string]interface{}{
		"tile_set_id": set.ID,
		"position":    pos,
		"variant":     variant,
	}})
	return c.advanceTileSet(dbc, emit, set)
}

func (c *Coordinator) onGridVariantTerminal(dbc dbctx.Context, emit emitFunc, variant *types.Variant, tileSetID uuid.UUID) error {
	set, err := c.tileSets.GetByID(dbc, tileSetID)
	if err != nil {
		return apierr.Internal(err)
	}
	if set == nil || set.Status != types.TileSetStatusActive {
		return nil
	}
	if variant.Status != types.VariantStatusCompleted {
		return c.markTileSetFailed(dbc, emit, set, "grid generation failed")
	}
	// Slicing failures keep the completed grid variant but fail the set;
	// rolling the merge back would only make the executor redo the image.
	if err := c.applySingleShot(dbc, emit, set, variant); err != nil {
		c.log.Error("Single-shot slicing failed", "tile_set_id", set.ID.String(), "error", err)
		return c.markTileSetFailed(dbc, emit, set, err.Error())
	}
	return nil
}

// advanceTileSet moves an active spiral set one step: while a cell is still
// generating it waits; with the grid fully terminal it drains the refine
// queue; otherwise it dispatches the next unoccupied spiral coordinate.
func (c *Coordinator) advanceTileSet(dbc dbctx.Context, emit emitFunc, set *types.TileSet) error {
	if set.Status != types.TileSetStatusActive {
		return nil
	}
	positions, err := c.tilePositions.GetByTileSetID(dbc, set.ID)
	if err != nil {
		return apierr.Internal(err)
	}

	occupied := make(map[types.GridCoord]*types.TilePosition, len(positions))
	completed := 0
	for _, p := range positions {
		occupied[types.GridCoord{X: p.GridX, Y: p.GridY}] = p
		switch p.Status {
		case types.TilePositionPending, types.TilePositionGenerating:
			// A job is in flight; its completion re-enters here.
			return nil
		case types.TilePositionCompleted:
			completed++
		}
	}

	if len(positions) < set.TotalSteps {
		if completed == 0 && len(positions) > 0 {
			// The opening cell died and nothing can condition the rest.
			return c.markTileSetFailed(dbc, emit, set, "first cell failed")
		}
		for _, cell := range tiles.SpiralOrder(set.GridWidth, set.GridHeight) {
			if _, ok := occupied[cell]; ok {
				continue
			}
			return c.dispatchCell(dbc, emit, set, cell, set.CreatedBy, "cell", "")
		}
		return nil
	}

	config, err := types.DecodeTileSetConfig(set.Config)
	if err != nil {
		return apierr.Internal(err)
	}
	for len(config.RefineQueue) > 0 {
		next := config.RefineQueue[0]
		config.RefineQueue = config.RefineQueue[1:]
		set.Config, err = types.EncodeTileSetConfig(config)
		if err != nil {
			return apierr.Internal(err)
		}
		if err := c.tileSets.Save(dbc, set); err != nil {
			return apierr.Internal(err)
		}
		if pos := occupied[next]; pos == nil || pos.Status != types.TilePositionCompleted {
			continue
		}
		return c.dispatchCell(dbc, emit, set, next, set.CreatedBy, "refine", "")
	}

	set.Status = types.TileSetStatusCompleted
	set.UpdatedAt = c.now().UTC()
	if err := c.tileSets.Save(dbc, set); err != nil {
		return apierr.Internal(err)
	}
	emit(realtime.ServerMessage{Type: realtime.EventTileSetCompleted, Payload: map[string]interface{}{"tile_set": set}})
	return nil
}

func (c *Coordinator) markTileSetFailed(dbc dbctx.Context, emit emitFunc, set *types.TileSet, reason string) error {
	set.Status = types.TileSetStatusFailed
	set.UpdatedAt = c.now().UTC()
	if err := c.tileSets.Save(dbc, set); err != nil {
		return apierr.Internal(err)
	}
	emit(realtime.ServerMessage{Type: realtime.EventTileSetFailed, Payload: map[string]interface{}{
		"tile_set": set,
		"reason":   reason,
	}})
	return nil
}

// RetryTile discards a failed cell and dispatches it again with freshly
// gathered neighbor conditioning.
func (c *Coordinator) RetryTile(ctx context.Context, actor Actor, tileSetID uuid.UUID, x, y int) error {
	if err := requireRole(actor, types.RoleEditor); err != nil {
		return err
	}
	return c.apply(ctx, func(dbc dbctx.Context, emit emitFunc) error {
		set, err := c.tileSets.GetByID(dbc, tileSetID)
		if err != nil {
			return apierr.Internal(err)
		}
		if set == nil {
			return apierr.NotFound("tile set %s not found", tileSetID)
		}
		if set.Status == types.TileSetStatusCancelled {
			return apierr.Conflict("tile set %s is cancelled", tileSetID)
		}
		pos, err := c.tilePositions.GetByCell(dbc, tileSetID, x, y)
		if err != nil {
			return apierr.Internal(err)
		}
		if pos == nil {
			return apierr.NotFound("cell (%d,%d) has no position", x, y)
		}
		if pos.Status != types.TilePositionFailed {
			return apierr.Conflict("cell (%d,%d) is %s, only failed cells can be retried", x, y, pos.Status)
		}

		dead, err := c.variants.GetByID(dbc, pos.VariantID)
		if err != nil {
			return apierr.Internal(err)
		}
		if dead != nil {
			if err := c.deleteVariantRows(dbc, []*types.Variant{dead}); err != nil {
				return err
			}
			emit(realtime.ServerMessage{Type: realtime.EventVariantDeleted, Payload: map[string]interface{}{
				"variant_id": dead.ID,
				"asset_id":   dead.AssetID,
			}})
		} else if err := c.tilePositions.DeleteByIDs(dbc, []uuid.UUID{pos.ID}); err != nil {
			return apierr.Internal(err)
		}

		if set.Status == types.TileSetStatusFailed {
			set.Status = types.TileSetStatusActive
			set.UpdatedAt = c.now().UTC()
			if err := c.tileSets.Save(dbc, set); err != nil {
				return apierr.Internal(err)
			}
		}
		return c.dispatchCell(dbc, emit, set, types.GridCoord{X: x, Y: y}, actor.UserID, "cell", "")
	})
}

// CancelTileSet stops an active workflow cooperatively: no further cells are
// dispatched, and jobs already in flight merge their variants without
// advancing the set.
func (c *Coordinator) CancelTileSet(ctx context.Context, actor Actor, tileSetID uuid.UUID) error {
	if err := requireRole(actor, types.RoleEditor); err != nil {
		return err
	}
	return c.apply(ctx, func(dbc dbctx.Context, emit emitFunc) error {
		set, err := c.tileSets.GetByID(dbc, tileSetID)
		if err != nil {
			return apierr.Internal(err)
		}
		if set == nil {
			return apierr.NotFound("tile set %s not found", tileSetID)
		}
		if set.Status != types.TileSetStatusActive {
			return apierr.Conflict("tile set %s is %s, only active sets can be cancelled", tileSetID, set.Status)
		}
		set.Status = types.TileSetStatusCancelled
		set.UpdatedAt = c.now().UTC()
		if err := c.tileSets.Save(dbc, set); err != nil {
			return apierr.Internal(err)
		}
		emit(realtime.ServerMessage{Type: realtime.EventTileSetCancelled, Payload: map[string]interface{}{"tile_set": set}})
		return nil
	})
}

// RefineEdges queues a regeneration pass over every completed cell of a
// finished grid, in the original spiral order, so each refinement sees its
// neighbors' freshest images.
func (c *Coordinator) RefineEdges(ctx context.Context, actor Actor, tileSetID uuid.UUID) error {
	if err := requireRole(actor, types.RoleEditor); err != nil {
		return err
	}
	return c.apply(ctx, func(dbc dbctx.Context, emit emitFunc) error {
		set, err := c.tileSets.GetByID(dbc, tileSetID)
		if err != nil {
			return apierr.Internal(err)
		}
		if set == nil {
			return apierr.NotFound("tile set %s not found", tileSetID)
		}
		if set.Status != types.TileSetStatusCompleted {
			return apierr.Conflict("tile set %s is %s, only completed sets can be refined", tileSetID, set.Status)
		}
		config, err := types.DecodeTileSetConfig(set.Config)
		if err != nil {
			return apierr.Internal(err)
		}
		config.RefineQueue = tiles.SpiralOrder(set.GridWidth, set.GridHeight)
		set.Config, err = types.EncodeTileSetConfig(config)
		if err != nil {
			return apierr.Internal(err)
		}
		set.Status = types.TileSetStatusActive
		set.UpdatedAt = c.now().UTC()
		if err := c.tileSets.Save(dbc, set); err != nil {
			return apierr.Internal(err)
		}
		emit(realtime.ServerMessage{Type: realtime.EventTileSetStarted, Payload: map[string]interface{}{"tile_set": set}})
		return c.advanceTileSet(dbc, emit, set)
	})
}

// RefineTile regenerates a single completed cell in place.
func (c *Coordinator) RefineTile(ctx context.Context, actor Actor, tileSetID uuid.UUID, x, y int) error {
	if err := requireRole(actor, types.RoleEditor); err != nil {
		return err
	}
	return c.apply(ctx, func(dbc dbctx.Context, emit emitFunc) error {
		set, err := c.tileSets.GetByID(dbc, tileSetID)
		if err != nil {
			return apierr.Internal(err)
		}
		if set == nil {
			return apierr.NotFound("tile set %s not found", tileSetID)
		}
		if set.Status == types.TileSetStatusCancelled {
			return apierr.Conflict("tile set %s is cancelled", tileSetID)
		}
		pos, err := c.tilePositions.GetByCell(dbc, tileSetID, x, y)
		if err != nil {
			return apierr.Internal(err)
		}
		if pos == nil || pos.Status != types.TilePositionCompleted {
			return apierr.Conflict("cell (%d,%d) has no completed image to refine", x, y)
		}
		if set.Status != types.TileSetStatusActive {
			set.Status = types.TileSetStatusActive
			set.UpdatedAt = c.now().UTC()
			if err := c.tileSets.Save(dbc, set); err != nil {
				return apierr.Internal(err)
			}
		}
		return c.dispatchCell(dbc, emit, set, types.GridCoord{X: x, Y: y}, actor.UserID, "refine", "")
	})
}

// applySingleShot slices the completed grid image into per-cell variants.
// Cell bounds derive from the decoded image's actual dimensions, since the
// generator may not honor exact pixel sizes. Uploads of the cell and
// thumbnail blobs run concurrently; row writes stay in the caller's
// transaction.
func (c *Coordinator) applySingleShot(dbc dbctx.Context, emit emitFunc, set *types.TileSet, grid *types.Variant) error {
	rc, err := c.blobs.Download(dbc.Ctx, grid.ImageKey)
	if err != nil {
		return fmt.Errorf("download grid image: %w", err)
	}
	img, err := tiles.DecodeImage(rc)
	rc.Close()
	if err != nil {
		return err
	}

	type cellBlob struct {
		cell     types.GridCoord
		imageKey string
		thumbKey string
	}
	order := tiles.SpiralOrder(set.GridWidth, set.GridHeight)
	blobs := make([]cellBlob, len(order))

	g, gctx := errgroup.WithContext(dbc.Ctx)
	g.SetLimit(4)
	for i, cell := range order {
		i, cell := i, cell
		g.Go(func() error {
			sliced, err := tiles.SliceCell(img, set.GridWidth, set.GridHeight, cell.X, cell.Y)
			if err != nil {
				return err
			}
			cellPNG, err := tiles.EncodePNG(sliced)
			if err != nil {
				return err
			}
			thumbPNG, err := tiles.EncodePNG(tiles.Thumbnail(sliced, thumbMaxDim))
			if err != nil {
				return err
			}
			imageKey := fmt.Sprintf("spaces/%s/tiles/%s/%d_%d.png", c.SpaceID, set.ID, cell.X, cell.Y)
			thumbKey := fmt.Sprintf("spaces/%s/tiles/%s/%d_%d_thumb.png", c.SpaceID, set.ID, cell.X, cell.Y)
			if err := c.blobs.Upload(gctx, imageKey, bytes.NewReader(cellPNG)); err != nil {
				return err
			}
			if err := c.blobs.Upload(gctx, thumbKey, bytes.NewReader(thumbPNG)); err != nil {
				return err
			}
			blobs[i] = cellBlob{cell: cell, imageKey: imageKey, thumbKey: thumbKey}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("slice grid: %w", err)
	}

	now := c.now().UTC()
	for _, b := range blobs {
		recipe, err := types.EncodeRecipe(types.Recipe{
			Kind:             "tile_cell",
			ParentVariantIDs: []uuid.UUID{grid.ID},
			TileSetID:        &set.ID,
		})
		if err != nil {
			return err
		}
		variant := &types.Variant{
			ID:        uuid.New(),
			AssetID:   set.AssetID,
			Status:    types.VariantStatusCompleted,
			ImageKey:  b.imageKey,
			ThumbKey:  b.thumbKey,
			Recipe:    recipe,
			CreatedBy: grid.CreatedBy,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := c.variants.Create(dbc, []*types.Variant{variant}); err != nil {
			return err
		}
		if err := c.refs.Acquire(dbc, variant.BlobKeys()...); err != nil {
			return err
		}
		if err := c.createRecipeLineage(dbc, emit, variant); err != nil {
			return err
		}
		pos := &types.TilePosition{
			ID:        uuid.New(),
			TileSetID: set.ID,
			VariantID: variant.ID,
			GridX:     b.cell.X,
			GridY:     b.cell.Y,
			Status:    types.TilePositionCompleted,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := c.tilePositions.Create(dbc, []*types.TilePosition{pos}); err != nil {
			return err
		}
		emit(realtime.ServerMessage{Type: realtime.EventVariantCreated, Payload: map[string]interface{}{"variant": variant}})
		emit(realtime.ServerMessage{Type: realtime.EventTileCompleted, Payload: map[string]interface{}{
			"tile_set_id": set.ID,
			"position":    pos,
			"variant":     variant,
		}})
	}

	set.Status = types.TileSetStatusCompleted
	set.UpdatedAt = now
	if err := c.tileSets.Save(dbc, set); err != nil {
		return err
	}
	emit(realtime.ServerMessage{Type: realtime.EventTileSetCompleted, Payload: map[string]interface{}{"tile_set": set}})
	return nil
}
