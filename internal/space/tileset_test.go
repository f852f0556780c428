package space

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/atelier-backend/internal/platform/apierr"
	"github.com/yungbote/atelier-backend/internal/space/tiles"
	"github.com/yungbote/atelier-backend/internal/types"
)

func (e *testEnv) tileSet(t *testing.T, id uuid.UUID) *types.TileSet {
	t.Helper()
	set, err := e.coord.tileSets.GetByID(e.coord.read(context.Background()), id)
	if err != nil {
		t.Fatalf("tileSets.GetByID: %v", err)
	}
	if set == nil {
		t.Fatalf("tile set not found")
	}
	return set
}

func (e *testEnv) positions(t *testing.T, id uuid.UUID) []*types.TilePosition {
	t.Helper()
	positions, err := e.coord.tilePositions.GetByTileSetID(e.coord.read(context.Background()), id)
	if err != nil {
		t.Fatalf("tilePositions.GetByTileSetID: %v", err)
	}
	return positions
}

func TestRequestTileSetValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	editor := e.editor()
	asset := mustCreateAsset(t, e, editor, "map", nil)

	_, err := e.coord.RequestTileSet(ctx, editor, RequestTileSetInput{
		AssetID: asset.ID, TileType: "terrain", GridWidth: 6, GridHeight: 3,
	})
	wantCode(t, err, apierr.CodeValidation)

	_, err = e.coord.RequestTileSet(ctx, editor, RequestTileSetInput{
		AssetID: asset.ID, TileType: "", GridWidth: 3, GridHeight: 3,
	})
	wantCode(t, err, apierr.CodeValidation)

	_, err = e.coord.RequestTileSet(ctx, e.viewer(), RequestTileSetInput{
		AssetID: asset.ID, TileType: "terrain", GridWidth: 3, GridHeight: 3,
	})
	wantCode(t, err, apierr.CodePermissionDenied)

	if _, err := e.coord.RequestTileSet(ctx, editor, RequestTileSetInput{
		AssetID: asset.ID, TileType: "terrain", GridWidth: 3, GridHeight: 3,
	}); err != nil {
		t.Fatalf("valid request: %v", err)
	}
	_, err = e.coord.RequestTileSet(ctx, editor, RequestTileSetInput{
		AssetID: asset.ID, TileType: "terrain", GridWidth: 3, GridHeight: 3,
	})
	wantCode(t, err, apierr.CodeConflict)
}

// Walks a 3x3 spiral set to completion, checking that cells arrive in
// spiral order and that every cell after the first is conditioned on at
// least one completed neighbor image.
func TestSpiralPipelineCompletes(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	editor := e.editor()
	asset := mustCreateAsset(t, e, editor, "map", nil)

	set, err := e.coord.RequestTileSet(ctx, editor, RequestTileSetInput{
		AssetID: asset.ID, TileType: "terrain", GridWidth: 3, GridHeight: 3, Prompt: "rolling hills",
	})
	if err != nil {
		t.Fatalf("RequestTileSet: %v", err)
	}

	wantOrder := tiles.SpiralOrder(3, 3)
	var gotOrder []types.GridCoord

	pending := e.disp.take()
	step := 0
	for len(pending) > 0 {
		if len(pending) != 1 {
			t.Fatalf("step %d: want one in-flight job, got %d", step, len(pending))
		}
		req := pending[0]
		if req.GridX == nil || req.GridY == nil {
			t.Fatalf("step %d: cell job missing coordinates", step)
		}
		cell := types.GridCoord{X: *req.GridX, Y: *req.GridY}
		gotOrder = append(gotOrder, cell)
		if step > 0 && len(req.NeighborImageKeys) == 0 {
			t.Fatalf("step %d: cell %v dispatched without neighbor conditioning", step, cell)
		}

		if _, err := e.coord.ApplyCompletedJob(ctx, ApplyJobInput{
			JobID:    req.JobID,
			AssetID:  req.AssetID,
			ImageKey: fmt.Sprintf("blobs/cell_%d_%d.png", cell.X, cell.Y),
		}); err != nil {
			t.Fatalf("step %d: apply: %v", step, err)
		}
		step++
		pending = e.disp.take()
	}

	if len(gotOrder) != len(wantOrder) {
		t.Fatalf("steps: want=%d got=%d", len(wantOrder), len(gotOrder))
	}
	for i := range wantOrder {
		if gotOrder[i] != wantOrder[i] {
			t.Fatalf("step %d: want=%v got=%v", i, wantOrder[i], gotOrder[i])
		}
	}

	final := e.tileSet(t, set.ID)
	if final.Status != types.TileSetStatusCompleted {
		t.Fatalf("status: want=%s got=%s", types.TileSetStatusCompleted, final.Status)
	}
	for _, pos := range e.positions(t, set.ID) {
		if pos.Status != types.TilePositionCompleted {
			t.Fatalf("cell (%d,%d): want completed, got %s", pos.GridX, pos.GridY, pos.Status)
		}
	}
}

func TestFirstCellFailureFailsSetAndRetryRecovers(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	editor := e.editor()
	asset := mustCreateAsset(t, e, editor, "map", nil)

	set, err := e.coord.RequestTileSet(ctx, editor, RequestTileSetInput{
		AssetID: asset.ID, TileType: "terrain", GridWidth: 2, GridHeight: 2,
	})
	if err != nil {
		t.Fatalf("RequestTileSet: %v", err)
	}
	first := e.disp.take()[0]

	if err := e.coord.FailJob(ctx, first.JobID, "model error"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	if got := e.tileSet(t, set.ID).Status; got != types.TileSetStatusFailed {
		t.Fatalf("status after first-cell failure: want=%s got=%s", types.TileSetStatusFailed, got)
	}

	if err := e.coord.RetryTile(ctx, editor, set.ID, *first.GridX, *first.GridY); err != nil {
		t.Fatalf("RetryTile: %v", err)
	}
	if got := e.tileSet(t, set.ID).Status; got != types.TileSetStatusActive {
		t.Fatalf("status after retry: want=%s got=%s", types.TileSetStatusActive, got)
	}

	pending := e.disp.take()
	for len(pending) > 0 {
		req := pending[0]
		if _, err := e.coord.ApplyCompletedJob(ctx, ApplyJobInput{
			JobID:    req.JobID,
			AssetID:  req.AssetID,
			ImageKey: fmt.Sprintf("blobs/retry_%s.png", req.JobID),
		}); err != nil {
			t.Fatalf("apply: %v", err)
		}
		pending = e.disp.take()
	}
	if got := e.tileSet(t, set.ID).Status; got != types.TileSetStatusCompleted {
		t.Fatalf("final status: want=%s got=%s", types.TileSetStatusCompleted, got)
	}
}

func TestRetryTileRejectsNonFailedCell(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	editor := e.editor()
	asset := mustCreateAsset(t, e, editor, "map", nil)

	set, err := e.coord.RequestTileSet(ctx, editor, RequestTileSetInput{
		AssetID: asset.ID, TileType: "terrain", GridWidth: 2, GridHeight: 2,
	})
	if err != nil {
		t.Fatalf("RequestTileSet: %v", err)
	}
	first := e.disp.take()[0]

	err = e.coord.RetryTile(ctx, editor, set.ID, *first.GridX, *first.GridY)
	wantCode(t, err, apierr.CodeConflict)

	err = e.coord.RetryTile(ctx, editor, set.ID, 0, 0)
	if apierr.From(err).Code != apierr.CodeConflict && apierr.From(err).Code != apierr.CodeNotFound {
		t.Fatalf("unoccupied cell retry: want CONFLICT or NOT_FOUND, got %v", err)
	}
}

func TestCancelStopsDispatchButMergesInFlight(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	editor := e.editor()
	asset := mustCreateAsset(t, e, editor, "map", nil)

	set, err := e.coord.RequestTileSet(ctx, editor, RequestTileSetInput{
		AssetID: asset.ID, TileType: "terrain", GridWidth: 2, GridHeight: 2,
	})
	if err != nil {
		t.Fatalf("RequestTileSet: %v", err)
	}
	first := e.disp.take()[0]

	if err := e.coord.CancelTileSet(ctx, editor, set.ID); err != nil {
		t.Fatalf("CancelTileSet: %v", err)
	}

	// The in-flight job still merges as a variant, but the set does not
	// advance.
	res, err := e.coord.ApplyCompletedJob(ctx, ApplyJobInput{
		JobID:    first.JobID,
		AssetID:  first.AssetID,
		ImageKey: "blobs/late.png",
	})
	if err != nil {
		t.Fatalf("apply after cancel: %v", err)
	}
	if res.Variant.Status != types.VariantStatusCompleted {
		t.Fatalf("in-flight variant should complete, got %s", res.Variant.Status)
	}
	if got := e.disp.take(); len(got) != 0 {
		t.Fatalf("cancelled set must not dispatch, got %d jobs", len(got))
	}
	if got := e.tileSet(t, set.ID).Status; got != types.TileSetStatusCancelled {
		t.Fatalf("status: want=%s got=%s", types.TileSetStatusCancelled, got)
	}

	err = e.coord.CancelTileSet(ctx, editor, set.ID)
	wantCode(t, err, apierr.CodeConflict)
}

func TestRefineEdgesWalksCompletedGrid(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	editor := e.editor()
	asset := mustCreateAsset(t, e, editor, "map", nil)

	set, err := e.coord.RequestTileSet(ctx, editor, RequestTileSetInput{
		AssetID: asset.ID, TileType: "terrain", GridWidth: 2, GridHeight: 2,
	})
	if err != nil {
		t.Fatalf("RequestTileSet: %v", err)
	}
	pending := e.disp.take()
	for len(pending) > 0 {
		req := pending[0]
		if _, err := e.coord.ApplyCompletedJob(ctx, ApplyJobInput{
			JobID:    req.JobID,
			AssetID:  req.AssetID,
			ImageKey: fmt.Sprintf("blobs/base_%s.png", req.JobID),
		}); err != nil {
			t.Fatalf("apply: %v", err)
		}
		pending = e.disp.take()
	}

	if err := e.coord.RefineEdges(ctx, editor, set.ID); err != nil {
		t.Fatalf("RefineEdges: %v", err)
	}

	refined := 0
	pending = e.disp.take()
	for len(pending) > 0 {
		req := pending[0]
		if req.Kind != "refine" {
			t.Fatalf("refine pass dispatched kind %q", req.Kind)
		}
		refined++
		if _, err := e.coord.ApplyCompletedJob(ctx, ApplyJobInput{
			JobID:    req.JobID,
			AssetID:  req.AssetID,
			ImageKey: fmt.Sprintf("blobs/refined_%s.png", req.JobID),
		}); err != nil {
			t.Fatalf("apply refine: %v", err)
		}
		pending = e.disp.take()
	}
	if refined != 4 {
		t.Fatalf("refined cells: want=4 got=%d", refined)
	}
	if got := e.tileSet(t, set.ID).Status; got != types.TileSetStatusCompleted {
		t.Fatalf("status after refine: want=%s got=%s", types.TileSetStatusCompleted, got)
	}

	// A second pass is allowed once the first finished, but not while one
	// is still running.
	if err := e.coord.RefineEdges(ctx, editor, set.ID); err != nil {
		t.Fatalf("second refine pass: %v", err)
	}
	err = e.coord.RefineEdges(ctx, editor, set.ID)
	wantCode(t, err, apierr.CodeConflict)
}

func TestSingleShotSlicesGridIntoCells(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	editor := e.editor()
	asset := mustCreateAsset(t, e, editor, "map", nil)

	set, err := e.coord.RequestTileSet(ctx, editor, RequestTileSetInput{
		AssetID: asset.ID, TileType: "terrain", GridWidth: 2, GridHeight: 2,
		Mode: types.TileModeSingleShot,
	})
	if err != nil {
		t.Fatalf("RequestTileSet: %v", err)
	}
	pending := e.disp.take()
	if len(pending) != 1 || pending[0].Kind != "grid" {
		t.Fatalf("want one grid job, got %+v", pending)
	}

	// A 65x63 image: not divisible by the grid on either axis.
	img := image.NewRGBA(image.Rect(0, 0, 65, 63))
	for y := 0; y < 63; y++ {
		for x := 0; x < 65; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode grid png: %v", err)
	}
	e.blobs.put("blobs/grid.png", buf.Bytes())

	if _, err := e.coord.ApplyCompletedJob(ctx, ApplyJobInput{
		JobID:    pending[0].JobID,
		AssetID:  pending[0].AssetID,
		ImageKey: "blobs/grid.png",
	}); err != nil {
		t.Fatalf("apply grid job: %v", err)
	}

	if got := e.tileSet(t, set.ID).Status; got != types.TileSetStatusCompleted {
		t.Fatalf("status: want=%s got=%s", types.TileSetStatusCompleted, got)
	}
	positions := e.positions(t, set.ID)
	if len(positions) != 4 {
		t.Fatalf("positions: want=4 got=%d", len(positions))
	}
	for _, pos := range positions {
		if pos.Status != types.TilePositionCompleted {
			t.Fatalf("cell (%d,%d): want completed, got %s", pos.GridX, pos.GridY, pos.Status)
		}
		v, err := e.coord.variants.GetByID(e.coord.read(ctx), pos.VariantID)
		if err != nil || v == nil {
			t.Fatalf("cell variant missing: %v", err)
		}
		if !e.blobs.exists(v.ImageKey) || !e.blobs.exists(v.ThumbKey) {
			t.Fatalf("cell (%d,%d): sliced blobs not uploaded", pos.GridX, pos.GridY)
		}
	}
	if got := e.disp.take(); len(got) != 0 {
		t.Fatalf("single-shot must not dispatch cell jobs, got %d", len(got))
	}
}

func TestDispatchFailureFailsCell(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	editor := e.editor()
	asset := mustCreateAsset(t, e, editor, "map", nil)

	e.disp.failNext = errors.New("executor unavailable")
	set, err := e.coord.RequestTileSet(ctx, editor, RequestTileSetInput{
		AssetID: asset.ID, TileType: "terrain", GridWidth: 2, GridHeight: 2,
	})
	if err != nil {
		t.Fatalf("RequestTileSet should commit even when dispatch fails: %v", err)
	}
	if got := e.tileSet(t, set.ID).Status; got != types.TileSetStatusFailed {
		t.Fatalf("status after dispatch failure: want=%s got=%s", types.TileSetStatusFailed, got)
	}
}
