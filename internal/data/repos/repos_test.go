package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/atelier-backend/internal/db"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/types"
)

func testStore(t *testing.T) (*db.SpaceStore, *logger.Logger, dbctx.Context) {
	t.Helper()
	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	store, err := db.OpenMemoryStore(log)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, log, dbctx.Context{Ctx: context.Background()}
}

func seedAsset(t *testing.T, store *db.SpaceStore, log *logger.Logger, dbc dbctx.Context) *types.Asset {
	t.Helper()
	repo := NewAssetRepo(store.DB(), log)
	created, err := repo.Create(dbc, []*types.Asset{{
		ID:        uuid.New(),
		Name:      "castle",
		Kind:      "character",
		CreatedBy: uuid.New(),
	}})
	if err != nil {
		t.Fatalf("seed asset: %v", err)
	}
	return created[0]
}

func seedVariant(t *testing.T, store *db.SpaceStore, log *logger.Logger, dbc dbctx.Context, assetID uuid.UUID, status string) *types.Variant {
	t.Helper()
	repo := NewVariantRepo(store.DB(), log)
	jobID := uuid.NewString()
	created, err := repo.Create(dbc, []*types.Variant{{
		ID:        uuid.New(),
		AssetID:   assetID,
		JobID:     &jobID,
		Status:    status,
		CreatedBy: uuid.New(),
	}})
	if err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	return created[0]
}

func TestVariantRepoJobLookup(t *testing.T) {
	store, log, dbc := testStore(t)
	asset := seedAsset(t, store, log, dbc)
	repo := NewVariantRepo(store.DB(), log)

	v := seedVariant(t, store, log, dbc, asset.ID, types.VariantStatusPending)

	got, err := repo.GetByJobID(dbc, *v.JobID)
	if err != nil {
		t.Fatalf("GetByJobID: %v", err)
	}
	if got == nil || got.ID != v.ID {
		t.Fatalf("GetByJobID: unexpected result: %+v", got)
	}

	got, err = repo.GetByJobID(dbc, "no-such-job")
	if err != nil {
		t.Fatalf("GetByJobID (missing): %v", err)
	}
	if got != nil {
		t.Fatalf("GetByJobID (missing): expected nil, got %+v", got)
	}

	// Reusing a job id must hit the unique index.
	dup := *v
	dup.ID = uuid.New()
	if _, err := repo.Create(dbc, []*types.Variant{&dup}); err == nil {
		t.Fatalf("Create: expected duplicate job id to fail")
	}
}

func TestImageRefRepoCounts(t *testing.T) {
	store, log, dbc := testStore(t)
	repo := NewImageRefRepo(store.DB(), log)

	key := "spaces/x/images/a.png"
	for i := 0; i < 3; i++ {
		if err := repo.Increment(dbc, key); err != nil {
			t.Fatalf("Increment %d: %v", i, err)
		}
	}
	ref, err := repo.Get(dbc, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ref == nil || ref.RefCount != 3 {
		t.Fatalf("Get: want count 3, got %+v", ref)
	}

	for want := 2; want >= 0; want-- {
		n, err := repo.Decrement(dbc, key)
		if err != nil {
			t.Fatalf("Decrement: %v", err)
		}
		if n != want {
			t.Fatalf("Decrement: want=%d got=%d", want, n)
		}
	}
	ref, err = repo.Get(dbc, key)
	if err != nil {
		t.Fatalf("Get after zero: %v", err)
	}
	if ref != nil {
		t.Fatalf("Get after zero: row should be gone, got %+v", ref)
	}

	// Untracked keys decrement to zero without creating rows.
	n, err := repo.Decrement(dbc, "spaces/x/images/untracked.png")
	if err != nil {
		t.Fatalf("Decrement (untracked): %v", err)
	}
	if n != 0 {
		t.Fatalf("Decrement (untracked): want=0 got=%d", n)
	}

	if err := repo.Increment(dbc, ""); err != nil {
		t.Fatalf("Increment (empty key): %v", err)
	}
	refs, err := repo.List(dbc)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(refs) != 0 {
		t.Fatalf("List: empty keys must not be tracked, got %+v", refs)
	}
}

func TestLineageRepoDirections(t *testing.T) {
	store, log, dbc := testStore(t)
	asset := seedAsset(t, store, log, dbc)
	parent := seedVariant(t, store, log, dbc, asset.ID, types.VariantStatusCompleted)
	child := seedVariant(t, store, log, dbc, asset.ID, types.VariantStatusCompleted)
	repo := NewLineageRepo(store.DB(), log)

	edges, err := repo.Create(dbc, []*types.Lineage{{
		ID:              uuid.New(),
		ParentVariantID: parent.ID,
		ChildVariantID:  child.ID,
		RelationType:    types.RelationDerived,
	}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	edge := edges[0]

	parents, err := repo.GetParents(dbc, child.ID)
	if err != nil {
		t.Fatalf("GetParents: %v", err)
	}
	if len(parents) != 1 || parents[0].ParentVariantID != parent.ID {
		t.Fatalf("GetParents: unexpected result: %+v", parents)
	}
	children, err := repo.GetChildren(dbc, parent.ID)
	if err != nil {
		t.Fatalf("GetChildren: %v", err)
	}
	if len(children) != 1 || children[0].ChildVariantID != child.ID {
		t.Fatalf("GetChildren: unexpected result: %+v", children)
	}

	// Severed edges stay in GetByVariantID but keep their row.
	edge.Severed = true
	if err := repo.Save(dbc, edge); err != nil {
		t.Fatalf("Save: %v", err)
	}
	touching, err := repo.GetByVariantID(dbc, parent.ID)
	if err != nil {
		t.Fatalf("GetByVariantID: %v", err)
	}
	if len(touching) != 1 || !touching[0].Severed {
		t.Fatalf("GetByVariantID: want severed edge, got %+v", touching)
	}

	if err := repo.DeleteByVariantIDs(dbc, []uuid.UUID{child.ID}); err != nil {
		t.Fatalf("DeleteByVariantIDs: %v", err)
	}
	touching, err = repo.GetByVariantID(dbc, parent.ID)
	if err != nil {
		t.Fatalf("GetByVariantID after delete: %v", err)
	}
	if len(touching) != 0 {
		t.Fatalf("GetByVariantID after delete: want none, got %+v", touching)
	}
}

func TestChatRepoListWindow(t *testing.T) {
	store, log, dbc := testStore(t)
	repo := NewChatRepo(store.DB(), log)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sender := uuid.New()
	var msgs []*types.ChatMessage
	for i := 0; i < 5; i++ {
		msgs = append(msgs, &types.ChatMessage{
			ID:         uuid.New(),
			SenderType: types.SenderTypeUser,
			SenderID:   sender,
			Content:    "msg",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
	}
	if _, err := repo.Create(dbc, msgs); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.List(dbc, 3, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("List: want 3, got %d", len(got))
	}
	if !got[0].CreatedAt.Before(got[1].CreatedAt) || !got[1].CreatedAt.Before(got[2].CreatedAt) {
		t.Fatalf("List: not oldest-first: %v %v %v", got[0].CreatedAt, got[1].CreatedAt, got[2].CreatedAt)
	}

	before := base.Add(2 * time.Minute)
	got, err = repo.List(dbc, 10, &before)
	if err != nil {
		t.Fatalf("List (before): %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List (before): want 2, got %d", len(got))
	}
}

func TestTilePositionRepoCellIndex(t *testing.T) {
	store, log, dbc := testStore(t)
	asset := seedAsset(t, store, log, dbc)
	v := seedVariant(t, store, log, dbc, asset.ID, types.VariantStatusCompleted)
	repo := NewTilePositionRepo(store.DB(), log)

	setID := uuid.New()
	if _, err := repo.Create(dbc, []*types.TilePosition{{
		ID:        uuid.New(),
		TileSetID: setID,
		VariantID: v.ID,
		GridX:     1,
		GridY:     2,
		Status:    types.TilePositionCompleted,
	}}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	pos, err := repo.GetByCell(dbc, setID, 1, 2)
	if err != nil {
		t.Fatalf("GetByCell: %v", err)
	}
	if pos == nil || pos.VariantID != v.ID {
		t.Fatalf("GetByCell: unexpected result: %+v", pos)
	}
	pos, err = repo.GetByCell(dbc, setID, 0, 0)
	if err != nil {
		t.Fatalf("GetByCell (empty): %v", err)
	}
	if pos != nil {
		t.Fatalf("GetByCell (empty): expected nil, got %+v", pos)
	}

	// Second row for the same cell violates the unique index.
	if _, err := repo.Create(dbc, []*types.TilePosition{{
		ID:        uuid.New(),
		TileSetID: setID,
		VariantID: uuid.New(),
		GridX:     1,
		GridY:     2,
		Status:    types.TilePositionPending,
	}}); err == nil {
		t.Fatalf("Create: expected duplicate cell to fail")
	}
}
