package repos

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/types"
)

type TileSetRepo interface {
	Create(dbc dbctx.Context, set *types.TileSet) (*types.TileSet, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TileSet, error)
	GetActiveByAssetID(dbc dbctx.Context, assetID uuid.UUID) ([]*types.TileSet, error)
	Save(dbc dbctx.Context, set *types.TileSet) error
}

type tileSetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTileSetRepo(db *gorm.DB, baseLog *logger.Logger) TileSetRepo {
	return &tileSetRepo{db: db, log: baseLog.With("repo", "TileSetRepo")}
}

func (r *tileSetRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *tileSetRepo) Create(dbc dbctx.Context, set *types.TileSet) (*types.TileSet, error) {
	if err := r.conn(dbc).Create(set).Error; err != nil {
		return nil, err
	}
	return set, nil
}

func (r *tileSetRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TileSet, error) {
	var set types.TileSet
	err := r.conn(dbc).Where("id = ?", id).First(&set).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &set, nil
}

func (r *tileSetRepo) GetActiveByAssetID(dbc dbctx.Context, assetID uuid.UUID) ([]*types.TileSet, error) {
	var results []*types.TileSet
	if err := r.conn(dbc).
		Where("asset_id = ? AND status = ?", assetID, types.TileSetStatusActive).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *tileSetRepo) Save(dbc dbctx.Context, set *types.TileSet) error {
	return r.conn(dbc).Save(set).Error
}
