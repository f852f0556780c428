package repos

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/types"
)

type AssetRepo interface {
	Create(dbc dbctx.Context, assets []*types.Asset) ([]*types.Asset, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Asset, error)
	List(dbc dbctx.Context) ([]*types.Asset, error)
	GetChildren(dbc dbctx.Context, parentID uuid.UUID) ([]*types.Asset, error)
	Save(dbc dbctx.Context, asset *types.Asset) error
	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type assetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssetRepo(db *gorm.DB, baseLog *logger.Logger) AssetRepo {
	return &assetRepo{db: db, log: baseLog.With("repo", "AssetRepo")}
}

func (r *assetRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *assetRepo) Create(dbc dbctx.Context, assets []*types.Asset) ([]*types.Asset, error) {
	if len(assets) == 0 {
		return assets, nil
	}
	if err := r.conn(dbc).Create(&assets).Error; err != nil {
		return nil, err
	}
	return assets, nil
}

func (r *assetRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Asset, error) {
	var asset types.Asset
	err := r.conn(dbc).Where("id = ?", id).First(&asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *assetRepo) List(dbc dbctx.Context) ([]*types.Asset, error) {
	var results []*types.Asset
	if err := r.conn(dbc).Order("created_at ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *assetRepo) GetChildren(dbc dbctx.Context, parentID uuid.UUID) ([]*types.Asset, error) {
	var results []*types.Asset
	if err := r.conn(dbc).
		Where("parent_asset_id = ?", parentID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *assetRepo) Save(dbc dbctx.Context, asset *types.Asset) error {
	return r.conn(dbc).Save(asset).Error
}

func (r *assetRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.conn(dbc).Where("id IN ?", ids).Delete(&types.Asset{}).Error
}
