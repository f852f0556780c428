package repos

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/types"
)

type VariantRepo interface {
	Create(dbc dbctx.Context, variants []*types.Variant) ([]*types.Variant, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Variant, error)
	GetByJobID(dbc dbctx.Context, jobID string) (*types.Variant, error)
	GetByAssetIDs(dbc dbctx.Context, assetIDs []uuid.UUID) ([]*types.Variant, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Variant, error)
	List(dbc dbctx.Context) ([]*types.Variant, error)
	Save(dbc dbctx.Context, variant *types.Variant) error
	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type variantRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVariantRepo(db *gorm.DB, baseLog *logger.Logger) VariantRepo {
	return &variantRepo{db: db, log: baseLog.With("repo", "VariantRepo")}
}

func (r *variantRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *variantRepo) Create(dbc dbctx.Context, variants []*types.Variant) ([]*types.Variant, error) {
	if len(variants) == 0 {
		return variants, nil
	}
	if err := r.conn(dbc).Create(&variants).Error; err != nil {
		return nil, err
	}
	return variants, nil
}

func (r *variantRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Variant, error) {
	var v types.Variant
	err := r.conn(dbc).Where("id = ?", id).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *variantRepo) GetByJobID(dbc dbctx.Context, jobID string) (*types.Variant, error) {
	var v types.Variant
	err := r.conn(dbc).Where("job_id = ?", jobID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *variantRepo) GetByAssetIDs(dbc dbctx.Context, assetIDs []uuid.UUID) ([]*types.Variant, error) {
	var results []*types.Variant
	if len(assetIDs) == 0 {
		return results, nil
	}
	if err := r.conn(dbc).
		Where("asset_id IN ?", assetIDs).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *variantRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Variant, error) {
	var results []*types.Variant
	if len(ids) == 0 {
		return results, nil
	}
	if err := r.conn(dbc).Where("id IN ?", ids).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *variantRepo) List(dbc dbctx.Context) ([]*types.Variant, error) {
	var results []*types.Variant
	if err := r.conn(dbc).Order("created_at ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *variantRepo) Save(dbc dbctx.Context, variant *types.Variant) error {
	return r.conn(dbc).Save(variant).Error
}

func (r *variantRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.conn(dbc).Where("id IN ?", ids).Delete(&types.Variant{}).Error
}
