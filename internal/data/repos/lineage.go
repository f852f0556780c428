package repos

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/types"
)

type LineageRepo interface {
	Create(dbc dbctx.Context, edges []*types.Lineage) ([]*types.Lineage, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Lineage, error)
	List(dbc dbctx.Context) ([]*types.Lineage, error)
	// GetByVariantID returns every edge touching the variant, in either
	// direction, severed edges included.
	GetByVariantID(dbc dbctx.Context, variantID uuid.UUID) ([]*types.Lineage, error)
	GetParents(dbc dbctx.Context, childVariantID uuid.UUID) ([]*types.Lineage, error)
	GetChildren(dbc dbctx.Context, parentVariantID uuid.UUID) ([]*types.Lineage, error)
	Save(dbc dbctx.Context, edge *types.Lineage) error
	DeleteByVariantIDs(dbc dbctx.Context, variantIDs []uuid.UUID) error
}

type lineageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLineageRepo(db *gorm.DB, baseLog *logger.Logger) LineageRepo {
	return &lineageRepo{db: db, log: baseLog.With("repo", "LineageRepo")}
}

func (r *lineageRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *lineageRepo) Create(dbc dbctx.Context, edges []*types.Lineage) ([]*types.Lineage, error) {
	if len(edges) == 0 {
		return edges, nil
	}
	if err := r.conn(dbc).Create(&edges).Error; err != nil {
		return nil, err
	}
	return edges, nil
}

func (r *lineageRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Lineage, error) {
	var edge types.Lineage
	err := r.conn(dbc).Where("id = ?", id).First(&edge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &edge, nil
}

func (r *lineageRepo) List(dbc dbctx.Context) ([]*types.Lineage, error) {
	var results []*types.Lineage
	if err := r.conn(dbc).Order("created_at ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *lineageRepo) GetByVariantID(dbc dbctx.Context, variantID uuid.UUID) ([]*types.Lineage, error) {
	var results []*types.Lineage
	if err := r.conn(dbc).
		Where("parent_variant_id = ? OR child_variant_id = ?", variantID, variantID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *lineageRepo) GetParents(dbc dbctx.Context, childVariantID uuid.UUID) ([]*types.Lineage, error) {
	var results []*types.Lineage
	if err := r.conn(dbc).
		Where("child_variant_id = ? AND severed = ?", childVariantID, false).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *lineageRepo) GetChildren(dbc dbctx.Context, parentVariantID uuid.UUID) ([]*types.Lineage, error) {
	var results []*types.Lineage
	if err := r.conn(dbc).
		Where("parent_variant_id = ? AND severed = ?", parentVariantID, false).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *lineageRepo) Save(dbc dbctx.Context, edge *types.Lineage) error {
	return r.conn(dbc).Save(edge).Error
}

func (r *lineageRepo) DeleteByVariantIDs(dbc dbctx.Context, variantIDs []uuid.UUID) error {
	if len(variantIDs) == 0 {
		return nil
	}
	return r.conn(dbc).
		Where("parent_variant_id IN ? OR child_variant_id IN ?", variantIDs, variantIDs).
		Delete(&types.Lineage{}).Error
}
