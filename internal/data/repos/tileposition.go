package repos

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/types"
)

type TilePositionRepo interface {
	Create(dbc dbctx.Context, positions []*types.TilePosition) ([]*types.TilePosition, error)
	GetByTileSetID(dbc dbctx.Context, tileSetID uuid.UUID) ([]*types.TilePosition, error)
	GetByCell(dbc dbctx.Context, tileSetID uuid.UUID, gridX, gridY int) (*types.TilePosition, error)
	GetByVariantID(dbc dbctx.Context, variantID uuid.UUID) (*types.TilePosition, error)
	Save(dbc dbctx.Context, pos *types.TilePosition) error
	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type tilePositionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTilePositionRepo(db *gorm.DB, baseLog *logger.Logger) TilePositionRepo {
	return &tilePositionRepo{db: db, log: baseLog.With("repo", "TilePositionRepo")}
}

func (r *tilePositionRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *tilePositionRepo) Create(dbc dbctx.Context, positions []*types.TilePosition) ([]*types.TilePosition, error) {
	if len(positions) == 0 {
		return positions, nil
	}
	if err := r.conn(dbc).Create(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}

func (r *tilePositionRepo) GetByTileSetID(dbc dbctx.Context, tileSetID uuid.UUID) ([]*types.TilePosition, error) {
	var results []*types.TilePosition
	if err := r.conn(dbc).
		Where("tile_set_id = ?", tileSetID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *tilePositionRepo) GetByCell(dbc dbctx.Context, tileSetID uuid.UUID, gridX, gridY int) (*types.TilePosition, error) {
	var pos types.TilePosition
	err := r.conn(dbc).
		Where("tile_set_id = ? AND grid_x = ? AND grid_y = ?", tileSetID, gridX, gridY).
		First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

func (r *tilePositionRepo) GetByVariantID(dbc dbctx.Context, variantID uuid.UUID) (*types.TilePosition, error) {
	var pos types.TilePosition
	err := r.conn(dbc).Where("variant_id = ?", variantID).First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

func (r *tilePositionRepo) Save(dbc dbctx.Context, pos *types.TilePosition) error {
	return r.conn(dbc).Save(pos).Error
}

func (r *tilePositionRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.conn(dbc).Where("id IN ?", ids).Delete(&types.TilePosition{}).Error
}
