package repos

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/types"
)

type ImageRefRepo interface {
	// Increment upserts the row, creating it at count 1.
	Increment(dbc dbctx.Context, imageKey string) error
	// Decrement atomically decrements and returns the resulting count. The
	// row is deleted when the result is <= 0. Decrementing a missing key
	// returns 0 without creating a row.
	Decrement(dbc dbctx.Context, imageKey string) (int, error)
	Get(dbc dbctx.Context, imageKey string) (*types.ImageRef, error)
	List(dbc dbctx.Context) ([]*types.ImageRef, error)
}

type imageRefRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImageRefRepo(db *gorm.DB, baseLog *logger.Logger) ImageRefRepo {
	return &imageRefRepo{db: db, log: baseLog.With("repo", "ImageRefRepo")}
}

func (r *imageRefRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *imageRefRepo) Increment(dbc dbctx.Context, imageKey string) error {
	if imageKey == "" {
		return nil
	}
	return r.conn(dbc).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "image_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"ref_count": gorm.Expr("ref_count + 1")}),
	}).Create(&types.ImageRef{ImageKey: imageKey, RefCount: 1}).Error
}

func (r *imageRefRepo) Decrement(dbc dbctx.Context, imageKey string) (int, error) {
	if imageKey == "" {
		return 0, nil
	}
	conn := r.conn(dbc)
	res := conn.Model(&types.ImageRef{}).
		Where("image_key = ?", imageKey).
		UpdateColumn("ref_count", gorm.Expr("ref_count - 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		r.log.Warn("Decrement on untracked image key", "image_key", imageKey)
		return 0, nil
	}

	var ref types.ImageRef
	if err := conn.Where("image_key = ?", imageKey).First(&ref).Error; err != nil {
		return 0, err
	}
	if ref.RefCount <= 0 {
		if err := conn.Where("image_key = ?", imageKey).Delete(&types.ImageRef{}).Error; err != nil {
			return ref.RefCount, err
		}
	}
	return ref.RefCount, nil
}

func (r *imageRefRepo) Get(dbc dbctx.Context, imageKey string) (*types.ImageRef, error) {
	var ref types.ImageRef
	err := r.conn(dbc).Where("image_key = ?", imageKey).First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *imageRefRepo) List(dbc dbctx.Context) ([]*types.ImageRef, error) {
	var results []*types.ImageRef
	if err := r.conn(dbc).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
