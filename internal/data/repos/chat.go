package repos

import (
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/types"
)

type ChatRepo interface {
	Create(dbc dbctx.Context, messages []*types.ChatMessage) ([]*types.ChatMessage, error)
	// List returns messages oldest-first, optionally only those created
	// before the given time, capped at limit.
	List(dbc dbctx.Context, limit int, before *time.Time) ([]*types.ChatMessage, error)
}

type chatRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatRepo(db *gorm.DB, baseLog *logger.Logger) ChatRepo {
	return &chatRepo{db: db, log: baseLog.With("repo", "ChatRepo")}
}

func (r *chatRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *chatRepo) Create(dbc dbctx.Context, messages []*types.ChatMessage) ([]*types.ChatMessage, error) {
	if len(messages) == 0 {
		return messages, nil
	}
	if err := r.conn(dbc).Create(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *chatRepo) List(dbc dbctx.Context, limit int, before *time.Time) ([]*types.ChatMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	q := r.conn(dbc).Model(&types.ChatMessage{})
	if before != nil {
		q = q.Where("created_at < ?", *before)
	}
	var newestFirst []*types.ChatMessage
	if err := q.Order("created_at DESC").Limit(limit).Find(&newestFirst).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(newestFirst)-1; i < j; i, j = i+1, j-1 {
		newestFirst[i], newestFirst[j] = newestFirst[j], newestFirst[i]
	}
	return newestFirst, nil
}
