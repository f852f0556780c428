package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	TilePositionPending    = "pending"
	TilePositionGenerating = "generating"
	TilePositionCompleted  = "completed"
	TilePositionFailed     = "failed"
)

// TilePosition is one occupied grid cell of a tile set, uniquely addressed
// by (tile_set_id, grid_x, grid_y).
type TilePosition struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TileSetID uuid.UUID `gorm:"type:uuid;column:tile_set_id;not null;uniqueIndex:idx_tile_cell,priority:1" json:"tile_set_id"`
	VariantID uuid.UUID `gorm:"type:uuid;column:variant_id;not null;index" json:"variant_id"`
	GridX     int       `gorm:"column:grid_x;not null;uniqueIndex:idx_tile_cell,priority:2" json:"grid_x"`
	GridY     int       `gorm:"column:grid_y;not null;uniqueIndex:idx_tile_cell,priority:3" json:"grid_y"`
	Status    string    `gorm:"column:status;not null" json:"status"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (TilePosition) TableName() string { return "tile_positions" }
