package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	TileSetStatusActive    = "active"
	TileSetStatusCompleted = "completed"
	TileSetStatusCancelled = "cancelled"
	TileSetStatusFailed    = "failed"
)

const (
	TileModeSpiral     = "spiral"
	TileModeSingleShot = "single_shot"
)

// TileSet is one stepwise grid-generation workflow attached to an asset.
type TileSet struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AssetID       uuid.UUID      `gorm:"type:uuid;column:asset_id;not null;index" json:"asset_id"`
	TileType      string         `gorm:"column:tile_type;not null" json:"tile_type"`
	GridWidth     int            `gorm:"column:grid_width;not null" json:"grid_width"`
	GridHeight    int            `gorm:"column:grid_height;not null" json:"grid_height"`
	SeedVariantID *uuid.UUID     `gorm:"type:uuid;column:seed_variant_id" json:"seed_variant_id,omitempty"`
	Config        datatypes.JSON `gorm:"column:config" json:"config,omitempty"`
	TotalSteps    int            `gorm:"column:total_steps;not null" json:"total_steps"`
	Status        string         `gorm:"column:status;not null;index" json:"status"`
	CreatedBy     uuid.UUID      `gorm:"type:uuid;column:created_by;not null" json:"created_by"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (TileSet) TableName() string { return "tile_sets" }

// TileSetConfig is the decoded shape of TileSet.Config.
type TileSetConfig struct {
	Prompt      string `json:"prompt,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Mode        string `json:"mode,omitempty"`
	// RefineQueue holds the remaining spiral-ordered cells of an in-flight
	// refinement pass, consumed one coordinate per completion.
	RefineQueue []GridCoord `json:"refine_queue,omitempty"`
}

type GridCoord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func DecodeTileSetConfig(raw datatypes.JSON) (TileSetConfig, error) {
	var c TileSetConfig
	if len(raw) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return TileSetConfig{}, err
	}
	return c, nil
}

func EncodeTileSetConfig(c TileSetConfig) (datatypes.JSON, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
