package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Asset is a named creative entity in a space. Assets form a tree via
// ParentAssetID; re-parenting is cycle-checked before the write.
type Asset struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name            string         `gorm:"column:name;not null" json:"name"`
	Kind            string         `gorm:"column:kind;not null;index" json:"asset_type"`
	Tags            datatypes.JSON `gorm:"column:tags" json:"tags,omitempty"`
	ParentAssetID   *uuid.UUID     `gorm:"type:uuid;column:parent_asset_id;index" json:"parent_asset_id,omitempty"`
	ActiveVariantID *uuid.UUID     `gorm:"type:uuid;column:active_variant_id" json:"active_variant_id,omitempty"`
	CreatedBy       uuid.UUID      `gorm:"type:uuid;column:created_by;not null" json:"created_by"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
}

func (Asset) TableName() string { return "assets" }
