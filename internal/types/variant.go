package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	VariantStatusPending    = "pending"
	VariantStatusProcessing = "processing"
	VariantStatusCompleted  = "completed"
	VariantStatusFailed     = "failed"
)

// Variant is one generated or copied image belonging to an asset. JobID
// correlates the external generation job and is unique when present, which
// is what makes job application idempotent.
type Variant struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AssetID   uuid.UUID      `gorm:"type:uuid;column:asset_id;not null;index" json:"asset_id"`
	JobID     *string        `gorm:"column:job_id;uniqueIndex" json:"job_id,omitempty"`
	Status    string         `gorm:"column:status;not null;index" json:"status"`
	ImageKey  string         `gorm:"column:image_key" json:"image_key,omitempty"`
	ThumbKey  string         `gorm:"column:thumb_key" json:"thumb_key,omitempty"`
	Recipe    datatypes.JSON `gorm:"column:recipe" json:"recipe,omitempty"`
	Starred   bool           `gorm:"column:starred;not null;default:false" json:"starred"`
	CreatedBy uuid.UUID      `gorm:"type:uuid;column:created_by;not null" json:"created_by"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (Variant) TableName() string { return "variants" }

// Recipe is the decoded shape of Variant.Recipe. The coordinator only
// interprets the fields that affect blob lifetime and lineage; everything
// else is opaque generator input.
type Recipe struct {
	Kind             string      `json:"kind,omitempty"`
	Prompt           string      `json:"prompt,omitempty"`
	AspectRatio      string      `json:"aspect_ratio,omitempty"`
	InputImageKeys   []string    `json:"input_image_keys,omitempty"`
	ParentVariantIDs []uuid.UUID `json:"parent_variant_ids,omitempty"`
	TileSetID        *uuid.UUID  `json:"tile_set_id,omitempty"`
}

// EncodeRecipe renders a recipe for storage on a variant.
func EncodeRecipe(r Recipe) (datatypes.JSON, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// DecodeRecipe tolerates an empty or absent recipe.
func DecodeRecipe(raw datatypes.JSON) (Recipe, error) {
	var r Recipe
	if len(raw) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return Recipe{}, err
	}
	return r, nil
}

// BlobKeys returns every blob key whose lifetime this variant holds a
// reference on: its own image, its thumbnail and any recipe-declared inputs.
func (v *Variant) BlobKeys() []string {
	keys := make([]string, 0, 4)
	if v.ImageKey != "" {
		keys = append(keys, v.ImageKey)
	}
	if v.ThumbKey != "" {
		keys = append(keys, v.ThumbKey)
	}
	if r, err := DecodeRecipe(v.Recipe); err == nil {
		keys = append(keys, r.InputImageKeys...)
	}
	return keys
}
