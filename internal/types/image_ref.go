package types

// ImageRef counts live references to one blob-store key. A row exists only
// while RefCount > 0; the underlying blob is deleted when the count drops
// to zero.
type ImageRef struct {
	ImageKey string `gorm:"column:image_key;primaryKey" json:"image_key"`
	RefCount int    `gorm:"column:ref_count;not null" json:"ref_count"`
}

func (ImageRef) TableName() string { return "image_refs" }
