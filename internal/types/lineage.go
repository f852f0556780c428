package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	RelationDerived  = "derived"
	RelationComposed = "composed"
	RelationSpawned  = "spawned"
	RelationForked   = "forked"
)

// Lineage is a directed provenance edge between two variants. The graph may
// contain cycles (it records history, not dependencies) and severing an edge
// is a soft delete so provenance is never lost.
type Lineage struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ParentVariantID uuid.UUID `gorm:"type:uuid;column:parent_variant_id;not null;index" json:"parent_variant_id"`
	ChildVariantID  uuid.UUID `gorm:"type:uuid;column:child_variant_id;not null;index" json:"child_variant_id"`
	RelationType    string    `gorm:"column:relation_type;not null" json:"relation_type"`
	Severed         bool      `gorm:"column:severed;not null;default:false" json:"severed"`
	CreatedAt       time.Time `gorm:"not null" json:"created_at"`
}

func (Lineage) TableName() string { return "lineage" }

func ValidRelationType(rt string) bool {
	switch rt {
	case RelationDerived, RelationComposed, RelationSpawned, RelationForked:
		return true
	}
	return false
}
