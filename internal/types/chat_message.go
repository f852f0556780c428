package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SenderTypeUser = "user"
	SenderTypeBot  = "bot"
)

// ChatMessage is one entry in the space's append-only chat/activity log.
type ChatMessage struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SenderType string         `gorm:"column:sender_type;not null" json:"sender_type"`
	SenderID   uuid.UUID      `gorm:"type:uuid;column:sender_id;not null" json:"sender_id"`
	Content    string         `gorm:"column:content;not null" json:"content"`
	Metadata   datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
}

func (ChatMessage) TableName() string { return "chat_messages" }
