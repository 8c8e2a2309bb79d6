package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Conversation struct {
	Id        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Username  string         `gorm:"type:varchar(255);not null;index:idx_conversations_user_ts,priority:1"`
	Email     string         `gorm:"type:varchar(255);not null;index:idx_conversations_user_ts,priority:2"`
	Question  string         `gorm:"type:text;not null"`
	Response  string         `gorm:"type:text;not null"`
	SessionId string         `gorm:"type:varchar(255);index"`
	Sources   datatypes.JSON `gorm:"type:jsonb"`
	Timestamp time.Time      `gorm:"not null;index:idx_conversations_user_ts,priority:3"`
}

func (Conversation) TableName() string {
	return "conversations"
}
