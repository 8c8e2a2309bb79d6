package specification

import (
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/entity"

	"gorm.io/gorm"
)

// ByUser scopes a query to one (username, email) stream
type ByUser struct {
	User entity.UserKey
}

func (s ByUser) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("username = ? AND email = ?", s.User.Username, s.User.Email)
}

type TimestampAfter struct {
	Since time.Time
}

func (s TimestampAfter) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("timestamp > ?", s.Since)
}

type TimestampBefore struct {
	Cutoff time.Time
}

func (s TimestampBefore) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("timestamp < ?", s.Cutoff)
}
