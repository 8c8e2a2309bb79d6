package entity

import (
	"time"

	"github.com/google/uuid"
)

// UserKey identifies one user's history stream. A session id never does.
type UserKey struct {
	Username string
	Email    string
}

func (k UserKey) IsZero() bool {
	return k.Username == "" && k.Email == ""
}

func (k UserKey) String() string {
	return k.Username + "<" + k.Email + ">"
}

// Conversation is one persisted question/answer pair. Immutable once written.
type Conversation struct {
	Id        uuid.UUID
	Username  string
	Email     string
	Question  string
	Response  string
	SessionId string
	Sources   []string
	Timestamp time.Time
}

func (c *Conversation) Key() UserKey {
	return UserKey{Username: c.Username, Email: c.Email}
}
