package progress

import (
	"context"
	"time"
)

type MessageType string

const (
	TypeProgress    MessageType = "progress"
	TypeFinal       MessageType = "final"
	TypeError       MessageType = "error"
	TypeAgentResult MessageType = "agent_result"
)

type Message struct {
	Type      MessageType            `json:"type"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Store keeps the ordered messages of each session.
type Store interface {
	Add(ctx context.Context, sessionID string, msg Message) error
	List(ctx context.Context, sessionID string) ([]Message, error)
	Clear(ctx context.Context, sessionID string) (int, error)
	// Claim records owner for the session unless one is already set and
	// returns the session's owner.
	Claim(ctx context.Context, sessionID, owner string) (string, error)
	// Owner returns the recorded owner, or "" for an unknown session.
	Owner(ctx context.Context, sessionID string) (string, error)
}

// Subscriber is implemented by stores that can push new messages live.
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID string) <-chan Message
}
