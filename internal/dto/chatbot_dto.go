package dto

import (
	"time"

	"github.com/google/uuid"
)

type StartChatRequest struct {
	Question  string `json:"question"`
	SessionId string `json:"session_id,omitempty" validate:"omitempty,max=128"`
}

type StartChatResponse struct {
	SessionId   string    `json:"session_id"`
	ExecutionId string    `json:"execution_id"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
}

type SourceDTO struct {
	Id          string `json:"id"`
	Title       string `json:"title"`
	Kind        string `json:"kind"`
	AccessLevel string `json:"access_level"`
	Source      string `json:"source"`
}

type AskResponse struct {
	SessionId        string      `json:"session_id"`
	Answer           string      `json:"answer"`
	NeedsComputation bool        `json:"needs_computation"`
	Sources          []SourceDTO `json:"sources"`
	Status           string      `json:"status"`
	ElapsedMs        int64       `json:"elapsed_ms"`
}

type CancelResponse struct {
	SessionId  string `json:"session_id"`
	Canceled   int    `json:"canceled"`
	Terminated int    `json:"terminated"`
}

type ExecutionResponse struct {
	Id        string    `json:"id"`
	SessionId string    `json:"session_id"`
	Username  string    `json:"username,omitempty"`
	Stage     string    `json:"stage"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`
	ElapsedMs int64     `json:"elapsed_ms"`
}

type SessionMessageResponse struct {
	Type      string                 `json:"type"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type ClearMessagesResponse struct {
	SessionId string `json:"session_id"`
	Deleted   int    `json:"deleted"`
}

// PublishConversationMessage travels on the internal conversation topic after each answered run.
type PublishConversationMessage struct {
	ExecutionId      uuid.UUID `json:"execution_id"`
	SessionId        string    `json:"session_id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	State            string    `json:"state"`
	NeedsComputation bool      `json:"needs_computation"`
	Sources          []string  `json:"sources"`
	AnsweredAt       time.Time `json:"answered_at"`
}
