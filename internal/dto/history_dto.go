package dto

import (
	"time"

	"github.com/google/uuid"
)

type ConversationResponse struct {
	Id        uuid.UUID `json:"id"`
	Question  string    `json:"question"`
	Response  string    `json:"response"`
	SessionId string    `json:"session_id"`
	Sources   []string  `json:"sources"`
	Timestamp time.Time `json:"timestamp"`
}

type HistoryContextResponse struct {
	Context string `json:"context"`
}

type HistoryStatsResponse struct {
	Total         int64      `json:"total"`
	Last24h       int64      `json:"last_24h"`
	LastTimestamp *time.Time `json:"last_timestamp,omitempty"`
	LastQuestion  string     `json:"last_question,omitempty"`
}

type HistoryExportResponse struct {
	Username      string                 `json:"username"`
	Email         string                 `json:"email"`
	ExportedAt    time.Time              `json:"exported_at"`
	Conversations []ConversationResponse `json:"conversations"`
}

type DeleteHistoryResponse struct {
	Deleted int64 `json:"deleted"`
}
