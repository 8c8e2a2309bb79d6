package service

import (
	"context"
	"errors"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/dto"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/entity"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/history"
)

var ErrIdentityRequired = errors.New("username or email is required")

// ConversationMemory is the read and delete side of *history.Store.
type ConversationMemory interface {
	History(ctx context.Context, username, email string, limit int) ([]entity.Conversation, error)
	FormatContext(ctx context.Context, username, email string, max int) string
	Stats(ctx context.Context, username, email string) (history.Stats, error)
	Export(ctx context.Context, username, email string) ([]entity.Conversation, error)
	DeleteAll(ctx context.Context, username, email string) (int64, error)
}

type IHistoryService interface {
	List(ctx context.Context, user entity.UserKey, limit int) ([]*dto.ConversationResponse, error)
	Context(ctx context.Context, user entity.UserKey, max int) (*dto.HistoryContextResponse, error)
	Stats(ctx context.Context, user entity.UserKey) (*dto.HistoryStatsResponse, error)
	Export(ctx context.Context, user entity.UserKey) (*dto.HistoryExportResponse, error)
	Delete(ctx context.Context, user entity.UserKey) (*dto.DeleteHistoryResponse, error)
}

type historyService struct {
	memory ConversationMemory
}

func NewHistoryService(memory ConversationMemory) IHistoryService {
	return &historyService{memory: memory}
}

func (s *historyService) List(ctx context.Context, user entity.UserKey, limit int) ([]*dto.ConversationResponse, error) {
	if user.IsZero() {
		return nil, ErrIdentityRequired
	}
	found, err := s.memory.History(ctx, user.Username, user.Email, limit)
	if err != nil {
		return nil, err
	}
	return toConversationResponses(found), nil
}

func (s *historyService) Context(ctx context.Context, user entity.UserKey, max int) (*dto.HistoryContextResponse, error) {
	if user.IsZero() {
		return nil, ErrIdentityRequired
	}
	return &dto.HistoryContextResponse{
		Context: s.memory.FormatContext(ctx, user.Username, user.Email, max),
	}, nil
}

func (s *historyService) Stats(ctx context.Context, user entity.UserKey) (*dto.HistoryStatsResponse, error) {
	if user.IsZero() {
		return nil, ErrIdentityRequired
	}
	stats, err := s.memory.Stats(ctx, user.Username, user.Email)
	if err != nil {
		return nil, err
	}

	res := &dto.HistoryStatsResponse{Total: stats.Total, Last24h: stats.Last24h}
	if stats.Last != nil {
		ts := stats.Last.Timestamp
		res.LastTimestamp = &ts
		res.LastQuestion = stats.Last.Question
	}
	return res, nil
}

func (s *historyService) Export(ctx context.Context, user entity.UserKey) (*dto.HistoryExportResponse, error) {
	if user.IsZero() {
		return nil, ErrIdentityRequired
	}
	found, err := s.memory.Export(ctx, user.Username, user.Email)
	if err != nil {
		return nil, err
	}

	res := &dto.HistoryExportResponse{
		Username:   user.Username,
		Email:      user.Email,
		ExportedAt: time.Now().UTC(),
	}
	for _, c := range toConversationResponses(found) {
		res.Conversations = append(res.Conversations, *c)
	}
	if res.Conversations == nil {
		res.Conversations = []dto.ConversationResponse{}
	}
	return res, nil
}

func (s *historyService) Delete(ctx context.Context, user entity.UserKey) (*dto.DeleteHistoryResponse, error) {
	if user.IsZero() {
		return nil, ErrIdentityRequired
	}
	deleted, err := s.memory.DeleteAll(ctx, user.Username, user.Email)
	if err != nil {
		return nil, err
	}
	return &dto.DeleteHistoryResponse{Deleted: deleted}, nil
}

func toConversationResponses(in []entity.Conversation) []*dto.ConversationResponse {
	out := make([]*dto.ConversationResponse, 0, len(in))
	for _, c := range in {
		sources := c.Sources
		if sources == nil {
			sources = []string{}
		}
		out = append(out, &dto.ConversationResponse{
			Id:        c.Id,
			Question:  c.Question,
			Response:  c.Response,
			SessionId: c.SessionId,
			Sources:   sources,
			Timestamp: c.Timestamp,
		})
	}
	return out
}
