package service

import (
	"context"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/dto"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/entity"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/history"
)

// MemoryMaintenance is the admin side of *history.Store.
type MemoryMaintenance interface {
	Health(ctx context.Context) history.HealthReport
	Users(ctx context.Context) ([]entity.UserKey, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

type IAdminService interface {
	MemoryHealth(ctx context.Context) *dto.MemoryHealthResponse
	MemoryUsers(ctx context.Context) ([]*dto.MemoryUserResponse, error)
	Prune(ctx context.Context, req *dto.PruneRequest) (*dto.PruneResponse, error)
	GetSystemLogs(ctx context.Context, page, limit int, level string) ([]logger.LogEntry, error)
}

type adminService struct {
	memory MemoryMaintenance
	logger logger.ILogger
}

func NewAdminService(memory MemoryMaintenance, log logger.ILogger) IAdminService {
	return &adminService{memory: memory, logger: log}
}

func (s *adminService) MemoryHealth(ctx context.Context) *dto.MemoryHealthResponse {
	report := s.memory.Health(ctx)
	return &dto.MemoryHealthResponse{
		Status:             report.Status,
		TotalConversations: report.TotalConversations,
		UniqueUsers:        report.UniqueUsers,
		Last24h:            report.Last24h,
		Error:              report.Error,
	}
}

func (s *adminService) MemoryUsers(ctx context.Context) ([]*dto.MemoryUserResponse, error) {
	users, err := s.memory.Users(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.MemoryUserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, &dto.MemoryUserResponse{Username: u.Username, Email: u.Email})
	}
	return out, nil
}

func (s *adminService) Prune(ctx context.Context, req *dto.PruneRequest) (*dto.PruneResponse, error) {
	var olderThan time.Duration
	if req != nil && req.OlderThanDays > 0 {
		olderThan = time.Duration(req.OlderThanDays) * 24 * time.Hour
	}

	deleted, err := s.memory.Prune(ctx, olderThan)
	if err != nil {
		return nil, err
	}

	label := "retention"
	if olderThan > 0 {
		label = olderThan.String()
	}
	s.logger.Info("Service.Admin", "Manual prune", map[string]interface{}{
		"deleted":    deleted,
		"older_than": label,
	})
	return &dto.PruneResponse{Deleted: deleted, OlderThan: label}, nil
}

func (s *adminService) GetSystemLogs(ctx context.Context, page, limit int, level string) ([]logger.LogEntry, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	return s.logger.GetLogs(level, limit, (page-1)*limit)
}
