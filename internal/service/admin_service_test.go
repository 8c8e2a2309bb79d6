package service

import (
	"context"
	"testing"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/dto"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminService_HealthAndUsers(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	store := newHistoryStore(t, &now)
	svc := NewAdminService(store, logger.NewNopLogger())
	ctx := context.Background()

	_, err := store.Save(ctx, "alice", "", "q1", "a1", "s1")
	require.NoError(t, err)
	_, err = store.Save(ctx, "", "bob@example.com", "q2", "a2", "s2")
	require.NoError(t, err)

	health := svc.MemoryHealth(ctx)
	assert.Equal(t, &dto.MemoryHealthResponse{
		Status:             "healthy",
		TotalConversations: 2,
		UniqueUsers:        2,
		Last24h:            2,
	}, health)

	users, err := svc.MemoryUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestAdminService_Prune(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	store := newHistoryStore(t, &now)
	svc := NewAdminService(store, logger.NewNopLogger())
	ctx := context.Background()

	_, err := store.Save(ctx, "alice", "", "ancient", "a", "s1")
	require.NoError(t, err)
	now = now.Add(10 * 24 * time.Hour)
	_, err = store.Save(ctx, "alice", "", "recent", "a", "s1")
	require.NoError(t, err)

	res, err := svc.Prune(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, &dto.PruneResponse{Deleted: 0, OlderThan: "retention"}, res)

	res, err = svc.Prune(ctx, &dto.PruneRequest{OlderThanDays: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Deleted)
	assert.Equal(t, "168h0m0s", res.OlderThan)
}

func TestAdminService_LogsWithoutFile(t *testing.T) {
	svc := NewAdminService(nil, logger.NewNopLogger())

	logs, err := svc.GetSystemLogs(context.Background(), 0, 0, "")

	require.NoError(t, err)
	assert.Empty(t, logs)
}
