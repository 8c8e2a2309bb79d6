package contract

import (
	"context"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/entity"
)

// ConversationRepository is append-only: records are never updated in place.
type ConversationRepository interface {
	Create(ctx context.Context, conversation *entity.Conversation) error
	FindLatest(ctx context.Context, user entity.UserKey) (*entity.Conversation, error)
	// FindRecent returns the user's records newer than since, most recent first.
	FindRecent(ctx context.Context, user entity.UserKey, since time.Time, limit int) ([]*entity.Conversation, error)
	// FindAllByUser returns every record of the user, oldest first.
	FindAllByUser(ctx context.Context, user entity.UserKey) ([]*entity.Conversation, error)
	CountByUser(ctx context.Context, user entity.UserKey, since *time.Time) (int64, error)
	DeleteByUser(ctx context.Context, user entity.UserKey) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	ListUsers(ctx context.Context) ([]entity.UserKey, error)
	CountAll(ctx context.Context, since *time.Time) (int64, error)
	CountUsers(ctx context.Context) (int64, error)
}
