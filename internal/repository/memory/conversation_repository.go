package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/entity"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/contract"

	"github.com/google/uuid"
)

// conversationTable is the shared row set behind every in-memory unit of work.
type conversationTable struct {
	mu   sync.RWMutex
	rows []entity.Conversation
}

func (t *conversationTable) insert(rows ...entity.Conversation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = append(t.rows, rows...)
}

func (t *conversationTable) snapshot() []entity.Conversation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]entity.Conversation, len(t.rows))
	copy(out, t.rows)
	return out
}

func (t *conversationTable) deleteWhere(match func(entity.Conversation) bool) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.rows[:0]
	var deleted int64
	for _, r := range t.rows {
		if match(r) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	t.rows = kept
	return deleted
}

// ConversationRepository is an in-memory contract.ConversationRepository.
// Inside a transaction, creates are staged until the unit of work commits.
type ConversationRepository struct {
	table  *conversationTable
	staged *[]entity.Conversation
}

var _ contract.ConversationRepository = &ConversationRepository{}

func (r *ConversationRepository) all() []entity.Conversation {
	rows := r.table.snapshot()
	if r.staged != nil {
		rows = append(rows, *r.staged...)
	}
	return rows
}

func (r *ConversationRepository) Create(_ context.Context, c *entity.Conversation) error {
	if c.Id == uuid.Nil {
		c.Id = uuid.New()
	}
	row := *c
	row.Sources = append([]string{}, c.Sources...)
	if r.staged != nil {
		*r.staged = append(*r.staged, row)
		return nil
	}
	r.table.insert(row)
	return nil
}

func (r *ConversationRepository) byUser(user entity.UserKey, since *time.Time) []entity.Conversation {
	var out []entity.Conversation
	for _, c := range r.all() {
		if c.Username != user.Username || c.Email != user.Email {
			continue
		}
		if since != nil && !c.Timestamp.After(*since) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (r *ConversationRepository) FindLatest(_ context.Context, user entity.UserKey) (*entity.Conversation, error) {
	rows := r.byUser(user, nil)
	if len(rows) == 0 {
		return nil, nil
	}
	latest := rows[len(rows)-1]
	return &latest, nil
}

func (r *ConversationRepository) FindRecent(_ context.Context, user entity.UserKey, since time.Time, limit int) ([]*entity.Conversation, error) {
	rows := r.byUser(user, &since)
	out := []*entity.Conversation{}
	for i := len(rows) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		c := rows[i]
		out = append(out, &c)
	}
	return out, nil
}

func (r *ConversationRepository) FindAllByUser(_ context.Context, user entity.UserKey) ([]*entity.Conversation, error) {
	rows := r.byUser(user, nil)
	out := make([]*entity.Conversation, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

func (r *ConversationRepository) CountByUser(_ context.Context, user entity.UserKey, since *time.Time) (int64, error) {
	return int64(len(r.byUser(user, since))), nil
}

func (r *ConversationRepository) DeleteByUser(_ context.Context, user entity.UserKey) (int64, error) {
	return r.table.deleteWhere(func(c entity.Conversation) bool {
		return c.Username == user.Username && c.Email == user.Email
	}), nil
}

func (r *ConversationRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	return r.table.deleteWhere(func(c entity.Conversation) bool {
		return c.Timestamp.Before(cutoff)
	}), nil
}

func (r *ConversationRepository) ListUsers(_ context.Context) ([]entity.UserKey, error) {
	seen := map[entity.UserKey]bool{}
	users := []entity.UserKey{}
	for _, c := range r.all() {
		k := c.Key()
		if !seen[k] {
			seen[k] = true
			users = append(users, k)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Username != users[j].Username {
			return users[i].Username < users[j].Username
		}
		return users[i].Email < users[j].Email
	})
	return users, nil
}

func (r *ConversationRepository) CountAll(_ context.Context, since *time.Time) (int64, error) {
	var n int64
	for _, c := range r.all() {
		if since == nil || c.Timestamp.After(*since) {
			n++
		}
	}
	return n, nil
}

func (r *ConversationRepository) CountUsers(ctx context.Context) (int64, error) {
	users, err := r.ListUsers(ctx)
	return int64(len(users)), err
}
