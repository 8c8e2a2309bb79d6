package progress

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore is the single-instance fallback when Redis is unreachable.
type MemoryStore struct {
	mu     sync.Mutex
	cache  *cache.Cache
	owners *cache.Cache
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache:  cache.New(24*time.Hour, 30*time.Minute),
		owners: cache.New(24*time.Hour, 30*time.Minute),
	}
}

func (s *MemoryStore) Add(_ context.Context, sessionID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var messages []Message
	if x, found := s.cache.Get(sessionID); found {
		messages = x.([]Message)
	}
	next := make([]Message, len(messages), len(messages)+1)
	copy(next, messages)
	next = append(next, msg)
	s.cache.Set(sessionID, next, cache.DefaultExpiration)
	return nil
}

func (s *MemoryStore) List(_ context.Context, sessionID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if x, found := s.cache.Get(sessionID); found {
		messages := x.([]Message)
		out := make([]Message, len(messages))
		copy(out, messages)
		return out, nil
	}
	return []Message{}, nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	if x, found := s.cache.Get(sessionID); found {
		n = len(x.([]Message))
	}
	s.cache.Delete(sessionID)
	return n, nil
}

func (s *MemoryStore) Claim(_ context.Context, sessionID, owner string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if x, found := s.owners.Get(sessionID); found {
		return x.(string), nil
	}
	s.owners.Set(sessionID, owner, cache.DefaultExpiration)
	return owner, nil
}

func (s *MemoryStore) Owner(_ context.Context, sessionID string) (string, error) {
	if x, found := s.owners.Get(sessionID); found {
		return x.(string), nil
	}
	return "", nil
}
