package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/entity"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/unitofwork"

	"github.com/google/uuid"
)

const module = "RAG.History"

// NoHistory is returned by FormatContext when there is nothing to show.
const NoHistory = "HISTORY: no prior conversation in the last 24h."

const (
	defaultHistoryLimit = 20
	defaultContextSize  = 5
	contextAnswerChars  = 200
)

var ErrEmptyIdentity = errors.New("history: username or email is required")

type Config struct {
	Window    time.Duration
	Retention time.Duration
}

func DefaultConfig() Config {
	return Config{Window: 24 * time.Hour, Retention: 30 * 24 * time.Hour}
}

type Option func(*Store)

// WithClock replaces time.Now, mainly for tests that move time forward.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the per-user conversation memory.
// Every read and write is scoped to (username, email); session ids never key anything.
type Store struct {
	uowFactory unitofwork.RepositoryFactory
	cfg        Config
	logger     logger.ILogger
	now        func() time.Time

	mu    sync.Mutex
	locks map[entity.UserKey]*userLock
}

// userLock is dropped from Store.locks once no writer holds or waits on it.
type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewStore(uowFactory unitofwork.RepositoryFactory, cfg Config, log logger.ILogger, opts ...Option) *Store {
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	s := &Store{
		uowFactory: uowFactory,
		cfg:        cfg,
		logger:     log,
		now:        time.Now,
		locks:      make(map[entity.UserKey]*userLock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lockUser serializes writes of one user and returns the matching unlock.
func (s *Store) lockUser(key entity.UserKey) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &userLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.mu.Lock()
		defer s.mu.Unlock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
	}
}

func (s *Store) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Save appends one exchange. Writes for the same user are serialized and
// timestamps stay strictly increasing even when the clock does not move.
func (s *Store) Save(ctx context.Context, username, email, question, response, sessionID string, sources ...string) (bool, error) {
	key := entity.UserKey{Username: username, Email: email}
	if key.IsZero() {
		return false, ErrEmptyIdentity
	}

	unlock := s.lockUser(key)
	defer unlock()

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = uow.Rollback()
			panic(r)
		}
	}()

	repo := uow.ConversationRepository()

	ts := s.clock()
	latest, err := repo.FindLatest(ctx, key)
	if err != nil {
		_ = uow.Rollback()
		return false, fmt.Errorf("find latest: %w", err)
	}
	if latest != nil && !ts.After(latest.Timestamp) {
		ts = latest.Timestamp.Add(time.Microsecond)
	}

	if sources == nil {
		sources = []string{}
	}
	conversation := &entity.Conversation{
		Id:        uuid.New(),
		Username:  username,
		Email:     email,
		Question:  question,
		Response:  response,
		SessionId: sessionID,
		Sources:   sources,
		Timestamp: ts,
	}
	if err := repo.Create(ctx, conversation); err != nil {
		_ = uow.Rollback()
		return false, fmt.Errorf("create: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info(module, "Conversation saved", map[string]interface{}{
		"user":       key.String(),
		"session_id": sessionID,
	})
	return true, nil
}

// History returns the user's records inside the window, most recent first.
func (s *Store) History(ctx context.Context, username, email string, limit int) ([]entity.Conversation, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	key := entity.UserKey{Username: username, Email: email}
	since := s.clock().Add(-s.cfg.Window)

	uow := s.uowFactory.NewUnitOfWork(ctx)
	found, err := uow.ConversationRepository().FindRecent(ctx, key, since, limit)
	if err != nil {
		return nil, err
	}
	return values(found), nil
}

// FormatContext renders recent history for prompts, oldest first.
// It degrades to NoHistory on any error.
func (s *Store) FormatContext(ctx context.Context, username, email string, max int) string {
	if max <= 0 {
		max = defaultContextSize
	}
	if username == "" && email == "" {
		return NoHistory
	}

	records, err := s.History(ctx, username, email, max)
	if err != nil {
		s.logger.Warn(module, "Failed to load history context", map[string]interface{}{
			"user":  entity.UserKey{Username: username, Email: email}.String(),
			"error": err.Error(),
		})
		return NoHistory
	}
	if len(records) == 0 {
		return NoHistory
	}

	var sb strings.Builder
	sb.WriteString("HISTORY (last 24h):\n")
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		fmt.Fprintf(&sb, "[%s] Q: %s\n", r.Timestamp.Format("2006-01-02 15:04"), r.Question)
		fmt.Fprintf(&sb, "    A: %s\n", truncate(r.Response, contextAnswerChars))
	}
	return strings.TrimRight(sb.String(), "\n")
}

type LastExchange struct {
	Timestamp time.Time
	Question  string
}

type Stats struct {
	Total   int64
	Last24h int64
	Last    *LastExchange
}

func (s *Store) Stats(ctx context.Context, username, email string) (Stats, error) {
	key := entity.UserKey{Username: username, Email: email}
	repo := s.uowFactory.NewUnitOfWork(ctx).ConversationRepository()

	total, err := repo.CountByUser(ctx, key, nil)
	if err != nil {
		return Stats{}, err
	}
	since := s.clock().Add(-s.cfg.Window)
	recent, err := repo.CountByUser(ctx, key, &since)
	if err != nil {
		return Stats{}, err
	}
	latest, err := repo.FindLatest(ctx, key)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Total: total, Last24h: recent}
	if latest != nil {
		stats.Last = &LastExchange{Timestamp: latest.Timestamp, Question: latest.Question}
	}
	return stats, nil
}

func (s *Store) DeleteAll(ctx context.Context, username, email string) (int64, error) {
	key := entity.UserKey{Username: username, Email: email}
	if key.IsZero() {
		return 0, ErrEmptyIdentity
	}

	unlock := s.lockUser(key)
	defer unlock()

	deleted, err := s.uowFactory.NewUnitOfWork(ctx).ConversationRepository().DeleteByUser(ctx, key)
	if err != nil {
		return 0, err
	}
	s.logger.Info(module, "User history deleted", map[string]interface{}{
		"user":    key.String(),
		"deleted": deleted,
	})
	return deleted, nil
}

// Export returns the whole stream of the user, oldest first, ignoring the window.
func (s *Store) Export(ctx context.Context, username, email string) ([]entity.Conversation, error) {
	key := entity.UserKey{Username: username, Email: email}
	found, err := s.uowFactory.NewUnitOfWork(ctx).ConversationRepository().FindAllByUser(ctx, key)
	if err != nil {
		return nil, err
	}
	return values(found), nil
}

// Prune deletes every record older than olderThan; zero means the configured retention.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		olderThan = s.cfg.Retention
	}
	cutoff := s.clock().Add(-olderThan)

	deleted, err := s.uowFactory.NewUnitOfWork(ctx).ConversationRepository().DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.logger.Info(module, "Old conversations pruned", map[string]interface{}{
		"cutoff":  cutoff.Format(time.RFC3339),
		"deleted": deleted,
	})
	return deleted, nil
}

func (s *Store) Users(ctx context.Context) ([]entity.UserKey, error) {
	return s.uowFactory.NewUnitOfWork(ctx).ConversationRepository().ListUsers(ctx)
}

type HealthReport struct {
	TotalConversations int64
	UniqueUsers        int64
	Last24h            int64
	Status             string
	Error              string
}

// Health never fails; a broken database shows up as Status "unhealthy".
func (s *Store) Health(ctx context.Context) HealthReport {
	repo := s.uowFactory.NewUnitOfWork(ctx).ConversationRepository()

	report := HealthReport{Status: "healthy"}
	var err error
	if report.TotalConversations, err = repo.CountAll(ctx, nil); err != nil {
		return unhealthy(err)
	}
	if report.UniqueUsers, err = repo.CountUsers(ctx); err != nil {
		return unhealthy(err)
	}
	since := s.clock().Add(-s.cfg.Window)
	if report.Last24h, err = repo.CountAll(ctx, &since); err != nil {
		return unhealthy(err)
	}
	return report
}

func unhealthy(err error) HealthReport {
	return HealthReport{Status: "unhealthy", Error: err.Error()}
}

func values(in []*entity.Conversation) []entity.Conversation {
	out := make([]entity.Conversation, 0, len(in))
	for _, c := range in {
		out = append(out, *c)
	}
	return out
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
