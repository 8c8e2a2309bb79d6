package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Add(context.Context, string, Message) error { return errors.New("redis down") }
func (failingStore) List(context.Context, string) ([]Message, error) {
	return nil, errors.New("redis down")
}
func (failingStore) Clear(context.Context, string) (int, error) { return 0, errors.New("redis down") }
func (failingStore) Claim(context.Context, string, string) (string, error) {
	return "", errors.New("redis down")
}
func (failingStore) Owner(context.Context, string) (string, error) { return "", errors.New("redis down") }

func TestMemoryStore_OrderAndClear(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	empty, err := store.List(ctx, "s1")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for _, c := range []string{"one", "two", "three"} {
		require.NoError(t, store.Add(ctx, "s1", Message{Type: TypeProgress, Content: c}))
	}
	require.NoError(t, store.Add(ctx, "s2", Message{Type: TypeFinal, Content: "other"}))

	messages, err := store.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "one", messages[0].Content)
	assert.Equal(t, "three", messages[2].Content)

	n, err := store.Clear(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	messages, err = store.List(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, messages)

	others, err := store.List(ctx, "s2")
	require.NoError(t, err)
	assert.Len(t, others, 1)
}

func TestReporter_TagsRoleAndSurvivesCancel(t *testing.T) {
	store := NewMemoryStore()
	r := NewReporter(store, logger.NewNopLogger())
	fixed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r.Progress(ctx, "s1", "employee", "Searching documents")
	r.Final(ctx, "s1", "Done", map[string]interface{}{"sources": 2})
	r.Error(ctx, "s1", "boom")
	r.Progress(ctx, "", "employee", "dropped")

	messages, err := store.List(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, messages, 3)

	assert.Equal(t, TypeProgress, messages[0].Type)
	assert.Equal(t, "[EMPLOYEE] Searching documents", messages[0].Content)
	assert.Equal(t, fixed, messages[0].Timestamp)
	assert.Equal(t, TypeFinal, messages[1].Type)
	assert.Equal(t, 2, messages[1].Metadata["sources"])
	assert.Equal(t, TypeError, messages[2].Type)
}

func TestReporter_StoreFailureIsSwallowed(t *testing.T) {
	r := NewReporter(failingStore{}, logger.NewNopLogger())

	assert.NotPanics(t, func() {
		r.Progress(context.Background(), "s1", "public", "hello")
	})

	var nilReporter *Reporter
	assert.NotPanics(t, func() {
		nilReporter.Error(context.Background(), "s1", "x")
	})
}

func TestMemoryStore_ClaimKeepsFirstOwner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	owner, err := store.Owner(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, owner)

	owner, err = store.Claim(ctx, "s1", "admin|admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, "admin|admin@example.com", owner)

	owner, err = store.Claim(ctx, "s1", "|")
	require.NoError(t, err)
	assert.Equal(t, "admin|admin@example.com", owner)

	_, err = store.Clear(ctx, "s1")
	require.NoError(t, err)
	owner, err = store.Owner(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "admin|admin@example.com", owner, "clearing messages keeps the owner")
}
