package integration

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/entity"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/model"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/unitofwork"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Load .env from root
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	db, err := database.NewGormDBFromDSN(dsn)
	require.NoError(t, err, "connect to DB")

	require.NoError(t, db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`).Error)
	require.NoError(t, db.AutoMigrate(&model.Conversation{}, &model.CatalogRecord{}))
	return db
}

func TestConversationRepository(t *testing.T) {
	db := openTestDB(t)
	uow := unitofwork.NewRepositoryFactory(db).NewUnitOfWork(context.Background())
	repo := uow.ConversationRepository()
	ctx := context.Background()

	user := entity.UserKey{Username: "it-" + uuid.NewString()[:8], Email: "it@example.com"}
	t.Cleanup(func() { _, _ = repo.DeleteByUser(ctx, user) })

	now := time.Now().UTC()
	for i, q := range []string{"old question", "recent question"} {
		conv := &entity.Conversation{
			Username:  user.Username,
			Email:     user.Email,
			Question:  q,
			Response:  "answer",
			SessionId: "s-1",
			Sources:   []string{"Budget 2024"},
			Timestamp: now.Add(time.Duration(i-1) * 48 * time.Hour),
		}
		require.NoError(t, repo.Create(ctx, conv))
		assert.NotEqual(t, uuid.Nil, conv.Id)
	}

	t.Run("Recent window", func(t *testing.T) {
		recent, err := repo.FindRecent(ctx, user, now.Add(-24*time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, "recent question", recent[0].Question)
		assert.Equal(t, []string{"Budget 2024"}, recent[0].Sources)
	})

	t.Run("Latest and counts", func(t *testing.T) {
		latest, err := repo.FindLatest(ctx, user)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, "recent question", latest.Question)

		total, err := repo.CountByUser(ctx, user, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
	})

	t.Run("Users include the test user", func(t *testing.T) {
		users, err := repo.ListUsers(ctx)
		require.NoError(t, err)
		assert.Contains(t, users, user)
	})

	t.Run("Transactional delete rolls back", func(t *testing.T) {
		tx := unitofwork.NewUnitOfWork(db)
		require.NoError(t, tx.Begin(ctx))
		deleted, err := tx.ConversationRepository().DeleteByUser(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)
		require.NoError(t, tx.Rollback())

		total, err := repo.CountByUser(ctx, user, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
	})
}

func TestCatalogRecordRepository(t *testing.T) {
	db := openTestDB(t)
	repo := unitofwork.NewUnitOfWork(db).CatalogRecordRepository()
	ctx := context.Background()

	id := "it-" + uuid.NewString()
	t.Cleanup(func() { db.Delete(&model.CatalogRecord{}, "id = ?", id) })

	vec := make([]float32, 768)
	vec[0] = 1
	require.NoError(t, repo.Upsert(ctx, &entity.CatalogRecord{
		Id:          id,
		Kind:        "spreadsheet",
		Title:       "Integration sheet",
		AccessLevel: "public",
		Rows:        [][]string{{"year", "total"}, {"2024", "12"}},
		Embedding:   vec,
	}))

	hits, err := repo.SearchSimilar(ctx, vec, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	var found bool
	for _, h := range hits {
		if h.Record.Id == id {
			found = true
			assert.InDelta(t, 1.0, h.Similarity, 1e-4)
			assert.Equal(t, [][]string{{"year", "total"}, {"2024", "12"}}, h.Record.Rows)
		}
	}
	assert.True(t, found, "upserted record should be among the nearest neighbours")
}
