package implementation

import (
	"context"
	"errors"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/entity"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/mapper"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/model"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/contract"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/scope"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/specification"

	"gorm.io/gorm"
)

type ConversationRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ConversationMapper
}

func NewConversationRepository(db *gorm.DB) contract.ConversationRepository {
	return &ConversationRepositoryImpl{
		db:     db,
		mapper: mapper.NewConversationMapper(),
	}
}

func (r *ConversationRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ConversationRepositoryImpl) Create(ctx context.Context, conversation *entity.Conversation) error {
	m := r.mapper.ToModel(conversation)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*conversation = *r.mapper.ToEntity(m)
	return nil
}

func (r *ConversationRepositoryImpl) FindLatest(ctx context.Context, user entity.UserKey) (*entity.Conversation, error) {
	var m model.Conversation
	query := r.applySpecifications(r.db.WithContext(ctx), specification.ByUser{User: user})
	if err := query.Scopes(scope.OrderByTimestampDesc).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *ConversationRepositoryImpl) FindRecent(ctx context.Context, user entity.UserKey, since time.Time, limit int) ([]*entity.Conversation, error) {
	return r.findAll(ctx,
		specification.ByUser{User: user},
		specification.TimestampAfter{Since: since},
		specification.OrderBy{Field: "timestamp", Desc: true},
		specification.Pagination{Limit: limit},
	)
}

func (r *ConversationRepositoryImpl) FindAllByUser(ctx context.Context, user entity.UserKey) ([]*entity.Conversation, error) {
	return r.findAll(ctx,
		specification.ByUser{User: user},
		specification.OrderBy{Field: "timestamp"},
	)
}

func (r *ConversationRepositoryImpl) findAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Conversation, error) {
	var models []*model.Conversation
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.Conversation, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ToEntity(m)
	}
	return entities, nil
}

func (r *ConversationRepositoryImpl) CountByUser(ctx context.Context, user entity.UserKey, since *time.Time) (int64, error) {
	specs := []specification.Specification{specification.ByUser{User: user}}
	if since != nil {
		specs = append(specs, specification.TimestampAfter{Since: *since})
	}
	return r.count(ctx, specs...)
}

func (r *ConversationRepositoryImpl) CountAll(ctx context.Context, since *time.Time) (int64, error) {
	if since == nil {
		return r.count(ctx)
	}
	return r.count(ctx, specification.TimestampAfter{Since: *since})
}

func (r *ConversationRepositoryImpl) count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	err := query.Model(&model.Conversation{}).Count(&count).Error
	return count, err
}

func (r *ConversationRepositoryImpl) DeleteByUser(ctx context.Context, user entity.UserKey) (int64, error) {
	query := r.applySpecifications(r.db.WithContext(ctx), specification.ByUser{User: user})
	res := query.Delete(&model.Conversation{})
	return res.RowsAffected, res.Error
}

func (r *ConversationRepositoryImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := r.applySpecifications(r.db.WithContext(ctx), specification.TimestampBefore{Cutoff: cutoff})
	res := query.Delete(&model.Conversation{})
	return res.RowsAffected, res.Error
}

func (r *ConversationRepositoryImpl) ListUsers(ctx context.Context) ([]entity.UserKey, error) {
	var rows []struct {
		Username string
		Email    string
	}
	err := r.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Scopes(scope.DistinctUsers).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	users := make([]entity.UserKey, len(rows))
	for i, row := range rows {
		users[i] = entity.UserKey{Username: row.Username, Email: row.Email}
	}
	return users, nil
}

func (r *ConversationRepositoryImpl) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM (SELECT DISTINCT username, email FROM conversations) AS users").
		Scan(&count).Error
	return count, err
}
