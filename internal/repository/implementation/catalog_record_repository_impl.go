package implementation

import (
	"context"
	"errors"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/entity"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/mapper"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/model"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/contract"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/specification"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CatalogRecordRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.CatalogRecordMapper
}

func NewCatalogRecordRepository(db *gorm.DB) contract.CatalogRecordRepository {
	return &CatalogRecordRepositoryImpl{
		db:     db,
		mapper: mapper.NewCatalogRecordMapper(),
	}
}

func (r *CatalogRecordRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *CatalogRecordRepositoryImpl) Upsert(ctx context.Context, record *entity.CatalogRecord) error {
	m := r.mapper.ToModel(record)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"kind", "title", "source", "sheet", "access_level",
				"description", "content", "embedding", "updated_at",
			}),
		}).
		Create(m).Error
	if err != nil {
		return err
	}
	*record = *r.mapper.ToEntity(m)
	return nil
}

func (r *CatalogRecordRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.CatalogRecord, error) {
	var m model.CatalogRecord
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *CatalogRecordRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	err := query.Model(&model.CatalogRecord{}).Count(&count).Error
	return count, err
}

func (r *CatalogRecordRepositoryImpl) SearchSimilar(ctx context.Context, embedding []float32, limit int) ([]*entity.ScoredCatalogRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	// cosine distance: 1 - (a <=> b) is the cosine similarity
	type result struct {
		model.CatalogRecord
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(embedding)

	err := r.db.WithContext(ctx).
		Table("catalog_records").
		Select("catalog_records.*, 1 - (embedding <=> ?) as similarity", queryVector).
		Where("embedding IS NOT NULL").
		Order("similarity DESC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	scored := make([]*entity.ScoredCatalogRecord, len(results))
	for i, res := range results {
		scored[i] = &entity.ScoredCatalogRecord{
			Record:     r.mapper.ToEntity(&res.CatalogRecord),
			Similarity: res.Similarity,
		}
	}
	return scored, nil
}
