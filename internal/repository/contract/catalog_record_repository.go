package contract

import (
	"context"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/entity"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/specification"
)

type CatalogRecordRepository interface {
	Upsert(ctx context.Context, record *entity.CatalogRecord) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.CatalogRecord, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	// SearchSimilar orders by cosine distance and reports 1 - distance as similarity.
	SearchSimilar(ctx context.Context, embedding []float32, limit int) ([]*entity.ScoredCatalogRecord, error)
}
