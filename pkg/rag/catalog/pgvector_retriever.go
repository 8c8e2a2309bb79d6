package catalog

import (
	"context"
	"fmt"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/unitofwork"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/embedding"
)

// PgvectorRetriever ranks catalog_records by cosine similarity to the embedded query.
type PgvectorRetriever struct {
	uowFactory unitofwork.RepositoryFactory
	embedder   embedding.EmbeddingProvider
}

var _ Retriever = &PgvectorRetriever{}

func NewPgvectorRetriever(uowFactory unitofwork.RepositoryFactory, embedder embedding.EmbeddingProvider) *PgvectorRetriever {
	return &PgvectorRetriever{uowFactory: uowFactory, embedder: embedder}
}

func (r *PgvectorRetriever) Search(ctx context.Context, query string, limit int) ([]RetrievedItem, error) {
	emb, err := r.embedder.Generate(ctx, query, embedding.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	uow := r.uowFactory.NewUnitOfWork(ctx)
	scored, err := uow.CatalogRecordRepository().SearchSimilar(ctx, emb.Embedding.Values, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	items := make([]RetrievedItem, 0, len(scored))
	for _, s := range scored {
		rec := s.Record
		items = append(items, RetrievedItem{
			ID:          rec.Id,
			Kind:        rec.Kind,
			Title:       rec.Title,
			Source:      rec.Source,
			Sheet:       rec.Sheet,
			AccessLevel: rec.AccessLevel,
			Description: rec.Description,
			Rows:        rec.Rows,
			Summary:     rec.Summary,
			Score:       s.Similarity,
		})
	}
	return items, nil
}
