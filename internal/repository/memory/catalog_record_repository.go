package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/entity"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/contract"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/specification"
)

type catalogTable struct {
	mu   sync.RWMutex
	rows map[string]entity.CatalogRecord
}

// CatalogRecordRepository ranks by brute-force cosine similarity.
// FindOne and Count only understand ByRecordID and ByAccessLevel.
type CatalogRecordRepository struct {
	table *catalogTable
}

var _ contract.CatalogRecordRepository = &CatalogRecordRepository{}

func (r *CatalogRecordRepository) Upsert(_ context.Context, record *entity.CatalogRecord) error {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()

	now := time.Now()
	if existing, ok := r.table.rows[record.Id]; ok {
		record.CreatedAt = existing.CreatedAt
		record.UpdatedAt = &now
	} else if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	r.table.rows[record.Id] = *record
	return nil
}

func matches(rec entity.CatalogRecord, specs []specification.Specification) bool {
	for _, s := range specs {
		switch spec := s.(type) {
		case specification.ByRecordID:
			if rec.Id != spec.ID {
				return false
			}
		case specification.ByAccessLevel:
			if rec.AccessLevel != spec.Level {
				return false
			}
		}
	}
	return true
}

func (r *CatalogRecordRepository) FindOne(_ context.Context, specs ...specification.Specification) (*entity.CatalogRecord, error) {
	r.table.mu.RLock()
	defer r.table.mu.RUnlock()
	for _, rec := range r.table.rows {
		if matches(rec, specs) {
			found := rec
			return &found, nil
		}
	}
	return nil, nil
}

func (r *CatalogRecordRepository) Count(_ context.Context, specs ...specification.Specification) (int64, error) {
	r.table.mu.RLock()
	defer r.table.mu.RUnlock()
	var n int64
	for _, rec := range r.table.rows {
		if matches(rec, specs) {
			n++
		}
	}
	return n, nil
}

func (r *CatalogRecordRepository) SearchSimilar(_ context.Context, embedding []float32, limit int) ([]*entity.ScoredCatalogRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	r.table.mu.RLock()
	scored := make([]*entity.ScoredCatalogRecord, 0, len(r.table.rows))
	for _, rec := range r.table.rows {
		if len(rec.Embedding) == 0 {
			continue
		}
		found := rec
		scored = append(scored, &entity.ScoredCatalogRecord{Record: &found, Similarity: cosine(embedding, rec.Embedding)})
	}
	r.table.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Record.Id < scored[j].Record.Id
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
