package mapper

import (
	"encoding/json"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/entity"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/model"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type CatalogRecordMapper struct{}

func NewCatalogRecordMapper() *CatalogRecordMapper {
	return &CatalogRecordMapper{}
}

type catalogContent struct {
	Rows    [][]string `json:"rows,omitempty"`
	Summary string     `json:"summary,omitempty"`
}

func (m *CatalogRecordMapper) ToEntity(r *model.CatalogRecord) *entity.CatalogRecord {
	if r == nil {
		return nil
	}

	var content catalogContent
	if len(r.Content) > 0 {
		_ = json.Unmarshal(r.Content, &content)
	}

	var updatedAt *time.Time
	if !r.UpdatedAt.IsZero() {
		t := r.UpdatedAt
		updatedAt = &t
	}

	return &entity.CatalogRecord{
		Id:          r.Id,
		Kind:        r.Kind,
		Title:       r.Title,
		Source:      r.Source,
		Sheet:       r.Sheet,
		AccessLevel: r.AccessLevel,
		Description: r.Description,
		Rows:        content.Rows,
		Summary:     content.Summary,
		Embedding:   r.Embedding.Slice(),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   updatedAt,
	}
}

func (m *CatalogRecordMapper) ToModel(r *entity.CatalogRecord) *model.CatalogRecord {
	if r == nil {
		return nil
	}

	raw, _ := json.Marshal(catalogContent{Rows: r.Rows, Summary: r.Summary})

	var updatedAt time.Time
	if r.UpdatedAt != nil {
		updatedAt = *r.UpdatedAt
	}

	return &model.CatalogRecord{
		Id:          r.Id,
		Kind:        r.Kind,
		Title:       r.Title,
		Source:      r.Source,
		Sheet:       r.Sheet,
		AccessLevel: r.AccessLevel,
		Description: r.Description,
		Content:     datatypes.JSON(raw),
		Embedding:   pgvector.NewVector(r.Embedding),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   updatedAt,
	}
}
