package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/entity"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/unitofwork"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/embedding"

	"gopkg.in/yaml.v3"
)

// SeedRecord is one already-parsed record as written in a catalog seed file.
type SeedRecord struct {
	ID          string     `yaml:"id"`
	Kind        string     `yaml:"kind"`
	Title       string     `yaml:"title"`
	Source      string     `yaml:"source"`
	Sheet       string     `yaml:"sheet"`
	AccessLevel string     `yaml:"access_level"`
	Description string     `yaml:"description"`
	Rows        [][]string `yaml:"rows"`
	Summary     string     `yaml:"summary"`
}

type seedFile struct {
	Records []SeedRecord `yaml:"records"`
}

// LoadSeedFile reads a YAML document of the form {records: [...]}.
func LoadSeedFile(path string) ([]SeedRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return f.Records, nil
}

// Ingester embeds seed records and upserts them into catalog_records.
type Ingester struct {
	uowFactory unitofwork.RepositoryFactory
	embedder   embedding.EmbeddingProvider
	logger     logger.ILogger
}

func NewIngester(uowFactory unitofwork.RepositoryFactory, embedder embedding.EmbeddingProvider, log logger.ILogger) *Ingester {
	return &Ingester{uowFactory: uowFactory, embedder: embedder, logger: log}
}

// Ingest stores every valid record and returns how many were written.
// Invalid records are skipped and reported in the joined error.
func (i *Ingester) Ingest(ctx context.Context, records []SeedRecord) (int, error) {
	repo := i.uowFactory.NewUnitOfWork(ctx).CatalogRecordRepository()

	var errs []error
	written := 0
	for _, r := range records {
		if strings.TrimSpace(r.ID) == "" {
			errs = append(errs, fmt.Errorf("record %q: missing id", r.Title))
			continue
		}
		kind := DetectKind(r.ID, r.Kind)
		if kind == KindUnknown {
			errs = append(errs, fmt.Errorf("record %s: unknown kind", r.ID))
			continue
		}

		emb, err := i.embedder.Generate(ctx, DocumentText(r), embedding.TaskRetrievalDocument)
		if err != nil {
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("record %s: embed: %w", r.ID, err))
			continue
		}

		rec := &entity.CatalogRecord{
			Id:          r.ID,
			Kind:        string(kind),
			Title:       r.Title,
			Source:      r.Source,
			Sheet:       r.Sheet,
			AccessLevel: r.AccessLevel,
			Description: r.Description,
			Rows:        r.Rows,
			Summary:     r.Summary,
			Embedding:   emb.Embedding.Values,
		}
		if err := repo.Upsert(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("record %s: upsert: %w", r.ID, err))
			continue
		}
		written++
	}

	i.logger.Info("RAG.Catalog", "Catalog records ingested", map[string]interface{}{
		"written": written,
		"skipped": len(errs),
	})
	return written, errors.Join(errs...)
}

// DocumentText is what gets embedded for a record: title, description, and
// either the header row or the summary.
func DocumentText(r SeedRecord) string {
	parts := []string{r.Title}
	if r.Description != "" {
		parts = append(parts, r.Description)
	}
	if len(r.Rows) > 0 {
		parts = append(parts, strings.Join(r.Rows[0], ", "))
	}
	if r.Summary != "" {
		parts = append(parts, r.Summary)
	}
	return strings.Join(parts, "\n")
}
