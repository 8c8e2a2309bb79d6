package catalog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/memory"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/access"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/catalog"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/ragtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
records:
  - id: tableau_graduates_2021
    title: Engineering graduates 2021
    access_level: public
    description: Number of engineering graduates per year
    rows:
      - [year, graduates]
      - ["2020", "110"]
      - ["2021", "120"]
  - id: pdf_salary_report
    title: Salary report
    access_level: confidential
    summary: Average engineer salaries by region
  - id: item_7
    title: Mystery
`

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))
	return path
}

func TestLoadSeedFile(t *testing.T) {
	records, err := catalog.LoadSeedFile(writeSeed(t))

	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"year", "graduates"}, records[0].Rows[0])
	assert.Equal(t, "confidential", records[1].AccessLevel)

	_, err = catalog.LoadSeedFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestIngestThenRetrieve(t *testing.T) {
	ctx := context.Background()
	factory := memory.NewRepositoryFactory()
	embedder := &ragtest.Embedder{}

	records, err := catalog.LoadSeedFile(writeSeed(t))
	require.NoError(t, err)

	written, err := catalog.NewIngester(factory, embedder, logger.NewNopLogger()).Ingest(ctx, records)
	assert.Equal(t, 2, written)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item_7")

	client := catalog.NewClient(catalog.NewPgvectorRetriever(factory, embedder), catalog.ClientConfig{}, logger.NewNopLogger())
	found, err := client.Search(ctx, "how many engineering graduates per year", access.RolePublic, 2)
	require.NoError(t, err)
	require.NotEmpty(t, found)
	assert.Equal(t, "tableau_graduates_2021", found[0].ID)
	assert.Equal(t, catalog.KindTabular, found[0].Kind)
	assert.Greater(t, found[0].Score, 0.0)
}

func TestDocumentText(t *testing.T) {
	text := catalog.DocumentText(catalog.SeedRecord{
		Title:       "Graduates",
		Description: "per year",
		Rows:        [][]string{{"year", "count"}, {"2021", "1"}},
	})
	assert.Equal(t, "Graduates\nper year\nyear, count", text)
}
