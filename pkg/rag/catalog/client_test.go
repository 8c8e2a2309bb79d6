package catalog_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/llm"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/access"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/catalog"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/ragtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectKind(t *testing.T) {
	tests := []struct {
		id       string
		declared string
		want     catalog.Kind
	}{
		{"anything", "tabular", catalog.KindTabular},
		{"tableau_123", "TEXTUAL", catalog.KindTextual},
		{"tableau_emploi_2021", "", catalog.KindTabular},
		{"excel_sheet_4", "", catalog.KindTabular},
		{"pdf_rapport_annuel", "", catalog.KindTextual},
		{"doc_42", "bogus", catalog.KindTextual},
		{"item_42", "", catalog.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, catalog.DetectKind(tt.id, tt.declared))
		})
	}
}

func TestClient_SearchNormalizesAndDropsBadRecords(t *testing.T) {
	retriever := &ragtest.Retriever{Items: []catalog.RetrievedItem{
		{ID: "tableau_1", Title: "Graduates", AccessLevel: " Internal ", Rows: [][]string{{"year", "count"}, {"2021", "120"}}},
		{ID: "pdf_1", Title: "", Summary: "Engineering overview", AccessLevel: "secret"},
		{ID: "mystery_1", Title: "Unknown thing"},
		{ID: "tableau_empty", Title: "Header only", Rows: [][]string{{"year"}}},
		{ID: "", Title: "no id"},
	}}
	client := catalog.NewClient(retriever, catalog.ClientConfig{}, logger.NewNopLogger())

	records, err := client.Search(context.Background(), "graduates", access.RolePublic, 10)

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, catalog.KindTabular, records[0].Kind)
	assert.Equal(t, access.LevelInternal, records[0].AccessLevel)
	assert.Equal(t, "pdf_1", records[1].Title, "missing title falls back to id")
	assert.Equal(t, access.LevelPublic, records[1].AccessLevel, "unknown level is public")
}

func TestClient_SearchEmptyCases(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		retriever *ragtest.Retriever
		wantErr   error
	}{
		{"blank query", "   ", &ragtest.Retriever{}, catalog.ErrEmptyQuery},
		{"no results", "q", &ragtest.Retriever{}, catalog.ErrNoResults},
		{"only unusable", "q", &ragtest.Retriever{Items: []catalog.RetrievedItem{{ID: "mystery"}}}, catalog.ErrNoResults},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := catalog.NewClient(tt.retriever, catalog.ClientConfig{}, logger.NewNopLogger())
			records, err := client.Search(context.Background(), tt.query, access.RolePublic, 5)

			assert.NotNil(t, records)
			assert.Empty(t, records)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_SearchWrapsRetrieverError(t *testing.T) {
	boom := errors.New("connection refused")
	client := catalog.NewClient(&ragtest.Retriever{Err: boom}, catalog.ClientConfig{}, logger.NewNopLogger())

	records, err := client.Search(context.Background(), "q", access.RolePublic, 5)

	assert.NotNil(t, records)
	assert.ErrorIs(t, err, boom)
}

type countingPolicy struct {
	*access.Policy
	calls int
}

func (p *countingPolicy) IsAuthorized(role string, level access.AccessLevel) bool {
	p.calls++
	return p.Policy.IsAuthorized(role, level)
}

func TestAuthorize_ChecksEachRecordOnce(t *testing.T) {
	records := []catalog.Record{
		ragtest.Text("pdf_1", "a", "public", "s"),
		ragtest.Text("pdf_2", "b", "confidential", "s"),
		ragtest.Table("tableau_3", "c", "confidential"),
		ragtest.Table("tableau_4", "d", "internal"),
		ragtest.Text("pdf_5", "e", "confidential", "s"),
	}
	policy := &countingPolicy{Policy: access.Default()}

	authorized, denied := catalog.Authorize(policy, access.RolePublic, records)

	assert.Equal(t, len(records), policy.calls)
	assert.Equal(t, 4, denied)
	require.Len(t, authorized, 1)
	assert.Equal(t, "pdf_1", authorized[0].ID)
}

func TestCatalogOrder_TabularFirst(t *testing.T) {
	records := []catalog.Record{
		ragtest.Text("pdf_1", "a", "public", "s"),
		ragtest.Table("tableau_2", "b", "public"),
		ragtest.Text("pdf_3", "c", "public", "s"),
		ragtest.Table("tableau_4", "d", "public"),
	}

	ordered := catalog.CatalogOrder(records)

	ids := make([]string, len(ordered))
	for i, r := range ordered {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"tableau_2", "tableau_4", "pdf_1", "pdf_3"}, ids)
}

func TestRecord_DisplaySource(t *testing.T) {
	r := catalog.Record{SourceLocator: "emploi.xlsx", Sheet: "2021"}
	assert.Equal(t, "emploi.xlsx -> 2021", r.DisplaySource())
	assert.Equal(t, "N/A", catalog.Record{}.DisplaySource())
}

// flakyRetriever fails its first calls with fail, then answers with items.
type flakyRetriever struct {
	fail  func(ctx context.Context) error
	fails int
	items []catalog.RetrievedItem
	calls int
}

func (r *flakyRetriever) Search(ctx context.Context, _ string, _ int) ([]catalog.RetrievedItem, error) {
	r.calls++
	if r.calls <= r.fails {
		return nil, r.fail(ctx)
	}
	return r.items, nil
}

func TestClient_SearchRetriesTransientFailures(t *testing.T) {
	items := []catalog.RetrievedItem{{ID: "pdf_1", Title: "Report", Summary: "Annual report"}}
	fastRetry := llm.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

	tests := []struct {
		name string
		fail func(ctx context.Context) error
	}{
		{"unavailable", func(context.Context) error {
			return &llm.ProviderError{Provider: "pgvector", StatusCode: http.StatusServiceUnavailable, Err: errors.New("overloaded")}
		}},
		{"hung call", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retriever := &flakyRetriever{fail: tt.fail, fails: 1, items: items}
			client := catalog.NewClient(retriever, catalog.ClientConfig{
				Retry:       fastRetry,
				CallTimeout: 20 * time.Millisecond,
			}, logger.NewNopLogger())

			records, err := client.Search(context.Background(), "report", access.RolePublic, 5)

			require.NoError(t, err)
			assert.Equal(t, 2, retriever.calls)
			require.Len(t, records, 1)
			assert.Equal(t, "pdf_1", records[0].ID)
		})
	}
}

func TestClient_SearchDoesNotRetryInvalidRequests(t *testing.T) {
	retriever := &flakyRetriever{fails: 5, fail: func(context.Context) error {
		return &llm.ProviderError{Provider: "pgvector", StatusCode: http.StatusBadRequest, Err: errors.New("bad vector")}
	}}
	client := catalog.NewClient(retriever, catalog.ClientConfig{
		Retry: llm.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond},
	}, logger.NewNopLogger())

	_, err := client.Search(context.Background(), "report", access.RolePublic, 5)

	require.Error(t, err)
	assert.Equal(t, 1, retriever.calls)
}
