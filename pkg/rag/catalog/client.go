package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/llm"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/access"
)

var (
	ErrEmptyQuery = errors.New("catalog: empty query")
	ErrNoResults  = errors.New("catalog: retriever returned no results")
)

// RetrievedItem is the raw shape returned by the ranked retriever.
type RetrievedItem struct {
	ID          string
	Kind        string
	Title       string
	Source      string
	Sheet       string
	AccessLevel string
	ContentRef  string
	Description string
	Rows        [][]string
	Summary     string
	Score       float64
}

// Retriever is the ranked-candidate search boundary. Ranking is its business.
type Retriever interface {
	Search(ctx context.Context, query string, limit int) ([]RetrievedItem, error)
}

// ClientConfig bounds each retriever call. A zero Retry uses llm.DefaultRetryPolicy.
type ClientConfig struct {
	Retry       llm.RetryPolicy
	CallTimeout time.Duration
}

// Client adapts retriever output into normalized Records.
type Client struct {
	retriever Retriever
	cfg       ClientConfig
	logger    logger.ILogger
}

func NewClient(retriever Retriever, cfg ClientConfig, log logger.ILogger) *Client {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = llm.DefaultRetryPolicy()
	}
	return &Client{retriever: retriever, cfg: cfg, logger: log}
}

// search runs one retriever call under its own timeout, retrying transient failures.
func (c *Client) search(ctx context.Context, query string, limit int) ([]RetrievedItem, error) {
	notify := func(attempt int, err error, wait time.Duration) {
		c.logger.Warn("RAG.Catalog", "Retriever call failed, retrying", map[string]interface{}{
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
			"error":   err.Error(),
		})
	}
	return llm.Retry(ctx, c.cfg.Retry, notify, func(ctx context.Context) ([]RetrievedItem, error) {
		if c.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
			defer cancel()
		}
		return c.retriever.Search(ctx, query, limit)
	})
}

// Search never returns nil records. An empty slice comes with a descriptive error
// that callers are expected to treat as "no documents", not as a failure.
func (c *Client) Search(ctx context.Context, query string, role string, limit int) ([]Record, error) {
	records := []Record{}

	if strings.TrimSpace(query) == "" {
		return records, ErrEmptyQuery
	}

	items, err := c.search(ctx, query, limit)
	if err != nil {
		return records, fmt.Errorf("catalog search: %w", err)
	}
	if len(items) == 0 {
		return records, ErrNoResults
	}

	var unknown, unusable int
	for _, item := range items {
		record, ok := c.adapt(item)
		if !ok {
			continue
		}
		switch {
		case record.Kind == KindUnknown:
			unknown++
			c.logger.Warn("RAG.Catalog", "Record kind could not be determined, excluded", map[string]interface{}{
				"record_id": record.ID,
			})
		case !record.Usable():
			unusable++
			c.logger.Warn("RAG.Catalog", "Tabular record has too few rows or columns, excluded", map[string]interface{}{
				"record_id": record.ID,
				"rows":      len(record.Rows),
			})
		default:
			records = append(records, record)
		}
	}

	c.logger.Info("RAG.Catalog", "Candidates retrieved", map[string]interface{}{
		"role":     role,
		"returned": len(items),
		"kept":     len(records),
		"unknown":  unknown,
		"unusable": unusable,
	})

	if len(records) == 0 {
		return records, fmt.Errorf("%w: %d item(s) were malformed or unusable", ErrNoResults, len(items))
	}
	return records, nil
}

func (c *Client) adapt(item RetrievedItem) (Record, bool) {
	id := strings.TrimSpace(item.ID)
	if id == "" {
		c.logger.Warn("RAG.Catalog", "Retriever item without id skipped", nil)
		return Record{}, false
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = id
	}

	source := item.Source
	if source == "" {
		source = item.ContentRef
	}

	return Record{
		ID:            id,
		Kind:          DetectKind(id, item.Kind),
		Title:         title,
		SourceLocator: source,
		Sheet:         item.Sheet,
		AccessLevel:   access.NormalizeLevel(item.AccessLevel),
		Description:   item.Description,
		Rows:          item.Rows,
		Summary:       item.Summary,
		Score:         item.Score,
	}, true
}
