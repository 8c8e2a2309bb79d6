package selection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/llm"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/catalog"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/state"
)

const module = "RAG.Selection"

type Config struct {
	MaxSelected   int
	FallbackCount int
	Retry         llm.RetryPolicy
}

func DefaultConfig() Config {
	return Config{MaxSelected: 5, FallbackCount: 3, Retry: llm.DefaultRetryPolicy()}
}

// Selector asks the LLM to pick the most relevant authorized records.
type Selector struct {
	llmProvider llm.LLMProvider
	cfg         Config
	logger      logger.ILogger
}

func NewSelector(llmProvider llm.LLMProvider, cfg Config, log logger.ILogger) *Selector {
	if cfg.MaxSelected <= 0 {
		cfg.MaxSelected = 5
	}
	if cfg.FallbackCount <= 0 {
		cfg.FallbackCount = 3
	}
	return &Selector{llmProvider: llmProvider, cfg: cfg, logger: log}
}

// Select always leaves a non-empty subset of the authorized records in
// sc.SelectedRecords when at least one authorized record exists.
func (s *Selector) Select(ctx context.Context, sc *state.Context) error {
	ordered := catalog.CatalogOrder(sc.AuthorizedRecords)
	if len(ordered) == 0 {
		sc.SelectedRecords = []catalog.Record{}
		sc.Touch()
		return nil
	}

	prompt := s.buildPrompt(sc.Question, ordered)
	response, err := llm.Retry(ctx, s.cfg.Retry, s.notify(sc.SessionID), func(ctx context.Context) (string, error) {
		return s.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.1))
	})

	var indices []int
	if err != nil {
		s.logger.Warn(module, "Selection call failed, using fallback", map[string]interface{}{
			"session_id": sc.SessionID,
			"class":      string(llm.Classify(err)),
			"error":      err.Error(),
		})
	} else {
		indices = ParseIndices(response, len(ordered), s.cfg.MaxSelected)
	}

	if len(indices) == 0 {
		n := min(s.cfg.FallbackCount, len(ordered))
		for i := 0; i < n; i++ {
			indices = append(indices, i)
		}
		s.logger.Info(module, "No usable selection, taking first records", map[string]interface{}{
			"session_id": sc.SessionID,
			"count":      n,
		})
	}

	selected := make([]catalog.Record, 0, len(indices))
	for _, idx := range indices {
		selected = append(selected, ordered[idx])
	}
	sc.SelectedRecords = selected
	sc.Touch()

	s.logger.Info(module, "[PHASE 3] Records selected", map[string]interface{}{
		"session_id": sc.SessionID,
		"selected":   len(selected),
		"available":  len(ordered),
	})
	return nil
}

func (s *Selector) notify(sessionID string) llm.RetryNotify {
	return func(attempt int, err error, wait time.Duration) {
		s.logger.Warn(module, "Retrying selection call", map[string]interface{}{
			"session_id": sessionID,
			"attempt":    attempt,
			"wait":       wait.String(),
			"error":      err.Error(),
		})
	}
}

func (s *Selector) buildPrompt(question string, ordered []catalog.Record) string {
	var prompt strings.Builder

	prompt.WriteString("You are an expert at choosing data sources to answer questions.\n\n")
	fmt.Fprintf(&prompt, "QUESTION: %s\n\n", question)
	prompt.WriteString("AVAILABLE DOCUMENTS (spreadsheets and documents mixed):\n")
	prompt.WriteString(RenderCatalog(ordered))
	prompt.WriteString("\n")
	fmt.Fprintf(&prompt, "TASK: Select the %d most relevant documents to answer the question.\n", s.cfg.MaxSelected)
	prompt.WriteString("- Prefer documents that directly contain the needed information\n")
	prompt.WriteString("- Combine figures and context when the question requires both\n")
	prompt.WriteString("- Avoid redundant documents\n\n")
	prompt.WriteString("MANDATORY RESPONSE FORMAT:\n")
	prompt.WriteString("SELECTED_DOCUMENTS: [comma separated numbers, e.g. 1,3,5]\n")
	prompt.WriteString("JUSTIFICATION: [short explanation]\n")

	return prompt.String()
}
