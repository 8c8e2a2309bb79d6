package analysis

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

const module = "RAG.Analysis"

const previewRows = 3

// Analyzer decides whether the question needs computation and, if not, answers it.
type Analyzer struct {
	llmProvider llm.LLMProvider
	classifier  *Classifier
	retry       llm.RetryPolicy
	logger      logger.ILogger
}

func NewAnalyzer(llmProvider llm.LLMProvider, retry llm.RetryPolicy, log logger.ILogger) *Analyzer {
	return &Analyzer{
		llmProvider: llmProvider,
		classifier:  NewClassifier(),
		retry:       retry,
		logger:      log,
	}
}

// Analyze never returns the provider error: a failed call becomes a degraded direct answer.
func (a *Analyzer) Analyze(ctx context.Context, sc *state.Context) error {
	prompt := a.buildPrompt(sc)

	response, err := llm.Retry(ctx, a.retry, func(attempt int, err error, wait time.Duration) {
		a.logger.Warn(module, "Retrying analysis call", map[string]interface{}{
			"session_id": sc.SessionID,
			"attempt":    attempt,
			"wait":       wait.String(),
			"error":      err.Error(),
		})
	}, func(ctx context.Context) (string, error) {
		return a.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.1))
	})
	if err != nil {
		class := llm.Classify(err)
		a.logger.Error(module, "Analysis call failed", map[string]interface{}{
			"session_id": sc.SessionID,
			"class":      string(class),
			"error":      err.Error(),
		})
		a.apply(sc, Result{Outcome: ForcedDirectFallback, Answer: class.UserMessage()})
		return nil
	}

	sc.AnalysisText = strings.TrimSpace(response)
	result := a.classifier.Classify(response, sc.Question)
	a.apply(sc, result)

	a.logger.Info(module, "[PHASE 4] Analysis classified", map[string]interface{}{
		"session_id":        sc.SessionID,
		"outcome":           result.Outcome.String(),
		"needs_computation": result.NeedsComputation,
	})
	return nil
}

func (a *Analyzer) apply(sc *state.Context, result Result) {
	sc.NeedsComputation = result.NeedsComputation
	if result.NeedsComputation {
		sc.ComputationPlan = result.Plan
		sc.DirectAnswer = ""
	} else {
		sc.ComputationPlan = nil
		sc.DirectAnswer = result.Answer
	}
	sc.Touch()
}

func (a *Analyzer) buildPrompt(sc *state.Context) string {
	var prompt strings.Builder

	prompt.WriteString("You are a data analysis expert.\n\n")
	fmt.Fprintf(&prompt, "QUESTION: %s\n\n", sc.Question)

	if sc.HistoryContext != "" {
		prompt.WriteString(sc.HistoryContext)
		prompt.WriteString("\n\n")
	}

	prompt.WriteString("AVAILABLE DATA:\n")
	writeMetadata(&prompt, sc.SelectedRecords)

	prompt.WriteString("\nRULE:\n")
	prompt.WriteString("- If the question needs calculations (percentage, total, comparison, trend) answer with TYPE: CALCULATIONS\n")
	prompt.WriteString("- Otherwise answer with TYPE: DIRECT followed by your answer\n\n")
	prompt.WriteString("MANDATORY RESPONSE FORMAT, one of:\n\n")
	prompt.WriteString("TYPE: CALCULATIONS\n")
	prompt.WriteString("STEPS:\n1. ...\n2. ...\n")
	prompt.WriteString("ALGORITHM:\n```python\n# pandas code using df0, df1, ...\n```\n\n")
	prompt.WriteString("TYPE: DIRECT\n")
	prompt.WriteString("ANSWER: [complete answer based on the data above]\n")

	return prompt.String()
}

func writeMetadata(sb *strings.Builder, records []catalog.Record) {
	alias := 0
	for _, r := range records {
		if r.IsTabular() {
			fmt.Fprintf(sb, "df%d: %s\n", alias, r.Title)
			fmt.Fprintf(sb, "  Source: %s\n", r.DisplaySource())
			if r.Description != "" {
				fmt.Fprintf(sb, "  Description: %s\n", r.Description)
			}
			fmt.Fprintf(sb, "  Columns: %s\n", strings.Join(r.Columns(), ", "))
			var rows [][]string
			if len(r.Rows) > 1 {
				rows = r.Rows[1:]
			}
			if len(rows) > previewRows {
				rows = rows[:previewRows]
			}
			for _, row := range rows {
				fmt.Fprintf(sb, "  | %s |\n", strings.Join(row, " | "))
			}
			alias++
			continue
		}
		fmt.Fprintf(sb, "DOCUMENT: %s\n", r.Title)
		fmt.Fprintf(sb, "  Source: %s\n", r.DisplaySource())
		fmt.Fprintf(sb, "  Summary: %s\n", r.Summary)
	}
}
