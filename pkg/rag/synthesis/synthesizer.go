package synthesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/llm"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/state"
)

const module = "RAG.Synthesis"

const (
	// NoInformation is the last-resort answer when nothing else is available.
	NoInformation = "No information found to answer your question with the documents you can access."
	noDocuments   = "NO DOCUMENTS: no accessible document matched the question."
	citedSources  = 3
)

// MemoryWriter is satisfied by *history.Store.
type MemoryWriter interface {
	Save(ctx context.Context, username, email, question, response, sessionID string, sources ...string) (bool, error)
}

// Synthesizer writes the final user-facing answer and remembers the exchange.
type Synthesizer struct {
	llmProvider llm.LLMProvider
	memory      MemoryWriter
	retry       llm.RetryPolicy
	logger      logger.ILogger
}

// NewSynthesizer accepts a nil memory; nothing is remembered then.
func NewSynthesizer(llmProvider llm.LLMProvider, memory MemoryWriter, retry llm.RetryPolicy, log logger.ILogger) *Synthesizer {
	return &Synthesizer{llmProvider: llmProvider, memory: memory, retry: retry, logger: log}
}

// Synthesize always leaves a non-empty sc.FinalAnswer unless ctx is canceled,
// in which case nothing is saved and the context error is returned.
func (s *Synthesizer) Synthesize(ctx context.Context, sc *state.Context) error {
	prompt := s.buildPrompt(sc)

	answer, err := llm.Retry(ctx, s.retry, func(attempt int, err error, wait time.Duration) {
		s.logger.Warn(module, "Retrying synthesis call", map[string]interface{}{
			"session_id": sc.SessionID,
			"attempt":    attempt,
			"wait":       wait.String(),
			"error":      err.Error(),
		})
	}, func(ctx context.Context) (string, error) {
		return s.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.3))
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}

	answer = strings.TrimSpace(answer)
	if err != nil || answer == "" {
		if err != nil {
			s.logger.Warn(module, "Synthesis call failed, concatenating partial results", map[string]interface{}{
				"session_id": sc.SessionID,
				"class":      string(llm.Classify(err)),
				"error":      err.Error(),
			})
		}
		answer = Fallback(sc)
	}

	sc.FinalAnswer = Decorate(sc.UserRole, sc.UserPermissions, answer, sc.SelectedRecords)
	sc.Touch()

	s.remember(ctx, sc, answer)
	return nil
}

func (s *Synthesizer) remember(ctx context.Context, sc *state.Context, answer string) {
	if s.memory == nil || !sc.HasIdentity() || ctx.Err() != nil {
		return
	}
	if _, err := s.memory.Save(ctx, sc.Username, sc.Email, sc.Question, answer, sc.SessionID, sc.SourceTitles()...); err != nil {
		s.logger.Error(module, "Failed to save conversation", map[string]interface{}{
			"session_id": sc.SessionID,
			"error":      err.Error(),
		})
	}
}

// Fallback concatenates what the earlier stages produced, best first.
func Fallback(sc *state.Context) string {
	switch {
	case sc.ComputationResult != "":
		return "According to my analysis: " + sc.ComputationResult
	case sc.DirectAnswer != "":
		return sc.DirectAnswer
	case sc.ComputationError != "":
		return sc.ComputationError
	default:
		return NoInformation
	}
}

func (s *Synthesizer) buildPrompt(sc *state.Context) string {
	var prompt strings.Builder

	prompt.WriteString("You are an assistant answering questions from official data.\n\n")
	fmt.Fprintf(&prompt, "QUESTION: %s\n\n", sc.Question)

	if sc.HistoryContext != "" {
		prompt.WriteString(sc.HistoryContext)
		prompt.WriteString("\n\n")
	}

	prompt.WriteString("PARTIAL RESULTS:\n")
	wrote := false
	if sc.ComputationResult != "" {
		fmt.Fprintf(&prompt, "Computed result:\n%s\n", sc.ComputationResult)
		wrote = true
	}
	if sc.ComputationError != "" {
		fmt.Fprintf(&prompt, "Computation problem: %s\n", sc.ComputationError)
		wrote = true
	}
	if sc.DirectAnswer != "" {
		fmt.Fprintf(&prompt, "Direct answer:\n%s\n", sc.DirectAnswer)
		wrote = true
	}
	if sc.AnalysisText != "" && sc.AnalysisText != sc.DirectAnswer {
		fmt.Fprintf(&prompt, "Analysis notes:\n%s\n", sc.AnalysisText)
		wrote = true
	}
	if !wrote || sc.NoDocuments || sc.AuthorizationExhausted {
		prompt.WriteString(noDocuments + "\n")
	}

	if len(sc.SelectedRecords) > 0 {
		prompt.WriteString("\nSOURCES:\n")
		for i, r := range sc.SelectedRecords {
			if i == citedSources {
				break
			}
			fmt.Fprintf(&prompt, "- %s (%s)\n", r.Title, r.DisplaySource())
		}
	}

	prompt.WriteString("\nINSTRUCTIONS:\n")
	prompt.WriteString("- Answer in clear prose based only on the partial results above\n")
	prompt.WriteString("- Never mention spreadsheets, tables, tabular data, PDF files or dataframes\n")
	prompt.WriteString("- Keep continuity with the conversation history when it is relevant\n")
	prompt.WriteString("- Cite the sources by title at the end\n")
	prompt.WriteString("- If there is no usable information, say so honestly\n")

	return prompt.String()
}
