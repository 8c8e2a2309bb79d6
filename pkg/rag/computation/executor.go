package computation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/llm"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/catalog"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/state"
)

const module = "RAG.Computation"

var (
	ErrSandboxUnavailable = errors.New("computation: no code sandbox configured")
	ErrNoTabularRecords   = errors.New("computation: no tabular record selected")
	ErrNoPlan             = errors.New("computation: no plan to execute")
	ErrNoExecutableOutput = errors.New("computation: execution produced no output")
)

const guideColumns = 4

type Config struct {
	Retry          llm.RetryPolicy
	CleanupTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{Retry: llm.DefaultRetryPolicy(), CleanupTimeout: 10 * time.Second}
}

// Executor runs a computation plan in a code sandbox over the selected tables.
type Executor struct {
	sandbox llm.CodeSandbox
	cfg     Config
	logger  logger.ILogger
}

// NewExecutor accepts a nil sandbox; Compute then records ErrSandboxUnavailable.
func NewExecutor(sandbox llm.CodeSandbox, cfg Config, log logger.ILogger) *Executor {
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = 10 * time.Second
	}
	return &Executor{sandbox: sandbox, cfg: cfg, logger: log}
}

// Compute stores either ComputationResult or ComputationError on sc.
// Only cancellation is returned to the caller.
func (e *Executor) Compute(ctx context.Context, sc *state.Context) error {
	result, err := e.run(ctx, sc)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sc.ComputationError = describe(err)
		sc.Touch()
		e.logger.Error(module, "Computation failed", map[string]interface{}{
			"session_id": sc.SessionID,
			"error":      err.Error(),
		})
		return nil
	}

	sc.ComputationResult = result
	sc.Touch()
	e.logger.Info(module, "[PHASE 5] Computation finished", map[string]interface{}{
		"session_id": sc.SessionID,
		"chars":      len(result),
	})
	return nil
}

func (e *Executor) run(ctx context.Context, sc *state.Context) (string, error) {
	if e.sandbox == nil {
		return "", ErrSandboxUnavailable
	}
	if sc.ComputationPlan == nil {
		return "", ErrNoPlan
	}
	tables := sc.SelectedTabular()
	if len(tables) == 0 {
		return "", ErrNoTabularRecords
	}

	var uploaded []llm.UploadedArtifact
	defer func() { e.release(sc.SessionID, uploaded) }()

	for i, record := range tables {
		artifact, err := ExportCSV(i, record)
		if err != nil {
			return "", err
		}
		handle, err := e.sandbox.Upload(ctx, artifact)
		if err != nil {
			return "", err
		}
		uploaded = append(uploaded, handle)
	}

	prompt := BuildPrompt(sc.Question, sc.ComputationPlan, tables)

	output, err := llm.Retry(ctx, e.cfg.Retry, func(attempt int, err error, wait time.Duration) {
		e.logger.Warn(module, "Retrying code execution", map[string]interface{}{
			"session_id": sc.SessionID,
			"attempt":    attempt,
			"wait":       wait.String(),
			"error":      err.Error(),
		})
	}, func(ctx context.Context) (*llm.ExecutionOutput, error) {
		return e.sandbox.Execute(ctx, prompt, uploaded)
	})
	if err != nil {
		return "", err
	}

	return collect(output)
}

// release deletes every upload on a fresh context so a canceled request still cleans up.
func (e *Executor) release(sessionID string, uploaded []llm.UploadedArtifact) {
	if len(uploaded) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CleanupTimeout)
	defer cancel()

	for _, f := range uploaded {
		if err := e.sandbox.Delete(ctx, f.ID); err != nil {
			e.logger.Warn(module, "Failed to delete uploaded file", map[string]interface{}{
				"session_id": sessionID,
				"file_id":    f.ID,
				"error":      err.Error(),
			})
		}
	}
}

func collect(output *llm.ExecutionOutput) (string, error) {
	if output == nil {
		return "", ErrNoExecutableOutput
	}
	if joined := strings.TrimSpace(strings.Join(output.Outputs, "\n")); joined != "" {
		return joined, nil
	}
	if joined := strings.TrimSpace(strings.Join(output.Text, "\n")); joined != "" {
		return joined, nil
	}
	return "", ErrNoExecutableOutput
}

func describe(err error) string {
	var execErr *llm.ExecutionError
	switch {
	case errors.Is(err, ErrSandboxUnavailable):
		return "Calculations are not available on this server."
	case errors.Is(err, ErrNoTabularRecords):
		return "No table was available to perform the requested calculation."
	case errors.Is(err, ErrNoPlan):
		return "The calculation could not be planned."
	case errors.Is(err, ErrNoExecutableOutput):
		return "The calculation ran but produced no result."
	case errors.As(err, &execErr):
		return fmt.Sprintf("The calculation could not be completed (%s).", execErr.Status)
	default:
		return "The calculation failed: " + llm.Classify(err).UserMessage()
	}
}

// BuildPrompt tells the sandbox which file holds which table and what to compute.
func BuildPrompt(question string, plan *state.Plan, tables []catalog.Record) string {
	var prompt strings.Builder

	fmt.Fprintf(&prompt, "QUESTION: %s\n\n", question)
	if plan.Description != "" {
		fmt.Fprintf(&prompt, "GOAL: %s\n\n", plan.Description)
	}
	if plan.Steps != "" {
		fmt.Fprintf(&prompt, "STEPS:\n%s\n\n", plan.Steps)
	}
	if plan.Code != "" {
		fmt.Fprintf(&prompt, "ALGORITHM:\n%s\n\n", plan.Code)
	}

	prompt.WriteString("FILES:\n")
	for i, t := range tables {
		cols := t.Columns()
		if len(cols) > guideColumns {
			cols = cols[:guideColumns]
		}
		fmt.Fprintf(&prompt, "- %s: %s (source: %s)\n", FileName(i), t.Title, t.DisplaySource())
		if t.Description != "" {
			fmt.Fprintf(&prompt, "  description: %s\n", t.Description)
		}
		fmt.Fprintf(&prompt, "  columns: %s\n", strings.Join(cols, ", "))
	}

	prompt.WriteString("\nLoad each file as the dataframe named after it (df0.csv -> df0), ")
	prompt.WriteString("run the computation and print the final result explicitly.\n")
	return prompt.String()
}
