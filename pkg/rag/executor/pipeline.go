package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/catalog"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/state"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const module = "RAG.Pipeline"

// SystemErrorAnswer is the only answer a user sees when a stage breaks unexpectedly.
const SystemErrorAnswer = "A system error occurred while processing your question. Please try again later."

var (
	ErrCanceled    = errors.New("pipeline canceled")
	ErrStageFailed = errors.New("pipeline stage failed")
)

type CatalogSearcher interface {
	Search(ctx context.Context, query string, role string, limit int) ([]catalog.Record, error)
}

type Selector interface {
	Select(ctx context.Context, sc *state.Context) error
}

type Analyzer interface {
	Analyze(ctx context.Context, sc *state.Context) error
}

type Computer interface {
	Compute(ctx context.Context, sc *state.Context) error
}

type Synthesizer interface {
	Synthesize(ctx context.Context, sc *state.Context) error
}

type HistoryFormatter interface {
	FormatContext(ctx context.Context, username, email string, max int) string
}

type ProgressReporter interface {
	Progress(ctx context.Context, sessionID, role, content string)
}

// StageObserver is told about each stage before it runs.
type StageObserver func(stage Stage)

// Dependencies are injected once; History and Progress are optional.
type Dependencies struct {
	Catalog     CatalogSearcher
	Policy      catalog.Authorizer
	Selector    Selector
	Analyzer    Analyzer
	Computer    Computer
	Synthesizer Synthesizer
	History     HistoryFormatter
	Progress    ProgressReporter
	Logger      logger.ILogger
}

type Config struct {
	CandidateLimit     int
	HistoryContextSize int
}

// Pipeline drives one request through retrieve, authorize, select, analyze,
// compute and synthesize as an explicit state machine.
type Pipeline struct {
	deps Dependencies
	cfg  Config
	now  func() time.Time
}

func NewPipeline(deps Dependencies, cfg Config) *Pipeline {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 10
	}
	if cfg.HistoryContextSize <= 0 {
		cfg.HistoryContextSize = 5
	}
	return &Pipeline{deps: deps, cfg: cfg, now: time.Now}
}

// Run returns nil when sc.FinalAnswer holds a regular answer, an ErrCanceled
// wrap when ctx was canceled, and an ErrStageFailed wrap (with SystemErrorAnswer
// set) when a stage broke.
func (p *Pipeline) Run(ctx context.Context, sc *state.Context) error {
	return p.RunObserved(ctx, sc, nil)
}

// RunObserved is Run with a per-run observer; observe may be nil.
func (p *Pipeline) RunObserved(ctx context.Context, sc *state.Context, observe StageObserver) (err error) {
	ctx, span := otel.Tracer("rag.pipeline").Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sc.SessionID), attribute.String("user.role", sc.UserRole))

	stage := StageRetrieve
	defer func() {
		if r := recover(); r != nil {
			p.deps.Logger.Error(module, "Stage panicked", map[string]interface{}{
				"session_id": sc.SessionID,
				"stage":      stage.String(),
				"panic":      fmt.Sprint(r),
				"stack":      string(debug.Stack()),
			})
			err = p.fail(sc, stage, fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	p.deps.Logger.Info(module, "Pipeline started", map[string]interface{}{
		"session_id": sc.SessionID,
		"role":       sc.UserRole,
	})

	for steps := 0; stage != StageDone; steps++ {
		if steps >= stageCount {
			return p.fail(sc, stage, fmt.Errorf("exceeded %d transitions", stageCount))
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return p.canceled(sc, stage, ctxErr)
		}

		if observe != nil {
			observe(stage)
		}
		next, stageErr := p.step(ctx, stage, sc)
		if stageErr != nil {
			if ctx.Err() != nil {
				return p.canceled(sc, stage, ctx.Err())
			}
			return p.fail(sc, stage, stageErr)
		}

		sc.Record(stage.String(), next.String(), "", p.now())
		p.report(ctx, sc, next)
		stage = next
	}

	if observe != nil {
		observe(StageDone)
	}
	p.deps.Logger.Info(module, "Pipeline finished", map[string]interface{}{
		"session_id":        sc.SessionID,
		"needs_computation": sc.NeedsComputation,
		"selected":          len(sc.SelectedRecords),
		"transitions":       len(sc.Trace),
	})
	return nil
}

func (p *Pipeline) step(ctx context.Context, stage Stage, sc *state.Context) (Stage, error) {
	ctx, span := otel.Tracer("rag.pipeline").Start(ctx, "stage."+stage.String())
	defer span.End()

	switch stage {
	case StageRetrieve:
		return p.retrieve(ctx, sc)
	case StageAuthorize:
		return p.authorize(sc), nil
	case StageSelect:
		return StageAnalyze, p.deps.Selector.Select(ctx, sc)
	case StageAnalyze:
		if err := p.deps.Analyzer.Analyze(ctx, sc); err != nil {
			return StageAnalyze, err
		}
		if sc.NeedsComputation {
			return StageCompute, nil
		}
		return StageSynthesize, nil
	case StageCompute:
		return StageSynthesize, p.deps.Computer.Compute(ctx, sc)
	case StageSynthesize:
		return StageDone, p.deps.Synthesizer.Synthesize(ctx, sc)
	default:
		return StageDone, fmt.Errorf("unknown stage %d", stage)
	}
}

func (p *Pipeline) retrieve(ctx context.Context, sc *state.Context) (Stage, error) {
	if p.deps.History != nil {
		sc.HistoryContext = p.deps.History.FormatContext(ctx, sc.Username, sc.Email, p.cfg.HistoryContextSize)
	}

	records, err := p.deps.Catalog.Search(ctx, sc.Question, sc.UserRole, p.cfg.CandidateLimit)
	if ctx.Err() != nil {
		return StageRetrieve, ctx.Err()
	}
	if err != nil || len(records) == 0 {
		details := map[string]interface{}{"session_id": sc.SessionID}
		if err != nil {
			details["error"] = err.Error()
		}
		p.deps.Logger.Warn(module, "[PHASE 1] Retrieval returned no documents", details)
		sc.CandidateRecords = []catalog.Record{}
		sc.NoDocuments = true
		sc.Touch()
		return StageSynthesize, nil
	}

	sc.CandidateRecords = records
	sc.Touch()
	p.deps.Logger.Info(module, "[PHASE 1] Candidates retrieved", map[string]interface{}{
		"session_id": sc.SessionID,
		"count":      len(records),
	})
	return StageAuthorize, nil
}

func (p *Pipeline) authorize(sc *state.Context) Stage {
	authorized, denied := catalog.Authorize(p.deps.Policy, sc.UserRole, sc.CandidateRecords)
	sc.AuthorizedRecords = authorized
	sc.Touch()

	if len(authorized) == 0 {
		sc.AuthorizationExhausted = true
		p.deps.Logger.Warn(module, "[PHASE 2] Authorization exhausted", map[string]interface{}{
			"session_id": sc.SessionID,
			"role":       sc.UserRole,
			"denied":     denied,
		})
		return StageSynthesize
	}

	p.deps.Logger.Info(module, "[PHASE 2] Candidates authorized", map[string]interface{}{
		"session_id": sc.SessionID,
		"authorized": len(authorized),
		"denied":     denied,
	})
	return StageSelect
}

func (p *Pipeline) canceled(sc *state.Context, stage Stage, cause error) error {
	p.deps.Logger.Warn(module, "Pipeline canceled", map[string]interface{}{
		"session_id": sc.SessionID,
		"stage":      stage.String(),
	})
	return fmt.Errorf("%w at %s: %w", ErrCanceled, stage, cause)
}

func (p *Pipeline) fail(sc *state.Context, stage Stage, cause error) error {
	p.deps.Logger.Error(module, "Pipeline stage failed", map[string]interface{}{
		"session_id": sc.SessionID,
		"stage":      stage.String(),
		"error":      cause.Error(),
	})
	sc.FinalAnswer = SystemErrorAnswer
	sc.Touch()
	return fmt.Errorf("%w at %s: %v", ErrStageFailed, stage, cause)
}

var stageMessages = map[Stage]string{
	StageAuthorize:  "Checking access rights on the documents found",
	StageSelect:     "Selecting the most relevant documents",
	StageAnalyze:    "Analyzing the selected documents",
	StageCompute:    "Running calculations on the data",
	StageSynthesize: "Writing the answer",
	StageDone:       "Answer ready",
}

func (p *Pipeline) report(ctx context.Context, sc *state.Context, next Stage) {
	if p.deps.Progress == nil {
		return
	}
	if msg, ok := stageMessages[next]; ok {
		p.deps.Progress.Progress(ctx, sc.SessionID, sc.UserRole, msg)
	}
}
