package executor_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/memory"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/llm"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/access"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/analysis"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/catalog"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/computation"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/executor"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/history"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/ragtest"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/selection"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/state"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/synthesis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	selectionPrompt = "choosing data sources"
	analysisPrompt  = "data analysis expert"
	synthesisPrompt = "answering questions from official data"
)

var fastRetry = llm.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

type progressLog struct {
	mu       sync.Mutex
	messages []string
}

func (p *progressLog) Progress(_ context.Context, _, role, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, role+": "+content)
}

func (p *progressLog) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.messages...)
}

type harness struct {
	pipeline *executor.Pipeline
	sandbox  *ragtest.Sandbox
	memory   *history.Store
	progress *progressLog
}

type harnessOption func(*executor.Dependencies)

func newHarness(t *testing.T, provider llm.LLMProvider, sandbox *ragtest.Sandbox, items []catalog.RetrievedItem, opts ...harnessOption) *harness {
	t.Helper()
	log := logger.NewNopLogger()
	store := history.NewStore(memory.NewRepositoryFactory(), history.DefaultConfig(), log)
	progress := &progressLog{}

	var codeSandbox llm.CodeSandbox
	if sandbox != nil {
		codeSandbox = sandbox
	}

	deps := executor.Dependencies{
		Catalog:     catalog.NewClient(&ragtest.Retriever{Items: items}, catalog.ClientConfig{}, log),
		Policy:      access.Default(),
		Selector:    selection.NewSelector(provider, selection.Config{MaxSelected: 5, FallbackCount: 3, Retry: fastRetry}, log),
		Analyzer:    analysis.NewAnalyzer(provider, fastRetry, log),
		Computer:    computation.NewExecutor(codeSandbox, computation.Config{Retry: fastRetry, CleanupTimeout: time.Second}, log),
		Synthesizer: synthesis.NewSynthesizer(provider, store, fastRetry, log),
		History:     store,
		Progress:    progress,
		Logger:      log,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &harness{
		pipeline: executor.NewPipeline(deps, executor.Config{CandidateLimit: 10, HistoryContextSize: 5}),
		sandbox:  sandbox,
		memory:   store,
		progress: progress,
	}
}

func request(question, role string) *state.Context {
	return state.New(state.Request{
		Question:    question,
		SessionID:   "session-1",
		Role:        role,
		Permissions: access.Default().Permissions(role),
		Username:    "alice",
		Email:       "alice@example.com",
	})
}

func items(records ...catalog.Record) []catalog.RetrievedItem {
	out := make([]catalog.RetrievedItem, 0, len(records))
	for _, r := range records {
		out = append(out, ragtest.Item(r))
	}
	return out
}

func stages(sc *state.Context) []string {
	var out []string
	for _, e := range sc.Trace {
		out = append(out, e.Stage)
	}
	return out
}

func TestRun_DirectAnswerFromTextualRecord(t *testing.T) {
	provider := ragtest.NewScriptedLLM(
		ragtest.Reply{Match: selectionPrompt, Text: "SELECTED_DOCUMENTS: 1\nJUSTIFICATION: describes the job"},
		ragtest.Reply{Match: analysisPrompt, Text: "TYPE: DIRECT\nAn engineer designs and builds technical systems."},
		ragtest.Reply{Match: synthesisPrompt, Text: "An engineer designs and builds technical systems. Source: Engineering careers."},
	)
	h := newHarness(t, provider, &ragtest.Sandbox{}, items(
		ragtest.Text("pdf_1", "Engineering careers", "public", "What engineers do"),
	))
	sc := request("What is an engineer?", "public")

	require.NoError(t, h.pipeline.Run(context.Background(), sc))

	assert.False(t, sc.NeedsComputation)
	assert.Nil(t, sc.ComputationPlan)
	require.Len(t, sc.SelectedRecords, 1)
	assert.Contains(t, sc.FinalAnswer, "Engineering careers")
	assert.Contains(t, sc.FinalAnswer, "- [PUBLIC] 1 public document(s)")
	assert.Equal(t, []string{"retrieve", "authorize", "select", "analyze", "synthesize"}, stages(sc))
	assert.Zero(t, h.sandbox.Executions())

	saved, err := h.memory.Export(context.Background(), "alice", "alice@example.com")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, []string{"Engineering careers"}, saved[0].Sources)

	msgs := h.progress.all()
	require.NotEmpty(t, msgs)
	assert.Equal(t, "public: Answer ready", msgs[len(msgs)-1])
}

func TestRun_CalculationOverTwoTables(t *testing.T) {
	provider := ragtest.NewScriptedLLM(
		ragtest.Reply{Match: selectionPrompt, Text: "SELECTED_DOCUMENTS: 1, 2"},
		ragtest.Reply{Match: analysisPrompt, Text: "TYPE: CALCULATIONS\nSTEPS:\n1. Filter women in 2021\n2. Sum both tables\nALGORITHM:\n```python\nprint(df0['women'].sum() + df1['women'].sum())\n```"},
		ragtest.Reply{Match: synthesisPrompt, Text: "In 2021 there were 4,812 female graduates."},
	)
	sandbox := &ragtest.Sandbox{Output: &llm.ExecutionOutput{Outputs: []string{"4812"}}}
	h := newHarness(t, provider, sandbox, items(
		ragtest.Table("tableau_1", "Graduates by school 2021", "public", []string{"school", "women"}, []string{"A", "2000"}),
		ragtest.Table("tableau_2", "Graduates by region 2021", "public", []string{"region", "women"}, []string{"B", "2812"}),
	))
	sc := request("What is the total number of female graduates in 2021?", "employee")

	require.NoError(t, h.pipeline.Run(context.Background(), sc))

	assert.True(t, sc.NeedsComputation)
	require.NotNil(t, sc.ComputationPlan)
	assert.Equal(t, "4812", sc.ComputationResult)
	assert.Contains(t, sc.FinalAnswer, "4,812")
	assert.Len(t, sandbox.Uploads(), 2)
	assert.Len(t, sandbox.Deleted(), 2)

	var synthesisText string
	for _, p := range provider.Prompts() {
		if strings.Contains(p, synthesisPrompt) {
			synthesisText = p
		}
	}
	assert.Contains(t, synthesisText, "4812")
}

func TestRun_AuthorizationFiltersBeforeSelection(t *testing.T) {
	provider := ragtest.NewScriptedLLM(
		ragtest.Reply{Match: selectionPrompt, Text: "SELECTED_DOCUMENTS: 1,2"},
		ragtest.Reply{Match: analysisPrompt, Text: "TYPE: DIRECT\nThe budget figures are published yearly."},
		ragtest.Reply{Match: synthesisPrompt, Text: "The budget figures are published yearly."},
	)
	h := newHarness(t, provider, &ragtest.Sandbox{}, items(
		ragtest.Table("tableau_1", "Secret salaries", "confidential"),
		ragtest.Text("pdf_1", "Public budget", "public", "s"),
		ragtest.Table("tableau_2", "Secret budget", "confidential"),
		ragtest.Table("tableau_3", "Open data", "public"),
		ragtest.Text("pdf_2", "Board minutes", "confidential", "s"),
	))
	sc := request("How is the budget published?", "public")

	require.NoError(t, h.pipeline.Run(context.Background(), sc))

	assert.Len(t, sc.CandidateRecords, 5)
	assert.Len(t, sc.AuthorizedRecords, 2)
	for _, r := range sc.SelectedRecords {
		assert.Equal(t, access.LevelPublic, r.AccessLevel)
	}

	var selectionPromptText string
	for _, p := range provider.Prompts() {
		if strings.Contains(p, selectionPrompt) {
			selectionPromptText = p
		}
	}
	require.NotEmpty(t, selectionPromptText)
	assert.NotContains(t, selectionPromptText, "Secret")
	assert.NotContains(t, selectionPromptText, "Board minutes")
	assert.NotContains(t, sc.FinalAnswer, "[CONFIDENTIAL]")
}

func TestRun_TransientFailuresDegradeGracefully(t *testing.T) {
	provider := ragtest.NewScriptedLLM(
		ragtest.Reply{Err: &llm.ProviderError{Provider: "test", StatusCode: 503, Err: errors.New("overloaded")}},
	)
	h := newHarness(t, provider, &ragtest.Sandbox{}, items(
		ragtest.Table("tableau_1", "Graduates 2021", "public"),
	))
	sc := request("What percentage of graduates are women?", "public")

	started := time.Now()
	require.NoError(t, h.pipeline.Run(context.Background(), sc))

	assert.Less(t, time.Since(started), 2*time.Second)
	assert.False(t, sc.NeedsComputation)
	assert.Equal(t, llm.ClassTransient.UserMessage(), sc.DirectAnswer)
	assert.Contains(t, sc.FinalAnswer, llm.ClassTransient.UserMessage())
	// selection, analysis and synthesis each tried three times
	assert.Equal(t, 9, provider.Calls())
}

func TestRun_UnmarkedAnalysisForcesGenericPlan(t *testing.T) {
	provider := ragtest.NewScriptedLLM(
		ragtest.Reply{Match: selectionPrompt, Text: "SELECTED_DOCUMENTS: 1"},
		ragtest.Reply{Match: analysisPrompt, Text: "Looking at the figures is necessary here."},
		ragtest.Reply{Match: synthesisPrompt, Text: "About 48% of graduates are women."},
	)
	sandbox := &ragtest.Sandbox{Output: &llm.ExecutionOutput{Outputs: []string{"48.2"}}}
	h := newHarness(t, provider, sandbox, items(
		ragtest.Table("tableau_1", "Graduates 2021", "public"),
	))
	sc := request("What percentage of graduates are women?", "public")

	require.NoError(t, h.pipeline.Run(context.Background(), sc))

	assert.True(t, sc.NeedsComputation)
	require.NotNil(t, sc.ComputationPlan)
	assert.Equal(t, analysis.GenericPlan(sc.Question), sc.ComputationPlan)
	assert.Equal(t, "48.2", sc.ComputationResult)
}

func TestRun_NoDocumentsGoesStraightToSynthesis(t *testing.T) {
	provider := ragtest.NewScriptedLLM(
		ragtest.Reply{Match: synthesisPrompt, Text: "I could not find any document about this."},
	)
	h := newHarness(t, provider, nil, nil)
	sc := request("Who won the match?", "public")

	require.NoError(t, h.pipeline.Run(context.Background(), sc))

	assert.True(t, sc.NoDocuments)
	assert.Equal(t, []string{"retrieve", "synthesize"}, stages(sc))
	assert.Equal(t, 1, provider.Calls())
	assert.NotEmpty(t, sc.FinalAnswer)
}

func TestRun_AuthorizationExhausted(t *testing.T) {
	provider := ragtest.NewScriptedLLM(
		ragtest.Reply{Match: synthesisPrompt, Text: ""},
	)
	h := newHarness(t, provider, nil, items(
		ragtest.Table("tableau_1", "Secret salaries", "confidential"),
	))
	sc := request("What are the salaries?", "employee")

	require.NoError(t, h.pipeline.Run(context.Background(), sc))

	assert.True(t, sc.AuthorizationExhausted)
	assert.Empty(t, sc.SelectedRecords)
	assert.Contains(t, sc.FinalAnswer, synthesis.NoInformation)
}

func TestRun_CancelStopsWithoutSaving(t *testing.T) {
	provider := ragtest.NewBlockingLLM()
	h := newHarness(t, provider, nil, items(
		ragtest.Text("pdf_1", "Engineering careers", "public", "s"),
	))
	sc := request("What is an engineer?", "public")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.pipeline.Run(ctx, sc) }()

	<-provider.Started
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, executor.ErrCanceled)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after cancel")
	}

	assert.Empty(t, sc.FinalAnswer)
	saved, err := h.memory.Export(context.Background(), "alice", "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, saved)
}

type panickingSelector struct{}

func (panickingSelector) Select(context.Context, *state.Context) error {
	panic("index out of range")
}

func TestRun_PanicBecomesSystemError(t *testing.T) {
	h := newHarness(t, ragtest.NewScriptedLLM(), nil, items(
		ragtest.Text("pdf_1", "Engineering careers", "public", "s"),
	), func(d *executor.Dependencies) { d.Selector = panickingSelector{} })
	sc := request("What is an engineer?", "public")

	err := h.pipeline.Run(context.Background(), sc)

	require.ErrorIs(t, err, executor.ErrStageFailed)
	assert.Contains(t, err.Error(), "select")
	assert.Equal(t, executor.SystemErrorAnswer, sc.FinalAnswer)
}

type failingAnalyzer struct{}

func (failingAnalyzer) Analyze(context.Context, *state.Context) error {
	return errors.New("unexpected state")
}

func TestRun_StageErrorBecomesSystemError(t *testing.T) {
	h := newHarness(t, ragtest.NewScriptedLLM(ragtest.Reply{Text: "SELECTED_DOCUMENTS: 1"}), nil, items(
		ragtest.Text("pdf_1", "Engineering careers", "public", "s"),
	), func(d *executor.Dependencies) { d.Analyzer = failingAnalyzer{} })
	sc := request("What is an engineer?", "public")

	err := h.pipeline.Run(context.Background(), sc)

	require.ErrorIs(t, err, executor.ErrStageFailed)
	assert.Equal(t, executor.SystemErrorAnswer, sc.FinalAnswer)
	assert.Equal(t, []string{"retrieve", "authorize", "select"}, stages(sc))
}
