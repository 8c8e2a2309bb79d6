package synthesis_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/llm"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/catalog"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/ragtest"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/state"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/synthesis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = llm.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

type savedExchange struct {
	username, email, question, response, sessionID string
	sources                                        []string
}

type recordingMemory struct {
	mu    sync.Mutex
	saved []savedExchange
}

func (m *recordingMemory) Save(ctx context.Context, username, email, question, response, sessionID string, sources ...string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, savedExchange{username, email, question, response, sessionID, sources})
	return true, nil
}

func (m *recordingMemory) all() []savedExchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]savedExchange{}, m.saved...)
}

func newContext(role, username string) *state.Context {
	sc := state.New(state.Request{
		Question:    "How many graduates in 2021?",
		SessionID:   "s1",
		Role:        role,
		Permissions: []string{"read_public_docs"},
		Username:    username,
	})
	sc.SelectedRecords = []catalog.Record{
		ragtest.Table("tableau_1", "Graduates 2021", "public"),
		ragtest.Text("pdf_1", "Annual report", "internal", "summary"),
	}
	return sc
}

func TestSynthesize_DecoratesAndRemembersUndecorated(t *testing.T) {
	llmStub := ragtest.NewScriptedLLM(ragtest.Reply{Text: "  There were 1,200 graduates.  "})
	memory := &recordingMemory{}
	s := synthesis.NewSynthesizer(llmStub, memory, fastRetry, logger.NewNopLogger())
	sc := newContext("employee", "alice")
	sc.ComputationResult = "1200"

	require.NoError(t, s.Synthesize(context.Background(), sc))

	assert.True(t, strings.HasPrefix(sc.FinalAnswer, "**Employee access**\n\nThere were 1,200 graduates."))
	assert.Contains(t, sc.FinalAnswer, "- [PUBLIC] 1 public document(s)")
	assert.Contains(t, sc.FinalAnswer, "- [INTERNAL] 1 internal document(s)")
	assert.NotContains(t, sc.FinalAnswer, "Admin debug")

	saved := memory.all()
	require.Len(t, saved, 1)
	assert.Equal(t, "There were 1,200 graduates.", saved[0].response)
	assert.Equal(t, []string{"Graduates 2021", "Annual report"}, saved[0].sources)

	prompt := llmStub.Prompts()[0]
	assert.Contains(t, prompt, "Computed result:\n1200")
	assert.NotContains(t, prompt, "NO DOCUMENTS")
}

func TestSynthesize_FallbackOrder(t *testing.T) {
	tests := []struct {
		name  string
		setup func(sc *state.Context)
		want  string
	}{
		{"computed result first", func(sc *state.Context) {
			sc.ComputationResult = "42"
			sc.DirectAnswer = "ignored"
		}, "According to my analysis: 42"},
		{"direct answer", func(sc *state.Context) {
			sc.DirectAnswer = "An answer."
			sc.ComputationError = "ignored"
		}, "An answer."},
		{"computation error", func(sc *state.Context) {
			sc.ComputationError = "The calculation ran but produced no result."
		}, "The calculation ran but produced no result."},
		{"nothing", func(sc *state.Context) {}, synthesis.NoInformation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llmStub := ragtest.NewScriptedLLM(ragtest.Reply{Err: &llm.ProviderError{StatusCode: 503, Err: errors.New("down")}})
			s := synthesis.NewSynthesizer(llmStub, nil, fastRetry, logger.NewNopLogger())
			sc := newContext("public", "")
			tt.setup(sc)

			require.NoError(t, s.Synthesize(context.Background(), sc))

			assert.Equal(t, 3, llmStub.Calls())
			assert.Contains(t, sc.FinalAnswer, tt.want)
			assert.Equal(t, tt.want, synthesis.Fallback(sc))
		})
	}
}

func TestSynthesize_EmptyReplyUsesFallback(t *testing.T) {
	llmStub := ragtest.NewScriptedLLM(ragtest.Reply{Text: "   "})
	s := synthesis.NewSynthesizer(llmStub, nil, fastRetry, logger.NewNopLogger())
	sc := newContext("public", "")
	sc.DirectAnswer = "Direct."

	require.NoError(t, s.Synthesize(context.Background(), sc))
	assert.Contains(t, sc.FinalAnswer, "Direct.")
}

func TestSynthesize_NoIdentityNotRemembered(t *testing.T) {
	memory := &recordingMemory{}
	s := synthesis.NewSynthesizer(ragtest.NewScriptedLLM(ragtest.Reply{Text: "ok answer"}), memory, fastRetry, logger.NewNopLogger())
	sc := newContext("public", "")

	require.NoError(t, s.Synthesize(context.Background(), sc))
	assert.Empty(t, memory.all())
}

func TestSynthesize_CanceledSavesNothing(t *testing.T) {
	llmStub := ragtest.NewBlockingLLM()
	memory := &recordingMemory{}
	s := synthesis.NewSynthesizer(llmStub, memory, fastRetry, logger.NewNopLogger())
	sc := newContext("employee", "alice")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Synthesize(ctx, sc) }()

	<-llmStub.Started
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Synthesize did not return after cancel")
	}
	assert.Empty(t, sc.FinalAnswer)
	assert.Empty(t, memory.all())
}

func TestSynthesize_NoDocumentsMarker(t *testing.T) {
	llmStub := ragtest.NewScriptedLLM(ragtest.Reply{Text: "I could not find anything."})
	s := synthesis.NewSynthesizer(llmStub, nil, fastRetry, logger.NewNopLogger())
	sc := newContext("public", "")
	sc.SelectedRecords = []catalog.Record{}
	sc.NoDocuments = true

	require.NoError(t, s.Synthesize(context.Background(), sc))

	assert.Contains(t, llmStub.Prompts()[0], "NO DOCUMENTS")
	assert.NotContains(t, sc.FinalAnswer, "Sources consulted")
}

func TestDecorate(t *testing.T) {
	used := []catalog.Record{
		ragtest.Table("t1", "A", "confidential"),
		ragtest.Table("t2", "B", "confidential"),
	}

	t.Run("admin sees permissions", func(t *testing.T) {
		out := synthesis.Decorate("admin", []string{"read_public_docs", "admin_access"}, "Answer", used)
		assert.True(t, strings.HasPrefix(out, "**Administrator access**"))
		assert.Contains(t, out, "- [CONFIDENTIAL] 2 confidential document(s)")
		assert.NotContains(t, out, "[PUBLIC]")
		assert.True(t, strings.HasSuffix(out, "active permissions: read_public_docs, admin_access"))
	})

	t.Run("admin without permissions", func(t *testing.T) {
		out := synthesis.Decorate("ADMIN", nil, "Answer", nil)
		assert.Contains(t, out, "unknown_permissions")
		assert.NotContains(t, out, "Sources consulted")
	})

	t.Run("unknown role", func(t *testing.T) {
		out := synthesis.Decorate("guest", nil, "Answer", nil)
		assert.Equal(t, "**Limited access**\n\nAnswer", out)
	})
}
