package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/dto"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/memory"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/access"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/executor"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/progress"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var ignoreCacheJanitor = goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run")

var (
	anonymous = Caller{Role: "public"}
	alice     = Caller{Username: "alice", Role: "public"}
)

type runnerMode int

const (
	runnerAnswers runnerMode = iota
	runnerHonorsCancel
	runnerIgnoresCancel
)

type fakeRunner struct {
	mode    runnerMode
	answer  string
	started chan string
	release chan struct{}
}

func newFakeRunner(mode runnerMode) *fakeRunner {
	return &fakeRunner{
		mode:    mode,
		answer:  "**Public access**\n\nAn engineer designs systems.",
		started: make(chan string, 8),
		release: make(chan struct{}),
	}
}

func (r *fakeRunner) RunObserved(ctx context.Context, sc *state.Context, observe executor.StageObserver) error {
	observe(executor.StageRetrieve)
	r.started <- sc.SessionID

	switch r.mode {
	case runnerHonorsCancel:
		<-ctx.Done()
		return fmt.Errorf("%w at %s: %w", executor.ErrCanceled, executor.StageRetrieve, ctx.Err())
	case runnerIgnoresCancel:
		<-r.release
	}

	sc.FinalAnswer = r.answer
	observe(executor.StageDone)
	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (p *recordingPublisher) Publish(_ context.Context, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *recordingPublisher) all() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte{}, p.payloads...)
}

type fixture struct {
	svc       IChatbotService
	runner    *fakeRunner
	publisher *recordingPublisher
}

func newFixture(t *testing.T, mode runnerMode, cfg ChatbotConfig) *fixture {
	t.Helper()
	runner := newFakeRunner(mode)
	publisher := &recordingPublisher{}
	svc := NewChatbotService(
		runner,
		access.Default(),
		memory.NewExecutionRepository(),
		progress.NewMemoryStore(),
		publisher,
		cfg,
		logger.NewNopLogger(),
	)
	return &fixture{svc: svc, runner: runner, publisher: publisher}
}

func (f *fixture) shutdown(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Shutdown(ctx))
}

func TestStart_RejectsInvalidInput(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreCacheJanitor)
	f := newFixture(t, runnerAnswers, ChatbotConfig{})

	_, err := f.svc.Start(context.Background(), StartRequest{Question: "   ", Role: "public"})
	assert.ErrorIs(t, err, ErrInvalidQuestion)

	_, err = f.svc.Start(context.Background(), StartRequest{
		Question:    "What is an engineer?",
		Role:        "employee",
		Permissions: []string{access.PermissionHistoryRead},
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	assert.Empty(t, f.svc.Status(context.Background(), Caller{Role: "admin"}))
	f.shutdown(t)
}

func TestAsk_CompletesAndPublishes(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreCacheJanitor)
	f := newFixture(t, runnerAnswers, ChatbotConfig{})
	ctx := context.Background()

	res, err := f.svc.Ask(ctx, StartRequest{Question: "What is an engineer?", Role: "public", Username: "alice"})
	require.NoError(t, err)

	assert.NotEmpty(t, res.SessionId)
	assert.Equal(t, f.runner.answer, res.Answer)
	assert.Equal(t, string(memory.ExecutionCompleted), res.Status)

	executions, err := f.svc.StatusOf(ctx, alice, res.SessionId)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, "done", executions[0].Stage)
	assert.Equal(t, "completed", executions[0].State)

	messages, err := f.svc.Messages(ctx, alice, res.SessionId)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "progress", messages[0].Type)
	assert.Equal(t, "[PUBLIC] Question received: What is an engineer?", messages[0].Content)
	assert.Equal(t, "final", messages[1].Type)

	payloads := f.publisher.all()
	require.Len(t, payloads, 1)
	var published dto.PublishConversationMessage
	require.NoError(t, json.Unmarshal(payloads[0], &published))
	assert.Equal(t, res.SessionId, published.SessionId)
	assert.Equal(t, "alice", published.Username)
	assert.Equal(t, "completed", published.State)

	cleared, err := f.svc.ClearMessages(ctx, alice, res.SessionId)
	require.NoError(t, err)
	assert.Equal(t, 2, cleared.Deleted)
	f.shutdown(t)
}

func TestStart_ReturnsImmediately(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreCacheJanitor)
	f := newFixture(t, runnerIgnoresCancel, ChatbotConfig{})
	ctx := context.Background()

	res, err := f.svc.Start(ctx, StartRequest{Question: "q?", SessionID: "s-42", Role: "employee"})
	require.NoError(t, err)
	assert.Equal(t, "s-42", res.SessionId)
	assert.Equal(t, "running", res.Status)
	<-f.runner.started

	executions, err := f.svc.StatusOf(ctx, anonymous, "s-42")
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, "running", executions[0].State)
	assert.Equal(t, "retrieve", executions[0].Stage)

	close(f.runner.release)
	f.shutdown(t)

	executions, err = f.svc.StatusOf(ctx, anonymous, "s-42")
	require.NoError(t, err)
	assert.Equal(t, "completed", executions[0].State)
}

func TestCancel_StopsCooperativeRun(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreCacheJanitor)
	f := newFixture(t, runnerHonorsCancel, ChatbotConfig{CancelGrace: time.Second})
	ctx := context.Background()

	_, err := f.svc.Start(ctx, StartRequest{Question: "q?", SessionID: "s-1", Role: "public"})
	require.NoError(t, err)
	<-f.runner.started

	res, err := f.svc.Cancel(ctx, anonymous, "s-1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Canceled)
	assert.Zero(t, res.Terminated)

	f.shutdown(t)

	executions, err := f.svc.StatusOf(ctx, anonymous, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "canceled", executions[0].State)

	messages, err := f.svc.Messages(ctx, anonymous, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "error", messages[len(messages)-1].Type)
	assert.Empty(t, f.publisher.all())

	_, err = f.svc.Cancel(ctx, anonymous, "s-1")
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestCancel_TerminatesStubbornRun(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreCacheJanitor)
	f := newFixture(t, runnerIgnoresCancel, ChatbotConfig{CancelGrace: 20 * time.Millisecond})
	ctx := context.Background()

	_, err := f.svc.Start(ctx, StartRequest{Question: "q?", SessionID: "s-2", Role: "public"})
	require.NoError(t, err)
	<-f.runner.started

	res, err := f.svc.Cancel(ctx, anonymous, "s-2")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Terminated)

	_, err = f.svc.StatusOf(ctx, anonymous, "s-2")
	assert.ErrorIs(t, err, ErrExecutionNotFound)

	close(f.runner.release)
	f.shutdown(t)

	_, err = f.svc.StatusOf(ctx, anonymous, "s-2")
	assert.ErrorIs(t, err, ErrExecutionNotFound, "terminated runs stay forgotten")
}

func TestAsk_TimeoutMarksFailed(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreCacheJanitor)
	f := newFixture(t, runnerHonorsCancel, ChatbotConfig{ExecutionTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	res, err := f.svc.Ask(ctx, StartRequest{Question: "q?", SessionID: "s-3", Role: "public"})
	require.NoError(t, err)
	assert.Equal(t, "failed", res.Status)

	messages, err := f.svc.Messages(ctx, anonymous, "s-3")
	require.NoError(t, err)
	assert.Equal(t, "The request took too long and was stopped.", messages[len(messages)-1].Content)
	f.shutdown(t)
}

func TestAsk_CanceledBySessionReturnsError(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreCacheJanitor)
	f := newFixture(t, runnerHonorsCancel, ChatbotConfig{CancelGrace: time.Second})
	ctx := context.Background()

	errs := make(chan error, 1)
	go func() {
		_, err := f.svc.Ask(ctx, StartRequest{Question: "q?", SessionID: "s-4", Role: "public"})
		errs <- err
	}()
	<-f.runner.started

	_, err := f.svc.Cancel(ctx, anonymous, "s-4")
	require.NoError(t, err)
	assert.ErrorIs(t, <-errs, ErrExecutionCancelled)
	f.shutdown(t)
}

type pushStore struct {
	*progress.MemoryStore
	feed chan progress.Message
}

func (s *pushStore) Subscribe(ctx context.Context, _ string) <-chan progress.Message {
	return s.feed
}

func TestStream(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreCacheJanitor)

	f := newFixture(t, runnerAnswers, ChatbotConfig{})
	_, err := f.svc.Stream(context.Background(), anonymous, "s1")
	assert.ErrorIs(t, err, ErrStreamUnavailable)
	f.shutdown(t)

	store := &pushStore{MemoryStore: progress.NewMemoryStore(), feed: make(chan progress.Message, 3)}
	svc := NewChatbotService(newFakeRunner(runnerAnswers), access.Default(), memory.NewExecutionRepository(),
		store, nil, ChatbotConfig{}, logger.NewNopLogger())

	store.feed <- progress.Message{Type: progress.TypeProgress, Content: "[PUBLIC] Searching"}
	store.feed <- progress.Message{Type: progress.TypeFinal, Content: "done"}
	store.feed <- progress.Message{Type: progress.TypeProgress, Content: "never delivered"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := svc.Stream(ctx, anonymous, "s1")
	require.NoError(t, err)

	var got []string
	for m := range stream {
		got = append(got, m.Content)
	}
	assert.Equal(t, []string{"[PUBLIC] Searching", "done"}, got)
}

func TestSession_OwnedByStarter(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreCacheJanitor)
	f := newFixture(t, runnerAnswers, ChatbotConfig{})
	ctx := context.Background()

	bob := Caller{Username: "bob", Email: "bob@example.com", Role: "employee"}
	admin := Caller{Username: "root", Role: "admin"}

	_, err := f.svc.Ask(ctx, StartRequest{Question: "q?", SessionID: "alice-s", Username: "alice", Role: "public"})
	require.NoError(t, err)
	_, err = f.svc.Ask(ctx, StartRequest{Question: "q?", SessionID: "bob-s", Username: bob.Username, Email: bob.Email, Role: bob.Role})
	require.NoError(t, err)

	_, err = f.svc.Messages(ctx, bob, "alice-s")
	assert.ErrorIs(t, err, ErrExecutionNotFound)
	_, err = f.svc.StatusOf(ctx, bob, "alice-s")
	assert.ErrorIs(t, err, ErrExecutionNotFound)
	_, err = f.svc.ClearMessages(ctx, bob, "alice-s")
	assert.ErrorIs(t, err, ErrExecutionNotFound)
	_, err = f.svc.Cancel(ctx, bob, "alice-s")
	assert.ErrorIs(t, err, ErrExecutionNotFound)
	_, err = f.svc.Stream(ctx, bob, "alice-s")
	assert.ErrorIs(t, err, ErrExecutionNotFound)

	_, err = f.svc.Ask(ctx, StartRequest{Question: "mine now?", SessionID: "alice-s", Username: bob.Username, Email: bob.Email, Role: bob.Role})
	assert.ErrorIs(t, err, ErrSessionForbidden)

	messages, err := f.svc.Messages(ctx, alice, "alice-s")
	require.NoError(t, err)
	assert.Len(t, messages, 2, "the refused run left nothing behind")

	own := f.svc.Status(ctx, bob)
	require.Len(t, own, 1)
	assert.Equal(t, "bob-s", own[0].SessionId)
	assert.Len(t, f.svc.Status(ctx, admin), 2)

	messages, err = f.svc.Messages(ctx, admin, "alice-s")
	require.NoError(t, err)
	assert.Len(t, messages, 2)
	f.shutdown(t)
}
