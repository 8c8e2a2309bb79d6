package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/dto"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/memory"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/access"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/executor"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/progress"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/state"

	"github.com/google/uuid"
)

const chatbotModule = "Service.Chatbot"

// InvalidQuestionMessage is shown to the caller when the question is blank.
const InvalidQuestionMessage = "Please ask a valid question"

var (
	ErrInvalidQuestion    = errors.New("invalid question")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrExecutionNotFound  = errors.New("no execution found for session")
	ErrSessionForbidden   = errors.New("session belongs to another user")
	ErrExecutionCancelled = errors.New("execution was canceled")
	ErrStreamUnavailable  = errors.New("live progress requires the redis message store")
)

// PipelineRunner is satisfied by *executor.Pipeline.
type PipelineRunner interface {
	RunObserved(ctx context.Context, sc *state.Context, observe executor.StageObserver) error
}

type StartRequest struct {
	Question    string
	SessionID   string
	Username    string
	Email       string
	Role        string
	Permissions []string
}

func (r StartRequest) Caller() Caller {
	return Caller{Username: r.Username, Email: r.Email, Role: r.Role, Permissions: r.Permissions}
}

// Caller is the identity asking about a session. Sessions belong to the
// user who started them; holders of admin_maintenance see every session.
type Caller struct {
	Username    string
	Email       string
	Role        string
	Permissions []string
}

func (c Caller) ownerKey() string {
	return c.Username + "|" + c.Email
}

type ChatbotConfig struct {
	ExecutionTimeout time.Duration
	CancelGrace      time.Duration
}

type IChatbotService interface {
	Start(ctx context.Context, req StartRequest) (*dto.StartChatResponse, error)
	Ask(ctx context.Context, req StartRequest) (*dto.AskResponse, error)
	Cancel(ctx context.Context, caller Caller, sessionID string) (*dto.CancelResponse, error)
	Status(ctx context.Context, caller Caller) []*dto.ExecutionResponse
	StatusOf(ctx context.Context, caller Caller, sessionID string) ([]*dto.ExecutionResponse, error)
	Messages(ctx context.Context, caller Caller, sessionID string) ([]*dto.SessionMessageResponse, error)
	ClearMessages(ctx context.Context, caller Caller, sessionID string) (*dto.ClearMessagesResponse, error)
	Stream(ctx context.Context, caller Caller, sessionID string) (<-chan *dto.SessionMessageResponse, error)
	Shutdown(ctx context.Context) error
}

type chatbotService struct {
	runner     PipelineRunner
	policy     *access.Policy
	executions *memory.ExecutionRepository
	messages   progress.Store
	reporter   *progress.Reporter
	publisher  IPublisherService
	cfg        ChatbotConfig
	logger     logger.ILogger

	wg sync.WaitGroup
}

func NewChatbotService(
	runner PipelineRunner,
	policy *access.Policy,
	executions *memory.ExecutionRepository,
	messages progress.Store,
	publisher IPublisherService,
	cfg ChatbotConfig,
	log logger.ILogger,
) IChatbotService {
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = 10 * time.Minute
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = 5 * time.Second
	}
	return &chatbotService{
		runner:     runner,
		policy:     policy,
		executions: executions,
		messages:   messages,
		reporter:   progress.NewReporter(messages, log),
		publisher:  publisher,
		cfg:        cfg,
		logger:     log,
	}
}

type preparedRun struct {
	exec *memory.Execution
	sc   *state.Context
	ctx  context.Context
	stop context.CancelFunc
}

// prepare validates the request and registers its execution.
func (s *chatbotService) prepare(parent context.Context, req StartRequest) (*preparedRun, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrInvalidQuestion
	}

	role := access.NormalizeRole(req.Role)
	perms := req.Permissions
	if len(perms) == 0 {
		perms = s.policy.Permissions(role)
	}
	if !access.HasPermission(perms, access.PermissionChatBasic) {
		return nil, ErrPermissionDenied
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	caller := req.Caller()
	owner, err := s.messages.Claim(parent, sessionID, caller.ownerKey())
	if err != nil {
		return nil, fmt.Errorf("claim session: %w", err)
	}
	if owner != caller.ownerKey() {
		s.logger.Warn(chatbotModule, "Session owned by another user", map[string]interface{}{
			"session_id": sessionID,
			"username":   req.Username,
		})
		return nil, ErrSessionForbidden
	}

	ctx, stop := context.WithTimeout(parent, s.cfg.ExecutionTimeout)
	exec := memory.NewExecution(uuid.NewString(), sessionID, req.Username, req.Email, stop)
	s.executions.Save(exec)

	sc := state.New(state.Request{
		Question:    question,
		SessionID:   sessionID,
		Role:        role,
		Permissions: perms,
		Username:    req.Username,
		Email:       req.Email,
	})

	s.reporter.Progress(ctx, sessionID, role, "Question received: "+question)
	s.logger.Info(chatbotModule, "Execution registered", map[string]interface{}{
		"execution_id": exec.ID,
		"session_id":   sessionID,
		"role":         role,
	})
	return &preparedRun{exec: exec, sc: sc, ctx: ctx, stop: stop}, nil
}

// Start runs the pipeline in the background and returns at once.
func (s *chatbotService) Start(ctx context.Context, req StartRequest) (*dto.StartChatResponse, error) {
	run, err := s.prepare(context.Background(), req)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(run)
	}()

	return &dto.StartChatResponse{
		SessionId:   run.sc.SessionID,
		ExecutionId: run.exec.ID,
		Status:      string(memory.ExecutionRunning),
		StartedAt:   run.exec.StartedAt,
	}, nil
}

// Ask runs the pipeline on the caller's goroutine; it can still be canceled by session id.
func (s *chatbotService) Ask(ctx context.Context, req StartRequest) (*dto.AskResponse, error) {
	run, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	final := s.execute(run)
	if final == memory.ExecutionCanceled || final == memory.ExecutionTerminated {
		return nil, ErrExecutionCancelled
	}

	sources := make([]dto.SourceDTO, 0, len(run.sc.SelectedRecords))
	for _, r := range run.sc.SelectedRecords {
		sources = append(sources, dto.SourceDTO{
			Id:          r.ID,
			Title:       r.Title,
			Kind:        string(r.Kind),
			AccessLevel: string(r.AccessLevel),
			Source:      r.DisplaySource(),
		})
	}

	snapshot := run.exec.Snapshot()
	return &dto.AskResponse{
		SessionId:        run.sc.SessionID,
		Answer:           run.sc.FinalAnswer,
		NeedsComputation: run.sc.NeedsComputation,
		Sources:          sources,
		Status:           string(snapshot.State),
		ElapsedMs:        snapshot.Elapsed.Milliseconds(),
	}, nil
}

func (s *chatbotService) execute(run *preparedRun) memory.ExecutionState {
	defer run.stop()

	err := s.runner.RunObserved(run.ctx, run.sc, func(stage executor.Stage) {
		run.exec.SetStage(stage.String())
	})

	final := memory.ExecutionCompleted
	switch {
	case err == nil:
		s.reporter.Final(run.ctx, run.sc.SessionID, run.sc.FinalAnswer, map[string]interface{}{
			"needs_computation": run.sc.NeedsComputation,
			"sources":           run.sc.SourceTitles(),
		})
	case errors.Is(err, executor.ErrCanceled) && errors.Is(run.ctx.Err(), context.DeadlineExceeded):
		final = memory.ExecutionFailed
		s.reporter.Error(run.ctx, run.sc.SessionID, "The request took too long and was stopped.")
	case errors.Is(err, executor.ErrCanceled):
		final = memory.ExecutionCanceled
		s.reporter.Error(run.ctx, run.sc.SessionID, "Processing canceled.")
	default:
		final = memory.ExecutionFailed
		s.reporter.Error(run.ctx, run.sc.SessionID, run.sc.FinalAnswer)
	}

	if !run.exec.Finish(final) {
		// Cancel already gave up on this run and dropped it
		final = run.exec.State()
	} else {
		s.executions.Release(run.exec)
	}

	details := map[string]interface{}{
		"execution_id": run.exec.ID,
		"session_id":   run.sc.SessionID,
		"state":        string(final),
	}
	if err != nil {
		details["error"] = err.Error()
	}
	s.logger.Info(chatbotModule, "Execution finished", details)

	if final == memory.ExecutionCompleted || final == memory.ExecutionFailed {
		s.publish(run, final)
	}
	return final
}

func (s *chatbotService) publish(run *preparedRun, final memory.ExecutionState) {
	if s.publisher == nil {
		return
	}
	execID, _ := uuid.Parse(run.exec.ID)
	payload, err := json.Marshal(dto.PublishConversationMessage{
		ExecutionId:      execID,
		SessionId:        run.sc.SessionID,
		Username:         run.sc.Username,
		Email:            run.sc.Email,
		Role:             run.sc.UserRole,
		State:            string(final),
		NeedsComputation: run.sc.NeedsComputation,
		Sources:          run.sc.SourceTitles(),
		AnsweredAt:       time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := s.publisher.Publish(context.Background(), payload); err != nil {
		s.logger.Warn(chatbotModule, "Failed to publish conversation message", map[string]interface{}{
			"session_id": run.sc.SessionID,
			"error":      err.Error(),
		})
	}
}

// Cancel stops every running execution of the session. Executions still running
// once CancelGrace has passed are marked terminated and forgotten.
func (s *chatbotService) Cancel(ctx context.Context, caller Caller, sessionID string) (*dto.CancelResponse, error) {
	if err := s.authorize(ctx, caller, sessionID); err != nil {
		return nil, err
	}

	var running []*memory.Execution
	for _, e := range s.executions.FindBySession(sessionID) {
		if e.State() == memory.ExecutionRunning {
			running = append(running, e)
		}
	}
	if len(running) == 0 {
		return nil, ErrExecutionNotFound
	}

	for _, e := range running {
		e.Cancel()
	}

	graceCtx, cancel := context.WithTimeout(ctx, s.cfg.CancelGrace)
	defer cancel()

	res := &dto.CancelResponse{SessionId: sessionID}
	for _, e := range running {
		select {
		case <-e.Done():
			res.Canceled++
		case <-graceCtx.Done():
			if e.Finish(memory.ExecutionTerminated) {
				s.executions.Delete(e.ID)
				res.Terminated++
				s.logger.Warn(chatbotModule, "Execution did not stop in time, terminated", map[string]interface{}{
					"execution_id": e.ID,
					"session_id":   sessionID,
				})
			} else {
				res.Canceled++
			}
		}
	}

	s.logger.Info(chatbotModule, "Session canceled", map[string]interface{}{
		"session_id": sessionID,
		"canceled":   res.Canceled,
		"terminated": res.Terminated,
	})
	return res, nil
}

func (s *chatbotService) isAdmin(caller Caller) bool {
	perms := caller.Permissions
	if len(perms) == 0 {
		perms = s.policy.Permissions(access.NormalizeRole(caller.Role))
	}
	return access.HasPermission(perms, access.PermissionAdminMaintenance)
}

// authorize answers ErrExecutionNotFound for a session that belongs to
// someone else so foreign session ids look unknown.
func (s *chatbotService) authorize(ctx context.Context, caller Caller, sessionID string) error {
	if s.isAdmin(caller) {
		return nil
	}

	owner, err := s.messages.Owner(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("read session owner: %w", err)
	}
	if owner != "" && owner != caller.ownerKey() {
		return ErrExecutionNotFound
	}
	for _, e := range s.executions.FindBySession(sessionID) {
		if !e.OwnedBy(caller.Username, caller.Email) {
			return ErrExecutionNotFound
		}
	}
	return nil
}

// Status lists the caller's executions, or every execution for admins.
func (s *chatbotService) Status(ctx context.Context, caller Caller) []*dto.ExecutionResponse {
	all := s.executions.All()
	if s.isAdmin(caller) {
		return toExecutionResponses(all)
	}

	own := make([]*memory.Execution, 0, len(all))
	for _, e := range all {
		if e.OwnedBy(caller.Username, caller.Email) {
			own = append(own, e)
		}
	}
	return toExecutionResponses(own)
}

func (s *chatbotService) StatusOf(ctx context.Context, caller Caller, sessionID string) ([]*dto.ExecutionResponse, error) {
	if err := s.authorize(ctx, caller, sessionID); err != nil {
		return nil, err
	}
	found := s.executions.FindBySession(sessionID)
	if len(found) == 0 {
		return nil, ErrExecutionNotFound
	}
	return toExecutionResponses(found), nil
}

func toExecutionResponses(executions []*memory.Execution) []*dto.ExecutionResponse {
	out := make([]*dto.ExecutionResponse, 0, len(executions))
	for _, e := range executions {
		snap := e.Snapshot()
		out = append(out, &dto.ExecutionResponse{
			Id:        snap.ID,
			SessionId: snap.SessionID,
			Username:  snap.Username,
			Stage:     snap.Stage,
			State:     string(snap.State),
			StartedAt: snap.StartedAt,
			ElapsedMs: snap.Elapsed.Milliseconds(),
		})
	}
	return out
}

func (s *chatbotService) Messages(ctx context.Context, caller Caller, sessionID string) ([]*dto.SessionMessageResponse, error) {
	if err := s.authorize(ctx, caller, sessionID); err != nil {
		return nil, err
	}
	messages, err := s.messages.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.SessionMessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, toMessageResponse(m))
	}
	return out, nil
}

func toMessageResponse(m progress.Message) *dto.SessionMessageResponse {
	return &dto.SessionMessageResponse{
		Type:      string(m.Type),
		Content:   m.Content,
		Timestamp: m.Timestamp,
		Metadata:  m.Metadata,
	}
}

// Stream pushes new messages of the session until ctx is done or a final or
// error message went out.
func (s *chatbotService) Stream(ctx context.Context, caller Caller, sessionID string) (<-chan *dto.SessionMessageResponse, error) {
	if err := s.authorize(ctx, caller, sessionID); err != nil {
		return nil, err
	}
	sub, ok := s.messages.(progress.Subscriber)
	if !ok {
		return nil, ErrStreamUnavailable
	}

	in := sub.Subscribe(ctx, sessionID)
	out := make(chan *dto.SessionMessageResponse)
	go func() {
		defer close(out)
		for m := range in {
			select {
			case out <- toMessageResponse(m):
			case <-ctx.Done():
				return
			}
			if m.Type == progress.TypeFinal || m.Type == progress.TypeError {
				return
			}
		}
	}()
	return out, nil
}

func (s *chatbotService) ClearMessages(ctx context.Context, caller Caller, sessionID string) (*dto.ClearMessagesResponse, error) {
	if err := s.authorize(ctx, caller, sessionID); err != nil {
		return nil, err
	}
	n, err := s.messages.Clear(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &dto.ClearMessagesResponse{SessionId: sessionID, Deleted: n}, nil
}

// Shutdown cancels every running execution and waits for background runs until ctx is done.
func (s *chatbotService) Shutdown(ctx context.Context) error {
	for _, e := range s.executions.All() {
		if e.State() == memory.ExecutionRunning {
			e.Cancel()
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
