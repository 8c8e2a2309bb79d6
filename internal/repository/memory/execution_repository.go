package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

type ExecutionState string

const (
	ExecutionRunning    ExecutionState = "running"
	ExecutionCompleted  ExecutionState = "completed"
	ExecutionFailed     ExecutionState = "failed"
	ExecutionCanceled   ExecutionState = "canceled"
	ExecutionTerminated ExecutionState = "terminated"
)

// Execution is one in-flight or recently finished pipeline run.
type Execution struct {
	ID        string
	SessionID string
	Username  string
	Email     string
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.RWMutex
	stage      string
	state      ExecutionState
	finishedAt time.Time
}

func NewExecution(id, sessionID, username, email string, cancel context.CancelFunc) *Execution {
	return &Execution{
		ID:        id,
		SessionID: sessionID,
		Username:  username,
		Email:     email,
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
		stage:     "queued",
		state:     ExecutionRunning,
	}
}

// OwnedBy reports whether the run was started by the given user.
func (e *Execution) OwnedBy(username, email string) bool {
	return e.Username == username && e.Email == email
}

func (e *Execution) SetStage(stage string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stage = stage
}

// Finish records the terminal state and releases waiters. Only the first call
// counts; it reports whether this call was that one.
func (e *Execution) Finish(state ExecutionState) bool {
	e.mu.Lock()
	if e.state != ExecutionRunning {
		e.mu.Unlock()
		return false
	}
	e.state = state
	e.finishedAt = time.Now()
	e.mu.Unlock()
	close(e.done)
	return true
}

func (e *Execution) State() ExecutionState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Execution) Cancel() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Execution) Done() <-chan struct{} {
	return e.done
}

type ExecutionSnapshot struct {
	ID        string
	SessionID string
	Username  string
	Stage     string
	State     ExecutionState
	StartedAt time.Time
	Elapsed   time.Duration
}

func (e *Execution) Snapshot() ExecutionSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	end := time.Now()
	if !e.finishedAt.IsZero() {
		end = e.finishedAt
	}
	return ExecutionSnapshot{
		ID:        e.ID,
		SessionID: e.SessionID,
		Username:  e.Username,
		Stage:     e.stage,
		State:     e.state,
		StartedAt: e.StartedAt,
		Elapsed:   end.Sub(e.StartedAt),
	}
}

// ExecutionRepository indexes executions by id. Finished entries expire after an hour.
type ExecutionRepository struct {
	cache *cache.Cache
}

func NewExecutionRepository() *ExecutionRepository {
	return &ExecutionRepository{
		cache: cache.New(1*time.Hour, 10*time.Minute),
	}
}

func (r *ExecutionRepository) Save(execution *Execution) {
	r.cache.Set(execution.ID, execution, cache.NoExpiration)
}

// Release keeps a finished execution visible for status queries until it expires.
func (r *ExecutionRepository) Release(execution *Execution) {
	r.cache.Set(execution.ID, execution, cache.DefaultExpiration)
}

func (r *ExecutionRepository) Get(id string) (*Execution, bool) {
	if x, found := r.cache.Get(id); found {
		return x.(*Execution), true
	}
	return nil, false
}

func (r *ExecutionRepository) Delete(id string) {
	r.cache.Delete(id)
}

// FindBySession returns the executions of a session, oldest first.
func (r *ExecutionRepository) FindBySession(sessionID string) []*Execution {
	var out []*Execution
	for _, e := range r.All() {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out
}

func (r *ExecutionRepository) All() []*Execution {
	items := r.cache.Items()
	out := make([]*Execution, 0, len(items))
	for _, item := range items {
		out = append(out, item.Object.(*Execution))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
