package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// GuardConfig controls the per-call protections applied in front of a provider.
type GuardConfig struct {
	CallTimeout       time.Duration
	RequestsPerSecond float64
	Burst             int
}

type gate struct {
	limiter *rate.Limiter
	timeout time.Duration
}

func newGate(cfg GuardConfig) gate {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return gate{limiter: rate.NewLimiter(limit, burst), timeout: cfg.CallTimeout}
}

func (g gate) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, err
	}
	if g.timeout <= 0 {
		callCtx, cancel := context.WithCancel(ctx)
		return callCtx, cancel, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	return callCtx, cancel, nil
}

// Guard throttles calls process-wide and bounds each call with its own timeout,
// independent of the caller's overall deadline.
type Guard struct {
	gate
	inner LLMProvider
}

var _ LLMProvider = &Guard{}

func NewGuard(inner LLMProvider, cfg GuardConfig) *Guard {
	return &Guard{gate: newGate(cfg), inner: inner}
}

func (g *Guard) Chat(ctx context.Context, history []Message, opts ...Option) (string, error) {
	callCtx, cancel, err := g.begin(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()
	return g.inner.Chat(callCtx, history, opts...)
}

func (g *Guard) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	callCtx, cancel, err := g.begin(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()
	return g.inner.Generate(callCtx, prompt, opts...)
}

// SandboxGuard applies the same protections to a CodeSandbox.
type SandboxGuard struct {
	gate
	inner CodeSandbox
}

var _ CodeSandbox = &SandboxGuard{}

func NewSandboxGuard(inner CodeSandbox, cfg GuardConfig) *SandboxGuard {
	return &SandboxGuard{gate: newGate(cfg), inner: inner}
}

func (g *SandboxGuard) Upload(ctx context.Context, artifact Artifact) (UploadedArtifact, error) {
	callCtx, cancel, err := g.begin(ctx)
	if err != nil {
		return UploadedArtifact{}, err
	}
	defer cancel()
	return g.inner.Upload(callCtx, artifact)
}

func (g *SandboxGuard) Delete(ctx context.Context, id string) error {
	callCtx, cancel, err := g.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return g.inner.Delete(callCtx, id)
}

func (g *SandboxGuard) Execute(ctx context.Context, prompt string, files []UploadedArtifact) (*ExecutionOutput, error) {
	callCtx, cancel, err := g.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return g.inner.Execute(callCtx, prompt, files)
}
