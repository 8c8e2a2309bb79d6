package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 4 * time.Millisecond}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassNone},
		{"canceled", context.Canceled, ClassCanceled},
		{"call timeout", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), ClassTransient},
		{"429", &ProviderError{Provider: "x", StatusCode: http.StatusTooManyRequests, Err: errors.New("quota")}, ClassRateLimit},
		{"503", &ProviderError{Provider: "x", StatusCode: http.StatusServiceUnavailable, Err: errors.New("down")}, ClassTransient},
		{"400", &ProviderError{Provider: "x", StatusCode: http.StatusBadRequest, Err: errors.New("bad")}, ClassInvalid},
		{"wrapped 500", fmt.Errorf("analysis: %w", &ProviderError{StatusCode: 500, Err: errors.New("boom")}), ClassTransient},
		{"plain", errors.New("something"), ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestRetry_StopsOnSuccess(t *testing.T) {
	var calls int32
	out, err := Retry(context.Background(), fastPolicy(), nil, func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) < 2 {
			return "", &ProviderError{StatusCode: 503, Err: errors.New("busy")}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), calls)
}

func TestRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	var notified []int
	_, err := Retry(context.Background(), fastPolicy(), func(attempt int, err error, wait time.Duration) {
		notified = append(notified, attempt)
	}, func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", &ProviderError{StatusCode: 502, Err: errors.New("bad gateway")}
	})

	require.Error(t, err)
	assert.Equal(t, ClassTransient, Classify(err))
	assert.Equal(t, int32(3), calls)
	assert.Equal(t, []int{1, 2}, notified)
}

func TestRetry_DoesNotRetryInvalidRequests(t *testing.T) {
	var calls int32
	_, err := Retry(context.Background(), fastPolicy(), nil, func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", &ProviderError{StatusCode: 400, Err: errors.New("malformed")}
	})

	require.Error(t, err)
	assert.Equal(t, ClassInvalid, Classify(err))
	assert.Equal(t, int32(1), calls)
}

type slowProvider struct{}

func (slowProvider) Chat(ctx context.Context, _ []Message, _ ...Option) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (p slowProvider) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	return p.Chat(ctx, nil, opts...)
}

func TestGuard_CallTimeoutIsTransient(t *testing.T) {
	g := NewGuard(slowProvider{}, GuardConfig{CallTimeout: 10 * time.Millisecond})

	_, err := g.Generate(context.Background(), "hello")

	require.Error(t, err)
	assert.Equal(t, ClassTransient, Classify(err))
}

func TestGuard_ParentCancelIsNotRetryable(t *testing.T) {
	g := NewGuard(slowProvider{}, GuardConfig{CallTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, "hello")

	require.Error(t, err)
	assert.False(t, Classify(err).Retryable())
}

type slowSandbox struct{}

func (slowSandbox) Upload(ctx context.Context, a Artifact) (UploadedArtifact, error) {
	return UploadedArtifact{ID: "file-1", Name: a.Name}, nil
}

func (slowSandbox) Delete(context.Context, string) error { return nil }

func (slowSandbox) Execute(ctx context.Context, _ string, _ []UploadedArtifact) (*ExecutionOutput, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSandboxGuard_BoundsExecution(t *testing.T) {
	g := NewSandboxGuard(slowSandbox{}, GuardConfig{CallTimeout: 10 * time.Millisecond})

	uploaded, err := g.Upload(context.Background(), Artifact{Name: "df0.csv"})
	require.NoError(t, err)
	assert.Equal(t, "file-1", uploaded.ID)

	start := time.Now()
	_, err = g.Execute(context.Background(), "sum", []UploadedArtifact{uploaded})

	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, ClassTransient, Classify(err))
}

func TestApplyOptions(t *testing.T) {
	o := Apply(Options{Temperature: 0.7}, WithTemperature(0.1), WithMaxTokens(256), WithModel("m"))
	assert.Equal(t, Options{Temperature: 0.1, MaxTokens: 256, Model: "m"}, o)
}

type echoProvider struct{ err error }

func (e echoProvider) Chat(_ context.Context, history []Message, _ ...Option) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return history[len(history)-1].Content, nil
}

func (e echoProvider) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	return e.Chat(ctx, []Message{{Role: "user", Content: prompt}}, opts...)
}

func TestLoggingProvider_PassesThrough(t *testing.T) {
	p := NewLoggingProvider(echoProvider{}, "echo", logger.NewNopLogger())

	out, err := p.Generate(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "ping", out)

	failing := NewLoggingProvider(echoProvider{err: &ProviderError{StatusCode: 429, Err: errors.New("slow down")}}, "echo", logger.NewNopLogger())
	_, err = failing.Chat(context.Background(), []Message{{Role: "user", Content: "x"}})
	assert.Equal(t, ClassRateLimit, Classify(err))
}
