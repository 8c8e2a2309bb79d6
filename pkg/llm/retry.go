package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds exponential retries of one completion call.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy waits 1s then 2s between three attempts (4s cap).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     4 * time.Second,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// RetryNotify is called before each wait with the failed attempt number (1-based).
type RetryNotify func(attempt int, err error, wait time.Duration)

// Retry runs fn until it succeeds, fails with a non-retryable class, or attempts run out.
// The last error is returned unwrapped.
func Retry[T any](ctx context.Context, policy RetryPolicy, notify RetryNotify, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	attempt := 0

	op := func() error {
		attempt++
		out, err := fn(ctx)
		if err == nil {
			result = out
			return nil
		}
		if !Classify(err).Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}

	onRetry := func(err error, wait time.Duration) {
		if notify != nil {
			notify(attempt, err, wait)
		}
	}

	err := backoff.RetryNotify(op, policy.backOff(ctx), onRetry)
	return result, err
}
