package retry

import (
	"context"
	"errors"
	"time"

	"github.com/code-payments/code-staking/pkg/retry/backoff"
)

// Strategy decides whether an action that failed with err on the given
// attempt should run again. Strategies may block, for example to back off.
type Strategy func(ctx context.Context, attempts uint, err error) bool

// Limit allows at most maxAttempts executions in total.
func Limit(maxAttempts uint) Strategy {
	return func(_ context.Context, attempts uint, _ error) bool {
		return attempts < maxAttempts
	}
}

// RetriableErrors only retries errors matching one of retriableErrors.
func RetriableErrors(retriableErrors ...error) Strategy {
	return RetriableFunc(func(err error) bool {
		for _, e := range retriableErrors {
			if errors.Is(err, e) {
				return true
			}
		}
		return false
	})
}

// NonRetriableErrors retries every error except those matching nonRetriableErrors.
func NonRetriableErrors(nonRetriableErrors ...error) Strategy {
	return RetriableFunc(func(err error) bool {
		for _, e := range nonRetriableErrors {
			if errors.Is(err, e) {
				return false
			}
		}
		return true
	})
}

// RetriableFunc retries whenever isRetriable reports true for the error.
func RetriableFunc(isRetriable func(error) bool) Strategy {
	return func(_ context.Context, _ uint, err error) bool {
		return isRetriable(err)
	}
}

// Backoff waits for the delay given by strategy before the next attempt. It
// declines to retry if ctx is done while waiting.
func Backoff(strategy backoff.Strategy) Strategy {
	return func(ctx context.Context, attempts uint, _ error) bool {
		return wait(ctx, strategy(attempts))
	}
}

var wait = func(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
