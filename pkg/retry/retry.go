// Package retry runs actions until they succeed or a strategy gives up.
package retry

import (
	"context"
)

// Action is a function to be performed in a retriable manner.
type Action func(ctx context.Context) error

// Retry executes action until it succeeds, ctx is done, or one of the
// strategies declines another attempt. The number of attempts and the last
// error are returned.
//
// Strategies are evaluated in order and evaluation stops at the first that
// declines, so strategies that delay should be specified last.
func Retry(ctx context.Context, action Action, strategies ...Strategy) (uint, error) {
	for attempt := uint(1); ; attempt++ {
		err := action(ctx)
		if err == nil {
			return attempt, nil
		}

		if ctx.Err() != nil {
			return attempt, err
		}

		for _, strategy := range strategies {
			if !strategy(ctx, attempt, err) {
				return attempt, err
			}
		}
	}
}
