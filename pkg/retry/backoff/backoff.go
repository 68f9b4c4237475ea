// Package backoff computes the delay between retry attempts.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Strategy returns how long to wait after the given failed attempt. Attempts
// start at 1.
type Strategy func(attempt uint) time.Duration

// Constant waits the same interval after every attempt.
func Constant(interval time.Duration) Strategy {
	return func(uint) time.Duration {
		return interval
	}
}

// Exponential waits baseDelay * factor^(attempt-1), saturating at the
// largest representable duration.
func Exponential(baseDelay time.Duration, factor float64) Strategy {
	return func(attempt uint) time.Duration {
		delay := float64(baseDelay) * math.Pow(factor, float64(attempt)-1)
		if delay >= math.MaxInt64 || math.IsInf(delay, 0) {
			return math.MaxInt64
		}
		return time.Duration(delay)
	}
}

// BinaryExponential doubles the delay after every attempt.
func BinaryExponential(baseDelay time.Duration) Strategy {
	return func(attempt uint) time.Duration {
		if attempt <= 1 {
			return baseDelay
		}

		shift := attempt - 1
		if shift >= 63 || baseDelay > math.MaxInt64>>shift {
			return math.MaxInt64
		}
		return baseDelay << shift
	}
}

// Capped limits the delays of strategy to maxDelay.
func Capped(strategy Strategy, maxDelay time.Duration) Strategy {
	return func(attempt uint) time.Duration {
		return min(strategy(attempt), maxDelay)
	}
}

// Jittered spreads each delay uniformly within +/- fraction of itself, so
// concurrent retriers don't wake up in lockstep.
func Jittered(strategy Strategy, fraction float64) Strategy {
	return func(attempt uint) time.Duration {
		delay := float64(strategy(attempt))
		return time.Duration(delay * (1 + fraction*(2*rand.Float64()-1)))
	}
}
