package rate

import (
	"sync"

	"golang.org/x/time/rate"
)

const (
	// Once this many keys are tracked, keys whose bucket has fully refilled
	// are dropped. A fully refilled bucket is indistinguishable from a new one.
	defaultPruneThreshold = 10_000
)

// Limiter limits operations based on a provided key.
type Limiter interface {
	Allow(key string) (bool, error)
}

type localRateLimiter struct {
	limit          rate.Limit
	burst          int
	pruneThreshold int

	sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLocalRateLimiter returns an in memory token bucket limiter per key. A
// burst below one defaults to the per second limit.
func NewLocalRateLimiter(limit rate.Limit, burst int) Limiter {
	if burst < 1 {
		burst = int(limit)
	}
	if burst < 1 {
		burst = 1
	}

	return &localRateLimiter{
		limit:          limit,
		burst:          burst,
		pruneThreshold: defaultPruneThreshold,
		limiters:       make(map[string]*rate.Limiter),
	}
}

// Allow implements limiter.Allow.
func (l *localRateLimiter) Allow(key string) (bool, error) {
	l.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= l.pruneThreshold {
			l.prune()
		}

		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	l.Unlock()

	return limiter.Allow(), nil
}

func (l *localRateLimiter) prune() {
	for key, limiter := range l.limiters {
		if limiter.Tokens() >= float64(l.burst) {
			delete(l.limiters, key)
		}
	}
}

// NoLimiter never limits operations
type NoLimiter struct {
}

// Allow implements limiter.Allow.
func (n *NoLimiter) Allow(key string) (bool, error) {
	return true, nil
}
