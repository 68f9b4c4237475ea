// Package lock defines locks shared between processes.
package lock

import (
	"context"

	"github.com/pkg/errors"
)

// ErrLockLost is returned by WithLock when the guarded function failed after
// the lock was lost.
var ErrLockLost = errors.New("lock lost")

// Manager creates named locks. Locks with the same name created by one
// Manager are re-entrant with each other, so callers within a process should
// serialize locally before locking.
type Manager interface {
	// Create returns an unlocked lock for name.
	Create(ctx context.Context, name string) (DistributedLock, error)
}

// DistributedLock is a handle to a lock held across processes.
type DistributedLock interface {
	// Acquire blocks until the lock is held or ctx is done. The returned
	// channel is closed once the lock is no longer held, whether through
	// Unlock, ctx being done, or the implementation detecting that the lock
	// may have been lost.
	Acquire(ctx context.Context) (<-chan struct{}, error)

	// Unlock releases the lock if it's held. It's safe to call repeatedly.
	Unlock(ctx context.Context) error

	// IsLocked reports whether the lock is currently held.
	IsLocked() bool
}

// WithLock runs fn while holding the named lock. The context given to fn is
// cancelled if the lock is lost, and fn failing after that point is reported
// as ErrLockLost.
func WithLock(ctx context.Context, manager Manager, name string, fn func(ctx context.Context) error) error {
	l, err := manager.Create(ctx, name)
	if err != nil {
		return errors.Wrapf(err, "failed to create lock %s", name)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lost, err := l.Acquire(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to acquire lock %s", name)
	}
	defer l.Unlock(context.Background())

	go func() {
		select {
		case <-lost:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := fn(ctx); err != nil {
		select {
		case <-lost:
			return errors.Wrapf(ErrLockLost, "%s: %v", name, err)
		default:
			return err
		}
	}
	return nil
}
