package memory

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/lock"
)

// LockManager is an in-process lock.Manager. Locks with the same name are
// mutually exclusive across every lock created by the manager.
type LockManager struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLockManager returns a new in memory lock.Manager
func NewLockManager() *LockManager {
	return &LockManager{
		slots: make(map[string]chan struct{}),
	}
}

// Create implements lock.Manager.Create
func (m *LockManager) Create(_ context.Context, name string) (lock.DistributedLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.slots[name]
	if !ok {
		slot = make(chan struct{}, 1)
		m.slots[name] = slot
	}
	return &Lock{slot: slot}, nil
}

// Lock is an in memory lock.DistributedLock
type Lock struct {
	slot chan struct{}

	mu     sync.Mutex
	held   bool
	lostCh chan struct{}
	stopCh chan struct{}
}

// Acquire implements lock.DistributedLock.Acquire
func (l *Lock) Acquire(ctx context.Context) (<-chan struct{}, error) {
	l.mu.Lock()
	if l.held {
		l.mu.Unlock()
		return nil, errors.New("cannot call Acquire concurrently")
	}
	l.mu.Unlock()

	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.held = true
	l.lostCh = make(chan struct{})
	l.stopCh = make(chan struct{})

	lostCh, stopCh := l.lostCh, l.stopCh
	go func() {
		select {
		case <-ctx.Done():
			l.release()
		case <-stopCh:
		}
	}()

	return lostCh, nil
}

// Unlock implements lock.DistributedLock.Unlock
func (l *Lock) Unlock(_ context.Context) error {
	l.release()
	return nil
}

// IsLocked implements lock.DistributedLock.IsLocked
func (l *Lock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

func (l *Lock) release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return
	}

	l.held = false
	close(l.stopCh)
	close(l.lostCh)
	<-l.slot
}
