// Package etcd implements lock.Manager on top of etcd elections.
package etcd

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	v3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/code-payments/code-staking/pkg/lock"
	"github.com/code-payments/code-staking/pkg/retry"
	"github.com/code-payments/code-staking/pkg/retry/backoff"
)

var (
	ErrManagerClosed     = errors.New("lock manager closed")
	ErrConcurrentAcquire = errors.New("cannot call Acquire concurrently")
)

const (
	minLockTTL = time.Second
	maxLockTTL = time.Minute
)

var sessionRenewalBackoff = backoff.Capped(backoff.BinaryExponential(250*time.Millisecond), 5*time.Second)

// LockManager hands out locks that share one etcd session (lease). Locks are
// held for as long as the session is alive, so closing the manager or losing
// the session releases all of them. Lost sessions are replaced in the
// background.
type LockManager struct {
	log     *logrus.Entry
	client  *v3.Client
	rootKey string
	ttl     int
	owner   string

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	session *concurrency.Session
	closed  bool
}

// NewLockManager creates a manager whose locks live under rootKey. owner is
// stored as the value of every held lock key, which helps operators identify
// the holder. lockTTL must be within [1s, 1m].
func NewLockManager(client *v3.Client, rootKey string, lockTTL time.Duration, owner string) (*LockManager, error) {
	if lockTTL < minLockTTL || lockTTL > maxLockTTL {
		return nil, errors.Errorf("invalid lock ttl: %v (must be within [%v, %v])", lockTTL, minLockTTL, maxLockTTL)
	}

	ctx, cancel := context.WithCancel(context.Background())
	lm := &LockManager{
		log: logrus.StandardLogger().WithFields(logrus.Fields{
			"type": "lock/etcd/manager",
			"root": rootKey,
		}),
		client:  client,
		rootKey: rootKey,
		ttl:     int(lockTTL.Round(time.Second).Seconds()),
		owner:   owner,
		ctx:     ctx,
		cancel:  cancel,
	}

	session, err := lm.newSession()
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed to create etcd session")
	}
	lm.session = session

	go lm.renewSessions()

	return lm, nil
}

// Create implements lock.Manager.Create
func (lm *LockManager) Create(_ context.Context, name string) (lock.DistributedLock, error) {
	if _, err := lm.currentSession(); err != nil {
		return nil, err
	}

	key := path.Join(lm.rootKey, name)
	return &Lock{
		log: lm.log.WithFields(logrus.Fields{
			"type": "lock/etcd/lock",
			"key":  key,
		}),
		manager: lm,
		key:     key,
	}, nil
}

// Close revokes the session, unlocking every lock held through the manager.
// Subsequent calls to Create or Acquire fail with ErrManagerClosed.
func (lm *LockManager) Close() {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.closed {
		return
	}
	lm.closed = true

	// The session must be revoked before cancelling, since revocation is
	// bounded by the session's context.
	if err := lm.session.Close(); err != nil {
		lm.log.WithError(err).Warn("failed to close etcd session")
	}
	lm.cancel()
}

func (lm *LockManager) newSession() (*concurrency.Session, error) {
	return concurrency.NewSession(
		lm.client,
		concurrency.WithTTL(lm.ttl),
		concurrency.WithContext(v3.WithRequireLeader(context.Background())),
	)
}

func (lm *LockManager) currentSession() (*concurrency.Session, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.closed {
		return nil, ErrManagerClosed
	}
	return lm.session, nil
}

// renewSessions replaces the session whenever it ends, which happens when the
// lease expires, for example after the cluster loses its leader.
func (lm *LockManager) renewSessions() {
	for {
		session, err := lm.currentSession()
		if err != nil {
			return
		}

		select {
		case <-lm.ctx.Done():
			return
		case <-session.Done():
		}

		lm.log.Info("etcd session ended, recreating")

		var next *concurrency.Session
		_, err = retry.Retry(
			lm.ctx,
			func(context.Context) error {
				var err error
				next, err = lm.newSession()
				if err != nil {
					lm.log.WithError(err).Warn("failed to recreate etcd session")
				}
				return err
			},
			retry.Backoff(sessionRenewalBackoff),
		)
		if err != nil {
			return
		}

		lm.mu.Lock()
		if lm.closed {
			lm.mu.Unlock()
			next.Close()
			return
		}
		lm.session = next
		lm.mu.Unlock()
	}
}
