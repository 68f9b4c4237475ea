package etcd

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.etcd.io/etcd/api/v3/mvccpb"
	v3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// Lock is a lock.DistributedLock backed by an etcd election under the lock's
// key. Locks with the same key created by the same manager are re-entrant.
type Lock struct {
	log     *logrus.Entry
	manager *LockManager
	key     string

	mu       sync.Mutex
	election *concurrency.Election
}

// Acquire implements lock.DistributedLock.Acquire
func (l *Lock) Acquire(ctx context.Context) (<-chan struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.election != nil {
		return nil, ErrConcurrentAcquire
	}

	session, err := l.manager.currentSession()
	if err != nil {
		return nil, err
	}

	campaignCtx, cancel := context.WithCancel(ctx)
	election := concurrency.NewElection(session, l.key)
	if err := election.Campaign(campaignCtx, l.manager.owner); err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed to campaign for lock")
	}
	l.election = election
	l.log.Debug("lock acquired")

	watchCh := session.Client().Watch(
		v3.WithRequireLeader(campaignCtx),
		election.Key(),
		v3.WithRev(election.Rev()),
	)

	lost := make(chan struct{})
	go func() {
		defer cancel()

		reason := l.monitor(session, election, watchCh)

		// lost is closed before resigning, since resigning blocks while the
		// cluster has no leader.
		close(lost)
		l.log.WithField("reason", reason).Debug("lock released")
		l.release(election)
	}()

	return lost, nil
}

// monitor blocks until the election can no longer be considered held, and
// returns why.
func (l *Lock) monitor(session *concurrency.Session, election *concurrency.Election, watchCh v3.WatchChan) string {
	for {
		select {
		case <-session.Done():
			l.log.Warn("etcd session ended while holding lock")
			return "session ended"

		case resp, ok := <-watchCh:
			if !ok {
				return "watch closed"
			}
			if err := resp.Err(); err != nil {
				l.log.WithError(err).Warn("failure watching lock key")
				return "watch failed"
			}

			for _, event := range resp.Events {
				switch event.Type {
				case mvccpb.PUT:
					if event.Kv.CreateRevision != election.Rev() {
						l.log.Warn("lock key was recreated by someone else")
						return "key recreated"
					}
				case mvccpb.DELETE:
					return "key deleted"
				}
			}
		}
	}
}

// release resigns election if it is still the current one.
func (l *Lock) release(election *concurrency.Election) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.election != election {
		return
	}
	l.election = nil

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(l.manager.ttl)*time.Second)
	defer cancel()

	if err := election.Resign(ctx); err != nil {
		l.log.WithError(err).Warn("failed to resign lock")
	}
}

// Unlock implements lock.DistributedLock.Unlock
func (l *Lock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.election == nil {
		return nil
	}

	err := l.election.Resign(ctx)
	l.election = nil
	return err
}

// IsLocked implements lock.DistributedLock.IsLocked
func (l *Lock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.election != nil && l.election.Key() != ""
}
