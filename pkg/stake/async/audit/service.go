package audit

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-staking/pkg/lock"
	"github.com/code-payments/code-staking/pkg/metrics"
	"github.com/code-payments/code-staking/pkg/stake/async"
	"github.com/code-payments/code-staking/pkg/stake/data/account"
	"github.com/code-payments/code-staking/pkg/stake/ledger"
)

const (
	distributedLockName = "stake/audit/conservation"
)

// Auditor verifies the vault balance is fully backed by stake positions
type Auditor interface {
	CheckConservation(ctx context.Context) (*account.StakeSummary, error)
}

type service struct {
	log  *logrus.Entry
	conf *conf

	auditor Auditor
	locks   lock.Manager
}

type Option func(*service)

// WithDistributedLocks ensures a single instance audits at a time
func WithDistributedLocks(manager lock.Manager) Option {
	return func(s *service) {
		s.locks = manager
	}
}

func New(auditor Auditor, configProvider ConfigProvider, opts ...Option) async.Service {
	s := &service{
		log:     logrus.StandardLogger().WithField("service", "audit"),
		conf:    configProvider(),
		auditor: auditor,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Start(ctx context.Context) error {
	schedule := s.conf.schedule.Get(ctx)

	scheduler := cron.New(cron.WithLocation(time.UTC))
	_, err := scheduler.AddFunc(schedule, func() {
		s.audit(ctx)
	})
	if err != nil {
		return errors.Wrapf(err, "invalid audit schedule %q", schedule)
	}

	s.log.WithField("schedule", schedule).Info("starting conservation audits")
	scheduler.Start()

	<-ctx.Done()

	<-scheduler.Stop().Done()
	return ctx.Err()
}

func (s *service) audit(serviceCtx context.Context) {
	if serviceCtx.Err() != nil {
		return
	}

	ctx, end := metrics.StartBackgroundTransaction(serviceCtx, "async__stake_audit_service")
	defer end()

	log := s.log.WithField("method", "audit")

	var summary *account.StakeSummary
	run := func(ctx context.Context) error {
		var err error
		summary, err = s.auditor.CheckConservation(ctx)
		return err
	}

	var err error
	if s.locks != nil {
		err = lock.WithLock(ctx, s.locks, distributedLockName, run)
	} else {
		err = run(ctx)
	}

	recordAuditEvent(ctx, summary, err)

	switch err {
	case nil:
		log.WithFields(summaryFields(summary)).Trace("stake is conserved")
	case ledger.ErrNotInitialized:
		log.Trace("pool is not initialized")
	case ledger.ErrConservationViolated:
		log.WithFields(summaryFields(summary)).Warn("stake conservation violated")
	default:
		if errors.Is(err, context.Canceled) {
			return
		}
		log.WithError(err).Warn("failure auditing stake conservation")
	}
}

func summaryFields(summary *account.StakeSummary) logrus.Fields {
	return logrus.Fields{
		"pool":           summary.Pool,
		"vault_balance":  summary.VaultBalance,
		"total_staked":   summary.TotalStaked,
		"position_sum":   summary.PositionSum,
		"position_count": summary.PositionCount,
	}
}
