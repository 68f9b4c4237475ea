package main

import (
	"context"
	"database/sql"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws/external"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	v3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	xrate "golang.org/x/time/rate"

	"github.com/code-payments/code-staking/pkg/app"
	pg "github.com/code-payments/code-staking/pkg/database/postgres"
	etcd_lock "github.com/code-payments/code-staking/pkg/lock/etcd"
	"github.com/code-payments/code-staking/pkg/metrics"
	"github.com/code-payments/code-staking/pkg/rate"
	"github.com/code-payments/code-staking/pkg/stake/async/audit"
	"github.com/code-payments/code-staking/pkg/stake/data/account"
	"github.com/code-payments/code-staking/pkg/stake/data/account/memory"
	postgres_account "github.com/code-payments/code-staking/pkg/stake/data/account/postgres"
	"github.com/code-payments/code-staking/pkg/stake/ledger"
)

type stakeLedgerApp struct {
	log *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	db          *sql.DB
	etcdClient  *v3.Client
	lockManager *etcd_lock.LockManager

	Ledger *ledger.Ledger

	stopOnce   sync.Once
	shutdownCh chan struct{}
}

func main() {
	app.Main(&stakeLedgerApp{})
}

// Init implements app.App.Init
func (a *stakeLedgerApp) Init(rawConfig app.Config, metricsProvider *newrelic.Application) error {
	a.log = logrus.StandardLogger().WithField("type", "stake-ledger")
	a.shutdownCh = make(chan struct{})

	config, err := decodeConfig(rawConfig)
	if err != nil {
		return err
	}

	a.ctx, a.cancel = context.WithCancel(metrics.NewContext(context.Background(), metricsProvider))

	store, err := a.newStore(config)
	if err != nil {
		return err
	}

	var ledgerOpts []ledger.Option
	var auditOpts []audit.Option
	if len(config.Etcd.Endpoints) > 0 {
		if err := a.initDistributedLocks(config); err != nil {
			return err
		}

		ledgerOpts = append(ledgerOpts, ledger.WithDistributedLocks(a.lockManager))
		auditOpts = append(auditOpts, audit.WithDistributedLocks(a.lockManager))
	}
	if config.SignerRateLimit > 0 {
		limiter := rate.NewLocalRateLimiter(xrate.Limit(config.SignerRateLimit), config.SignerBurst)
		ledgerOpts = append(ledgerOpts, ledger.WithRateLimiter(limiter))
	}

	a.Ledger = ledger.New(store, ledger.WithEnvConfigs(), ledgerOpts...)

	if config.EnableAudit {
		auditService := audit.New(a.Ledger, audit.WithEnvConfigs(), auditOpts...)
		go func() {
			err := auditService.Start(a.ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.WithError(err).Warn("audit service terminated unexpectedly")
				a.shutdown()
			}
		}()
	}

	a.log.WithFields(logrus.Fields{
		"store":             config.StoreType,
		"distributed_locks": a.lockManager != nil,
		"audit":             config.EnableAudit,
	}).Info("stake ledger initialized")
	return nil
}

// ShutdownChan implements app.App.ShutdownChan
func (a *stakeLedgerApp) ShutdownChan() <-chan struct{} {
	return a.shutdownCh
}

// Stop implements app.App.Stop
func (a *stakeLedgerApp) Stop() {
	a.stopOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		if a.lockManager != nil {
			a.lockManager.Close()
		}
		if a.etcdClient != nil {
			if err := a.etcdClient.Close(); err != nil {
				a.log.WithError(err).Warn("failure closing etcd client")
			}
		}
		if a.db != nil {
			if err := a.db.Close(); err != nil {
				a.log.WithError(err).Warn("failure closing database")
			}
		}
	})
}

func (a *stakeLedgerApp) shutdown() {
	select {
	case <-a.shutdownCh:
	default:
		close(a.shutdownCh)
	}
}

func (a *stakeLedgerApp) newStore(config *appConfig) (account.Store, error) {
	if config.StoreType == storeTypeMemory {
		a.log.Warn("using in memory account store, state is lost on exit")
		return memory.New(), nil
	}

	pgConfig := &pg.Config{
		User:               config.Postgres.User,
		Host:               config.Postgres.Host,
		Password:           config.Postgres.Password,
		Port:               config.Postgres.Port,
		DbName:             config.Postgres.DbName,
		MaxOpenConnections: config.Postgres.MaxOpenConnections,
		MaxIdleConnections: config.Postgres.MaxIdleConnections,
		MaxConnLifetime:    config.Postgres.MaxConnLifetime,
	}

	var err error
	if config.Postgres.UseAwsIam {
		awsConfig, err := external.LoadDefaultAWSConfig()
		if err != nil {
			return nil, errors.Wrap(err, "error loading aws config")
		}
		a.db, err = pg.NewWithAwsIam(pgConfig, awsConfig)
		if err != nil {
			return nil, errors.Wrap(err, "error connecting to postgres with aws iam")
		}
	} else {
		a.db, err = pg.NewWithUsernameAndPassword(pgConfig)
		if err != nil {
			return nil, errors.Wrap(err, "error connecting to postgres")
		}
	}

	return postgres_account.New(a.db), nil
}

func (a *stakeLedgerApp) initDistributedLocks(config *appConfig) error {
	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	etcdLogger, err := zapConfig.Build()
	if err != nil {
		return errors.Wrap(err, "error creating etcd logger")
	}

	a.etcdClient, err = v3.New(v3.Config{
		Endpoints:   config.Etcd.Endpoints,
		DialTimeout: config.Etcd.DialTimeout,
		Logger:      etcdLogger,
	})
	if err != nil {
		return errors.Wrap(err, "error connecting to etcd")
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	a.lockManager, err = etcd_lock.NewLockManager(a.etcdClient, config.Etcd.RootKey, config.Etcd.LockTTL, hostname)
	if err != nil {
		return errors.Wrap(err, "error creating lock manager")
	}
	return nil
}
