// Package app runs a long lived application inside a process that handles
// config, logging, metrics, debug endpoints and shutdown.
package app

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// App is a long lived application whose lifecycle is tied to the process.
type App interface {
	// Init starts the application. It is called once config, logging and
	// metrics are set up, and the application is expected to be running when
	// it returns.
	Init(config Config, metricsProvider *newrelic.Application) error

	// ShutdownChan is closed when the application stops on its own, which
	// triggers process shutdown.
	ShutdownChan() <-chan struct{}

	// Stop releases the application's resources. It must be idempotent.
	Stop()
}

var configPath = flag.String("config", "config.yaml", "configuration file path")

// Run initializes app and blocks until the process is signalled, the
// restart schedule fires, or app shuts down. It then stops app, failing if
// that takes longer than the configured grace period.
func Run(app App) error {
	flag.Parse()

	log := logrus.StandardLogger().WithField("type", "app")

	config, err := loadConfig(viper.GetViper(), *configPath)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	metricsProvider, err := newMetricsProvider(config)
	if err != nil {
		return errors.Wrap(err, "failed to create new relic application")
	}

	configureLogger(config, metricsProvider)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer cancel()

	if config.EnableExpvar || config.EnablePprof {
		go serveDebug(ctx, log, config)
	}

	ballast := allocateBallast(config)

	var restartCh <-chan struct{}
	if config.EnableMemoryLeakCron {
		var stopSchedule func()
		restartCh, stopSchedule, err = scheduleRestart(config.MemoryLeakCronSchedule)
		if err != nil {
			return err
		}
		defer stopSchedule()
	}

	if err := app.Init(config.AppConfig, metricsProvider); err != nil {
		return errors.Wrap(err, "failed to initialize application")
	}

	select {
	case <-ctx.Done():
		log.Info("signal received, shutting down")
	case <-restartCh:
		log.Info("scheduled restart, shutting down")
	case <-app.ShutdownChan():
		log.Info("application stopped, shutting down")
	}
	cancel()

	stopped := make(chan struct{})
	go func() {
		app.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(config.ShutdownGracePeriod):
		return errors.Errorf("application did not stop within %v", config.ShutdownGracePeriod)
	}

	runtime.KeepAlive(ballast)

	if metricsProvider != nil {
		metricsProvider.Shutdown(config.ShutdownGracePeriod)
	}
	return nil
}

// Main runs app and exits the process with a non-zero status on failure.
func Main(app App) {
	if err := Run(app); err != nil {
		logrus.StandardLogger().WithError(err).Error("application failed")
		os.Exit(1)
	}
}
