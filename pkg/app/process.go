package app

import (
	"context"
	"expvar"
	"net/http"
	"net/http/pprof"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	metrics_util "github.com/code-payments/code-staking/pkg/metrics"
	"github.com/code-payments/code-staking/pkg/osutil"
)

const debugServerRestartDelay = 5 * time.Second

func newMetricsProvider(config BaseConfig) (*newrelic.Application, error) {
	if config.NewRelicLicenseKey == "" {
		return nil, nil
	}

	return newrelic.NewApplication(
		newrelic.ConfigFromEnvironment(),
		newrelic.ConfigAppName(config.AppName),
		newrelic.ConfigLicense(config.NewRelicLicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
}

// configureLogger emits JSON to stdout, forwarding to New Relic when
// metricsProvider is set. Unknown levels leave the current level in place.
func configureLogger(config BaseConfig, metricsProvider *newrelic.Application) {
	var formatter logrus.Formatter = &logrus.JSONFormatter{}
	if metricsProvider != nil {
		formatter = metrics_util.NewLogForwardingFormatter(metricsProvider, formatter)
	}
	logrus.SetFormatter(formatter)
	logrus.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		logrus.WithField("log_level", config.LogLevel).Warn("unknown log level, ignoring")
		return
	}
	logrus.SetLevel(level)
}

func newDebugMux(config BaseConfig) *http.ServeMux {
	mux := http.NewServeMux()
	if config.EnableExpvar {
		mux.Handle("/debug/vars", expvar.Handler())
	}
	if config.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

// serveDebug serves the debug endpoints until ctx is done, restarting the
// listener if it fails.
func serveDebug(ctx context.Context, log *logrus.Entry, config BaseConfig) {
	server := &http.Server{
		Addr:              config.DebugListenAddress,
		Handler:           newDebugMux(config),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	for {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return
		}
		log.WithError(err).Warnf("debug server failed, restarting in %v", debugServerRestartDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(debugServerRestartDelay):
		}
	}
}

func ballastSize(capacity float32, totalMemory uint64) uint64 {
	capacity = max(0, min(capacity, 0.5))
	return uint64(capacity * float32(totalMemory))
}

func allocateBallast(config BaseConfig) []byte {
	if !config.EnableBallast {
		return nil
	}
	return make([]byte, ballastSize(config.BallastCapacity, osutil.GetTotalMemory()))
}

// scheduleRestart returns a channel closed the first time schedule fires.
// The returned func stops the schedule.
func scheduleRestart(schedule string) (<-chan struct{}, func(), error) {
	restartCh := make(chan struct{})

	var once sync.Once
	c := cron.New(cron.WithLocation(time.Local))
	_, err := c.AddFunc(schedule, func() {
		once.Do(func() { close(restartCh) })
	})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid restart schedule %q", schedule)
	}

	c.Start()
	return restartCh, func() { c.Stop() }, nil
}
