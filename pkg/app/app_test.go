package app

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_name: stake-ledger
log_level: debug
shutdown_grace_period: 5s
enable_ballast: false
app:
  postgres_dsn: postgres://localhost/staking
`), 0600))

	config, err := loadConfig(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "stake-ledger", config.AppName)
	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, 5*time.Second, config.ShutdownGracePeriod)
	assert.False(t, config.EnableBallast)
	assert.Equal(t, "postgres://localhost/staking", config.AppConfig["postgres_dsn"])

	// Defaults survive when not overridden
	assert.Equal(t, defaultConfig.DebugListenAddress, config.DebugListenAddress)
	assert.Equal(t, defaultConfig.MemoryLeakCronSchedule, config.MemoryLeakCronSchedule)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	v := viper.New()

	_, err := loadConfig(v, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	v.Set("app_name", "stake-ledger")
	config, err := loadConfig(v, filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "stake-ledger", config.AppName)
	assert.Equal(t, defaultConfig.ShutdownGracePeriod, config.ShutdownGracePeriod)
}

func TestLoadConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app_name: [unterminated"), 0600))

	_, err := loadConfig(viper.New(), path)
	assert.Error(t, err)
}

func TestBallastSize(t *testing.T) {
	assert.EqualValues(t, 250, ballastSize(0.25, 1000))
	assert.EqualValues(t, 500, ballastSize(0.9, 1000))
	assert.EqualValues(t, 0, ballastSize(-1, 1000))
	assert.EqualValues(t, 0, ballastSize(0.25, 0))
}

func TestDebugMux(t *testing.T) {
	for _, tc := range []struct {
		config       BaseConfig
		path         string
		expectedCode int
	}{
		{BaseConfig{EnableExpvar: true}, "/debug/vars", http.StatusOK},
		{BaseConfig{EnableExpvar: false}, "/debug/vars", http.StatusNotFound},
		{BaseConfig{EnablePprof: true}, "/debug/pprof/", http.StatusOK},
		{BaseConfig{EnablePprof: false}, "/debug/pprof/", http.StatusNotFound},
	} {
		recorder := httptest.NewRecorder()
		newDebugMux(tc.config).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, tc.path, nil))
		assert.Equal(t, tc.expectedCode, recorder.Code, tc.path)
	}
}

func TestConfigureLogger(t *testing.T) {
	defer logrus.SetLevel(logrus.GetLevel())

	configureLogger(BaseConfig{LogLevel: "WARN"}, nil)
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())

	configureLogger(BaseConfig{LogLevel: "nonsense"}, nil)
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("APP_NAME", "stake-ledger")
	t.Setenv("LOG_LEVEL", "trace")
	t.Setenv("SHUTDOWN_GRACE_PERIOD", "10s")

	config, err := loadConfig(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "stake-ledger", config.AppName)
	assert.Equal(t, "trace", config.LogLevel)
	assert.Equal(t, 10*time.Second, config.ShutdownGracePeriod)
}

func TestLoadConfig_InvalidGracePeriod(t *testing.T) {
	v := viper.New()
	v.Set("app_name", "stake-ledger")
	v.Set("shutdown_grace_period", "0s")

	_, err := loadConfig(v, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "shutdown_grace_period")
}

func TestScheduleRestart(t *testing.T) {
	_, _, err := scheduleRestart("not a schedule")
	assert.Error(t, err)

	restartCh, stop, err := scheduleRestart("@every 1s")
	require.NoError(t, err)
	defer stop()

	select {
	case <-restartCh:
	case <-time.After(5 * time.Second):
		t.Fatal("restart schedule never fired")
	}
}
