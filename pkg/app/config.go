package app

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the application specific section of the process config, found
// under the "app" key. Applications decode it with mapstructure.
type Config map[string]any

// BaseConfig configures the process around the application.
type BaseConfig struct {
	AppName  string `mapstructure:"app_name"`
	LogLevel string `mapstructure:"log_level"`

	NewRelicLicenseKey string `mapstructure:"new_relic_license_key"`

	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`

	// Debug endpoints, served on a separate listener from anything the
	// application exposes.
	DebugListenAddress string `mapstructure:"debug_listen_address"`
	EnablePprof        bool   `mapstructure:"enable_pprof"`
	EnableExpvar       bool   `mapstructure:"enable_expvar"`

	// A heap ballast reduces GC frequency for processes with small live
	// heaps. Capacity is a fraction of total memory, capped at 0.5.
	EnableBallast   bool    `mapstructure:"enable_ballast"`
	BallastCapacity float32 `mapstructure:"ballast_capacity"`

	// Restarts the process on a cron schedule.
	EnableMemoryLeakCron   bool   `mapstructure:"enable_memory_leak_cron"`
	MemoryLeakCronSchedule string `mapstructure:"memory_leak_cron_schedule"`

	AppConfig Config `mapstructure:"app"`
}

var defaultConfig = BaseConfig{
	LogLevel:               "info",
	ShutdownGracePeriod:    30 * time.Second,
	DebugListenAddress:     ":8123",
	EnablePprof:            true,
	EnableExpvar:           true,
	EnableBallast:          true,
	BallastCapacity:        0.333,
	MemoryLeakCronSchedule: "0 5 * * *",
}

// envKeys are the base config keys that can be set through upper cased
// environment variables, for example LOG_LEVEL.
var envKeys = []string{
	"app_name",
	"log_level",
	"new_relic_license_key",
	"shutdown_grace_period",
	"debug_listen_address",
	"enable_pprof",
	"enable_expvar",
	"enable_ballast",
	"ballast_capacity",
	"enable_memory_leak_cron",
	"memory_leak_cron_schedule",
}

// loadConfig layers environment variables over the config file at path, if
// it exists, over defaultConfig.
func loadConfig(v *viper.Viper, path string) (BaseConfig, error) {
	for _, key := range envKeys {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return BaseConfig{}, errors.Wrapf(err, "failed to bind %s", key)
		}
	}

	// viper only reports a missing file when searching config paths, so an
	// explicit path is checked here.
	_, err := os.Stat(path)
	switch {
	case err == nil:
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return BaseConfig{}, errors.Wrapf(err, "failed to read config file %s", path)
		}
	case !os.IsNotExist(err):
		return BaseConfig{}, errors.Wrapf(err, "failed to stat config file %s", path)
	}

	config := defaultConfig
	if err := v.Unmarshal(&config); err != nil {
		return BaseConfig{}, errors.Wrap(err, "failed to decode config")
	}

	if config.AppName == "" {
		return BaseConfig{}, errors.New("app_name must be set")
	}
	if config.ShutdownGracePeriod <= 0 {
		return BaseConfig{}, errors.New("shutdown_grace_period must be positive")
	}
	return config, nil
}
