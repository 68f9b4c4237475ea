package audit

import (
	"github.com/code-payments/code-staking/pkg/config"
	"github.com/code-payments/code-staking/pkg/config/env"
	"github.com/code-payments/code-staking/pkg/config/memory"
	"github.com/code-payments/code-staking/pkg/config/wrapper"
)

const (
	envConfigPrefix = "STAKE_AUDIT_SERVICE_"

	ScheduleConfigEnvName = envConfigPrefix + "SCHEDULE"
	defaultSchedule       = "@every 1m"
)

type conf struct {
	schedule config.String
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			schedule: env.NewStringConfig(ScheduleConfigEnvName, defaultSchedule),
		}
	}
}

type testOverrides struct {
	schedule string
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		return &conf{
			schedule: wrapper.NewStringConfig(memory.NewConfig(overrides.schedule), defaultSchedule),
		}
	}
}
