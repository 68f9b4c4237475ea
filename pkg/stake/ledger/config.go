package ledger

import (
	"time"

	"github.com/code-payments/code-staking/pkg/config"
	"github.com/code-payments/code-staking/pkg/config/env"
	"github.com/code-payments/code-staking/pkg/config/memory"
	"github.com/code-payments/code-staking/pkg/config/wrapper"
)

const (
	envConfigPrefix = "STAKE_LEDGER_"

	RewardRateNumeratorConfigEnvName = envConfigPrefix + "REWARD_RATE_NUMERATOR"
	defaultRewardRateNumerator       = 1

	RewardRateDenominatorConfigEnvName = envConfigPrefix + "REWARD_RATE_DENOMINATOR"
	defaultRewardRateDenominator       = 10

	RewardPeriodConfigEnvName = envConfigPrefix + "REWARD_PERIOD"
	defaultRewardPeriod       = 24 * time.Hour

	LockStripesConfigEnvName = envConfigPrefix + "LOCK_STRIPES"
	defaultLockStripes       = 1024

	DerivationCacheSizeConfigEnvName = envConfigPrefix + "DERIVATION_CACHE_SIZE"
	defaultDerivationCacheSize       = 10_000
)

type conf struct {
	rewardRateNumerator   config.Uint64
	rewardRateDenominator config.Uint64
	rewardPeriod          config.Duration
	lockStripes           config.Uint64
	derivationCacheSize   config.Uint64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			rewardRateNumerator:   env.NewUint64Config(RewardRateNumeratorConfigEnvName, defaultRewardRateNumerator),
			rewardRateDenominator: env.NewUint64Config(RewardRateDenominatorConfigEnvName, defaultRewardRateDenominator),
			rewardPeriod:          env.NewDurationConfig(RewardPeriodConfigEnvName, defaultRewardPeriod),
			lockStripes:           env.NewUint64Config(LockStripesConfigEnvName, defaultLockStripes),
			derivationCacheSize:   env.NewUint64Config(DerivationCacheSizeConfigEnvName, defaultDerivationCacheSize),
		}
	}
}

type testOverrides struct {
	rewardRateNumerator   uint64
	rewardRateDenominator uint64
	rewardPeriod          time.Duration
	derivationCacheSize   uint64
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		return &conf{
			rewardRateNumerator:   wrapper.NewUint64Config(memory.NewConfig(overrides.rewardRateNumerator), defaultRewardRateNumerator),
			rewardRateDenominator: wrapper.NewUint64Config(memory.NewConfig(overrides.rewardRateDenominator), defaultRewardRateDenominator),
			rewardPeriod:          wrapper.NewDurationConfig(memory.NewConfig(overrides.rewardPeriod), defaultRewardPeriod),
			lockStripes:           wrapper.NewUint64Config(memory.NewConfig(uint64(16)), defaultLockStripes),
			derivationCacheSize:   wrapper.NewUint64Config(memory.NewConfig(overrides.derivationCacheSize), defaultDerivationCacheSize),
		}
	}
}
