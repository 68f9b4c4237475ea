package main

import (
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/app"
)

const (
	storeTypeMemory   = "memory"
	storeTypePostgres = "postgres"
)

type postgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DbName   string `mapstructure:"db_name"`

	// Authenticate with an RDS IAM token instead of the password
	UseAwsIam bool `mapstructure:"use_aws_iam"`

	MaxOpenConnections int           `mapstructure:"max_open_connections"`
	MaxIdleConnections int           `mapstructure:"max_idle_connections"`
	MaxConnLifetime    time.Duration `mapstructure:"max_conn_lifetime"`
}

type etcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	RootKey     string        `mapstructure:"root_key"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
}

type appConfig struct {
	StoreType string         `mapstructure:"store_type"`
	Postgres  postgresConfig `mapstructure:"postgres"`

	// Distributed locks are only used when endpoints are set
	Etcd etcdConfig `mapstructure:"etcd"`

	// Per signer transitions per second. Zero disables rate limiting.
	SignerRateLimit float64 `mapstructure:"signer_rate_limit"`
	SignerBurst     int     `mapstructure:"signer_burst"`

	EnableAudit bool `mapstructure:"enable_audit"`
}

var defaultAppConfig = appConfig{
	StoreType: storeTypeMemory,

	Postgres: postgresConfig{
		Port:               5432,
		MaxOpenConnections: 32,
		MaxIdleConnections: 8,
		MaxConnLifetime:    time.Hour,
	},

	Etcd: etcdConfig{
		DialTimeout: 5 * time.Second,
		RootKey:     "/code-staking/locks",
		LockTTL:     10 * time.Second,
	},

	EnableAudit: true,
}

func decodeConfig(raw app.Config) (*appConfig, error) {
	config := defaultAppConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &config,
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(map[string]interface{}(raw)); err != nil {
		return nil, errors.Wrap(err, "invalid app config")
	}

	switch config.StoreType {
	case storeTypeMemory, storeTypePostgres:
	default:
		return nil, errors.Errorf("unsupported store type %q", config.StoreType)
	}

	if config.SignerRateLimit < 0 {
		return nil, errors.New("signer rate limit cannot be negative")
	}

	return &config, nil
}
