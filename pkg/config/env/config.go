package env

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/code-payments/code-staking/pkg/config"
	"github.com/code-payments/code-staking/pkg/config/wrapper"
)

type variable struct {
	name string
}

// NewConfig returns a config.Config backed by the environment variable with
// the upper cased key as its name. The variable is looked up on every Get, so
// changes made after construction are observed. Values are returned as
// trimmed []byte.
func NewConfig(key string) config.Config {
	return &variable{name: strings.ToUpper(key)}
}

// Get implements Config.Get
func (v *variable) Get(_ context.Context) (any, error) {
	raw, ok := os.LookupEnv(v.name)
	if !ok {
		return nil, config.ErrNoValue
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, config.ErrNoValue
	}
	return []byte(raw), nil
}

// Shutdown implements Config.Shutdown
func (v *variable) Shutdown() {}

// NewInt64Config creates a env-based int64 config
func NewInt64Config(key string, defaultValue int64) config.Int64 {
	return wrapper.NewInt64Config(NewConfig(key), defaultValue)
}

// NewUint64Config creates a env-based uint64 config
func NewUint64Config(key string, defaultValue uint64) config.Uint64 {
	return wrapper.NewUint64Config(NewConfig(key), defaultValue)
}

// NewStringConfig creates a env-based string config
func NewStringConfig(key string, defaultValue string) config.String {
	return wrapper.NewStringConfig(NewConfig(key), defaultValue)
}

// NewBoolConfig creates a env-based bool config
func NewBoolConfig(key string, defaultValue bool) config.Bool {
	return wrapper.NewBoolConfig(NewConfig(key), defaultValue)
}

// NewDurationConfig creates a env-based duration config
func NewDurationConfig(key string, defaultValue time.Duration) config.Duration {
	return wrapper.NewDurationConfig(NewConfig(key), defaultValue)
}
