package wrapper

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/config"
)

// ErrUnsupportedType is returned when a source yields a value the setting
// cannot convert.
var ErrUnsupportedType = errors.New("config: unsupported source value type")

// parser converts the raw text form of a value, as env sources provide it.
type parser[T any] func(text string) (T, error)

type typedConfig[T any] struct {
	source   config.Config
	fallback T
	parse    parser[T]
	widen    func(raw any) (T, bool)

	mu       sync.RWMutex
	lastGood T
}

func newTyped[T any](source config.Config, fallback T, parse parser[T], widen func(any) (T, bool)) *typedConfig[T] {
	return &typedConfig[T]{
		source:   source,
		fallback: fallback,
		parse:    parse,
		widen:    widen,
		lastGood: fallback,
	}
}

func (c *typedConfig[T]) convert(raw any) (T, error) {
	switch v := raw.(type) {
	case T:
		return v, nil
	case []byte:
		return c.parse(string(v))
	}
	if c.widen != nil {
		if v, ok := c.widen(raw); ok {
			return v, nil
		}
	}

	var zero T
	return zero, ErrUnsupportedType
}

func (c *typedConfig[T]) GetSafe(ctx context.Context) (T, error) {
	raw, err := c.source.Get(ctx)
	if errors.Is(err, config.ErrNoValue) {
		c.remember(c.fallback)
		return c.fallback, nil
	}
	if err == nil {
		var v T
		if v, err = c.convert(raw); err == nil {
			c.remember(v)
			return v, nil
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastGood, err
}

func (c *typedConfig[T]) Get(ctx context.Context) T {
	v, _ := c.GetSafe(ctx)
	return v
}

func (c *typedConfig[T]) Shutdown() {
	c.source.Shutdown()
}

func (c *typedConfig[T]) remember(v T) {
	c.mu.Lock()
	c.lastGood = v
	c.mu.Unlock()
}

// NewBoolConfig parses text with strconv.ParseBool.
func NewBoolConfig(source config.Config, fallback bool) config.Bool {
	return newTyped(source, fallback, strconv.ParseBool, nil)
}

// NewInt64Config parses base 10 text and also accepts int values.
func NewInt64Config(source config.Config, fallback int64) config.Int64 {
	return newTyped(source, fallback,
		func(text string) (int64, error) { return strconv.ParseInt(text, 10, 64) },
		func(raw any) (int64, bool) {
			v, ok := raw.(int)
			return int64(v), ok
		},
	)
}

// NewUint64Config parses base 10 text and also accepts uint values.
func NewUint64Config(source config.Config, fallback uint64) config.Uint64 {
	return newTyped(source, fallback,
		func(text string) (uint64, error) { return strconv.ParseUint(text, 10, 64) },
		func(raw any) (uint64, bool) {
			v, ok := raw.(uint)
			return uint64(v), ok
		},
	)
}

func NewStringConfig(source config.Config, fallback string) config.String {
	return newTyped(source, fallback, func(text string) (string, error) { return text, nil }, nil)
}

// NewDurationConfig parses text with time.ParseDuration. Text without a unit
// is a whole number of seconds.
func NewDurationConfig(source config.Config, fallback time.Duration) config.Duration {
	return newTyped(source, fallback, func(text string) (time.Duration, error) {
		if seconds, err := strconv.ParseInt(text, 10, 64); err == nil {
			return time.Duration(seconds) * time.Second, nil
		}
		return time.ParseDuration(text)
	}, nil)
}
