package memory

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/code-payments/code-staking/pkg/config"
)

// ErrInduced is returned by Get while errors are being induced.
var ErrInduced = errors.New("memory config: induced error")

type state struct {
	value    any
	err      error
	shutdown bool
}

// Config holds a single value that can be swapped at runtime. A nil value
// means nothing is set.
type Config struct {
	current atomic.Pointer[state]
}

// NewConfig returns a Config initially holding value.
func NewConfig(value any) *Config {
	c := &Config{}
	c.current.Store(&state{value: value})
	return c
}

// Get implements config.Config.Get
func (c *Config) Get(_ context.Context) (any, error) {
	s := c.current.Load()
	switch {
	case s.shutdown:
		return nil, config.ErrShutdown
	case s.err != nil:
		return nil, s.err
	case s.value == nil:
		return nil, config.ErrNoValue
	}
	return s.value, nil
}

// Shutdown implements config.Config.Shutdown
func (c *Config) Shutdown() {
	c.update(func(s *state) { s.shutdown = true })
}

// SetValue replaces the value returned by subsequent Get calls.
func (c *Config) SetValue(value any) {
	c.update(func(s *state) { s.value = value })
}

// ClearValue makes subsequent Get calls return config.ErrNoValue.
func (c *Config) ClearValue() {
	c.SetValue(nil)
}

// InduceErrors makes Get fail with err until StopInducingErrors is called. A
// nil err induces ErrInduced.
func (c *Config) InduceErrors(err error) {
	if err == nil {
		err = ErrInduced
	}
	c.update(func(s *state) { s.err = err })
}

// StopInducingErrors restores normal Get behaviour.
func (c *Config) StopInducingErrors() {
	c.update(func(s *state) { s.err = nil })
}

func (c *Config) update(fn func(*state)) {
	for {
		old := c.current.Load()
		next := *old
		fn(&next)
		if c.current.CompareAndSwap(old, &next) {
			return
		}
	}
}
