package config

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNoValue is returned by a source that currently has nothing set.
	ErrNoValue = errors.New("config: no value set")

	// ErrShutdown is returned by a source used after Shutdown.
	ErrShutdown = errors.New("config: shutdown")
)

// Config is a source of raw setting values.
type Config interface {
	// Get returns the current raw value, or ErrNoValue.
	Get(ctx context.Context) (any, error)

	// Shutdown releases the source. Later calls to Get fail with
	// ErrShutdown.
	Shutdown()
}

// Typed is a setting converted to T.
type Typed[T any] interface {
	// Get returns the current value. On a source or conversion failure it
	// returns the last good value, which starts out as the default.
	Get(ctx context.Context) T

	// GetSafe is Get with the failure reported alongside the fallback.
	GetSafe(ctx context.Context) (T, error)

	Shutdown()
}

type (
	Bool     = Typed[bool]
	Duration = Typed[time.Duration]
	Int64    = Typed[int64]
	String   = Typed[string]
	Uint64   = Typed[uint64]
)
