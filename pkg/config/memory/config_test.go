package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-staking/pkg/config"
	"github.com/code-payments/code-staking/pkg/config/wrapper"
)

func TestConfig_Lifecycle(t *testing.T) {
	ctx := context.Background()

	c := NewConfig(nil)
	_, err := c.Get(ctx)
	assert.Equal(t, config.ErrNoValue, err)

	c.SetValue(uint64(7))
	val, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), val)

	c.InduceErrors(nil)
	_, err = c.Get(ctx)
	assert.Equal(t, ErrInduced, err)

	custom := errors.New("backend unavailable")
	c.InduceErrors(custom)
	_, err = c.Get(ctx)
	assert.Equal(t, custom, err)

	c.StopInducingErrors()
	val, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), val)

	c.ClearValue()
	_, err = c.Get(ctx)
	assert.Equal(t, config.ErrNoValue, err)

	c.SetValue(uint64(8))
	c.Shutdown()
	_, err = c.Get(ctx)
	assert.Equal(t, config.ErrShutdown, err)
}

func TestConfig_TypedFallback(t *testing.T) {
	ctx := context.Background()

	c := NewConfig(uint64(10))
	typed := wrapper.NewUint64Config(c, 1)
	assert.EqualValues(t, 10, typed.Get(ctx))

	c.InduceErrors(nil)
	assert.EqualValues(t, 10, typed.Get(ctx))
	_, err := typed.GetSafe(ctx)
	assert.Error(t, err)
}

func TestConfig_ConcurrentUpdates(t *testing.T) {
	c := NewConfig(0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.SetValue(i*100 + j)
				c.InduceErrors(nil)
				c.StopInducingErrors()
				_, _ = c.Get(context.Background())
			}
		}(i)
	}
	wg.Wait()

	val, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.IsType(t, 0, val)
}
