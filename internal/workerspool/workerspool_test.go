package workerspool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/gomlx/collectives/pkg/support/xsync"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Limit(t *testing.T) {
	pool := NewWithParallelism(2)
	release := xsync.NewLatch()
	var started atomic.Int32
	for range 2 {
		pool.WaitToStart(func() {
			started.Add(1)
			release.Wait()
		})
	}
	assert.False(t, pool.StartIfAvailable(func() {}), "pool should be full")
	release.Trigger()

	deadline := time.Now().Add(time.Second)
	for pool.NumRunning() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 0, pool.NumRunning())
	assert.Equal(t, int32(2), started.Load())
	done := xsync.NewLatch()
	require.True(t, pool.StartIfAvailable(func() { done.Trigger() }))
	done.Wait()
}

func TestPool_Inline(t *testing.T) {
	pool := NewWithParallelism(0)
	ran := false
	pool.WaitToStart(func() { ran = true })
	assert.True(t, ran, "with parallelism disabled the task runs inline")
	assert.False(t, pool.StartIfAvailable(func() {}))
}

func TestPool_FanOut(t *testing.T) {
	for _, parallelism := range []int{-1, 0, 1, 3} {
		pool := NewWithParallelism(parallelism)
		var sum atomic.Int64
		require.NoError(t, pool.FanOut(10, func(i int) error {
			sum.Add(int64(i))
			return nil
		}))
		assert.Equal(t, int64(45), sum.Load(), "parallelism=%d", parallelism)

		err := pool.FanOut(5, func(i int) error {
			if i >= 2 {
				return errors.Errorf("task #%d failed", i)
			}
			return nil
		})
		require.ErrorContains(t, err, "task #2 failed")
	}
}
