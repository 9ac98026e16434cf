package xsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatch(t *testing.T) {
	latch := NewLatch()
	assert.False(t, latch.Test())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, latch.WaitContext(ctx), context.DeadlineExceeded)

	go func() { latch.Trigger() }()
	latch.Wait()
	assert.True(t, latch.Test())
	assert.False(t, latch.Trigger())
	require.NoError(t, latch.WaitContext(ctx))
	select {
	case <-latch.WaitChan():
	default:
		t.Fatal("WaitChan should be closed after Trigger")
	}
}

func TestDynamicWaitGroup(t *testing.T) {
	wg := NewDynamicWaitGroup()
	wg.Wait() // Zero value returns immediately.

	wg.Add(2)
	assert.Equal(t, 2, wg.Count())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, wg.WaitContext(ctx), context.DeadlineExceeded)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	wg.Done()
	wg.Add(1) // Grows while being waited.
	wg.Done()
	select {
	case <-done:
		t.Fatal("Wait returned before counter reached zero")
	case <-time.After(10 * time.Millisecond):
	}
	wg.Done()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait didn't return after counter reached zero")
	}
	require.Panics(t, func() { wg.Done() })
}
