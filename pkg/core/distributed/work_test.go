package distributed_test

import (
	"context"
	"testing"
	"time"

	"github.com/gomlx/collectives/pkg/core/distributed"
	"github.com/gomlx/collectives/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkStates(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		w := distributed.NewWork(distributed.OpAllreduce, 0)
		assert.Equal(t, distributed.WorkPending, w.State())
		assert.False(t, w.IsCompleted())
		assert.Equal(t, distributed.DefaultTimeout, w.Timeout())
		w.Start()
		assert.Equal(t, distributed.WorkInProgress, w.State())

		result := []*tensors.Tensor{tensors.FromFlatDataAndDimensions([]float32{1, 2})}
		require.True(t, w.Finish(result, nil))
		assert.True(t, w.IsCompleted())
		assert.True(t, w.IsSuccess())
		require.NoError(t, w.Wait(0))
		require.NoError(t, w.Wait(time.Millisecond))
		assert.Equal(t, result, w.Result())

		// Terminal states are immutable.
		assert.False(t, w.Finish(nil, errors.New("late failure")))
		w.Start()
		assert.Equal(t, distributed.WorkSuccess, w.State())
		require.NoError(t, w.Exception())
	})

	t.Run("Failed", func(t *testing.T) {
		w := distributed.NewWork(distributed.OpSend, 0)
		cause := errors.Wrap(distributed.ErrTransportFailure, "connection reset")
		require.True(t, w.Finish(nil, cause))
		assert.Equal(t, distributed.WorkFailed, w.State())
		for range 3 {
			err := w.Wait(0)
			require.ErrorIs(t, err, distributed.ErrTransportFailure)
		}
		assert.False(t, w.IsSuccess())
		assert.Same(t, cause, w.Exception())
	})

	t.Run("OwnTimeout", func(t *testing.T) {
		w := distributed.NewWork(distributed.OpBarrier, 10*time.Millisecond)
		w.Start()
		select {
		case <-w.Done():
		case <-time.After(time.Second):
			t.Fatal("Work didn't time out")
		}
		assert.Equal(t, distributed.WorkTimedOut, w.State())
		require.ErrorIs(t, w.Wait(0), distributed.ErrTimedOut)
		assert.False(t, w.Finish(nil, nil), "a timed out Work can't succeed afterward")
	})

	t.Run("WaitTimeout", func(t *testing.T) {
		w := distributed.NewWork(distributed.OpRecv, 0)
		err := w.Wait(5 * time.Millisecond)
		require.ErrorIs(t, err, distributed.ErrTimedOut)
		assert.Equal(t, distributed.WorkTimedOut, w.State())
		require.ErrorIs(t, w.Wait(0), distributed.ErrTimedOut)
	})

	t.Run("WaitContext", func(t *testing.T) {
		w := distributed.NewWork(distributed.OpRecv, 0)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := w.WaitContext(ctx)
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, distributed.WorkPending, w.State(), "a cancelled wait doesn't change the Work")

		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()
		require.ErrorIs(t, w.WaitContext(ctx), distributed.ErrTimedOut)
		assert.Equal(t, distributed.WorkTimedOut, w.State())
	})

	t.Run("DeadlineExceededIsTimedOut", func(t *testing.T) {
		w := distributed.NewCompletedWork(distributed.OpBroadcast, nil, context.DeadlineExceeded)
		assert.Equal(t, distributed.WorkTimedOut, w.State())
		require.ErrorIs(t, w.Exception(), distributed.ErrTimedOut)
	})

	t.Run("OnTerminalAndInfo", func(t *testing.T) {
		w := distributed.NewWork(distributed.OpGather, 0)
		var calls int
		w.OnTerminal(func(*distributed.Work) { calls++ })
		w.SetSourceRank(3)
		w.Start()
		w.Finish(nil, nil)
		w.OnTerminal(func(*distributed.Work) { calls++ })
		assert.Equal(t, 2, calls)
		assert.Equal(t, 3, w.SourceRank())

		info := w.Info()
		assert.Equal(t, distributed.OpGather, info.OpType)
		assert.Equal(t, distributed.WorkSuccess, info.State)
		assert.False(t, info.TimeFinished.Before(info.TimeStarted))
		assert.Zero(t, info.ActiveDuration, "timing is not enabled")
	})
}

func TestWorkStateStrings(t *testing.T) {
	assert.Equal(t, "InProgress", distributed.WorkInProgress.String())
	assert.Equal(t, "allgather_into_tensor_coalesced", distributed.OpAllgatherIntoTensorCoalesced.String())
	assert.True(t, distributed.WorkTimedOut.IsTerminal())
	assert.False(t, distributed.WorkInProgress.IsTerminal())
}
