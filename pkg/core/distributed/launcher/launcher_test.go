package launcher

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gomlx/collectives/pkg/core/devices"
	"github.com/gomlx/collectives/pkg/core/distributed"
	"github.com/gomlx/collectives/pkg/core/distributed/config"
	"github.com/gomlx/collectives/pkg/core/distributed/metrics"
	"github.com/gomlx/collectives/pkg/core/distributed/store"
	"github.com/gomlx/collectives/pkg/core/tensors"
	"github.com/janpfeifer/must"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorld(t *testing.T, yaml string, opts ...Option) *World {
	t.Helper()
	cfg := must.M1(config.Parse([]byte(yaml)))
	w, err := NewLocalWorld(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, w.Shutdown()) })
	return w
}

// allreduceOn runs an allreduce of each rank's value on a tensor of the given device, and returns the results.
func allreduceOn(t *testing.T, w *World, device devices.Device) []float32 {
	t.Helper()
	results := make([]float32, w.Size())
	err := w.Run(context.Background(), func(ctx context.Context, pg *distributed.ProcessGroup) error {
		x := tensors.FromFlatDataOnDevice(device, []float32{float32(pg.Rank() + 1)})
		work, err := pg.Allreduce([]*tensors.Tensor{x}, distributed.DefaultAllreduceOptions())
		if err != nil {
			return err
		}
		if err := work.WaitContext(ctx); err != nil {
			return err
		}
		results[pg.Rank()] = tensors.Flat[float32](x)[0]
		return nil
	})
	require.NoError(t, err)
	return results
}

func TestNewLocalWorld(t *testing.T) {
	w := newWorld(t, `
backend: nccl
world_size: 3
group_name: trainers
bound_device: cuda:2
devices: {cpu: gloo, cuda: nccl}
`)
	require.Equal(t, 3, w.Size())
	assert.NotNil(t, w.Fabric(distributed.BackendGloo))
	assert.NotNil(t, w.Fabric(distributed.BackendNCCL))
	assert.Nil(t, w.Fabric(distributed.BackendMPI))
	assert.Contains(t, w.String(), "size=3")

	var seq uint64
	for rank, pg := range w.Groups() {
		assert.Equal(t, rank, pg.Rank())
		assert.Equal(t, 3, pg.Size())
		assert.Equal(t, "trainers", pg.GroupName())
		assert.Equal(t, devices.WithIndex(devices.CUDA, 2+rank), *pg.BoundDevice())
		assert.Equal(t, []devices.DeviceType{devices.CPU, devices.CUDA}, pg.DeviceTypes())

		cpuBackend := must.M1(pg.GetBackendForDevice(devices.CPU))
		assert.Equal(t, "gloo", cpuBackend.Name())
		cudaBackend := must.M1(pg.GetBackendForDevice(devices.CUDA))
		assert.Equal(t, "nccl", cudaBackend.Name())
		assert.Same(t, cudaBackend, must.M1(pg.GetDefaultBackend()))

		rankSeq, err := pg.GetSequenceNumberForGroup()
		require.NoError(t, err)
		assert.NotZero(t, rankSeq)
		if rank == 0 {
			seq = rankSeq
		} else {
			assert.Equal(t, seq, rankSeq, "rank %d disagrees on the sequence number", rank)
		}
	}
	require.NoError(t, w.Run(context.Background(), func(ctx context.Context, pg *distributed.ProcessGroup) error {
		return pg.CheckSequenceNumbers(ctx)
	}))

	// 1+2+3 on both transports.
	assert.Equal(t, []float32{6, 6, 6}, allreduceOn(t, w, devices.New(devices.CPU)))
	assert.Equal(t, []float32{6, 6, 6}, allreduceOn(t, w, devices.WithIndex(devices.CUDA, 0)))
}

func TestWorldWithoutSequenceNumbers(t *testing.T) {
	w := newWorld(t, "backend: mpi\nworld_size: 2\n")
	_, err := w.Group(1).GetSequenceNumberForGroup()
	require.ErrorIs(t, err, distributed.ErrUnsupportedOperation)
	assert.Equal(t, []float32{3, 3}, allreduceOn(t, w, devices.New(devices.CPU)))
}

func TestRedisWorld(t *testing.T) {
	mr := miniredis.RunT(t)
	w := newWorld(t, `
backend: gloo
world_size: 2
store:
  type: redis
  addr: `+mr.Addr()+`
  prefix: "test:"
  timeout: 5s
`)
	seq := must.M1(w.Group(0).GetSequenceNumberForGroup())
	assert.Equal(t, seq, must.M1(w.Group(1).GetSequenceNumberForGroup()))
	assert.NotEmpty(t, w.RunID())
	assert.Empty(t, mr.Keys(), "sequence number agreement left keys behind")
	assert.Equal(t, []float32{3, 3}, allreduceOn(t, w, devices.New(devices.CPU)))
}

// assertSequenceNumbersAgree checks that all ranks of w share one sequence number, and returns it.
func assertSequenceNumbersAgree(t *testing.T, w *World) uint64 {
	t.Helper()
	seq := must.M1(w.Group(0).GetSequenceNumberForGroup())
	for rank, pg := range w.Groups() {
		assert.Equal(t, seq, must.M1(pg.GetSequenceNumberForGroup()), "%s: rank %d diverged", w, rank)
	}
	require.NoError(t, w.Run(context.Background(), func(ctx context.Context, pg *distributed.ProcessGroup) error {
		return pg.CheckSequenceNumbers(ctx)
	}))
	return seq
}

func TestWorldsSharingRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	yaml := func(runID string) string {
		return `
backend: gloo
world_size: 4
run_id: "` + runID + `"
store:
  type: redis
  addr: ` + mr.Addr() + `
  timeout: 5s
`
	}

	t.Run("ReusedRunID", func(t *testing.T) {
		for range 10 {
			w := newWorld(t, yaml("job"))
			assert.Equal(t, "job", w.RunID())
			assertSequenceNumbersAgree(t, w)
			require.NoError(t, w.Shutdown())
			assert.Empty(t, mr.Keys())
		}
	})

	t.Run("Concurrent", func(t *testing.T) {
		worlds := make([]*World, 2)
		for i := range worlds {
			worlds[i] = newWorld(t, yaml(""))
		}
		assert.NotEqual(t, worlds[0].RunID(), worlds[1].RunID())
		for _, w := range worlds {
			assertSequenceNumbersAgree(t, w)
		}
		assert.Equal(t, []float32{10, 10, 10, 10}, allreduceOn(t, worlds[1], devices.New(devices.CPU)))
	})
}

func TestStaleSequenceNumber(t *testing.T) {
	hashStore := store.NewHashStore(5 * time.Second)
	require.NoError(t, hashStore.Set(context.Background(), "job/default/gloo/sequence_number/1", []byte("777")))
	w := newWorld(t, "backend: gloo\nworld_size: 2\nrun_id: job\n", WithStore(hashStore))
	assert.NotEqual(t, uint64(777), assertSequenceNumbersAgree(t, w))
}

func TestWithCollector(t *testing.T) {
	collector := metrics.NewCollector()
	w := newWorld(t, "backend: gloo\nworld_size: 2\n", WithCollector(collector))
	allreduceOn(t, w, devices.New(devices.CPU))

	assert.Eventually(t, func() bool {
		return testutil.CollectAndCount(collector, "collectives_works_total") == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(collector, "collectives_dispatched_total"))
}

func TestWithRegistry(t *testing.T) {
	var calls int
	w := newWorld(t, "backend: gloo\nworld_size: 1\n", WithRegistry(func() *distributed.Registry {
		calls++
		return distributed.NewRegistry()
	}))
	assert.Equal(t, 1, calls)
	assert.Equal(t, []float32{1}, allreduceOn(t, w, devices.New(devices.CPU)))
}

func TestRun(t *testing.T) {
	w := newWorld(t, "backend: ucc\nworld_size: 3\n")
	err := w.Run(context.Background(), func(ctx context.Context, pg *distributed.ProcessGroup) error {
		if pg.Rank() == 1 {
			return distributed.ErrTransportFailure
		}
		return nil
	})
	require.ErrorIs(t, err, distributed.ErrTransportFailure)
	assert.Contains(t, err.Error(), "rank 1")

	err = w.Run(context.Background(), func(ctx context.Context, pg *distributed.ProcessGroup) error {
		if pg.Rank() == 2 {
			panic("boom")
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rank 2 panicked: boom")
}

func TestInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.WorldSize = 0
	_, err := NewLocalWorld(context.Background(), cfg)
	require.ErrorIs(t, err, distributed.ErrConfiguration)
}
