package distributed_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gomlx/collectives/pkg/core/devices"
	"github.com/gomlx/collectives/pkg/core/distributed"
	"github.com/gomlx/collectives/pkg/core/distributed/store"
	"github.com/gomlx/collectives/pkg/core/tensors"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBackend supports Allreduce, whose Works stay in progress until completed by the test, and Barrier,
// which completes immediately.
type mockBackend struct {
	*distributed.BaseBackend

	mu     sync.Mutex
	issued []*distributed.Work
}

func newMockBackend(name string, rank, size int, s store.Store) *mockBackend {
	return &mockBackend{BaseBackend: distributed.NewBaseBackend(distributed.BackendConfig{
		Name: name, Rank: rank, Size: size, Store: s})}
}

func (m *mockBackend) Allreduce(ts []*tensors.Tensor, opts distributed.AllreduceOptions) (*distributed.Work, error) {
	w := m.NewWork(distributed.OpAllreduce, opts.Timeout)
	w.Start()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued = append(m.issued, w)
	return w, nil
}

func (m *mockBackend) Barrier(opts distributed.BarrierOptions) (*distributed.Work, error) {
	w := m.NewWork(distributed.OpBarrier, opts.Timeout)
	w.Finish(nil, nil)
	return w, nil
}

func (m *mockBackend) completeAll() {
	m.mu.Lock()
	issued := m.issued
	m.issued = nil
	m.mu.Unlock()
	for _, w := range issued {
		w.Finish(nil, nil)
	}
}

func newGroup(t *testing.T, backendName string, config ...distributed.GroupConfig) *distributed.ProcessGroup {
	var cfg distributed.GroupConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Size == 0 {
		cfg.Size = 1
	}
	cfg.Options.Backend = backendName
	pg, err := distributed.NewProcessGroup(cfg)
	require.NoError(t, err)
	return pg
}

func cpuTensor() *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions([]float32{1, 2, 3})
}

func TestNewProcessGroup(t *testing.T) {
	_, err := distributed.NewProcessGroup(distributed.GroupConfig{Rank: 2, Size: 2})
	require.ErrorIs(t, err, distributed.ErrInvalidArgument)
	_, err = distributed.NewProcessGroup(distributed.GroupConfig{Size: 0})
	require.ErrorIs(t, err, distributed.ErrInvalidArgument)
	_, err = distributed.NewProcessGroup(distributed.GroupConfig{Size: 1, BoundDevice: devices.Ptr(devices.New(devices.CUDA))})
	require.ErrorIs(t, err, distributed.ErrInvalidArgument)

	pg := newGroup(t, "nccl", distributed.GroupConfig{Rank: 1, Size: 4, GroupName: "trainers", DebugLevel: distributed.DebugDetail})
	assert.Equal(t, 1, pg.Rank())
	assert.Equal(t, 4, pg.Size())
	assert.NotEmpty(t, pg.ID())
	assert.Equal(t, distributed.BackendNCCL, pg.BackendType())
	assert.Equal(t, "nccl", pg.BackendName())
	assert.Equal(t, "trainers", pg.String())
	assert.Equal(t, distributed.DebugDetail, pg.DebugLevel())
	assert.False(t, pg.HasBackends())
	assert.False(t, pg.HasHooks())
	assert.Empty(t, pg.DeviceTypes())

	assert.Equal(t, distributed.BackendCustom, newGroup(t, "my_transport").BackendType())
	assert.Equal(t, distributed.BackendUndefined, newGroup(t, "").BackendType())
}

func TestBackendRegistration(t *testing.T) {
	t.Run("LookupsAgree", func(t *testing.T) {
		pg := newGroup(t, "gloo")
		gloo := newMockBackend("gloo", 0, 1, nil)
		nccl := newMockBackend("nccl", 0, 1, nil)
		triples := []struct {
			deviceType  devices.DeviceType
			backendType distributed.BackendType
			backend     distributed.Backend
		}{
			{devices.CPU, distributed.BackendGloo, gloo},
			{devices.CUDA, distributed.BackendNCCL, nccl},
		}
		for _, tt := range triples {
			require.NoError(t, pg.SetBackend(tt.deviceType, tt.backendType, tt.backend))
		}
		for _, tt := range triples {
			byDevice, err := pg.GetBackendForDevice(tt.deviceType)
			require.NoError(t, err)
			byType, err := pg.GetBackend(tt.backendType)
			require.NoError(t, err)
			assert.Same(t, tt.backend, byDevice)
			assert.Same(t, tt.backend, byType)
		}
		assert.True(t, pg.HasBackends())
		assert.Equal(t, []devices.DeviceType{devices.CPU, devices.CUDA}, pg.DeviceTypes())
		defaultBackend, err := pg.GetDefaultBackend()
		require.NoError(t, err)
		assert.Same(t, gloo, defaultBackend)
		id, err := pg.BackendID(distributed.BackendNCCL)
		require.NoError(t, err)
		assert.Equal(t, nccl.ID(), id)
	})

	t.Run("NotFound", func(t *testing.T) {
		pg := newGroup(t, "nccl")
		_, err := pg.GetBackendForDevice(devices.CPU)
		require.ErrorIs(t, err, distributed.ErrBackendNotFound)
		_, err = pg.GetBackend(distributed.BackendGloo)
		require.ErrorIs(t, err, distributed.ErrBackendNotFound)

		// Mapping only: the device type is known, but there is no backend.
		require.NoError(t, pg.SetBackend(devices.CUDA, distributed.BackendNCCL, nil))
		assert.Equal(t, []devices.DeviceType{devices.CUDA}, pg.DeviceTypes())
		_, err = pg.GetBackendForDevice(devices.CUDA)
		require.ErrorIs(t, err, distributed.ErrBackendNotFound)

		_, err = pg.GetDefaultBackend()
		require.ErrorIs(t, err, distributed.ErrConfiguration)
		assert.Contains(t, err.Error(), "nccl")
		require.ErrorIs(t, pg.WaitForPendingWorks(), distributed.ErrConfiguration)
		require.ErrorIs(t, pg.RegisterOnCompletionHook(func(*distributed.WorkInfo) {}), distributed.ErrConfiguration)
	})

	t.Run("AliasBoundDevice", func(t *testing.T) {
		bound := devices.WithIndex(devices.CUDA, 0)
		pg := newGroup(t, "nccl", distributed.GroupConfig{BoundDevice: &bound})
		canonical := newMockBackend("nccl", 0, 1, nil)
		require.NoError(t, pg.SetBackend(devices.CUDA, distributed.BackendNCCL, canonical))
		assert.Equal(t, &bound, canonical.BoundDevice(), "canonical backend inherits the group's bound device")

		different := newMockBackend("nccl", 0, 1, nil)
		different.SetBoundDevice(devices.Ptr(devices.WithIndex(devices.CUDA, 1)))
		err := pg.SetBackend(devices.HIP, distributed.BackendNCCL, different)
		require.ErrorIs(t, err, distributed.ErrInvariantViolation)
		require.ErrorIs(t, err, distributed.ErrConfiguration)
		assert.Equal(t, []devices.DeviceType{devices.CUDA}, pg.DeviceTypes(), "failed registration leaves no trace")

		same := newMockBackend("nccl", 0, 1, nil)
		same.SetBoundDevice(devices.Ptr(devices.WithIndex(devices.CUDA, 0)))
		require.NoError(t, pg.SetBackend(devices.HIP, distributed.BackendNCCL, same))
		cuda := must.M1(pg.GetBackendForDevice(devices.CUDA))
		hip := must.M1(pg.GetBackendForDevice(devices.HIP))
		assert.Same(t, canonical, cuda)
		assert.Same(t, canonical, hip)
	})
}

func TestBoundDevice(t *testing.T) {
	pg := newGroup(t, "gloo")
	backend := newMockBackend("gloo", 0, 1, nil)
	require.NoError(t, pg.SetBackend(devices.CPU, distributed.BackendGloo, backend))
	assert.Nil(t, pg.BoundDevice())

	err := pg.SetBoundDevice(devices.Ptr(devices.New(devices.CUDA)))
	require.ErrorIs(t, err, distributed.ErrInvalidArgument)
	assert.Nil(t, pg.BoundDevice())

	device := devices.WithIndex(devices.CUDA, 3)
	require.NoError(t, pg.SetBoundDevice(&device))
	assert.Equal(t, &device, pg.BoundDevice())
	assert.Equal(t, &device, backend.BoundDevice())

	require.NoError(t, pg.SetBoundDevice(nil))
	assert.Nil(t, pg.BoundDevice())
}

func TestGroupMetadataPropagation(t *testing.T) {
	pg := newGroup(t, "gloo")
	gloo := newMockBackend("gloo", 0, 1, nil)
	nccl := newMockBackend("nccl", 0, 1, nil)
	require.NoError(t, pg.SetBackend(devices.CPU, distributed.BackendGloo, gloo))
	pg.SetGroupName("group0")
	require.NoError(t, pg.SetBackend(devices.CUDA, distributed.BackendNCCL, nccl))
	pg.SetGroupDesc("data parallel")
	for _, backend := range []*mockBackend{gloo, nccl} {
		assert.Equal(t, "group0", backend.GroupName())
		assert.Equal(t, "data parallel", backend.GroupDesc())
	}
	assert.Equal(t, "group0", pg.GroupName())
	assert.Equal(t, "data parallel", pg.GroupDesc())
	assert.Contains(t, pg.Describe(), `name="group0"`)
}

// captureDevices intercepts every op, recording the device of its first tensor.
func captureDevices(registry *distributed.Registry) func() []devices.Device {
	var (
		mu       sync.Mutex
		captured []devices.Device
	)
	registry.Intercept(func(name string, next distributed.OpHandler) distributed.OpHandler {
		return func(call *distributed.OpCall) (*distributed.OpResult, error) {
			mu.Lock()
			captured = append(captured, call.Tensors[0].Device())
			mu.Unlock()
			return next(call)
		}
	})
	return func() []devices.Device {
		mu.Lock()
		defer mu.Unlock()
		return captured
	}
}

func TestBarrierDevice(t *testing.T) {
	tests := []struct {
		backend string
		opts    distributed.BarrierOptions
		want    devices.DeviceType
	}{
		{"gloo", distributed.BarrierOptions{}, devices.CPU},
		{"mpi", distributed.BarrierOptions{}, devices.CPU},
		{"nccl", distributed.BarrierOptions{}, devices.CUDA},
		{"nccl", distributed.BarrierOptions{Device: devices.Ptr(devices.New(devices.CPU))}, devices.CPU},
		{"gloo", distributed.BarrierOptions{Device: devices.Ptr(devices.New(devices.XPU))}, devices.XPU},
	}
	for _, tt := range tests {
		t.Run(tt.backend+"_"+tt.want.String(), func(t *testing.T) {
			registry := distributed.NewRegistry()
			captured := captureDevices(registry)
			pg := newGroup(t, tt.backend, distributed.GroupConfig{Registry: registry})
			backend := newMockBackend(tt.backend, 0, 1, nil)
			require.NoError(t, pg.SetBackend(tt.want, pg.BackendType(), backend))
			work, err := pg.Barrier(tt.opts)
			require.NoError(t, err)
			require.NoError(t, work.Wait(0))
			require.Len(t, captured(), 1)
			assert.Equal(t, tt.want, captured()[0].Type)
		})
	}
}

func TestMonitoredBarrierRunsOnCPU(t *testing.T) {
	registry := distributed.NewRegistry()
	var marker *tensors.Tensor
	var waitAll bool
	registry.Register(distributed.OpNameMonitoredBarrier, func(call *distributed.OpCall) (*distributed.OpResult, error) {
		marker = call.Tensors[0]
		waitAll = call.WaitAllRanks
		return &distributed.OpResult{Work: distributed.NewCompletedWork(distributed.OpMonitoredBarrier, nil,
			errors.Wrap(distributed.ErrTimedOut, "rank 1 missing"))}, nil
	})
	pg := newGroup(t, "nccl", distributed.GroupConfig{Registry: registry})
	err := pg.MonitoredBarrier(distributed.BarrierOptions{}, true)
	require.ErrorIs(t, err, distributed.ErrTimedOut)
	require.NotNil(t, marker)
	assert.Equal(t, devices.CPU, marker.Device().Type)
	assert.Equal(t, 0, marker.Size())
	assert.True(t, waitAll)

	// The default handler on a backend that doesn't support it.
	pg = newGroup(t, "gloo")
	require.NoError(t, pg.SetBackend(devices.CPU, distributed.BackendGloo, newMockBackend("gloo", 0, 1, nil)))
	require.ErrorIs(t, pg.MonitoredBarrier(distributed.BarrierOptions{}, false), distributed.ErrUnsupportedOperation)
}

func TestSequenceNumbers(t *testing.T) {
	t.Run("Agreement", func(t *testing.T) {
		const size = 4
		hashStore := store.NewHashStore(time.Second)
		// Left over by an earlier job using the same store.
		require.NoError(t, hashStore.Set(context.Background(), "group/gloo/sequence_number/1", []byte("777")))
		groups := make([]*distributed.ProcessGroup, size)
		for rank := range size {
			groups[rank] = newGroup(t, "gloo", distributed.GroupConfig{Rank: rank, Size: size, Store: hashStore})
			require.NoError(t, groups[rank].SetBackend(devices.CPU, distributed.BackendGloo,
				newMockBackend("gloo", rank, size, store.NewPrefixStore("group", hashStore))))
		}
		var wg sync.WaitGroup
		errs := make([]error, size)
		for rank := range size {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[rank] = groups[rank].SetSequenceNumberForGroup()
			}()
		}
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}
		values := make([]uint64, size)
		for rank := range size {
			values[rank] = must.M1(groups[rank].GetSequenceNumberForGroup())
			assert.Equal(t, values[0], values[rank], "rank %d", rank)
		}
		assert.NotZero(t, values[0])
		assert.NotEqual(t, uint64(777), values[0])
		assert.True(t, must.M1(hashStore.DeleteKey(context.Background(), "group/gloo/sequence_number/1")))
		assert.Zero(t, must.M1(hashStore.NumKeys(context.Background())), "agreement left keys behind")

		// Changing the store afterward doesn't change what was fetched.
		require.NoError(t, hashStore.Set(context.Background(), "group/gloo/sequence_number/1", []byte("12345")))
		for rank := range size {
			assert.Equal(t, values[rank], must.M1(groups[rank].GetSequenceNumberForGroup()))
		}

		// All ranks agree, so the check passes.
		for rank := range size {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[rank] = groups[rank].CheckSequenceNumbers(context.Background())
			}()
		}
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}
		assert.Equal(t, int64(1), must.M1(hashStore.NumKeys(context.Background())), "check left keys behind")

		// Rank 2 issues one extra collective: everyone detects the desync.
		backend := must.M1(groups[2].GetDefaultBackend()).(*mockBackend)
		_, err := groups[2].Allreduce([]*tensors.Tensor{cpuTensor()}, distributed.AllreduceOptions{})
		require.NoError(t, err)
		backend.completeAll()
		for rank := range size {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[rank] = groups[rank].CheckSequenceNumbers(context.Background())
			}()
		}
		wg.Wait()
		for rank, err := range errs {
			require.ErrorIs(t, err, distributed.ErrCollectiveDesync, "rank %d", rank)
			assert.Contains(t, err.Error(), "rank 2")
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		for _, name := range []string{"mpi", "my_transport", ""} {
			pg := newGroup(t, name)
			err := pg.SetSequenceNumberForGroup()
			require.ErrorIs(t, err, distributed.ErrUnsupportedOperation)
			assert.Contains(t, err.Error(), "ProcessGroup "+name+" does not yet support sequence numbers")
			_, err = pg.GetSequenceNumberForGroup()
			require.ErrorIs(t, err, distributed.ErrUnsupportedOperation)
			require.ErrorIs(t, pg.CheckSequenceNumbers(context.Background()), distributed.ErrUnsupportedOperation)
		}
	})

	t.Run("NoStore", func(t *testing.T) {
		pg := newGroup(t, "ucc")
		require.NoError(t, pg.SetBackend(devices.CPU, distributed.BackendUCC, newMockBackend("ucc", 0, 1, nil)))
		require.ErrorIs(t, pg.SetSequenceNumberForGroup(), distributed.ErrConfiguration)
		require.ErrorIs(t, pg.CheckSequenceNumbers(context.Background()), distributed.ErrConfiguration)
	})
}

func TestWaitForPendingWorks(t *testing.T) {
	pg := newGroup(t, "gloo")
	backend := newMockBackend("gloo", 0, 1, nil)
	require.NoError(t, pg.SetBackend(devices.CPU, distributed.BackendGloo, backend))

	var works []*distributed.Work
	for range 3 {
		works = append(works, must.M1(pg.Allreduce([]*tensors.Tensor{cpuTensor()}, distributed.DefaultAllreduceOptions())))
	}
	assert.Equal(t, 3, backend.NumPendingWorks())

	done := make(chan struct{})
	go func() {
		assert.NoError(t, pg.WaitForPendingWorks())
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("WaitForPendingWorks returned with pending works")
	case <-time.After(20 * time.Millisecond):
	}

	// Completing the earlier works (and not the one issued after the call started) releases the waiter.
	backend.completeAll()
	later := must.M1(pg.Allreduce([]*tensors.Tensor{cpuTensor()}, distributed.DefaultAllreduceOptions()))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForPendingWorks didn't return")
	}
	for _, w := range works {
		assert.True(t, w.IsCompleted())
	}
	assert.False(t, later.IsCompleted())
	backend.completeAll()
}

func TestCompletionHooks(t *testing.T) {
	pg := newGroup(t, "gloo")
	backend := newMockBackend("gloo", 0, 1, nil)
	require.NoError(t, pg.SetBackend(devices.CPU, distributed.BackendGloo, backend))
	pg.EnableCollectivesTiming()

	var (
		mu    sync.Mutex
		infos []*distributed.WorkInfo
	)
	require.NoError(t, pg.RegisterOnCompletionHook(func(info *distributed.WorkInfo) {
		mu.Lock()
		defer mu.Unlock()
		infos = append(infos, info)
	}))
	require.NoError(t, pg.RegisterOnCompletionHook(func(*distributed.WorkInfo) {
		panic("misbehaving hook")
	}))
	assert.True(t, pg.HasHooks())

	first := must.M1(pg.Allreduce([]*tensors.Tensor{cpuTensor()}, distributed.AllreduceOptions{}))
	cancelled := must.M1(pg.Allreduce([]*tensors.Tensor{cpuTensor()}, distributed.AllreduceOptions{}))
	cancelled.Cancel()
	backend.completeAll()
	barrier := must.M1(pg.Barrier(distributed.BarrierOptions{}))
	require.NoError(t, barrier.Wait(0))
	backend.FlushCompletionHooks()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, infos, 2, "cancelled works don't call hooks")
	assert.Equal(t, first.SequenceNumber(), infos[0].SequenceNumber)
	assert.Equal(t, distributed.OpAllreduce, infos[0].OpType)
	assert.Equal(t, "gloo", infos[0].Backend)
	assert.Equal(t, distributed.OpBarrier, infos[1].OpType)
	assert.Equal(t, distributed.WorkSuccess, infos[1].State)
	assert.Greater(t, infos[1].SequenceNumber, infos[0].SequenceNumber)
}

func TestCoalescingNoOp(t *testing.T) {
	pg := newGroup(t, "gloo")
	require.NoError(t, pg.SetBackend(devices.CPU, distributed.BackendGloo, newMockBackend("gloo", 0, 1, nil)))
	require.NoError(t, pg.StartCoalescing(devices.CPU))
	work, err := pg.EndCoalescing(devices.CPU)
	require.NoError(t, err)
	assert.True(t, work.IsSuccess())
	assert.Equal(t, distributed.OpCoalesced, work.OpType())

	require.ErrorIs(t, pg.StartCoalescing(devices.CUDA), distributed.ErrBackendNotFound)
	_, err = pg.EndCoalescing(devices.CUDA)
	require.ErrorIs(t, err, distributed.ErrBackendNotFound)
}

func TestDispatch(t *testing.T) {
	t.Run("MixedDevices", func(t *testing.T) {
		pg := newGroup(t, "gloo")
		require.NoError(t, pg.SetBackend(devices.CPU, distributed.BackendGloo, newMockBackend("gloo", 0, 1, nil)))
		cuda := tensors.FromFlatDataOnDevice(devices.WithIndex(devices.CUDA, 0), []float32{1})
		_, err := pg.Allreduce([]*tensors.Tensor{cpuTensor(), cuda}, distributed.AllreduceOptions{})
		require.ErrorIs(t, err, distributed.ErrInvalidArgument)
		_, err = pg.Allreduce(nil, distributed.AllreduceOptions{})
		require.ErrorIs(t, err, distributed.ErrInvalidArgument)
	})

	t.Run("UnsupportedByBackend", func(t *testing.T) {
		pg := newGroup(t, "gloo")
		require.NoError(t, pg.SetBackend(devices.CPU, distributed.BackendGloo, newMockBackend("gloo", 0, 1, nil)))
		_, err := pg.Broadcast([]*tensors.Tensor{cpuTensor()}, distributed.DefaultBroadcastOptions())
		require.ErrorIs(t, err, distributed.ErrUnsupportedOperation)
		assert.Contains(t, err.Error(), "broadcast")
	})

	t.Run("UnknownOp", func(t *testing.T) {
		pg := newGroup(t, "gloo", distributed.GroupConfig{Registry: distributed.NewEmptyRegistry()})
		_, err := pg.Barrier(distributed.BarrierOptions{})
		require.ErrorIs(t, err, distributed.ErrUnsupportedOperation)
	})

	t.Run("OverrideAndPanics", func(t *testing.T) {
		registry := distributed.NewRegistry()
		replaced := tensors.FromFlatDataAndDimensions([]float32{0, 0})
		registry.Register(distributed.OpNameAllgatherBase, func(call *distributed.OpCall) (*distributed.OpResult, error) {
			require.NotNil(t, call.Group)
			return &distributed.OpResult{Work: distributed.NewCompletedWork(distributed.OpAllgatherBase, nil, nil),
				Outputs: []*tensors.Tensor{replaced}}, nil
		})
		registry.Register(distributed.OpNameBroadcast, func(*distributed.OpCall) (*distributed.OpResult, error) {
			panic(errors.New("broken handler"))
		})
		registry.Register(distributed.OpNameReduce, func(*distributed.OpCall) (*distributed.OpResult, error) {
			return &distributed.OpResult{}, nil
		})
		pg := newGroup(t, "gloo", distributed.GroupConfig{Registry: registry})

		output, work, err := pg.AllgatherBase(cpuTensor(), cpuTensor(), distributed.DefaultAllgatherOptions())
		require.NoError(t, err)
		assert.Same(t, replaced, output)
		assert.True(t, work.IsSuccess())

		_, err = pg.Broadcast([]*tensors.Tensor{cpuTensor()}, distributed.BroadcastOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken handler")

		_, err = pg.Reduce([]*tensors.Tensor{cpuTensor()}, distributed.ReduceOptions{})
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "no Work"))
	})

	t.Run("OptionsFlattened", func(t *testing.T) {
		registry := distributed.NewEmptyRegistry()
		var got *distributed.OpCall
		registry.Register(distributed.OpNameReduce, func(call *distributed.OpCall) (*distributed.OpResult, error) {
			got = call
			return &distributed.OpResult{Work: distributed.NewCompletedWork(distributed.OpReduce, nil, nil)}, nil
		})
		pg := newGroup(t, "gloo", distributed.GroupConfig{Registry: registry, Size: 4,
			Options: distributed.Options{Timeout: time.Minute}})
		input := []*tensors.Tensor{cpuTensor()}
		_, err := pg.Reduce(input, distributed.ReduceOptions{ReduceOp: distributed.ReduceMax, RootRank: 3, RootTensor: 0})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Same(t, pg, got.Group)
		assert.Equal(t, input, got.Tensors)
		assert.Equal(t, distributed.ReduceMax, got.ReduceOp)
		assert.Equal(t, 3, got.RootRank)
		assert.Equal(t, time.Minute, got.Timeout, "group timeout is used when the op doesn't set one")
		assert.Equal(t, []string{distributed.OpNameReduce}, registry.Names())
	})
}

func TestShutdown(t *testing.T) {
	pg := newGroup(t, "gloo")
	backend := newMockBackend("gloo", 0, 1, nil)
	require.NoError(t, pg.SetBackend(devices.CPU, distributed.BackendGloo, backend))
	require.NoError(t, pg.SetBackend(devices.Meta, distributed.BackendGloo, nil))

	pending := must.M1(pg.Allreduce([]*tensors.Tensor{cpuTensor()}, distributed.AllreduceOptions{}))
	pg.Shutdown()
	pg.Shutdown()
	require.ErrorIs(t, pending.Wait(0), distributed.ErrBackendShutdown)
	assert.Equal(t, distributed.WorkFailed, pending.State())
	assert.True(t, backend.IsShutdown())

	after := must.M1(pg.Allreduce([]*tensors.Tensor{cpuTensor()}, distributed.AllreduceOptions{}))
	require.ErrorIs(t, after.Wait(0), distributed.ErrBackendShutdown)
}
