package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/gomlx/collectives/pkg/core/devices"
	"github.com/gomlx/collectives/pkg/core/distributed"
	"github.com/gomlx/collectives/pkg/core/distributed/backends/local"
	"github.com/gomlx/collectives/pkg/core/tensors"
	"github.com/janpfeifer/must"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	collector := NewCollector()
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)
	registry := distributed.NewRegistry()
	registry.Intercept(collector.Interceptor())

	const size = 2
	fabric := local.NewFabric(size)
	groups := make([]*distributed.ProcessGroup, size)
	backends := make([]*local.Backend, size)
	for rank := range size {
		groups[rank] = must.M1(distributed.NewProcessGroup(distributed.GroupConfig{
			Rank: rank, Size: size, Registry: registry, Options: distributed.Options{Backend: "gloo"}}))
		backends[rank] = must.M1(local.New(fabric, rank, nil, local.Config{}))
		require.NoError(t, groups[rank].SetBackend(devices.CPU, distributed.BackendGloo, backends[rank]))
		require.NoError(t, collector.Instrument(groups[rank]))
		defer groups[rank].Shutdown()
	}

	var works []*distributed.Work
	for rank, pg := range groups {
		input := tensors.FromFlatDataAndDimensions([]float32{float32(rank)})
		works = append(works, must.M1(pg.Allreduce([]*tensors.Tensor{input}, distributed.AllreduceOptions{})))
		works = append(works, must.M1(pg.Barrier(distributed.BarrierOptions{})))
	}
	for _, w := range works {
		require.NoError(t, w.Wait(5*time.Second))
	}
	_, err := groups[0].Allreduce(nil, distributed.AllreduceOptions{})
	require.ErrorIs(t, err, distributed.ErrInvalidArgument)
	for _, b := range backends {
		b.FlushCompletionHooks()
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.works.WithLabelValues("gloo", "allreduce", "Success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.works.WithLabelValues("gloo", "barrier", "Success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.dispatched.WithLabelValues(distributed.OpNameAllreduce)))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.failed.WithLabelValues(distributed.OpNameAllreduce)))
	assert.Equal(t, 2, testutil.CollectAndCount(collector, "collectives_work_duration_seconds"))

	expected := `
# HELP collectives_dispatch_errors_total Ops whose dispatch failed synchronously, by op name.
# TYPE collectives_dispatch_errors_total counter
collectives_dispatch_errors_total{op="distributed::allreduce_"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "collectives_dispatch_errors_total"))
}

func TestInstrumentWithoutBackends(t *testing.T) {
	pg := must.M1(distributed.NewProcessGroup(distributed.GroupConfig{Size: 1}))
	require.ErrorIs(t, NewCollector().Instrument(pg), distributed.ErrConfiguration)
}

func TestObserveWithoutTiming(t *testing.T) {
	collector := NewCollector()
	w := distributed.NewCompletedWork(distributed.OpSend, nil, distributed.ErrTransportFailure)
	collector.Hook()(w.Info())
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.works.WithLabelValues("", "send", "Failed")))
}
