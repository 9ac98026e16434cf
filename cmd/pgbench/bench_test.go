package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gomlx/collectives/pkg/core/devices"
	"github.com/gomlx/collectives/pkg/core/distributed/config"
	"github.com/gomlx/collectives/pkg/core/distributed/launcher"
	"github.com/gomlx/collectives/pkg/core/distributed/metrics"
	"github.com/gomlx/collectives/pkg/core/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBench(t *testing.T) {
	cfg := config.Default()
	cfg.WorldSize = 3
	world := must.M1(launcher.NewLocalWorld(context.Background(), cfg))
	defer func() { require.NoError(t, world.Shutdown()) }()

	for _, op := range benchOpNames() {
		t.Run(op, func(t *testing.T) {
			var iterations int
			result, err := runBench(context.Background(), world, benchConfig{
				Op:         op,
				DType:      dtypes.Float32,
				Device:     devices.New(devices.CPU),
				Elements:   6,
				Iterations: 4,
				Warmup:     1,
			}, func() { iterations++ })
			require.NoError(t, err)
			assert.Equal(t, 4, iterations)
			assert.Len(t, result.Latencies, 4)
			assert.Equal(t, 3, result.WorldSize)
			assert.LessOrEqual(t, result.Percentile(0.5), result.Percentile(1))
			if op == "barrier" {
				assert.Zero(t, result.Bytes())
			} else {
				assert.Equal(t, uint64(24), result.Bytes())
			}
		})
	}

	_, err := runBench(context.Background(), world, benchConfig{Op: "allmagic", Elements: 1, Iterations: 1}, nil)
	require.ErrorContains(t, err, "unknown op")
	_, err = runBench(context.Background(), world, benchConfig{Op: "allreduce", Iterations: 1}, nil)
	require.ErrorContains(t, err, "elements must be > 0")
	_, err = runBench(context.Background(), world, benchConfig{Op: "allreduce", Elements: 1}, nil)
	require.ErrorContains(t, err, "iterations must be > 0")
}

func TestBenchResult(t *testing.T) {
	r := &benchResult{
		Op:        "allreduce",
		DType:     dtypes.Float64,
		Elements:  128,
		Latencies: []time.Duration{3 * time.Millisecond, time.Millisecond, 2 * time.Millisecond, 10 * time.Millisecond},
		Total:     16 * time.Millisecond,
	}
	assert.Equal(t, uint64(1024), r.Bytes())
	assert.Equal(t, 4*time.Millisecond, r.Mean())
	assert.Equal(t, time.Millisecond, r.Percentile(0))
	assert.Equal(t, 2*time.Millisecond, r.Percentile(0.5))
	assert.Equal(t, 10*time.Millisecond, r.Percentile(1))
	assert.InDelta(t, 1024*4/0.016, r.Throughput(), 1e-6)

	table := resultsTable(r)
	assert.Contains(t, table, "allreduce")
	assert.Contains(t, table, "1.0 KiB")
	assert.Contains(t, table, "4.00ms")

	empty := &benchResult{Op: "barrier"}
	assert.Zero(t, empty.Mean())
	assert.Zero(t, empty.Percentile(0.5))
	assert.Zero(t, empty.Throughput())
	assert.NotContains(t, resultsTable(empty), "dtype")
}

func TestFmtDuration(t *testing.T) {
	assert.Equal(t, "12.5µs", fmtDuration(12500*time.Nanosecond))
	assert.Equal(t, "1.50ms", fmtDuration(1500*time.Microsecond))
	assert.Equal(t, "2.346s", fmtDuration(2345678*time.Microsecond))
}

func TestRootCommand(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "world.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("backend: gloo\nworld_size: 4\n"), 0o644))

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--config", configPath, "--world_size=2", "--op=alltoall", "--elements=8",
		"--iterations=3", "--warmup=0", "--dtype=int32", "--no_progress"})
	require.NoError(t, cmd.Execute())
	out := stdout.String()
	assert.Contains(t, out, "alltoall")
	assert.Contains(t, out, "Int32")
	assert.Contains(t, out, "32 B")

	t.Run("InvalidDType", func(t *testing.T) {
		cmd := newRootCmd()
		cmd.SetOut(io.Discard)
		cmd.SetArgs([]string{"--dtype=complex256", "--no_progress"})
		require.ErrorContains(t, cmd.Execute(), "unknown dtype")
	})
	t.Run("InvalidConfig", func(t *testing.T) {
		cmd := newRootCmd()
		cmd.SetArgs([]string{"--world_size=0"})
		require.ErrorContains(t, cmd.Execute(), "world_size must be > 0")
	})
	t.Run("InvalidDevice", func(t *testing.T) {
		cmd := newRootCmd()
		cmd.SetArgs([]string{"--device=abacus"})
		require.ErrorContains(t, cmd.Execute(), "unknown device type")
	})
}

func TestServeMetrics(t *testing.T) {
	addr, stop, err := serveMetrics("127.0.0.1:0", metrics.NewCollector())
	require.NoError(t, err)
	defer stop()
	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
