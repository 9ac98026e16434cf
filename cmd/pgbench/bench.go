package main

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/gomlx/collectives/pkg/core/devices"
	"github.com/gomlx/collectives/pkg/core/distributed"
	"github.com/gomlx/collectives/pkg/core/distributed/launcher"
	"github.com/gomlx/collectives/pkg/core/dtypes"
	"github.com/gomlx/collectives/pkg/core/tensors"
	"github.com/pkg/errors"
)

// benchOp prepares the buffers of one rank and returns the function that issues the op once.
type benchOp func(pg *distributed.ProcessGroup, dtype dtypes.DType, device devices.Device, elements int) func() (*distributed.Work, error)

var benchOps = map[string]benchOp{
	"allreduce": func(pg *distributed.ProcessGroup, dtype dtypes.DType, device devices.Device, elements int) func() (*distributed.Work, error) {
		x := tensors.Empty(dtype, device, elements)
		return func() (*distributed.Work, error) {
			return pg.Allreduce([]*tensors.Tensor{x}, distributed.DefaultAllreduceOptions())
		}
	},
	"broadcast": func(pg *distributed.ProcessGroup, dtype dtypes.DType, device devices.Device, elements int) func() (*distributed.Work, error) {
		x := tensors.Empty(dtype, device, elements)
		return func() (*distributed.Work, error) {
			return pg.Broadcast([]*tensors.Tensor{x}, distributed.DefaultBroadcastOptions())
		}
	},
	"reduce": func(pg *distributed.ProcessGroup, dtype dtypes.DType, device devices.Device, elements int) func() (*distributed.Work, error) {
		x := tensors.Empty(dtype, device, elements)
		return func() (*distributed.Work, error) {
			return pg.Reduce([]*tensors.Tensor{x}, distributed.DefaultReduceOptions())
		}
	},
	"allgather": func(pg *distributed.ProcessGroup, dtype dtypes.DType, device devices.Device, elements int) func() (*distributed.Work, error) {
		input := tensors.Empty(dtype, device, elements)
		output := tensors.Empty(dtype, device, pg.Size()*elements)
		return func() (*distributed.Work, error) {
			_, work, err := pg.AllgatherBase(output, input, distributed.DefaultAllgatherOptions())
			return work, err
		}
	},
	"reduce_scatter": func(pg *distributed.ProcessGroup, dtype dtypes.DType, device devices.Device, elements int) func() (*distributed.Work, error) {
		input := tensors.Empty(dtype, device, pg.Size()*elements)
		output := tensors.Empty(dtype, device, elements)
		return func() (*distributed.Work, error) {
			_, work, err := pg.ReduceScatterBase(output, input, distributed.DefaultReduceScatterOptions())
			return work, err
		}
	},
	"alltoall": func(pg *distributed.ProcessGroup, dtype dtypes.DType, device devices.Device, elements int) func() (*distributed.Work, error) {
		input := tensors.Empty(dtype, device, pg.Size()*elements)
		output := tensors.Empty(dtype, device, pg.Size()*elements)
		return func() (*distributed.Work, error) {
			return pg.AlltoallBase(output, input, nil, nil, distributed.AllToAllOptions{})
		}
	},
	"barrier": func(pg *distributed.ProcessGroup, _ dtypes.DType, device devices.Device, _ int) func() (*distributed.Work, error) {
		return func() (*distributed.Work, error) {
			return pg.Barrier(distributed.BarrierOptions{Device: devices.Ptr(device)})
		}
	},
}

// benchOpNames returns the sorted names of the ops that can be benchmarked.
func benchOpNames() []string {
	names := make([]string, 0, len(benchOps))
	for name := range benchOps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type benchConfig struct {
	Op         string
	DType      dtypes.DType
	Device     devices.Device
	Elements   int
	Iterations int
	Warmup     int
}

type benchResult struct {
	Op         string
	WorldSize  int
	DType      dtypes.DType
	Device     devices.Device
	Elements   int
	Iterations int

	// Latencies of each measured iteration, as seen by rank 0.
	Latencies []time.Duration
	Total     time.Duration
}

// Bytes is the size of each rank's payload.
func (r *benchResult) Bytes() uint64 {
	if r.Op == "barrier" {
		return 0
	}
	return uint64(r.DType.Size() * r.Elements)
}

// Mean latency.
func (r *benchResult) Mean() time.Duration {
	if len(r.Latencies) == 0 {
		return 0
	}
	return r.Total / time.Duration(len(r.Latencies))
}

// Percentile of the latencies, with p in [0, 1].
func (r *benchResult) Percentile(p float64) time.Duration {
	if len(r.Latencies) == 0 {
		return 0
	}
	sorted := slices.Clone(r.Latencies)
	slices.Sort(sorted)
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

// Throughput in bytes per second of each rank's payload.
func (r *benchResult) Throughput() float64 {
	if r.Total <= 0 {
		return 0
	}
	return float64(r.Bytes()) * float64(len(r.Latencies)) / r.Total.Seconds()
}

// runBench runs the op on every rank of the world: cfg.Warmup unmeasured iterations, then cfg.Iterations
// measured ones. onIteration, if not nil, is called by rank 0 after each measured iteration.
func runBench(ctx context.Context, world *launcher.World, cfg benchConfig, onIteration func()) (*benchResult, error) {
	newOp, found := benchOps[cfg.Op]
	if !found {
		return nil, errors.Errorf("unknown op %q, valid values are %v", cfg.Op, benchOpNames())
	}
	if cfg.Elements <= 0 {
		return nil, errors.Errorf("the number of elements must be > 0, got %d", cfg.Elements)
	}
	if cfg.Iterations <= 0 {
		return nil, errors.Errorf("the number of iterations must be > 0, got %d", cfg.Iterations)
	}
	result := &benchResult{
		Op:         cfg.Op,
		WorldSize:  world.Size(),
		DType:      cfg.DType,
		Device:     cfg.Device,
		Elements:   cfg.Elements,
		Iterations: cfg.Iterations,
		Latencies:  make([]time.Duration, 0, cfg.Iterations),
	}
	err := world.Run(ctx, func(ctx context.Context, pg *distributed.ProcessGroup) error {
		issue := newOp(pg, cfg.DType, cfg.Device, cfg.Elements)
		for iter := range cfg.Warmup + cfg.Iterations {
			start := time.Now()
			work, err := issue()
			if err != nil {
				return err
			}
			if err := work.WaitContext(ctx); err != nil {
				return errors.WithMessagef(err, "iteration %d", iter)
			}
			if pg.Rank() != 0 || iter < cfg.Warmup {
				continue
			}
			elapsed := time.Since(start)
			result.Latencies = append(result.Latencies, elapsed)
			result.Total += elapsed
			if onIteration != nil {
				onIteration()
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
