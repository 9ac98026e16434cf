package distributed

import (
	"time"

	"github.com/gomlx/collectives/pkg/core/devices"
)

// DefaultTimeout is used whenever an options' Timeout is zero.
const DefaultTimeout = 30 * time.Minute

// resolveTimeout returns timeout, or DefaultTimeout if it is not positive.
func resolveTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultTimeout
	}
	return timeout
}

// Options of a ProcessGroup: immutable after construction.
type Options struct {
	// Backend is the name of the group's default backend, e.g.: "gloo" or "nccl".
	// Names that are not one of the BackendType values are BackendCustom.
	Backend string

	// Timeout is the default timeout for the group's operations. If 0 it uses DefaultTimeout.
	Timeout time.Duration
}

// BroadcastOptions for ProcessGroup.Broadcast.
type BroadcastOptions struct {
	RootRank   int
	RootTensor int
	Timeout    time.Duration
	AsyncOp    bool
}

// DefaultBroadcastOptions returns BroadcastOptions with the neutral values.
func DefaultBroadcastOptions() BroadcastOptions {
	return BroadcastOptions{AsyncOp: true}
}

// AllreduceOptions for ProcessGroup.Allreduce.
type AllreduceOptions struct {
	ReduceOp ReduceOp
	Timeout  time.Duration

	// SparseIndices is accepted but only dense tensors are reduced by the local transport.
	SparseIndices []int
}

// DefaultAllreduceOptions returns AllreduceOptions with the neutral values.
func DefaultAllreduceOptions() AllreduceOptions {
	return AllreduceOptions{ReduceOp: ReduceSum}
}

// AllreduceCoalescedOptions for ProcessGroup.AllreduceCoalesced.
type AllreduceCoalescedOptions struct {
	ReduceOp ReduceOp
	Timeout  time.Duration
}

// DefaultAllreduceCoalescedOptions returns AllreduceCoalescedOptions with the neutral values.
func DefaultAllreduceCoalescedOptions() AllreduceCoalescedOptions {
	return AllreduceCoalescedOptions{ReduceOp: ReduceSum}
}

// ReduceOptions for ProcessGroup.Reduce.
type ReduceOptions struct {
	ReduceOp   ReduceOp
	RootRank   int
	RootTensor int
	Timeout    time.Duration
}

// DefaultReduceOptions returns ReduceOptions with the neutral values.
func DefaultReduceOptions() ReduceOptions {
	return ReduceOptions{ReduceOp: ReduceSum}
}

// AllgatherOptions for the ProcessGroup.Allgather family.
type AllgatherOptions struct {
	Timeout time.Duration
	AsyncOp bool
}

// DefaultAllgatherOptions returns AllgatherOptions with the neutral values.
func DefaultAllgatherOptions() AllgatherOptions {
	return AllgatherOptions{AsyncOp: true}
}

// GatherOptions for ProcessGroup.Gather.
type GatherOptions struct {
	RootRank int
	Timeout  time.Duration
}

// ScatterOptions for ProcessGroup.Scatter.
type ScatterOptions struct {
	RootRank int
	Timeout  time.Duration
	AsyncOp  bool
}

// DefaultScatterOptions returns ScatterOptions with the neutral values.
func DefaultScatterOptions() ScatterOptions {
	return ScatterOptions{AsyncOp: true}
}

// ReduceScatterOptions for the ProcessGroup.ReduceScatter family.
type ReduceScatterOptions struct {
	ReduceOp ReduceOp
	Timeout  time.Duration
	AsyncOp  bool
}

// DefaultReduceScatterOptions returns ReduceScatterOptions with the neutral values.
func DefaultReduceScatterOptions() ReduceScatterOptions {
	return ReduceScatterOptions{ReduceOp: ReduceSum, AsyncOp: true}
}

// AllToAllOptions for ProcessGroup.Alltoall and ProcessGroup.AlltoallBase.
type AllToAllOptions struct {
	Timeout time.Duration
}

// BarrierOptions for ProcessGroup.Barrier and ProcessGroup.MonitoredBarrier.
type BarrierOptions struct {
	// DeviceIDs of the devices participating in the barrier, if any.
	DeviceIDs []int
	Timeout   time.Duration

	// Device of the marker tensor. If nil, it is chosen from the group's BackendType.
	Device *devices.Device
}
