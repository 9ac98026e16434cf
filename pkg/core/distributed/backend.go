package distributed

import (
	"github.com/gomlx/collectives/pkg/core/devices"
	"github.com/gomlx/collectives/pkg/core/tensors"
)

// Backend is a transport implementing the collectives for one or more device families.
//
// A ProcessGroup holds one Backend per BackendType, shared by every device type that maps to it.
// Every collective returns immediately with a Work: only argument errors are returned synchronously,
// transport failures are reported through the Work.
//
// Implementations usually embed *BaseBackend, which implements everything except the collectives
// (those return ErrUnsupportedOperation), and override the collectives they support.
type Backend interface {
	// Name of the backend, e.g.: "gloo".
	Name() string

	// ID is an opaque identifier of the backend instance.
	ID() string

	Rank() int
	Size() int

	Broadcast(tensors []*tensors.Tensor, opts BroadcastOptions) (*Work, error)
	Allreduce(tensors []*tensors.Tensor, opts AllreduceOptions) (*Work, error)
	AllreduceCoalesced(tensors []*tensors.Tensor, opts AllreduceCoalescedOptions) (*Work, error)
	Reduce(tensors []*tensors.Tensor, opts ReduceOptions) (*Work, error)

	// Allgather gathers inputs[i] of every rank into outputs[i][rank].
	Allgather(outputs [][]*tensors.Tensor, inputs []*tensors.Tensor, opts AllgatherOptions) (*Work, error)

	// AllgatherBase gathers the input of every rank, concatenated by rank order, into the flat output.
	AllgatherBase(output, input *tensors.Tensor, opts AllgatherOptions) (*Work, error)
	AllgatherCoalesced(outputLists [][]*tensors.Tensor, inputs []*tensors.Tensor, opts AllgatherOptions) (*Work, error)
	AllgatherIntoTensorCoalesced(outputs, inputs []*tensors.Tensor, opts AllgatherOptions) (*Work, error)

	// Gather collects inputs[0] of every rank into outputs[0][rank] of the root rank.
	Gather(outputs [][]*tensors.Tensor, inputs []*tensors.Tensor, opts GatherOptions) (*Work, error)

	// Scatter sends inputs[0][rank] of the root rank to outputs[0] of every rank.
	Scatter(outputs []*tensors.Tensor, inputs [][]*tensors.Tensor, opts ScatterOptions) (*Work, error)

	// ReduceScatter reduces inputs[0][rank] of every rank into outputs[0] of rank.
	ReduceScatter(outputs []*tensors.Tensor, inputs [][]*tensors.Tensor, opts ReduceScatterOptions) (*Work, error)
	ReduceScatterBase(output, input *tensors.Tensor, opts ReduceScatterOptions) (*Work, error)
	ReduceScatterTensorCoalesced(outputs, inputs []*tensors.Tensor, opts ReduceScatterOptions) (*Work, error)

	// AlltoallBase splits input along axis 0 by inputSplitSizes (equal splits if nil), sends split i to rank i,
	// and concatenates what is received into output by outputSplitSizes.
	AlltoallBase(output, input *tensors.Tensor, outputSplitSizes, inputSplitSizes []int, opts AllToAllOptions) (*Work, error)
	Alltoall(outputs, inputs []*tensors.Tensor, opts AllToAllOptions) (*Work, error)

	// MonitoredBarrier blocks until all ranks reach the barrier. If waitAllRanks, the failure reports every
	// rank that didn't respond in time, instead of only the first one.
	MonitoredBarrier(opts BarrierOptions, waitAllRanks bool) error

	Send(tensors []*tensors.Tensor, dstRank, tag int) (*Work, error)
	Recv(tensors []*tensors.Tensor, srcRank, tag int) (*Work, error)
	RecvAnysource(tensors []*tensors.Tensor, tag int) (*Work, error)
	Barrier(opts BarrierOptions) (*Work, error)

	// StartCoalescing opens a batching window. Backends without batching treat it as a no-op.
	StartCoalescing() error

	// EndCoalescing closes the batching window, and returns the Work of the whole batch.
	// Backends without batching return an already completed Work.
	EndCoalescing() (*Work, error)

	SetSequenceNumberForGroup() error
	GetSequenceNumberForGroup() uint64

	RegisterOnCompletionHook(hook CompletionHook)
	HasHooks() bool
	WaitForPendingWorks()

	BoundDevice() *devices.Device
	SetBoundDevice(device *devices.Device)

	GroupName() string
	SetGroupName(name string)
	GroupDesc() string
	SetGroupDesc(desc string)
	EnableCollectivesTiming()

	// Shutdown releases the backend. Works pending at that point fail with ErrBackendShutdown, and so do Works
	// issued afterward.
	Shutdown()
}
