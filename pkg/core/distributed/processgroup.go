package distributed

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gomlx/collectives/pkg/core/devices"
	"github.com/gomlx/collectives/pkg/core/distributed/store"
	"github.com/gomlx/collectives/pkg/core/dtypes"
	"github.com/gomlx/collectives/pkg/core/tensors"
	"github.com/gomlx/collectives/pkg/support/sets"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// GroupConfig holds the construction values of a ProcessGroup.
type GroupConfig struct {
	// Store shared by all ranks of the group, used to agree on values. It may be nil, in which case
	// CheckSequenceNumbers is not available.
	Store store.Store

	Rank, Size int
	Options    Options

	// Registry used to dispatch the collectives. If nil, NewRegistry() is used.
	Registry *Registry

	DebugLevel DebugLevel

	// BoundDevice, if set, must have an index.
	BoundDevice *devices.Device

	GroupName, GroupDesc string
}

// ProcessGroup is the entry point of the collectives for one rank of a fixed set of ranks.
//
// It holds one Backend per BackendType, and maps each device type to a BackendType: collectives are routed
// to the backend of the device type of their tensors, through the group's Registry.
//
// Backends must be registered (SetBackend) before any collective is issued: the routing tables are not
// locked. A group's rank and size never change: if membership changes, create a new group.
type ProcessGroup struct {
	rank, size  int
	id          string
	store       store.Store
	options     Options
	backendType BackendType
	registry    *Registry
	debugLevel  DebugLevel

	deviceTypes             sets.Set[devices.DeviceType]
	deviceTypeToBackendType map[devices.DeviceType]BackendType
	backendTypeToBackend    map[BackendType]Backend

	mu          sync.Mutex
	groupName   string
	groupDesc   string
	boundDevice *devices.Device

	seqCheckRound atomic.Uint64
	shutdownOnce  sync.Once
}

// NewProcessGroup creates a ProcessGroup without backends: register them with SetBackend.
func NewProcessGroup(config GroupConfig) (*ProcessGroup, error) {
	if config.Size <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "process group size must be > 0, got %d", config.Size)
	}
	if config.Rank < 0 || config.Rank >= config.Size {
		return nil, errors.Wrapf(ErrInvalidArgument, "rank %d out of range for process group of size %d",
			config.Rank, config.Size)
	}
	if config.BoundDevice != nil && !config.BoundDevice.HasIndex() {
		return nil, errors.Wrapf(ErrInvalidArgument, "bound device %s must have an explicit index", config.BoundDevice)
	}
	registry := config.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	pg := &ProcessGroup{
		rank:                    config.Rank,
		size:                    config.Size,
		id:                      uuid.NewString(),
		store:                   config.Store,
		options:                 config.Options,
		backendType:             BackendTypeFromName(config.Options.Backend),
		registry:                registry,
		debugLevel:              config.DebugLevel,
		deviceTypes:             sets.Make[devices.DeviceType](),
		deviceTypeToBackendType: make(map[devices.DeviceType]BackendType),
		backendTypeToBackend:    make(map[BackendType]Backend),
		groupName:               config.GroupName,
		groupDesc:               config.GroupDesc,
	}
	if config.BoundDevice != nil {
		pg.boundDevice = devices.Ptr(*config.BoundDevice)
	}
	if pg.debugLevel >= DebugInfo {
		klog.Infof("process group %s created: rank %d of %d, backend %q, debug level %s",
			pg, pg.rank, pg.size, pg.options.Backend, pg.debugLevel)
	} else {
		klog.V(1).Infof("process group %s created: rank %d of %d, backend %q", pg, pg.rank, pg.size, pg.options.Backend)
	}
	return pg, nil
}

// String implements fmt.Stringer: the group name, or its id if it has no name.
func (pg *ProcessGroup) String() string {
	if name := pg.GroupName(); name != "" {
		return name
	}
	return pg.id
}

// Rank of this process in the group.
func (pg *ProcessGroup) Rank() int { return pg.rank }

// Size is the number of ranks in the group.
func (pg *ProcessGroup) Size() int { return pg.size }

// ID is a unique identifier of the group instance.
func (pg *ProcessGroup) ID() string { return pg.id }

// Options given at construction.
func (pg *ProcessGroup) Options() Options { return pg.options }

// BackendName is the name of the group's default backend, as given in its Options.
func (pg *ProcessGroup) BackendName() string { return pg.options.Backend }

// BackendType of the group's default backend.
func (pg *ProcessGroup) BackendType() BackendType { return pg.backendType }

// DebugLevel of the group, given at construction.
func (pg *ProcessGroup) DebugLevel() DebugLevel { return pg.debugLevel }

// Store of the group, possibly nil.
func (pg *ProcessGroup) Store() store.Store { return pg.store }

// Registry used to dispatch the collectives.
func (pg *ProcessGroup) Registry() *Registry { return pg.registry }

// timeout returns the timeout for an op: the op's if set, otherwise the group's (or DefaultTimeout).
func (pg *ProcessGroup) timeout(timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	return resolveTimeout(pg.options.Timeout)
}

// SetBackend registers the backend of backendType, and maps deviceType to it.
//
// If a backend of backendType is already registered, deviceType becomes an alias of it, and the given
// backend must have exactly the same bound device, otherwise it fails with ErrInvariantViolation.
// Otherwise backend becomes the canonical instance for backendType, and it inherits the group's bound device
// and metadata.
//
// A nil backend only maps deviceType to backendType.
//
// Registration must be finished before any collective is issued.
func (pg *ProcessGroup) SetBackend(deviceType devices.DeviceType, backendType BackendType, backend Backend) error {
	if existing, found := pg.backendTypeToBackend[backendType]; found && backend != nil && existing != backend {
		if !devices.Same(existing.BoundDevice(), backend.BoundDevice()) {
			return errors.Wrapf(ErrInvariantViolation,
				"process group %s: backend %s for device type %s is bound to %s, but the registered one is bound to %s",
				pg, backendType, deviceType, fmtDevice(backend.BoundDevice()), fmtDevice(existing.BoundDevice()))
		}
	}
	pg.deviceTypes.Insert(deviceType)
	pg.deviceTypeToBackendType[deviceType] = backendType
	if backend == nil {
		return nil
	}
	if _, found := pg.backendTypeToBackend[backendType]; found {
		return nil
	}
	backend.SetBoundDevice(pg.BoundDevice())
	if name := pg.GroupName(); name != "" {
		backend.SetGroupName(name)
	}
	if desc := pg.GroupDesc(); desc != "" {
		backend.SetGroupDesc(desc)
	}
	pg.backendTypeToBackend[backendType] = backend
	klog.V(1).Infof("process group %s: registered backend %s (%s) for device type %s", pg, backendType, backend.Name(), deviceType)
	return nil
}

func fmtDevice(device *devices.Device) string {
	if device == nil {
		return "no device"
	}
	return device.String()
}

// GetBackendForDevice returns the backend registered for deviceType.
// It fails with ErrBackendNotFound if there is none.
func (pg *ProcessGroup) GetBackendForDevice(deviceType devices.DeviceType) (Backend, error) {
	backendType, found := pg.deviceTypeToBackendType[deviceType]
	if !found {
		return nil, errors.Wrapf(ErrBackendNotFound, "process group %s: no backend type associated with device type %s",
			pg, deviceType)
	}
	backend, found := pg.backendTypeToBackend[backendType]
	if !found {
		return nil, errors.Wrapf(ErrBackendNotFound, "process group %s: device type %s maps to backend %s, which is not registered",
			pg, deviceType, backendType)
	}
	return backend, nil
}

// GetBackend returns the backend of backendType. It fails with ErrBackendNotFound if there is none.
func (pg *ProcessGroup) GetBackend(backendType BackendType) (Backend, error) {
	backend, found := pg.backendTypeToBackend[backendType]
	if !found {
		return nil, errors.Wrapf(ErrBackendNotFound, "process group %s: no backend of type %s registered", pg, backendType)
	}
	return backend, nil
}

// GetDefaultBackend returns the backend of the group's own BackendType.
// It fails with ErrConfiguration if it was never registered.
func (pg *ProcessGroup) GetDefaultBackend() (Backend, error) {
	backend, found := pg.backendTypeToBackend[pg.backendType]
	if !found {
		return nil, errors.Wrapf(ErrConfiguration, "could not find the default backend type %s for process group %s",
			pg.backendType, pg)
	}
	return backend, nil
}

// BackendID returns the ID of the backend of backendType.
func (pg *ProcessGroup) BackendID(backendType BackendType) (string, error) {
	backend, err := pg.GetBackend(backendType)
	if err != nil {
		return "", err
	}
	return backend.ID(), nil
}

// HasBackends returns whether any backend is registered.
func (pg *ProcessGroup) HasBackends() bool {
	return len(pg.backendTypeToBackend) > 0
}

// DeviceTypes returns the sorted device types registered in the group.
func (pg *ProcessGroup) DeviceTypes() []devices.DeviceType {
	return sets.Sorted(pg.deviceTypes)
}

// backends returns the distinct registered backends.
func (pg *ProcessGroup) backends() []Backend {
	list := make([]Backend, 0, len(pg.backendTypeToBackend))
	for _, backendType := range BackendTypeValues() {
		if backend, found := pg.backendTypeToBackend[backendType]; found {
			list = append(list, backend)
		}
	}
	return list
}

// GroupName returns the group's name.
func (pg *ProcessGroup) GroupName() string {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	return pg.groupName
}

// SetGroupName sets the group's name, and the name of every registered backend.
func (pg *ProcessGroup) SetGroupName(name string) {
	pg.mu.Lock()
	pg.groupName = name
	pg.mu.Unlock()
	for _, backend := range pg.backends() {
		backend.SetGroupName(name)
	}
}

// GroupDesc returns the group's description.
func (pg *ProcessGroup) GroupDesc() string {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	return pg.groupDesc
}

// SetGroupDesc sets the group's description, and the description of every registered backend.
func (pg *ProcessGroup) SetGroupDesc(desc string) {
	pg.mu.Lock()
	pg.groupDesc = desc
	pg.mu.Unlock()
	for _, backend := range pg.backends() {
		backend.SetGroupDesc(desc)
	}
}

// EnableCollectivesTiming makes every registered backend record the active duration of its Works.
func (pg *ProcessGroup) EnableCollectivesTiming() {
	for _, backend := range pg.backends() {
		backend.EnableCollectivesTiming()
	}
}

// BoundDevice returns the device the group is bound to, or nil.
func (pg *ProcessGroup) BoundDevice() *devices.Device {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	if pg.boundDevice == nil {
		return nil
	}
	return devices.Ptr(*pg.boundDevice)
}

// SetBoundDevice binds the group, and its registered backends, to device. A nil device unbinds it.
// It fails with ErrInvalidArgument if device has no explicit index.
func (pg *ProcessGroup) SetBoundDevice(device *devices.Device) error {
	if device != nil && !device.HasIndex() {
		return errors.Wrapf(ErrInvalidArgument, "process group %s: bound device %s must have an explicit index", pg, device)
	}
	pg.mu.Lock()
	if device == nil {
		pg.boundDevice = nil
	} else {
		pg.boundDevice = devices.Ptr(*device)
	}
	pg.mu.Unlock()
	for _, backend := range pg.backends() {
		backend.SetBoundDevice(device)
	}
	return nil
}

// RegisterOnCompletionHook registers hook on the default backend. See BaseBackend.RegisterOnCompletionHook.
func (pg *ProcessGroup) RegisterOnCompletionHook(hook CompletionHook) error {
	backend, err := pg.GetDefaultBackend()
	if err != nil {
		return err
	}
	backend.RegisterOnCompletionHook(hook)
	return nil
}

// HasHooks returns whether the default backend has completion hooks. It is false if there is no default backend.
func (pg *ProcessGroup) HasHooks() bool {
	backend, err := pg.GetDefaultBackend()
	if err != nil {
		return false
	}
	return backend.HasHooks()
}

// WaitForPendingWorks blocks until every Work issued on the default backend before the call is completed.
func (pg *ProcessGroup) WaitForPendingWorks() error {
	backend, err := pg.GetDefaultBackend()
	if err != nil {
		return err
	}
	backend.WaitForPendingWorks()
	return nil
}

// StartCoalescing opens a batching window on the backend of deviceType.
func (pg *ProcessGroup) StartCoalescing(deviceType devices.DeviceType) error {
	backend, err := pg.GetBackendForDevice(deviceType)
	if err != nil {
		return err
	}
	return backend.StartCoalescing()
}

// EndCoalescing closes the batching window on the backend of deviceType, and returns the Work of the batch.
func (pg *ProcessGroup) EndCoalescing(deviceType devices.DeviceType) (*Work, error) {
	backend, err := pg.GetBackendForDevice(deviceType)
	if err != nil {
		return nil, err
	}
	return backend.EndCoalescing()
}

// Shutdown shuts down every registered backend, once.
func (pg *ProcessGroup) Shutdown() {
	pg.shutdownOnce.Do(func() {
		for _, backend := range pg.backends() {
			backend.Shutdown()
		}
		klog.V(1).Infof("process group %s (rank %d) shut down", pg, pg.rank)
	})
}

// dispatch sends the call through the registry.
func (pg *ProcessGroup) dispatch(call *OpCall) (*OpResult, error) {
	call.Group = pg
	if pg.debugLevel >= DebugDetail {
		klog.Infof("process group %s (rank %d): %s", pg, pg.rank, call)
	} else {
		klog.V(2).Infof("process group %s (rank %d): %s", pg, pg.rank, call)
	}
	return pg.registry.Dispatch(call)
}

func (pg *ProcessGroup) dispatchWork(call *OpCall) (*Work, error) {
	result, err := pg.dispatch(call)
	if err != nil {
		return nil, err
	}
	return result.Work, nil
}

// dispatchOutput is dispatchWork for the ops returning a possibly rewritten output tensor.
func (pg *ProcessGroup) dispatchOutput(call *OpCall, output *tensors.Tensor) (*tensors.Tensor, *Work, error) {
	result, err := pg.dispatch(call)
	if err != nil {
		return nil, nil, err
	}
	if len(result.Outputs) > 0 {
		output = result.Outputs[0]
	}
	return output, result.Work, nil
}

// Broadcast tensors[opts.RootTensor] of the root rank to all ranks, in-place.
func (pg *ProcessGroup) Broadcast(tensors []*tensors.Tensor, opts BroadcastOptions) (*Work, error) {
	return pg.dispatchWork(&OpCall{Name: OpNameBroadcast, Tensors: tensors,
		RootRank: opts.RootRank, RootTensor: opts.RootTensor, Timeout: pg.timeout(opts.Timeout), AsyncOp: opts.AsyncOp})
}

// Allreduce reduces tensors across all ranks, in-place.
func (pg *ProcessGroup) Allreduce(tensors []*tensors.Tensor, opts AllreduceOptions) (*Work, error) {
	return pg.dispatchWork(&OpCall{Name: OpNameAllreduce, Tensors: tensors,
		ReduceOp: opts.ReduceOp, Timeout: pg.timeout(opts.Timeout), SparseIndices: opts.SparseIndices})
}

// AllreduceCoalesced reduces a list of tensors across all ranks, in-place, as one operation.
func (pg *ProcessGroup) AllreduceCoalesced(tensors []*tensors.Tensor, opts AllreduceCoalescedOptions) (*Work, error) {
	return pg.dispatchWork(&OpCall{Name: OpNameAllreduceCoalesced, Tensors: tensors,
		ReduceOp: opts.ReduceOp, Timeout: pg.timeout(opts.Timeout)})
}

// Reduce tensors across all ranks into tensors[opts.RootTensor] of the root rank.
func (pg *ProcessGroup) Reduce(tensors []*tensors.Tensor, opts ReduceOptions) (*Work, error) {
	return pg.dispatchWork(&OpCall{Name: OpNameReduce, Tensors: tensors,
		ReduceOp: opts.ReduceOp, RootRank: opts.RootRank, RootTensor: opts.RootTensor, Timeout: pg.timeout(opts.Timeout)})
}

// Allgather gathers inputs[i] of every rank r into outputs[i][r].
func (pg *ProcessGroup) Allgather(outputs [][]*tensors.Tensor, inputs []*tensors.Tensor, opts AllgatherOptions) (*Work, error) {
	return pg.dispatchWork(&OpCall{Name: OpNameAllgather, Tensors: inputs, OutputLists: outputs,
		Timeout: pg.timeout(opts.Timeout), AsyncOp: opts.AsyncOp})
}

// AllgatherBase gathers input of every rank, in rank order, into the flat output tensor.
// It returns the output tensor, which a registry handler may have replaced.
func (pg *ProcessGroup) AllgatherBase(output, input *tensors.Tensor, opts AllgatherOptions) (*tensors.Tensor, *Work, error) {
	return pg.dispatchOutput(&OpCall{Name: OpNameAllgatherBase, Tensors: []*tensors.Tensor{input},
		Outputs: []*tensors.Tensor{output}, Timeout: pg.timeout(opts.Timeout), AsyncOp: opts.AsyncOp}, output)
}

// AllgatherCoalesced gathers a list of tensors as one operation: outputLists[r][i] receives inputs[i] of rank r.
func (pg *ProcessGroup) AllgatherCoalesced(outputLists [][]*tensors.Tensor, inputs []*tensors.Tensor, opts AllgatherOptions) (*Work, error) {
	return pg.dispatchWork(&OpCall{Name: OpNameAllgatherCoalesced, Tensors: inputs, OutputLists: outputLists,
		Timeout: pg.timeout(opts.Timeout), AsyncOp: opts.AsyncOp})
}

// AllgatherIntoTensorCoalesced runs one AllgatherBase per (outputs[i], inputs[i]) pair, as one operation.
func (pg *ProcessGroup) AllgatherIntoTensorCoalesced(outputs, inputs []*tensors.Tensor, opts AllgatherOptions) (*Work, error) {
	return pg.dispatchWork(&OpCall{Name: OpNameAllgatherIntoTensorCoalesced, Tensors: inputs, Outputs: outputs,
		Timeout: pg.timeout(opts.Timeout), AsyncOp: opts.AsyncOp})
}

// Gather collects inputs[0] of every rank r into outputs[0][r] of the root rank.
// Non-root ranks pass empty outputs.
func (pg *ProcessGroup) Gather(outputs [][]*tensors.Tensor, inputs []*tensors.Tensor, opts GatherOptions) (*Work, error) {
	return pg.dispatchWork(&OpCall{Name: OpNameGather, Tensors: inputs, OutputLists: outputs,
		RootRank: opts.RootRank, Timeout: pg.timeout(opts.Timeout)})
}

// Scatter sends inputs[0][r] of the root rank to outputs[0] of rank r.
// Non-root ranks pass empty inputs.
func (pg *ProcessGroup) Scatter(outputs []*tensors.Tensor, inputs [][]*tensors.Tensor, opts ScatterOptions) (*Work, error) {
	return pg.dispatchWork(&OpCall{Name: OpNameScatter, Tensors: outputs, InputLists: inputs,
		RootRank: opts.RootRank, Timeout: pg.timeout(opts.Timeout), AsyncOp: opts.AsyncOp})
}

// ReduceScatter reduces inputs[0][r] of every rank into outputs[0] of rank r.
func (pg *ProcessGroup) ReduceScatter(outputs []*tensors.Tensor, inputs [][]*tensors.Tensor, opts ReduceScatterOptions) (*Work, error) {
	return pg.dispatchWork(&OpCall{Name: OpNameReduceScatter, Tensors: outputs, InputLists: inputs,
		ReduceOp: opts.ReduceOp, Timeout: pg.timeout(opts.Timeout), AsyncOp: opts.AsyncOp})
}

// ReduceScatterBase reduces the flat input across ranks, and rank r receives its r-th chunk in output.
// It returns the output tensor, which a registry handler may have replaced.
func (pg *ProcessGroup) ReduceScatterBase(output, input *tensors.Tensor, opts ReduceScatterOptions) (*tensors.Tensor, *Work, error) {
	return pg.dispatchOutput(&OpCall{Name: OpNameReduceScatterBase, Tensors: []*tensors.Tensor{input},
		Outputs: []*tensors.Tensor{output}, ReduceOp: opts.ReduceOp, Timeout: pg.timeout(opts.Timeout),
		AsyncOp: opts.AsyncOp}, output)
}

// ReduceScatterTensorCoalesced runs one ReduceScatterBase per (outputs[i], inputs[i]) pair, as one operation.
func (pg *ProcessGroup) ReduceScatterTensorCoalesced(outputs, inputs []*tensors.Tensor, opts ReduceScatterOptions) (*Work, error) {
	return pg.dispatchWork(&OpCall{Name: OpNameReduceScatterTensorCoalesced, Tensors: inputs, Outputs: outputs,
		ReduceOp: opts.ReduceOp, Timeout: pg.timeout(opts.Timeout), AsyncOp: opts.AsyncOp})
}

// AlltoallBase splits input along axis 0 by inputSplitSizes (equal splits if empty), sends split r to rank r,
// and concatenates the received splits into output, sized by outputSplitSizes (equal if empty).
func (pg *ProcessGroup) AlltoallBase(output, input *tensors.Tensor, outputSplitSizes, inputSplitSizes []int, opts AllToAllOptions) (*Work, error) {
	return pg.dispatchWork(&OpCall{Name: OpNameAlltoallBase, Tensors: []*tensors.Tensor{input},
		Outputs: []*tensors.Tensor{output}, OutputSplitSizes: outputSplitSizes, InputSplitSizes: inputSplitSizes,
		Timeout: pg.timeout(opts.Timeout)})
}

// Alltoall sends inputs[r] to rank r, and receives outputs[r] from rank r.
func (pg *ProcessGroup) Alltoall(outputs, inputs []*tensors.Tensor, opts AllToAllOptions) (*Work, error) {
	return pg.dispatchWork(&OpCall{Name: OpNameAlltoall, Tensors: inputs, Outputs: outputs,
		Timeout: pg.timeout(opts.Timeout)})
}

// Send tensors to dstRank, matched by tag.
func (pg *ProcessGroup) Send(tensors []*tensors.Tensor, dstRank, tag int) (*Work, error) {
	return pg.dispatchWork(&OpCall{Name: OpNameSend, Tensors: tensors, DstRank: dstRank, Tag: tag,
		Timeout: pg.timeout(0)})
}

// Recv tensors from srcRank, matched by tag.
func (pg *ProcessGroup) Recv(tensors []*tensors.Tensor, srcRank, tag int) (*Work, error) {
	return pg.dispatchWork(&OpCall{Name: OpNameRecv, Tensors: tensors, SrcRank: srcRank, Tag: tag,
		Timeout: pg.timeout(0)})
}

// RecvAnysource receives tensors from any rank, matched by tag. The sender is given by Work.SourceRank.
func (pg *ProcessGroup) RecvAnysource(tensors []*tensors.Tensor, tag int) (*Work, error) {
	return pg.dispatchWork(&OpCall{Name: OpNameRecvAnysource, Tensors: tensors, SrcRank: -1, Tag: tag,
		Timeout: pg.timeout(0)})
}

// barrierDevice returns the device of the barrier's marker tensor.
func (pg *ProcessGroup) barrierDevice(opts BarrierOptions) devices.Device {
	if opts.Device != nil {
		return *opts.Device
	}
	device := pg.backendType.DefaultBarrierDevice()
	if bound := pg.BoundDevice(); bound != nil && bound.Type == device.Type {
		device = *bound
	}
	return device
}

// Barrier synchronizes all ranks. The Work completes once every rank reached the barrier.
//
// A 1-element marker tensor is dispatched on opts.Device if set, otherwise on CUDA if the group's backend
// is BackendNCCL, and on CPU otherwise.
func (pg *ProcessGroup) Barrier(opts BarrierOptions) (*Work, error) {
	device := pg.barrierDevice(opts)
	marker := tensors.Empty(dtypes.Uint8, device, 1)
	return pg.dispatchWork(&OpCall{Name: OpNameBarrier, Tensors: []*tensors.Tensor{marker},
		DeviceIDs: opts.DeviceIDs, Device: &device, Timeout: pg.timeout(opts.Timeout)})
}

// MonitoredBarrier is a blocking barrier that always runs on CPU: rank 0 waits for every rank to report
// within the timeout. If waitAllRanks, the error lists every rank that failed to report, instead of
// failing on the first one.
func (pg *ProcessGroup) MonitoredBarrier(opts BarrierOptions, waitAllRanks bool) error {
	device := devices.New(devices.CPU)
	marker := tensors.Empty(dtypes.Uint8, device, 0)
	work, err := pg.dispatchWork(&OpCall{Name: OpNameMonitoredBarrier, Tensors: []*tensors.Tensor{marker},
		DeviceIDs: opts.DeviceIDs, Device: &device, Timeout: pg.timeout(opts.Timeout), WaitAllRanks: waitAllRanks})
	if err != nil {
		return err
	}
	return work.Wait(0)
}

// Describe returns a one-line summary of the group, for logging.
func (pg *ProcessGroup) Describe() string {
	return fmt.Sprintf("ProcessGroup(name=%q, desc=%q, rank=%d, size=%d, backend=%s, devices=%v)",
		pg.GroupName(), pg.GroupDesc(), pg.rank, pg.size, pg.backendType, pg.DeviceTypes())
}
