package distributed

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/gomlx/collectives/pkg/core/devices"
	"github.com/gomlx/collectives/pkg/core/tensors"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Stable names of the ops dispatched by ProcessGroup through its Registry.
const (
	OpNameBroadcast                    = "distributed::broadcast_"
	OpNameAllreduce                    = "distributed::allreduce_"
	OpNameAllreduceCoalesced           = "distributed::allreduce_coalesced_"
	OpNameReduce                       = "distributed::reduce_"
	OpNameAllgather                    = "distributed::allgather_"
	OpNameAllgatherBase                = "distributed::_allgather_base_"
	OpNameAllgatherCoalesced           = "distributed::allgather_coalesced_"
	OpNameAllgatherIntoTensorCoalesced = "distributed::allgather_into_tensor_coalesced_"
	OpNameGather                       = "distributed::gather_"
	OpNameScatter                      = "distributed::scatter_"
	OpNameReduceScatter                = "distributed::reduce_scatter_"
	OpNameReduceScatterBase            = "distributed::_reduce_scatter_base_"
	OpNameReduceScatterTensorCoalesced = "distributed::reduce_scatter_tensor_coalesced_"
	OpNameAlltoallBase                 = "distributed::alltoall_base_"
	OpNameAlltoall                     = "distributed::alltoall_"
	OpNameMonitoredBarrier             = "distributed::monitored_barrier_"
	OpNameSend                         = "distributed::send"
	OpNameRecv                         = "distributed::recv_"
	OpNameRecvAnysource                = "distributed::recv_any_source_"
	OpNameBarrier                      = "distributed::barrier"
)

// OpCall holds the arguments of one dispatched op: the tensors, the group that issued it and the
// flattened option fields. Which fields are used depends on the op.
type OpCall struct {
	// Name of the op, one of the OpName* constants.
	Name string

	// Group that issued the op.
	Group *ProcessGroup

	// Tensors are the input (or in-place) tensors.
	Tensors []*tensors.Tensor

	// Outputs are the output tensors of the single-output-per-input ops (e.g. AllgatherBase, Alltoall).
	Outputs []*tensors.Tensor

	// OutputLists are the per-rank outputs of Allgather, AllgatherCoalesced and Gather.
	OutputLists [][]*tensors.Tensor

	// InputLists are the per-rank inputs of Scatter and ReduceScatter.
	InputLists [][]*tensors.Tensor

	OutputSplitSizes, InputSplitSizes []int

	RootRank   int
	RootTensor int
	ReduceOp   ReduceOp
	Timeout    time.Duration
	AsyncOp    bool
	DeviceIDs  []int
	Device     *devices.Device

	SparseIndices []int

	// SrcRank and DstRank of point-to-point ops, and their Tag.
	SrcRank, DstRank, Tag int

	WaitAllRanks bool
}

// OpResult is what an OpHandler returns: the Work of the op and, for the ops whose outputs may be rewritten
// by the handler, the output tensors.
type OpResult struct {
	Work    *Work
	Outputs []*tensors.Tensor
}

// OpHandler executes a dispatched op.
type OpHandler func(call *OpCall) (*OpResult, error)

// Interceptor wraps the handler of the op name: it is given the next handler and returns the one to use
// instead. Interceptors can instrument or override ops without the ProcessGroup knowing about them.
type Interceptor func(name string, next OpHandler) OpHandler

// Registry maps op names to their handlers. It is given to a ProcessGroup at construction.
//
// It is safe for concurrent use, but handlers and interceptors should be registered before issuing ops.
type Registry struct {
	mu           sync.RWMutex
	handlers     map[string]OpHandler
	interceptors []Interceptor
}

// NewEmptyRegistry returns a Registry without any handlers.
func NewEmptyRegistry() *Registry {
	return &Registry{handlers: make(map[string]OpHandler)}
}

// NewRegistry returns a Registry with the default handlers: they route each op to the group's backend for
// the device type of the op's tensors.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	for name, handler := range defaultHandlers {
		r.Register(name, handler)
	}
	return r
}

// Register the handler for the op name, replacing any previous one.
func (r *Registry) Register(name string, handler OpHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Intercept adds an interceptor wrapping all handlers. The last interceptor added is the outermost one.
func (r *Registry) Intercept(interceptor Interceptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interceptors = append(r.interceptors, interceptor)
}

// Names returns the sorted names of the registered ops.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.handlers))
}

// Lookup returns the handler for the op name, wrapped by the interceptors.
// It fails with ErrUnsupportedOperation if no handler is registered.
func (r *Registry) Lookup(name string) (OpHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, found := r.handlers[name]
	if !found {
		return nil, errors.Wrapf(ErrUnsupportedOperation, "no handler registered for op %q", name)
	}
	for _, interceptor := range r.interceptors {
		handler = interceptor(name, handler)
	}
	return handler, nil
}

// Dispatch looks up the handler of call.Name and calls it. A panicking handler is reported as an error.
func (r *Registry) Dispatch(call *OpCall) (result *OpResult, err error) {
	handler, err := r.Lookup(call.Name)
	if err != nil {
		return nil, err
	}
	exception := exceptions.Try(func() {
		result, err = handler(call)
	})
	if exception != nil {
		if exceptionErr, ok := exception.(error); ok {
			return nil, errors.WithMessagef(exceptionErr, "handler for op %q panicked", call.Name)
		}
		return nil, errors.Errorf("handler for op %q panicked: %v", call.Name, exception)
	}
	if err != nil {
		return nil, err
	}
	if result == nil || result.Work == nil {
		return nil, errors.Errorf("handler for op %q returned no Work", call.Name)
	}
	return result, nil
}

// callDeviceType returns the single device type of all the tensors in call.
// It fails with ErrInvalidArgument if there are no tensors, or if they are on different device types.
func callDeviceType(call *OpCall) (devices.DeviceType, error) {
	var (
		deviceType devices.DeviceType
		first      *tensors.Tensor
	)
	check := func(t *tensors.Tensor) error {
		if t == nil {
			return errors.Wrapf(ErrInvalidArgument, "op %q: nil tensor", call.Name)
		}
		if first == nil {
			first = t
			deviceType = t.Device().Type
			return nil
		}
		if t.Device().Type != deviceType {
			return errors.Wrapf(ErrInvalidArgument, "op %q: tensors on different device types, %s and %s",
				call.Name, first, t)
		}
		return nil
	}
	lists := [][]*tensors.Tensor{call.Tensors, call.Outputs}
	lists = append(lists, call.OutputLists...)
	lists = append(lists, call.InputLists...)
	for _, list := range lists {
		for _, t := range list {
			if err := check(t); err != nil {
				return 0, err
			}
		}
	}
	if first == nil {
		return 0, errors.Wrapf(ErrInvalidArgument, "op %q: no tensors given", call.Name)
	}
	return deviceType, nil
}

// routeCall returns the backend of the group for the device type of call's tensors.
func routeCall(call *OpCall) (Backend, error) {
	if call.Group == nil {
		return nil, errors.Wrapf(ErrInvalidArgument, "op %q: no process group", call.Name)
	}
	deviceType, err := callDeviceType(call)
	if err != nil {
		return nil, err
	}
	return call.Group.GetBackendForDevice(deviceType)
}

// routed builds a default handler: it routes the call to a backend and calls issue on it.
func routed(issue func(backend Backend, call *OpCall) (*OpResult, error)) OpHandler {
	return func(call *OpCall) (*OpResult, error) {
		backend, err := routeCall(call)
		if err != nil {
			return nil, err
		}
		return issue(backend, call)
	}
}

// workResult adapts the (*Work, error) returned by backends.
func workResult(work *Work, err error) (*OpResult, error) {
	if err != nil {
		return nil, err
	}
	return &OpResult{Work: work}, nil
}

func outputsResult(outputs []*tensors.Tensor) func(work *Work, err error) (*OpResult, error) {
	return func(work *Work, err error) (*OpResult, error) {
		if err != nil {
			return nil, err
		}
		return &OpResult{Work: work, Outputs: outputs}, nil
	}
}

// single returns the only tensor of list, or an ErrInvalidArgument.
func single(call *OpCall, what string, list []*tensors.Tensor) (*tensors.Tensor, error) {
	if len(list) != 1 {
		return nil, errors.Wrapf(ErrInvalidArgument, "op %q requires exactly one %s tensor, got %d", call.Name, what, len(list))
	}
	return list[0], nil
}

var defaultHandlers = map[string]OpHandler{
	OpNameBroadcast: routed(func(b Backend, c *OpCall) (*OpResult, error) {
		return workResult(b.Broadcast(c.Tensors, BroadcastOptions{
			RootRank: c.RootRank, RootTensor: c.RootTensor, Timeout: c.Timeout, AsyncOp: c.AsyncOp}))
	}),
	OpNameAllreduce: routed(func(b Backend, c *OpCall) (*OpResult, error) {
		return workResult(b.Allreduce(c.Tensors, AllreduceOptions{
			ReduceOp: c.ReduceOp, Timeout: c.Timeout, SparseIndices: c.SparseIndices}))
	}),
	OpNameAllreduceCoalesced: routed(func(b Backend, c *OpCall) (*OpResult, error) {
		return workResult(b.AllreduceCoalesced(c.Tensors, AllreduceCoalescedOptions{ReduceOp: c.ReduceOp, Timeout: c.Timeout}))
	}),
	OpNameReduce: routed(func(b Backend, c *OpCall) (*OpResult, error) {
		return workResult(b.Reduce(c.Tensors, ReduceOptions{
			ReduceOp: c.ReduceOp, RootRank: c.RootRank, RootTensor: c.RootTensor, Timeout: c.Timeout}))
	}),
	OpNameAllgather: routed(func(b Backend, c *OpCall) (*OpResult, error) {
		return workResult(b.Allgather(c.OutputLists, c.Tensors, AllgatherOptions{Timeout: c.Timeout, AsyncOp: c.AsyncOp}))
	}),
	OpNameAllgatherBase: routed(func(b Backend, c *OpCall) (*OpResult, error) {
		output, err := single(c, "output", c.Outputs)
		if err != nil {
			return nil, err
		}
		input, err := single(c, "input", c.Tensors)
		if err != nil {
			return nil, err
		}
		return outputsResult(c.Outputs)(b.AllgatherBase(output, input, AllgatherOptions{Timeout: c.Timeout, AsyncOp: c.AsyncOp}))
	}),
	OpNameAllgatherCoalesced: routed(func(b Backend, c *OpCall) (*OpResult, error) {
		return workResult(b.AllgatherCoalesced(c.OutputLists, c.Tensors, AllgatherOptions{Timeout: c.Timeout, AsyncOp: c.AsyncOp}))
	}),
	OpNameAllgatherIntoTensorCoalesced: routed(func(b Backend, c *OpCall) (*OpResult, error) {
		return outputsResult(c.Outputs)(b.AllgatherIntoTensorCoalesced(c.Outputs, c.Tensors,
			AllgatherOptions{Timeout: c.Timeout, AsyncOp: c.AsyncOp}))
	}),
	OpNameGather: routed(func(b Backend, c *OpCall) (*OpResult, error) {
		return workResult(b.Gather(c.OutputLists, c.Tensors, GatherOptions{RootRank: c.RootRank, Timeout: c.Timeout}))
	}),
	OpNameScatter: routed(func(b Backend, c *OpCall) (*OpResult, error) {
		return workResult(b.Scatter(c.Tensors, c.InputLists, ScatterOptions{
			RootRank: c.RootRank, Timeout: c.Timeout, AsyncOp: c.AsyncOp}))
	}),
	OpNameReduceScatter: routed(func(b Backend, c *OpCall) (*OpResult, error) {
		return workResult(b.ReduceScatter(c.Tensors, c.InputLists, ReduceScatterOptions{
			ReduceOp: c.ReduceOp, Timeout: c.Timeout, AsyncOp: c.AsyncOp}))
	}),
	OpNameReduceScatterBase: routed(func(b Backend, c *OpCall) (*OpResult, error) {
		output, err := single(c, "output", c.Outputs)
		if err != nil {
			return nil, err
		}
		input, err := single(c, "input", c.Tensors)
		if err != nil {
			return nil, err
		}
		return outputsResult(c.Outputs)(b.ReduceScatterBase(output, input, ReduceScatterOptions{
			ReduceOp: c.ReduceOp, Timeout: c.Timeout, AsyncOp: c.AsyncOp}))
	}),
	OpNameReduceScatterTensorCoalesced: routed(func(b Backend, c *OpCall) (*OpResult, error) {
		return outputsResult(c.Outputs)(b.ReduceScatterTensorCoalesced(c.Outputs, c.Tensors, ReduceScatterOptions{
			ReduceOp: c.ReduceOp, Timeout: c.Timeout, AsyncOp: c.AsyncOp}))
	}),
	OpNameAlltoallBase: routed(func(b Backend, c *OpCall) (*OpResult, error) {
		output, err := single(c, "output", c.Outputs)
		if err != nil {
			return nil, err
		}
		input, err := single(c, "input", c.Tensors)
		if err != nil {
			return nil, err
		}
		return outputsResult(c.Outputs)(b.AlltoallBase(output, input, c.OutputSplitSizes, c.InputSplitSizes,
			AllToAllOptions{Timeout: c.Timeout}))
	}),
	OpNameAlltoall: routed(func(b Backend, c *OpCall) (*OpResult, error) {
		return outputsResult(c.Outputs)(b.Alltoall(c.Outputs, c.Tensors, AllToAllOptions{Timeout: c.Timeout}))
	}),
	OpNameMonitoredBarrier: routed(func(b Backend, c *OpCall) (*OpResult, error) {
		err := b.MonitoredBarrier(BarrierOptions{DeviceIDs: c.DeviceIDs, Timeout: c.Timeout, Device: c.Device}, c.WaitAllRanks)
		if errors.Is(err, ErrUnsupportedOperation) {
			return nil, err
		}
		return &OpResult{Work: NewCompletedWork(OpMonitoredBarrier, nil, err)}, nil
	}),
	OpNameSend: routed(func(b Backend, c *OpCall) (*OpResult, error) {
		return workResult(b.Send(c.Tensors, c.DstRank, c.Tag))
	}),
	OpNameRecv: routed(func(b Backend, c *OpCall) (*OpResult, error) {
		return workResult(b.Recv(c.Tensors, c.SrcRank, c.Tag))
	}),
	OpNameRecvAnysource: routed(func(b Backend, c *OpCall) (*OpResult, error) {
		return workResult(b.RecvAnysource(c.Tensors, c.Tag))
	}),
	OpNameBarrier: routed(func(b Backend, c *OpCall) (*OpResult, error) {
		return workResult(b.Barrier(BarrierOptions{DeviceIDs: c.DeviceIDs, Timeout: c.Timeout, Device: c.Device}))
	}),
}

// String implements fmt.Stringer, for logging.
func (c *OpCall) String() string {
	return fmt.Sprintf("%s(%d tensors, root=%d, op=%s, timeout=%s)", c.Name, len(c.Tensors), c.RootRank, c.ReduceOp, c.Timeout)
}
