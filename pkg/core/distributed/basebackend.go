package distributed

import (
	"context"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gomlx/collectives/pkg/core/devices"
	"github.com/gomlx/collectives/pkg/core/distributed/store"
	"github.com/gomlx/collectives/pkg/core/tensors"
	"github.com/gomlx/collectives/pkg/support/xsync"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// BackendConfig holds the values common to all backends.
type BackendConfig struct {
	// Name of the backend, e.g.: "gloo".
	Name string

	Rank, Size int

	// Store used to agree on sequence numbers. It should be namespaced to the group (see store.PrefixStore).
	// If nil, sequence numbers can't be set.
	Store store.Store

	// Timeout of the backend's operations whose options don't set one. If 0 it uses DefaultTimeout.
	Timeout time.Duration
}

// BaseBackend implements the parts of Backend that don't depend on the transport: Work tracking,
// completion hooks, sequence numbers, bound device and group metadata.
//
// The collectives all return ErrUnsupportedOperation, and coalescing is a no-op. Transports embed a
// *BaseBackend and override what they support.
type BaseBackend struct {
	name    string
	id      string
	rank    int
	size    int
	store   store.Store
	timeout time.Duration

	seq      atomic.Uint64
	seqRound atomic.Uint64
	timing   atomic.Bool

	mu          sync.Mutex
	groupName   string
	groupDesc   string
	boundDevice *devices.Device
	pending     map[*Work]struct{}
	isShutdown  bool

	hooksMu      sync.Mutex
	hooksCond    *sync.Cond
	hooks        []CompletionHook
	hookQueue    []*Work
	hooksRunning bool
	hooksClosed  bool
	hooksPending *xsync.DynamicWaitGroup
}

// NewBaseBackend creates a BaseBackend with the given configuration.
func NewBaseBackend(config BackendConfig) *BaseBackend {
	b := &BaseBackend{
		name:         config.Name,
		id:           uuid.NewString(),
		rank:         config.Rank,
		size:         config.Size,
		store:        config.Store,
		timeout:      resolveTimeout(config.Timeout),
		pending:      make(map[*Work]struct{}),
		hooksPending: xsync.NewDynamicWaitGroup(),
	}
	b.hooksCond = sync.NewCond(&b.hooksMu)
	return b
}

// Name implements Backend.
func (b *BaseBackend) Name() string { return b.name }

// ID implements Backend.
func (b *BaseBackend) ID() string { return b.id }

// Rank implements Backend.
func (b *BaseBackend) Rank() int { return b.rank }

// Size implements Backend.
func (b *BaseBackend) Size() int { return b.size }

// Store returns the backend's store, possibly nil.
func (b *BaseBackend) Store() store.Store { return b.store }

// Timeout returns timeout if positive, otherwise the backend's default timeout.
func (b *BaseBackend) Timeout(timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	return b.timeout
}

// NewWork creates a Work for an operation of this backend, with the next sequence number.
// The Work is tracked until it completes: see WaitForPendingWorks and RegisterOnCompletionHook.
//
// If the backend was shut down, the returned Work is already failed with ErrBackendShutdown.
func (b *BaseBackend) NewWork(opType OpType, timeout time.Duration) *Work {
	w := newWork(b.name, opType, b.seq.Add(1), b.Timeout(timeout), b.timing.Load())
	b.mu.Lock()
	if b.isShutdown {
		b.mu.Unlock()
		w.Finish(nil, errors.Wrapf(ErrBackendShutdown, "backend %q: %s issued after shutdown", b.name, opType))
		return w
	}
	b.pending[w] = struct{}{}
	b.mu.Unlock()
	w.OnTerminal(b.workCompleted)
	return w
}

// workCompleted is called once for every tracked Work, when it reaches a terminal state.
func (b *BaseBackend) workCompleted(w *Work) {
	b.mu.Lock()
	delete(b.pending, w)
	b.mu.Unlock()

	b.hooksMu.Lock()
	defer b.hooksMu.Unlock()
	if len(b.hooks) == 0 || b.hooksClosed || w.IsCancelled() {
		return
	}
	b.hookQueue = append(b.hookQueue, w)
	b.hooksPending.Add(1)
	b.hooksCond.Signal()
}

// RegisterOnCompletionHook implements Backend.
// Hooks are called in a separate goroutine, in the order the Works complete.
func (b *BaseBackend) RegisterOnCompletionHook(hook CompletionHook) {
	b.hooksMu.Lock()
	defer b.hooksMu.Unlock()
	b.hooks = append(b.hooks, hook)
	if !b.hooksRunning && !b.hooksClosed {
		b.hooksRunning = true
		go b.hooksLoop()
	}
}

// HasHooks implements Backend.
func (b *BaseBackend) HasHooks() bool {
	b.hooksMu.Lock()
	defer b.hooksMu.Unlock()
	return len(b.hooks) > 0
}

// FlushCompletionHooks waits until the hooks have been called for every Work completed so far.
func (b *BaseBackend) FlushCompletionHooks() {
	b.hooksPending.Wait()
}

func (b *BaseBackend) hooksLoop() {
	for {
		b.hooksMu.Lock()
		for len(b.hookQueue) == 0 && !b.hooksClosed {
			b.hooksCond.Wait()
		}
		if len(b.hookQueue) == 0 {
			b.hooksRunning = false
			b.hooksMu.Unlock()
			return
		}
		batch := b.hookQueue
		b.hookQueue = nil
		hooks := slices.Clone(b.hooks)
		b.hooksMu.Unlock()

		for _, w := range batch {
			if !w.IsCancelled() {
				info := w.Info()
				for _, hook := range hooks {
					b.callHook(hook, info)
				}
			}
			b.hooksPending.Done()
		}
	}
}

func (b *BaseBackend) callHook(hook CompletionHook, info *WorkInfo) {
	defer func() {
		if r := recover(); r != nil {
			klog.Warningf("backend %q: completion hook for %s (seq=%d) panicked: %v",
				b.name, info.OpType, info.SequenceNumber, r)
		}
	}()
	hook(info)
}

// WaitForPendingWorks implements Backend.
// Only the Works pending when it is called are waited for.
func (b *BaseBackend) WaitForPendingWorks() {
	b.mu.Lock()
	pending := slices.Collect(maps.Keys(b.pending))
	b.mu.Unlock()
	for _, w := range pending {
		_ = w.Wait(0)
	}
}

// NumPendingWorks returns the number of Works issued and not yet completed.
func (b *BaseBackend) NumPendingWorks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// sequenceNumberKey is the store key (prefixed by the backend name, suffixed by the agreement round)
// under which the ranks exchange the sequence number.
const sequenceNumberKey = "sequence_number"

// SetSequenceNumberForGroup implements Backend: rank 0 generates a random sequence number and hands it to
// the other ranks through the store. Every rank must call it the same number of times.
//
// Each non-zero rank publishes a fresh nonce under "<round>/join/<rank>", and rank 0 answers under
// "<round>/<nonce>". A value left in the store by an earlier job can't be mistaken for the current one:
// at worst rank 0 answers a stale nonce, and the rank waiting on its own nonce fails with a timeout.
// All keys are deleted once read.
func (b *BaseBackend) SetSequenceNumberForGroup() error {
	if b.store == nil {
		return errors.Wrapf(ErrConfiguration, "backend %q has no store to agree on sequence numbers", b.name)
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	roundKey := fmt.Sprintf("%s/%s/%d", b.name, sequenceNumberKey, b.seqRound.Add(1))
	if b.rank == 0 {
		seq := 1 + rand.Uint64N(1<<31)
		if err := b.publishSequenceNumber(ctx, roundKey, seq); err != nil {
			return err
		}
		b.seq.Store(seq)
		return nil
	}

	nonce := uuid.NewString()
	if err := b.store.Set(ctx, joinKey(roundKey, b.rank), []byte(nonce)); err != nil {
		return errors.WithMessagef(err, "backend %q (rank %d): failed to join sequence number agreement", b.name, b.rank)
	}
	answerKey := roundKey + "/" + nonce
	value, err := b.store.Get(ctx, answerKey)
	if err != nil {
		return errors.WithMessagef(err, "backend %q (rank %d): failed to read sequence number", b.name, b.rank)
	}
	if _, err := b.store.DeleteKey(ctx, answerKey); err != nil {
		klog.Warningf("backend %q (rank %d): failed to delete %q: %+v", b.name, b.rank, answerKey, err)
	}
	seq, err := strconv.ParseUint(string(value), 10, 64)
	if err != nil {
		return errors.Wrapf(err, "backend %q (rank %d): invalid sequence number %q in store", b.name, b.rank, value)
	}
	b.seq.Store(seq)
	return nil
}

func joinKey(roundKey string, rank int) string {
	return fmt.Sprintf("%s/join/%d", roundKey, rank)
}

// publishSequenceNumber answers every other rank's join request with seq.
func (b *BaseBackend) publishSequenceNumber(ctx context.Context, roundKey string, seq uint64) error {
	value := []byte(strconv.FormatUint(seq, 10))
	for rank := 1; rank < b.size; rank++ {
		key := joinKey(roundKey, rank)
		nonce, err := b.store.Get(ctx, key)
		if err != nil {
			return errors.WithMessagef(err, "backend %q: rank %d didn't join sequence number agreement", b.name, rank)
		}
		if _, err := b.store.DeleteKey(ctx, key); err != nil {
			klog.Warningf("backend %q: failed to delete %q: %+v", b.name, key, err)
		}
		if err := b.store.Set(ctx, roundKey+"/"+string(nonce), value); err != nil {
			return errors.WithMessagef(err, "backend %q: failed to publish sequence number to rank %d", b.name, rank)
		}
	}
	return nil
}

// GetSequenceNumberForGroup implements Backend. It returns the sequence number of the last issued operation.
func (b *BaseBackend) GetSequenceNumberForGroup() uint64 {
	return b.seq.Load()
}

// BoundDevice implements Backend.
func (b *BaseBackend) BoundDevice() *devices.Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.boundDevice == nil {
		return nil
	}
	return devices.Ptr(*b.boundDevice)
}

// SetBoundDevice implements Backend.
func (b *BaseBackend) SetBoundDevice(device *devices.Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if device == nil {
		b.boundDevice = nil
		return
	}
	b.boundDevice = devices.Ptr(*device)
}

// GroupName implements Backend.
func (b *BaseBackend) GroupName() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.groupName
}

// SetGroupName implements Backend.
func (b *BaseBackend) SetGroupName(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.groupName = name
}

// GroupDesc implements Backend.
func (b *BaseBackend) GroupDesc() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.groupDesc
}

// SetGroupDesc implements Backend.
func (b *BaseBackend) SetGroupDesc(desc string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.groupDesc = desc
}

// EnableCollectivesTiming implements Backend: Works issued afterward record their active duration.
func (b *BaseBackend) EnableCollectivesTiming() {
	b.timing.Store(true)
}

// IsShutdown returns whether Shutdown was called.
func (b *BaseBackend) IsShutdown() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isShutdown
}

// Shutdown implements Backend. It is idempotent.
func (b *BaseBackend) Shutdown() {
	b.mu.Lock()
	if b.isShutdown {
		b.mu.Unlock()
		return
	}
	b.isShutdown = true
	pending := slices.Collect(maps.Keys(b.pending))
	b.mu.Unlock()

	for _, w := range pending {
		w.Finish(nil, errors.Wrapf(ErrBackendShutdown, "backend %q shut down with %s (seq=%d) pending",
			b.name, w.OpType(), w.SequenceNumber()))
	}
	b.hooksMu.Lock()
	b.hooksClosed = true
	b.hooksCond.Broadcast()
	b.hooksMu.Unlock()
	klog.V(1).Infof("backend %q (rank %d) shut down, %d pending works failed", b.name, b.rank, len(pending))
}

// Unsupported returns the error of an operation the backend doesn't support.
func (b *BaseBackend) Unsupported(opType OpType) error {
	return errors.Wrapf(ErrUnsupportedOperation, "backend %q does not support %s", b.name, opType)
}

// Broadcast implements Backend.
func (b *BaseBackend) Broadcast([]*tensors.Tensor, BroadcastOptions) (*Work, error) {
	return nil, b.Unsupported(OpBroadcast)
}

// Allreduce implements Backend.
func (b *BaseBackend) Allreduce([]*tensors.Tensor, AllreduceOptions) (*Work, error) {
	return nil, b.Unsupported(OpAllreduce)
}

// AllreduceCoalesced implements Backend.
func (b *BaseBackend) AllreduceCoalesced([]*tensors.Tensor, AllreduceCoalescedOptions) (*Work, error) {
	return nil, b.Unsupported(OpAllreduceCoalesced)
}

// Reduce implements Backend.
func (b *BaseBackend) Reduce([]*tensors.Tensor, ReduceOptions) (*Work, error) {
	return nil, b.Unsupported(OpReduce)
}

// Allgather implements Backend.
func (b *BaseBackend) Allgather([][]*tensors.Tensor, []*tensors.Tensor, AllgatherOptions) (*Work, error) {
	return nil, b.Unsupported(OpAllgather)
}

// AllgatherBase implements Backend.
func (b *BaseBackend) AllgatherBase(_, _ *tensors.Tensor, _ AllgatherOptions) (*Work, error) {
	return nil, b.Unsupported(OpAllgatherBase)
}

// AllgatherCoalesced implements Backend.
func (b *BaseBackend) AllgatherCoalesced([][]*tensors.Tensor, []*tensors.Tensor, AllgatherOptions) (*Work, error) {
	return nil, b.Unsupported(OpAllgatherCoalesced)
}

// AllgatherIntoTensorCoalesced implements Backend.
func (b *BaseBackend) AllgatherIntoTensorCoalesced(_, _ []*tensors.Tensor, _ AllgatherOptions) (*Work, error) {
	return nil, b.Unsupported(OpAllgatherIntoTensorCoalesced)
}

// Gather implements Backend.
func (b *BaseBackend) Gather([][]*tensors.Tensor, []*tensors.Tensor, GatherOptions) (*Work, error) {
	return nil, b.Unsupported(OpGather)
}

// Scatter implements Backend.
func (b *BaseBackend) Scatter([]*tensors.Tensor, [][]*tensors.Tensor, ScatterOptions) (*Work, error) {
	return nil, b.Unsupported(OpScatter)
}

// ReduceScatter implements Backend.
func (b *BaseBackend) ReduceScatter([]*tensors.Tensor, [][]*tensors.Tensor, ReduceScatterOptions) (*Work, error) {
	return nil, b.Unsupported(OpReduceScatter)
}

// ReduceScatterBase implements Backend.
func (b *BaseBackend) ReduceScatterBase(_, _ *tensors.Tensor, _ ReduceScatterOptions) (*Work, error) {
	return nil, b.Unsupported(OpReduceScatterBase)
}

// ReduceScatterTensorCoalesced implements Backend.
func (b *BaseBackend) ReduceScatterTensorCoalesced(_, _ []*tensors.Tensor, _ ReduceScatterOptions) (*Work, error) {
	return nil, b.Unsupported(OpReduceScatterTensorCoalesced)
}

// AlltoallBase implements Backend.
func (b *BaseBackend) AlltoallBase(_, _ *tensors.Tensor, _, _ []int, _ AllToAllOptions) (*Work, error) {
	return nil, b.Unsupported(OpAlltoallBase)
}

// Alltoall implements Backend.
func (b *BaseBackend) Alltoall(_, _ []*tensors.Tensor, _ AllToAllOptions) (*Work, error) {
	return nil, b.Unsupported(OpAlltoall)
}

// MonitoredBarrier implements Backend.
func (b *BaseBackend) MonitoredBarrier(BarrierOptions, bool) error {
	return b.Unsupported(OpMonitoredBarrier)
}

// Send implements Backend.
func (b *BaseBackend) Send([]*tensors.Tensor, int, int) (*Work, error) {
	return nil, b.Unsupported(OpSend)
}

// Recv implements Backend.
func (b *BaseBackend) Recv([]*tensors.Tensor, int, int) (*Work, error) {
	return nil, b.Unsupported(OpRecv)
}

// RecvAnysource implements Backend.
func (b *BaseBackend) RecvAnysource([]*tensors.Tensor, int) (*Work, error) {
	return nil, b.Unsupported(OpRecvAnysource)
}

// Barrier implements Backend.
func (b *BaseBackend) Barrier(BarrierOptions) (*Work, error) {
	return nil, b.Unsupported(OpBarrier)
}

// StartCoalescing implements Backend. It is a no-op.
func (b *BaseBackend) StartCoalescing() error {
	return nil
}

// EndCoalescing implements Backend. It returns an already completed Work.
func (b *BaseBackend) EndCoalescing() (*Work, error) {
	w := b.NewWork(OpCoalesced, 0)
	w.Finish(nil, nil)
	return w, nil
}

// Assert BaseBackend implements Backend.
var _ Backend = (*BaseBackend)(nil)
