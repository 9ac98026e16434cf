// Package local implements a distributed.Backend connecting ranks that live in the same process, through
// a Fabric of in-memory mailboxes.
//
// It emulates the behavior of the backend kinds (BackendGloo by default): e.g. only BackendNCCL kinds batch
// the operations issued inside a coalescing window. It is used to test code built on process groups, and
// by the launcher to create whole worlds in one process.
//
// Each Backend runs its collectives in issue order, in a progress goroutine, and fans out the per-peer
// transfers of one operation in a workerspool.Pool. Point-to-point operations don't wait for the
// collectives: sends are posted when issued, and each receive waits for its message in its own goroutine.
package local

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gomlx/collectives/internal/workerspool"
	"github.com/gomlx/collectives/pkg/core/distributed"
	"github.com/gomlx/collectives/pkg/core/distributed/store"
	"github.com/gomlx/collectives/pkg/core/tensors"
	"github.com/gomlx/collectives/pkg/support/xsync"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Config of a local Backend.
type Config struct {
	// Kind of backend emulated, and the backend's name. BackendGloo if left undefined.
	Kind distributed.BackendType

	// Timeout of the operations whose options don't set one. If 0 it uses distributed.DefaultTimeout.
	Timeout time.Duration

	// MaxParallelism of the per-peer transfers of one operation: 0 uses the world size, and a negative
	// value means unlimited.
	MaxParallelism int
}

// Backend implements distributed.Backend over a Fabric.
type Backend struct {
	*distributed.BaseBackend

	fabric *Fabric
	kind   distributed.BackendType
	pool   *workerspool.Pool

	queueMu      sync.Mutex
	queueCond    *sync.Cond
	queue        []*job
	queueClosed  bool
	progressDone *xsync.Latch

	// collectiveIndex is the index of the next collective: ranks match their messages by it.
	// Only accessed by the progress goroutine.
	collectiveIndex uint64

	coalesceMu sync.Mutex
	coalescing bool
	coalesced  []*job

	// lanes holds, for each (source, tag) of the pending receives, the channel closed when the last one
	// issued completes.
	lanesMu   sync.Mutex
	lanes     map[string]chan struct{}
	receivers *xsync.DynamicWaitGroup
}

var _ distributed.Backend = (*Backend)(nil)

// runFn executes an operation. channel is the unique fabric channel of the operation if it is a collective.
type runFn func(ctx context.Context, channel string, w *distributed.Work) ([]*tensors.Tensor, error)

// job is one operation, or a batch of coalesced operations.
type job struct {
	work       *distributed.Work
	collective bool
	run        runFn
	batch      []*job

	// lane of a receive: receives of the same lane are matched to messages in issue order.
	lane string
}

// New creates the backend of rank connected to fabric. The store (possibly nil) is used to agree on
// sequence numbers.
func New(fabric *Fabric, rank int, s store.Store, config Config) (*Backend, error) {
	if rank < 0 || rank >= fabric.Size() {
		return nil, errors.Wrapf(distributed.ErrInvalidArgument, "rank %d out of range for a fabric of size %d",
			rank, fabric.Size())
	}
	kind := config.Kind
	if kind == distributed.BackendUndefined {
		kind = distributed.BackendGloo
	}
	parallelism := config.MaxParallelism
	if parallelism == 0 {
		parallelism = fabric.Size()
	}
	b := &Backend{
		BaseBackend: distributed.NewBaseBackend(distributed.BackendConfig{
			Name:    kind.String(),
			Rank:    rank,
			Size:    fabric.Size(),
			Store:   s,
			Timeout: config.Timeout,
		}),
		fabric:       fabric,
		kind:         kind,
		pool:         workerspool.NewWithParallelism(parallelism),
		progressDone: xsync.NewLatch(),
		lanes:        make(map[string]chan struct{}),
		receivers:    xsync.NewDynamicWaitGroup(),
	}
	b.queueCond = sync.NewCond(&b.queueMu)
	go b.progressLoop()
	klog.V(1).Infof("local backend %s created for rank %d of %d", kind, rank, fabric.Size())
	return b, nil
}

// Kind of backend emulated.
func (b *Backend) Kind() distributed.BackendType { return b.kind }

// Fabric the backend is connected to.
func (b *Backend) Fabric() *Fabric { return b.fabric }

// issue creates the Work of an operation and queues it, or holds it in the coalescing window.
// Non-collective operations are not queued: see execute.
func (b *Backend) issue(opType distributed.OpType, timeout time.Duration, collective bool, run runFn) *distributed.Work {
	return b.issueJob(&job{collective: collective, run: run}, opType, timeout)
}

// issueReceive is like issue for a receive on lane.
func (b *Backend) issueReceive(opType distributed.OpType, lane string, run runFn) *distributed.Work {
	return b.issueJob(&job{run: run, lane: lane}, opType, 0)
}

func (b *Backend) issueJob(j *job, opType distributed.OpType, timeout time.Duration) *distributed.Work {
	w := b.NewWork(opType, timeout)
	if w.IsCompleted() {
		return w
	}
	j.work = w
	b.coalesceMu.Lock()
	if b.coalescing {
		b.coalesced = append(b.coalesced, j)
		b.coalesceMu.Unlock()
		return w
	}
	b.coalesceMu.Unlock()
	if j.collective {
		b.enqueue(j)
	} else {
		b.execute(j)
	}
	return w
}

func (b *Backend) enqueue(j *job) {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	if b.queueClosed {
		j.work.Finish(nil, errors.Wrapf(distributed.ErrBackendShutdown, "backend %q: %s issued after shutdown",
			b.Name(), j.work.OpType()))
		return
	}
	b.queue = append(b.queue, j)
	b.queueCond.Signal()
}

func (b *Backend) progressLoop() {
	defer b.progressDone.Trigger()
	for {
		b.queueMu.Lock()
		for len(b.queue) == 0 && !b.queueClosed {
			b.queueCond.Wait()
		}
		if len(b.queue) == 0 {
			b.queueMu.Unlock()
			return
		}
		j := b.queue[0]
		b.queue = b.queue[1:]
		b.queueMu.Unlock()
		b.execute(j)
	}
}

// workContext returns a context cancelled when w reaches a terminal state (e.g. timed out).
func workContext(w *distributed.Work) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-w.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// execute runs the job and completes its Work. Receives are handed to their lane and execute returns
// without waiting for them, everything else runs in the calling goroutine.
func (b *Backend) execute(j *job) {
	if j.lane != "" {
		b.receiveInLane(j)
		return
	}
	b.run(j)
}

// receiveInLane runs the receive j in its own goroutine, once the receive issued before it on the same
// lane has completed.
func (b *Backend) receiveInLane(j *job) {
	done := make(chan struct{})
	b.lanesMu.Lock()
	prev := b.lanes[j.lane]
	b.lanes[j.lane] = done
	b.lanesMu.Unlock()
	b.receivers.Add(1)
	go func() {
		defer b.receivers.Done()
		defer close(done)
		defer func() {
			b.lanesMu.Lock()
			if b.lanes[j.lane] == done {
				delete(b.lanes, j.lane)
			}
			b.lanesMu.Unlock()
		}()
		if prev != nil {
			<-prev
		}
		b.run(j)
	}()
}

// run executes the job in the calling goroutine.
//
// A collective whose Work is already terminal (e.g. timed out while queued) still takes its collective
// index, so the indices of all ranks stay in step, but its transfers stop as soon as the Work is terminal.
func (b *Backend) run(j *job) {
	if b.IsShutdown() {
		return
	}
	j.work.Start()
	if j.batch != nil {
		for _, item := range j.batch {
			b.execute(item)
		}
		var firstErr error
		for _, item := range j.batch {
			<-item.work.Done()
			if err := item.work.Exception(); err != nil && firstErr == nil {
				firstErr = errors.WithMessagef(err, "coalesced %s (seq=%d) failed", item.work.OpType(),
					item.work.SequenceNumber())
			}
		}
		j.work.Finish(nil, firstErr)
		return
	}

	var channel string
	if j.collective {
		channel = fmt.Sprintf("collective/%d", b.collectiveIndex)
		b.collectiveIndex++
	}
	ctx, cancel := workContext(j.work)
	defer cancel()
	result, err := j.run(ctx, channel, j.work)
	if err != nil {
		klog.V(2).Infof("local backend %s (rank %d): %s (seq=%d) failed: %v", b.Name(), b.Rank(),
			j.work.OpType(), j.work.SequenceNumber(), err)
	}
	j.work.Finish(result, err)
}

// IsCoalescing returns whether a coalescing window is open.
func (b *Backend) IsCoalescing() bool {
	b.coalesceMu.Lock()
	defer b.coalesceMu.Unlock()
	return b.coalescing
}

// StartCoalescing implements distributed.Backend. Only BackendNCCL kinds batch operations, for the others
// it is a no-op.
func (b *Backend) StartCoalescing() error {
	if b.kind != distributed.BackendNCCL {
		return b.BaseBackend.StartCoalescing()
	}
	b.coalesceMu.Lock()
	defer b.coalesceMu.Unlock()
	if b.coalescing {
		return errors.Wrapf(distributed.ErrInvalidArgument, "backend %q (rank %d): coalescing already started",
			b.Name(), b.Rank())
	}
	b.coalescing = true
	b.coalesced = nil
	return nil
}

// EndCoalescing implements distributed.Backend: the operations issued since StartCoalescing are run, in
// order, as one job. The returned Work completes after all of them, failing with the first error.
func (b *Backend) EndCoalescing() (*distributed.Work, error) {
	if b.kind != distributed.BackendNCCL {
		return b.BaseBackend.EndCoalescing()
	}
	b.coalesceMu.Lock()
	if !b.coalescing {
		b.coalesceMu.Unlock()
		return nil, errors.Wrapf(distributed.ErrInvalidArgument, "backend %q (rank %d): EndCoalescing without StartCoalescing",
			b.Name(), b.Rank())
	}
	batch := b.coalesced
	b.coalescing = false
	b.coalesced = nil
	b.coalesceMu.Unlock()

	w := b.NewWork(distributed.OpCoalesced, 0)
	if w.IsCompleted() {
		return w, nil
	}
	if batch == nil {
		batch = []*job{}
	}
	b.enqueue(&job{work: w, batch: batch})
	return w, nil
}

// Shutdown implements distributed.Backend: pending operations fail with distributed.ErrBackendShutdown,
// and it waits for the progress goroutine and the pending receives to exit.
func (b *Backend) Shutdown() {
	b.BaseBackend.Shutdown()
	b.queueMu.Lock()
	b.queueClosed = true
	b.queueCond.Broadcast()
	b.queueMu.Unlock()
	b.progressDone.Wait()
	b.receivers.Wait()
}

// post sends payload to dst on channel.
func (b *Backend) post(dst int, channel string, payload ...*tensors.Tensor) error {
	return b.fabric.Post(b.Rank(), dst, channel, payload)
}

func (b *Backend) receive(ctx context.Context, src int, channel string) ([]*tensors.Tensor, error) {
	return b.fabric.Receive(ctx, b.Rank(), src, channel)
}

// receiveFrom receives one message from each of srcs, in parallel.
func (b *Backend) receiveFrom(ctx context.Context, channel string, srcs []int) ([][]*tensors.Tensor, error) {
	payloads := make([][]*tensors.Tensor, len(srcs))
	err := b.pool.FanOut(len(srcs), func(i int) error {
		var err error
		payloads[i], err = b.receive(ctx, srcs[i], channel)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payloads, nil
}

// peers returns the ranks other than this one.
func (b *Backend) peers() []int {
	peers := make([]int, 0, b.Size()-1)
	for rank := range b.Size() {
		if rank != b.Rank() {
			peers = append(peers, rank)
		}
	}
	return peers
}

// exchange posts payloadFor(dst) to every other rank, and returns the payloads received from every rank,
// indexed by rank. The entry of this rank is payloadFor(rank), not copied.
func (b *Backend) exchange(ctx context.Context, channel string, payloadFor func(dst int) []*tensors.Tensor) ([][]*tensors.Tensor, error) {
	peers := b.peers()
	for _, dst := range peers {
		if err := b.post(dst, channel, payloadFor(dst)...); err != nil {
			return nil, err
		}
	}
	received, err := b.receiveFrom(ctx, channel, peers)
	if err != nil {
		return nil, err
	}
	all := make([][]*tensors.Tensor, b.Size())
	all[b.Rank()] = payloadFor(b.Rank())
	for i, src := range peers {
		all[src] = received[i]
	}
	return all, nil
}
