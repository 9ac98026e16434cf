package distributed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gomlx/collectives/pkg/core/tensors"
	"github.com/gomlx/collectives/pkg/support/xsync"
	"github.com/pkg/errors"
)

// WorkState is the state of a Work. States only move forward:
// WorkPending -> WorkInProgress -> one of {WorkSuccess, WorkFailed, WorkTimedOut}, and the last three are terminal.
type WorkState int

//go:generate go tool enumer -type=WorkState -trimprefix=Work -output=gen_workstate_enumer.go work.go

const (
	WorkPending WorkState = iota
	WorkInProgress
	WorkSuccess
	WorkFailed
	WorkTimedOut
)

// IsTerminal returns whether the state is final.
func (s WorkState) IsTerminal() bool {
	return s == WorkSuccess || s == WorkFailed || s == WorkTimedOut
}

// WorkInfo is the summary of a completed Work, given to completion hooks.
type WorkInfo struct {
	// Backend is the name of the backend that issued the Work.
	Backend        string
	OpType         OpType
	SequenceNumber uint64
	State          WorkState
	Err            error

	TimeStarted, TimeFinished time.Time

	// ActiveDuration is only set if collectives timing is enabled in the backend.
	ActiveDuration time.Duration
}

// CompletionHook is called once for each completed Work of the backend it is registered on.
type CompletionHook func(info *WorkInfo)

// Work is the handle of one issued operation. It is one-shot: it completes exactly once.
//
// Works are created by backends (see BaseBackend.NewWork), and they are transitioned by the transport
// with Start and Finish. Callers use Wait (or WaitContext/Done) and the non-blocking queries.
type Work struct {
	backend string
	opType  OpType
	seq     uint64
	timeout time.Duration
	timing  bool
	issued  time.Time

	mu         sync.Mutex
	state      WorkState
	err        error
	started    time.Time
	finished   time.Time
	result     []*tensors.Tensor
	sourceRank int
	onTerminal []func(*Work)
	deadline   *time.Timer

	done      *xsync.Latch
	cancelled atomic.Bool
}

// NewWork creates a pending Work not associated with any backend.
// It times out after timeout (DefaultTimeout if 0) counted from now.
//
// Backends should use BaseBackend.NewWork instead, which also tracks the Work.
func NewWork(opType OpType, timeout time.Duration) *Work {
	return newWork("", opType, 0, timeout, false)
}

// NewCompletedWork returns a Work already finished with the given result and error (see Work.Finish).
func NewCompletedWork(opType OpType, result []*tensors.Tensor, err error) *Work {
	w := NewWork(opType, 0)
	w.Finish(result, err)
	return w
}

func newWork(backend string, opType OpType, seq uint64, timeout time.Duration, timing bool) *Work {
	w := &Work{
		backend:    backend,
		opType:     opType,
		seq:        seq,
		timeout:    resolveTimeout(timeout),
		timing:     timing,
		issued:     time.Now(),
		sourceRank: -1,
		done:       xsync.NewLatch(),
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deadline = time.AfterFunc(w.timeout, func() {
		w.finish(WorkTimedOut, nil, errors.Wrapf(ErrTimedOut, "%s (seq=%d) exceeded its timeout of %s",
			w.opType, w.seq, w.timeout))
	})
	return w
}

// Start marks the Work as in progress. It is a no-op if the Work is no longer pending.
func (w *Work) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != WorkPending {
		return
	}
	w.state = WorkInProgress
	w.started = time.Now()
}

// Finish completes the Work with the given output tensors, and error.
// A nil error means WorkSuccess. Errors that are ErrTimedOut or context.DeadlineExceeded mean WorkTimedOut,
// and any other error WorkFailed.
//
// It returns true if this call completed the Work, false if the Work was already in a terminal state,
// in which case nothing changes.
func (w *Work) Finish(result []*tensors.Tensor, err error) bool {
	switch {
	case err == nil:
		return w.finish(WorkSuccess, result, nil)
	case errors.Is(err, ErrTimedOut):
		return w.finish(WorkTimedOut, result, err)
	case errors.Is(err, context.DeadlineExceeded):
		return w.finish(WorkTimedOut, result, errors.Wrapf(ErrTimedOut, "%s (seq=%d): %v", w.opType, w.seq, err))
	default:
		return w.finish(WorkFailed, result, err)
	}
}

func (w *Work) finish(state WorkState, result []*tensors.Tensor, err error) bool {
	w.mu.Lock()
	if w.state.IsTerminal() {
		w.mu.Unlock()
		return false
	}
	now := time.Now()
	if w.started.IsZero() {
		w.started = now
	}
	w.state = state
	w.err = err
	w.result = result
	w.finished = now
	callbacks := w.onTerminal
	w.onTerminal = nil
	deadline := w.deadline
	w.mu.Unlock()

	if deadline != nil {
		deadline.Stop()
	}
	for _, fn := range callbacks {
		fn(w)
	}
	w.done.Trigger()
	return true
}

// OnTerminal registers fn to be called once when the Work reaches a terminal state, in the goroutine that
// completed it, before waiters are released. If the Work is already terminal, fn is called immediately.
//
// fn must not block: it is meant for bookkeeping.
func (w *Work) OnTerminal(fn func(*Work)) {
	w.mu.Lock()
	if !w.state.IsTerminal() {
		w.onTerminal = append(w.onTerminal, fn)
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()
	fn(w)
}

// SetSourceRank records the rank the data was received from, for RecvAnysource.
func (w *Work) SetSourceRank(rank int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sourceRank = rank
}

// Wait blocks until the Work is in a terminal state, or until timeout elapses, in which case the Work
// transitions to WorkTimedOut. If timeout <= 0, there is no extra bound other than the Work's own timeout.
//
// It returns nil if the Work succeeded, or its failure otherwise. Once terminal, Wait returns immediately
// with the same outcome.
func (w *Work) Wait(timeout time.Duration) error {
	if timeout <= 0 {
		w.done.Wait()
		return w.Exception()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.done.WaitChan():
	case <-timer.C:
		w.finish(WorkTimedOut, nil, errors.Wrapf(ErrTimedOut, "wait for %s (seq=%d) timed out after %s",
			w.opType, w.seq, timeout))
	}
	return w.Exception()
}

// WaitContext is like Wait, but bounded by ctx.
// If ctx's deadline is exceeded, the Work transitions to WorkTimedOut. If ctx is cancelled, it returns the
// context error and the Work is unchanged.
func (w *Work) WaitContext(ctx context.Context) error {
	select {
	case <-w.done.WaitChan():
	case <-ctx.Done():
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			if w.IsCompleted() {
				return w.Exception()
			}
			return errors.Wrapf(ctx.Err(), "wait for %s (seq=%d) interrupted", w.opType, w.seq)
		}
		w.finish(WorkTimedOut, nil, errors.Wrapf(ErrTimedOut, "wait for %s (seq=%d): %v", w.opType, w.seq, ctx.Err()))
	}
	return w.Exception()
}

// Done returns a channel that is closed when the Work reaches a terminal state.
func (w *Work) Done() <-chan struct{} {
	return w.done.WaitChan()
}

// State returns the current state of the Work.
func (w *Work) State() WorkState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// IsCompleted returns whether the Work is in a terminal state.
func (w *Work) IsCompleted() bool {
	return w.State().IsTerminal()
}

// IsSuccess returns whether the Work completed successfully.
func (w *Work) IsSuccess() bool {
	return w.State() == WorkSuccess
}

// Exception returns the failure of the Work, or nil if it succeeded or is not yet completed.
func (w *Work) Exception() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Cancel prevents completion hooks from being called for this Work.
// It doesn't stop the underlying transport operation.
func (w *Work) Cancel() {
	w.cancelled.Store(true)
}

// IsCancelled returns whether Cancel was called.
func (w *Work) IsCancelled() bool {
	return w.cancelled.Load()
}

// Result returns the output tensors of the operation, if it produced any.
func (w *Work) Result() []*tensors.Tensor {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result
}

// SourceRank returns the rank the data was received from, or -1 if not applicable.
func (w *Work) SourceRank() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sourceRank
}

// SequenceNumber of the operation in its backend. It is 0 for Works not issued by a backend.
func (w *Work) SequenceNumber() uint64 { return w.seq }

// OpType returns the type of operation the Work was issued for.
func (w *Work) OpType() OpType { return w.opType }

// Timeout of the Work, counted from its issue.
func (w *Work) Timeout() time.Duration { return w.timeout }

// Info returns a summary of the Work.
func (w *Work) Info() *WorkInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	info := &WorkInfo{
		Backend:        w.backend,
		OpType:         w.opType,
		SequenceNumber: w.seq,
		State:          w.state,
		Err:            w.err,
		TimeStarted:    w.started,
		TimeFinished:   w.finished,
	}
	if w.timing && w.state.IsTerminal() {
		info.ActiveDuration = w.finished.Sub(w.started)
	}
	return info
}
