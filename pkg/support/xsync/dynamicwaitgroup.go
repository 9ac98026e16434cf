package xsync

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// DynamicWaitGroup is a WaitGroup-like synchronization primitive that allows the count
// to be changed (new values added) while someone is waiting for it.
//
// Unlike sync.WaitGroup, waiting can be bounded by a context.
type DynamicWaitGroup struct {
	mu    sync.Mutex
	count int64

	// zero is closed whenever count is 0. It is replaced by a new open channel when count leaves 0.
	zero chan struct{}
}

// NewDynamicWaitGroup creates a new DynamicWaitGroup.
func NewDynamicWaitGroup() *DynamicWaitGroup {
	wg := &DynamicWaitGroup{zero: make(chan struct{})}
	close(wg.zero)
	return wg
}

// Add changes the DynamicWaitGroup counter by the given delta.
// If the counter would go negative, it panics.
func (wg *DynamicWaitGroup) Add(delta int) {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	previous := wg.count
	wg.count += int64(delta)
	switch {
	case wg.count < 0:
		panic(errors.Errorf("DynamicWaitGroup: negative counter"))
	case previous == 0 && wg.count > 0:
		wg.zero = make(chan struct{})
	case previous > 0 && wg.count == 0:
		close(wg.zero)
	}
}

// Done decrements the DynamicWaitGroup counter by one.
func (wg *DynamicWaitGroup) Done() {
	wg.Add(-1)
}

// Count returns the current value of the counter.
func (wg *DynamicWaitGroup) Count() int {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	return int(wg.count)
}

// Wait blocks until the counter is zero.
func (wg *DynamicWaitGroup) Wait() {
	_ = wg.WaitContext(context.Background())
}

// WaitContext blocks until the counter is zero or ctx is done.
// If the counter goes back up before the waiter wakes up, it keeps waiting.
func (wg *DynamicWaitGroup) WaitContext(ctx context.Context) error {
	for {
		wg.mu.Lock()
		if wg.count == 0 {
			wg.mu.Unlock()
			return nil
		}
		zero := wg.zero
		wg.mu.Unlock()
		select {
		case <-zero:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
