// Package xsync implements some extra synchronization tools.
package xsync

import (
	"context"
	"sync"
)

// Latch is a signal that can be waited for until it is triggered.
// Once triggered it never changes state, it's forever triggered.
type Latch struct {
	mu   sync.Mutex
	wait chan struct{}
}

// NewLatch returns an un-triggered latch.
func NewLatch() *Latch {
	return &Latch{wait: make(chan struct{})}
}

// Trigger the latch. It returns true if this call triggered it, false if it was already triggered.
func (l *Latch) Trigger() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Test() {
		return false
	}
	close(l.wait)
	return true
}

// Wait waits for the latch to be triggered.
func (l *Latch) Wait() {
	<-l.wait
}

// WaitContext waits for the latch to be triggered or for ctx to be done, in which case it returns ctx.Err().
func (l *Latch) WaitContext(ctx context.Context) error {
	select {
	case <-l.wait:
		return nil
	case <-ctx.Done():
		// Triggering wins ties.
		if l.Test() {
			return nil
		}
		return ctx.Err()
	}
}

// Test checks whether the latch has been triggered.
func (l *Latch) Test() bool {
	select {
	case <-l.wait:
		return true
	default:
		return false
	}
}

// WaitChan returns a channel closed when the latch triggers, to be used in a `select`.
func (l *Latch) WaitChan() <-chan struct{} {
	return l.wait
}
